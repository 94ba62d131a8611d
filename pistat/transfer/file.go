package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
)

// PersistRecord writes rec to path in the record format. The file is written
// to a sibling temp file first and renamed, so readers never see half a record.
func PersistRecord(path string, rec *branchstats.Record) error {
	data, err := Serialize(rec)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

// LoadRecord reads a record written by PersistRecord.
func LoadRecord(path string) (*branchstats.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}
