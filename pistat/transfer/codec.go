// Package transfer moves branching-statistics records across ownership and
// process boundaries: deep clones, a fixed-width binary record format, and a
// checksummed envelope that carries a transfer id.
package transfer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
)

// Record format (version 1, little-endian, no padding):
//
//	[magic 'PIST'] [u32 version] [i64 maxDepth] [i64 maxTotalDepth]
//	then for down, then up:
//	[u32 count] count x ([u32 var] [i64 branchCount] [f64 pseudocost]
//	                     [f64 activity] [f64 conflictLength] [f64 inferences]
//	                     [f64 cutoffs])
const (
	recordMagic   = "PIST"
	RecordVersion = uint32(1)

	headerSize = 4 + 4 + 8 + 8
	entrySize  = 4 + 8 + 5*8
)

// Clone returns a deep copy of rec that shares no memory with it.
func Clone(rec *branchstats.Record) *branchstats.Record {
	if rec == nil {
		return nil
	}
	return rec.Clone()
}

// EncodedSize is the exact length Serialize produces for rec.
func EncodedSize(rec *branchstats.Record) int {
	return headerSize + 2*4 + (rec.Count(branchstats.Down)+rec.Count(branchstats.Up))*entrySize
}

// Serialize encodes rec in the record format. Empty tables are written as an
// explicit zero count. A record that fails Validate is refused, so every
// stream Serialize returns decodes back to an equal record.
func Serialize(rec *branchstats.Record) ([]byte, error) {
	if rec == nil {
		return nil, branchstats.NewTransferError("serialize", 0, fmt.Errorf("nil record"))
	}
	// Deserialize accepts exactly what Validate accepts.
	if err := rec.Validate(); err != nil {
		return nil, invalidRecord(err)
	}

	buf := make([]byte, 0, EncodedSize(rec))
	u32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }
	s64 := func(v int64) { buf = binary.LittleEndian.AppendUint64(buf, uint64(v)) }
	f64 := func(v float64) { buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v)) }

	buf = append(buf, recordMagic...)
	u32(RecordVersion)
	s64(int64(rec.MaxDepth))
	s64(int64(rec.MaxTotalDepth))
	for _, dir := range branchstats.Directions {
		entries := rec.Table(dir).Entries()
		u32(uint32(len(entries)))
		for _, e := range entries {
			u32(uint32(e.Var))
			s64(e.Branchings)
			f64(e.Pseudocost)
			f64(e.Activity)
			f64(e.ConflictLength)
			f64(e.Inferences)
			f64(e.Cutoffs)
		}
	}
	return buf, nil
}

func invalidRecord(err error) error {
	te := branchstats.NewTransferError("serialize", 0, err)
	var ie *branchstats.InvariantError
	if errors.As(err, &ie) {
		if dir, v, ok := ie.Where(); ok {
			te = branchstats.NewTransferErrorAt("serialize", 0, dir, v, ie.Err)
		} else {
			te.Err = ie.Err
		}
	}
	return te
}

// decoder walks a record stream and remembers how far it got.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) fail(err error) error {
	return branchstats.NewTransferError("deserialize", d.off, err)
}

func (d *decoder) need(n int) error {
	if len(d.buf)-d.off < n {
		return d.fail(fmt.Errorf("%w: need %d bytes, have %d", branchstats.ErrTruncated, n, len(d.buf)-d.off))
	}
	return nil
}

func (d *decoder) u32() uint32 {
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) s64() int64 {
	v := int64(binary.LittleEndian.Uint64(d.buf[d.off:]))
	d.off += 8
	return v
}

func (d *decoder) f64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(d.buf[d.off:]))
	d.off += 8
	return v
}

// Deserialize decodes a record produced by Serialize. A stream that ends
// early, declares more entries than it holds, carries bytes past the last
// declared entry, repeats a var, holds negative counts, or holds depths
// outside [0, branchstats.MaxDepthLimit] fails with *branchstats.TransferError.
func Deserialize(data []byte) (*branchstats.Record, error) {
	d := &decoder{buf: data}
	if err := d.need(headerSize); err != nil {
		return nil, err
	}
	if !bytes.Equal(data[:4], []byte(recordMagic)) {
		return nil, d.fail(fmt.Errorf("%w: %q", branchstats.ErrBadMagic, data[:4]))
	}
	d.off = 4
	if ver := d.u32(); ver != RecordVersion {
		return nil, d.fail(fmt.Errorf("%w: %d", branchstats.ErrUnsupportedVersion, ver))
	}
	maxDepth := d.s64()
	if err := branchstats.CheckDepth(maxDepth); err != nil {
		d.off = 8
		return nil, d.fail(fmt.Errorf("maxDepth: %w", err))
	}
	maxTotal := d.s64()
	if err := branchstats.CheckDepth(maxTotal); err != nil {
		d.off = 16
		return nil, d.fail(fmt.Errorf("maxTotalDepth: %w", err))
	}

	rec := branchstats.New()
	rec.MaxDepth = int(maxDepth)
	rec.MaxTotalDepth = int(maxTotal)

	for _, dir := range branchstats.Directions {
		if err := d.need(4); err != nil {
			return nil, err
		}
		declared := d.u32()
		// checked before allocating so a corrupt count cannot balloon memory;
		// the division keeps the bound free of overflow on 32-bit ints
		if left := len(d.buf) - d.off; uint64(declared) > uint64(left/entrySize) {
			return nil, d.fail(fmt.Errorf("%w: %d entries declared, room for %d", branchstats.ErrTruncated, declared, left/entrySize))
		}
		count := int(declared)
		tbl := rec.Table(dir)
		for i := 0; i < count; i++ {
			start := d.off
			raw := d.u32()
			if raw > math.MaxInt32 {
				d.off = start
				return nil, d.fail(fmt.Errorf("%s: %w: %d", dir, branchstats.ErrInvalidVar, raw))
			}
			v := branchstats.Var(raw)
			st := branchstats.VarStats{
				Branchings:     d.s64(),
				Pseudocost:     d.f64(),
				Activity:       d.f64(),
				ConflictLength: d.f64(),
				Inferences:     d.f64(),
				Cutoffs:        d.f64(),
			}
			if st.Branchings < 0 {
				d.off = start
				return nil, d.fail(fmt.Errorf("%s var %d: %w: %d", dir, v, branchstats.ErrInvalidCount, st.Branchings))
			}
			if !tbl.Put(v, st) {
				d.off = start
				return nil, d.fail(fmt.Errorf("%s var %d: %w", dir, v, branchstats.ErrDuplicateVar))
			}
		}
	}
	if d.off != len(data) {
		return nil, d.fail(fmt.Errorf("%w: %d extra", branchstats.ErrTrailingBytes, len(data)-d.off))
	}
	return rec, nil
}
