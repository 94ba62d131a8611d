package transfer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
)

// Envelope format (version 1, little-endian):
//
//	[magic 'PIEV'] [u32 version] [16B id]
//	[u16 len][session] [u16 len][backend] [u16 len][source]
//	[i64 createdAt unix nanos] [u32 len][record]
//	[u32 CRC32-IEEE of every preceding byte]
const (
	envelopeMagic   = "PIEV"
	EnvelopeVersion = uint32(1)
)

// ErrCreatedAt is returned by Seal for an envelope whose creation time is
// unset or outside the range of unix nanoseconds.
var ErrCreatedAt = errors.New("creation time unset or not representable in unix nanoseconds")

var (
	minCreatedAt = time.Unix(0, math.MinInt64)
	maxCreatedAt = time.Unix(0, math.MaxInt64)
)

// Envelope carries one record between workers. ID is unique per transfer so a
// receiver can tell a redelivery from a new record.
type Envelope struct {
	ID        uuid.UUID
	Session   string // solve the record belongs to
	Backend   string // solver backend that produced it
	Source    string // worker that produced it
	CreatedAt time.Time
	Record    *branchstats.Record
}

// NewEnvelope wraps rec with a fresh transfer id.
func NewEnvelope(session, backend, source string, rec *branchstats.Record) *Envelope {
	return &Envelope{
		ID:        uuid.New(),
		Session:   session,
		Backend:   backend,
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Record:    rec,
	}
}

// Seal encodes the envelope with its checksum.
func (e *Envelope) Seal() ([]byte, error) {
	payload, err := Serialize(e.Record)
	if err != nil {
		return nil, err
	}
	if e.CreatedAt.IsZero() || e.CreatedAt.Before(minCreatedAt) || e.CreatedAt.After(maxCreatedAt) {
		return nil, branchstats.NewTransferError("seal", 0, fmt.Errorf("%w: %s", ErrCreatedAt, e.CreatedAt))
	}
	for _, s := range []string{e.Session, e.Backend, e.Source} {
		if len(s) > math.MaxUint16 {
			return nil, branchstats.NewTransferError("seal", 0, fmt.Errorf("header string too long: %d bytes", len(s)))
		}
	}

	buf := make([]byte, 0, 4+4+16+6+len(e.Session)+len(e.Backend)+len(e.Source)+8+4+len(payload)+4)
	str := func(s string) {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
		buf = append(buf, s...)
	}
	buf = append(buf, envelopeMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, EnvelopeVersion)
	buf = append(buf, e.ID[:]...)
	str(e.Session)
	str(e.Backend)
	str(e.Source)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.CreatedAt.UnixNano()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// Open verifies and decodes a sealed envelope.
func Open(data []byte) (*Envelope, error) {
	fail := func(off int, err error) error {
		return branchstats.NewTransferError("open", off, err)
	}
	if len(data) < 4+4+16+6+8+4+4 {
		return nil, fail(0, fmt.Errorf("%w: envelope of %d bytes", branchstats.ErrTruncated, len(data)))
	}
	if !bytes.Equal(data[:4], []byte(envelopeMagic)) {
		return nil, fail(0, fmt.Errorf("%w: %q", branchstats.ErrBadMagic, data[:4]))
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.ChecksumIEEE(body); got != sum {
		return nil, fail(len(body), fmt.Errorf("%w: stored %08x, computed %08x", branchstats.ErrChecksum, sum, got))
	}

	off := 4
	if ver := binary.LittleEndian.Uint32(body[off:]); ver != EnvelopeVersion {
		return nil, fail(off, fmt.Errorf("%w: %d", branchstats.ErrUnsupportedVersion, ver))
	}
	off += 4

	env := &Envelope{}
	copy(env.ID[:], body[off:off+16])
	off += 16

	str := func() (string, error) {
		if len(body)-off < 2 {
			return "", fail(off, branchstats.ErrTruncated)
		}
		n := int(binary.LittleEndian.Uint16(body[off:]))
		off += 2
		if len(body)-off < n {
			return "", fail(off, branchstats.ErrTruncated)
		}
		s := string(body[off : off+n])
		off += n
		return s, nil
	}
	var err error
	if env.Session, err = str(); err != nil {
		return nil, err
	}
	if env.Backend, err = str(); err != nil {
		return nil, err
	}
	if env.Source, err = str(); err != nil {
		return nil, err
	}

	if len(body)-off < 8+4 {
		return nil, fail(off, branchstats.ErrTruncated)
	}
	env.CreatedAt = time.Unix(0, int64(binary.LittleEndian.Uint64(body[off:]))).UTC()
	off += 8
	n := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	if len(body)-off < n {
		return nil, fail(off, fmt.Errorf("%w: record of %d bytes, have %d", branchstats.ErrTruncated, n, len(body)-off))
	}
	if len(body)-off > n {
		return nil, fail(off+n, fmt.Errorf("%w: %d extra", branchstats.ErrTrailingBytes, len(body)-off-n))
	}
	rec, err := Deserialize(body[off : off+n])
	if err != nil {
		return nil, err
	}
	env.Record = rec
	return env, nil
}
