package transfer

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
)

func TestEnvelopeSealOpen(t *testing.T) {
	env := NewEnvelope("solve-42", "memory", "worker-3", testRecord())
	require.NotEqual(t, uuid.Nil, env.ID)

	data, err := env.Seal()
	require.NoError(t, err)

	got, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "solve-42", got.Session)
	assert.Equal(t, "memory", got.Backend)
	assert.Equal(t, "worker-3", got.Source)
	assert.True(t, env.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.Record.Equal(env.Record))
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	rec := branchstats.New()
	a := NewEnvelope("s", "memory", "w", rec)
	b := NewEnvelope("s", "memory", "w", rec)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestOpenRejects(t *testing.T) {
	env := NewEnvelope("s", "memory", "w", testRecord())
	good, err := env.Seal()
	require.NoError(t, err)

	flip := func(i int) []byte {
		b := append([]byte(nil), good...)
		b[i] ^= 0x01
		return b
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "too short", data: good[:20], wantErr: branchstats.ErrTruncated},
		{name: "bad magic", data: flip(0), wantErr: branchstats.ErrBadMagic},
		{name: "flipped payload bit", data: flip(len(good) / 2), wantErr: branchstats.ErrChecksum},
		{name: "flipped checksum", data: flip(len(good) - 1), wantErr: branchstats.ErrChecksum},
		{name: "truncated tail", data: good[:len(good)-9], wantErr: branchstats.ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Open(tt.data)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestSealRejectsInvalidRecord(t *testing.T) {
	rec := branchstats.New()
	rec.MaxDepth = -5
	_, err := NewEnvelope("s", "memory", "w", rec).Seal()
	assert.ErrorIs(t, err, branchstats.ErrInvalidDepth)
}

func TestSealRejectsUnsetCreationTime(t *testing.T) {
	env := NewEnvelope("s", "memory", "w", branchstats.New())
	env.CreatedAt = time.Time{}
	_, err := env.Seal()
	assert.ErrorIs(t, err, ErrCreatedAt)

	env.CreatedAt = time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = env.Seal()
	assert.ErrorIs(t, err, ErrCreatedAt)

	env.CreatedAt = time.Date(1969, 12, 31, 23, 0, 0, 0, time.UTC)
	data, err := env.Seal()
	require.NoError(t, err)
	got, err := Open(data)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(env.CreatedAt))
}
