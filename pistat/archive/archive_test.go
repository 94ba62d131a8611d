package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

type ArchiveTestSuite struct {
	suite.Suite
	open    func(t *testing.T) Archive
	archive Archive
	ctx     context.Context
}

func TestMemoryArchiveSuite(t *testing.T) {
	suite.Run(t, &ArchiveTestSuite{open: func(*testing.T) Archive { return NewMemoryArchive() }})
}

func TestSQLArchiveSuite(t *testing.T) {
	suite.Run(t, &ArchiveTestSuite{open: func(t *testing.T) Archive {
		a, err := OpenSQL(filepath.Join(t.TempDir(), "archive", "pistat.db"), zerolog.Nop())
		require.NoError(t, err)
		return a
	}})
}

func (s *ArchiveTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.archive = s.open(s.T())
}

func (s *ArchiveTestSuite) TearDownTest() {
	s.archive.Close()
}

func envelopeAt(session string, at time.Time, depth int) *transfer.Envelope {
	rec := branchstats.New()
	rec.MaxDepth = depth
	rec.MaxTotalDepth = depth
	rec.Put(branchstats.Down, branchstats.Var(depth), branchstats.VarStats{Branchings: 1, Pseudocost: float64(depth)})
	env := transfer.NewEnvelope(session, "memory", "worker", rec)
	env.CreatedAt = at.UTC()
	return env
}

func (s *ArchiveTestSuite) TestPutGet() {
	env := envelopeAt("solve-1", time.Now(), 3)
	s.Require().NoError(s.archive.Put(s.ctx, env))

	got, err := s.archive.Get(s.ctx, env.ID)
	s.Require().NoError(err)
	s.Equal(env.ID, got.ID)
	s.Equal("solve-1", got.Session)
	s.True(got.Record.Equal(env.Record))

	_, err = s.archive.Get(s.ctx, uuid.New())
	s.ErrorIs(err, ErrNotFound)
}

func (s *ArchiveTestSuite) TestPutIsIdempotent() {
	env := envelopeAt("solve-1", time.Now(), 3)
	s.Require().NoError(s.archive.Put(s.ctx, env))
	s.Require().NoError(s.archive.Put(s.ctx, env))

	entries, err := s.archive.List(s.ctx, "solve-1")
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *ArchiveTestSuite) TestLatestAndList() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := envelopeAt("solve-1", base, 1)
	newest := envelopeAt("solve-1", base.Add(2*time.Minute), 9)
	middle := envelopeAt("solve-1", base.Add(time.Minute), 5)
	other := envelopeAt("solve-1/child", base.Add(time.Hour), 7)

	for _, env := range []*transfer.Envelope{older, newest, middle, other} {
		s.Require().NoError(s.archive.Put(s.ctx, env))
	}

	latest, err := s.archive.Latest(s.ctx, "solve-1")
	s.Require().NoError(err)
	s.Equal(newest.ID, latest.ID)
	s.Equal(9, latest.Record.MaxTotalDepth)

	entries, err := s.archive.List(s.ctx, "solve-1")
	s.Require().NoError(err)
	s.Require().Len(entries, 3, "sessions sharing a prefix stay separate")
	s.Equal(older.ID, entries[0].ID)
	s.Equal(middle.ID, entries[1].ID)
	s.Equal(newest.ID, entries[2].ID)
	s.True(entries[0].CreatedAt.Equal(base))
	s.Positive(entries[0].Size)

	_, err = s.archive.Latest(s.ctx, "nothing-here")
	s.ErrorIs(err, ErrNotFound)
	empty, err := s.archive.List(s.ctx, "nothing-here")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *ArchiveTestSuite) TestLatestBefore1970() {
	base := time.Date(1969, 7, 20, 20, 17, 0, 0, time.UTC)
	first := envelopeAt("apollo", base.Add(-time.Hour), 1)
	second := envelopeAt("apollo", base, 2)
	third := envelopeAt("apollo", base.Add(2*time.Hour), 3)
	for _, env := range []*transfer.Envelope{third, first, second} {
		s.Require().NoError(s.archive.Put(s.ctx, env))
	}

	latest, err := s.archive.Latest(s.ctx, "apollo")
	s.Require().NoError(err)
	s.Equal(third.ID, latest.ID, "an envelope after 1970 is newer than any before it")

	entries, err := s.archive.List(s.ctx, "apollo")
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal([]uuid.UUID{first.ID, second.ID, third.ID}, []uuid.UUID{entries[0].ID, entries[1].ID, entries[2].ID})
}

func (s *ArchiveTestSuite) TestPutRejects() {
	s.Error(s.archive.Put(s.ctx, nil))
	s.Error(s.archive.Put(s.ctx, envelopeAt("", time.Now(), 1)), "session is required")

	bad := envelopeAt("solve-1", time.Now(), 1)
	bad.Record.MaxDepth = -1
	s.ErrorIs(s.archive.Put(s.ctx, bad), branchstats.ErrInvalidDepth)

	unset := envelopeAt("solve-1", time.Time{}, 1)
	s.ErrorIs(s.archive.Put(s.ctx, unset), transfer.ErrCreatedAt)
	_, err := s.archive.Latest(s.ctx, "solve-1")
	s.ErrorIs(err, ErrNotFound)
}

func TestMemoryArchiveClosed(t *testing.T) {
	a := NewMemoryArchive()
	require.NoError(t, a.Close())
	ctx := context.Background()
	require.ErrorIs(t, a.Put(ctx, envelopeAt("s", time.Now(), 1)), ErrClosed)
	_, err := a.Latest(ctx, "s")
	require.ErrorIs(t, err, ErrClosed)
}
