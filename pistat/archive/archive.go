// Package archive keeps sealed envelopes so a solve's statistics outlive the
// workers that produced them and can seed new ones.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

var (
	ErrNotFound = errors.New("envelope not found")
	ErrClosed   = errors.New("archive is closed")
)

// Entry describes one archived envelope without decoding its record.
type Entry struct {
	ID        uuid.UUID
	Session   string
	Backend   string
	Source    string
	CreatedAt time.Time
	Size      int // sealed bytes
}

// Archive stores sealed envelopes by id and session.
type Archive interface {
	// Put stores env. Storing the same id again is a no-op.
	Put(ctx context.Context, env *transfer.Envelope) error
	Get(ctx context.Context, id uuid.UUID) (*transfer.Envelope, error)
	// Latest returns the newest envelope of session.
	Latest(ctx context.Context, session string) (*transfer.Envelope, error)
	// List returns session's envelopes oldest first.
	List(ctx context.Context, session string) ([]Entry, error)
	Close() error
}

func seal(env *transfer.Envelope) (Entry, []byte, error) {
	if env == nil {
		return Entry{}, nil, fmt.Errorf("nil envelope")
	}
	if env.Session == "" {
		return Entry{}, nil, fmt.Errorf("envelope %s has no session", env.ID)
	}
	data, err := env.Seal()
	if err != nil {
		return Entry{}, nil, fmt.Errorf("seal envelope %s: %w", env.ID, err)
	}
	return Entry{
		ID:        env.ID,
		Session:   env.Session,
		Backend:   env.Backend,
		Source:    env.Source,
		CreatedAt: env.CreatedAt,
		Size:      len(data),
	}, data, nil
}

// open decodes stored bytes. Archived data is re-verified on every read.
func open(id uuid.UUID, data []byte) (*transfer.Envelope, error) {
	env, err := transfer.Open(data)
	if err != nil {
		return nil, fmt.Errorf("archived envelope %s: %w", id, err)
	}
	return env, nil
}
