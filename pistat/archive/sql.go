package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

// SQLArchive stores envelopes in a libsql database.
type SQLArchive struct {
	db     *sql.DB
	logger zerolog.Logger
}

// ConnectToDB opens a libsql database. A bare path or a "file:" DSN opens a
// local file, creating its directory; any other DSN is passed through.
func ConnectToDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("archive dsn cannot be empty")
	}
	url := dsn
	if !strings.Contains(dsn, "://") {
		path := strings.TrimPrefix(dsn, "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("could not create archive directory: %w", err)
		}
		url = "file:" + path
	}
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach archive database: %w", err)
	}
	return db, nil
}

// OpenSQL connects to dsn and creates the schema if needed.
func OpenSQL(dsn string, logger zerolog.Logger) (*SQLArchive, error) {
	db, err := ConnectToDB(dsn)
	if err != nil {
		return nil, err
	}
	a := &SQLArchive{db: db, logger: logger.With().Str("component", "archive").Logger()}
	if err := a.init(); err != nil {
		db.Close()
		return nil, err
	}
	a.logger.Debug().Str("dsn", dsn).Msg("archive opened")
	return a, nil
}

// init sets up the archive tables.
func (a *SQLArchive) init() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS envelopes (
		id TEXT PRIMARY KEY UNIQUE,
		session TEXT NOT NULL,
		backend TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		sealed BLOB NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create envelopes table: %w", err)
	}

	_, err = a.db.Exec(`CREATE INDEX IF NOT EXISTS envelopes_session_created
		ON envelopes (session, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}
	return nil
}

func (a *SQLArchive) Put(ctx context.Context, env *transfer.Envelope) error {
	entry, data, err := seal(env)
	if err != nil {
		return err
	}
	result, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO envelopes (id, session, backend, source, created_at, sealed) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.Session, entry.Backend, entry.Source, entry.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("failed to insert envelope %s: %w", entry.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		a.logger.Debug().Str("transfer_id", entry.ID.String()).Msg("envelope already archived")
	}
	return nil
}

func (a *SQLArchive) Get(ctx context.Context, id uuid.UUID) (*transfer.Envelope, error) {
	var data []byte
	err := a.db.QueryRowContext(ctx, `SELECT sealed FROM envelopes WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope %s: %w", id, err)
	}
	return open(id, data)
}

func (a *SQLArchive) Latest(ctx context.Context, session string) (*transfer.Envelope, error) {
	var (
		rawID string
		data  []byte
	)
	err := a.db.QueryRowContext(ctx,
		`SELECT id, sealed FROM envelopes WHERE session = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		session).Scan(&rawID, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %q is empty", ErrNotFound, session)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest envelope of %q: %w", session, err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt envelope id %q: %w", rawID, err)
	}
	return open(id, data)
}

func (a *SQLArchive) List(ctx context.Context, session string) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, session, backend, source, created_at, length(sealed) FROM envelopes
		WHERE session = ? ORDER BY created_at ASC, id ASC`, session)
	if err != nil {
		return nil, fmt.Errorf("error querying envelopes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			rawID string
			nanos int64
		)
		if err := rows.Scan(&rawID, &e.Session, &e.Backend, &e.Source, &nanos, &e.Size); err != nil {
			return nil, fmt.Errorf("error scanning envelope: %w", err)
		}
		if e.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("corrupt envelope id %q: %w", rawID, err)
		}
		e.CreatedAt = time.Unix(0, nanos).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *SQLArchive) Close() error {
	return a.db.Close()
}
