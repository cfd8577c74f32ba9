package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore keeps profiles as JSON documents in a sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not create directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// one writer, so concurrent creates queue instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, p *Profile) (bool, error) {
	if err := Validate(p); err != nil {
		return false, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return false, errors.Wrap(err, "could not marshal profile")
	}
	res, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO profiles(id, body) VALUES(?, ?)", p.ID, string(body))
	if err != nil {
		return false, errors.Wrap(err, "insert profile")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Profile, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM profiles WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select profile %q", id)
	}
	p := &Profile{}
	if err := json.Unmarshal([]byte(body), p); err != nil {
		return nil, errors.Wrapf(err, "could not parse profile %q", id)
	}
	return p, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM profiles ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list profiles")
	}
	defer func() {
		_ = rows.Close()
	}()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan profile id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "list profiles")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
