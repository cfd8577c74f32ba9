package profiles

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Store persists profiles keyed by id.
type Store interface {
	// Create stores p unless a profile with the same id exists, in which
	// case it returns false and leaves the existing record untouched.
	Create(ctx context.Context, p *Profile) (bool, error)
	// Get returns nil, nil if no profile with that id exists.
	Get(ctx context.Context, id string) (*Profile, error)
	// List returns all stored ids in ascending order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

type Driver string

const (
	DriverYAML   Driver = "yaml"
	DriverSQLite Driver = "sqlite"
	DriverBadger Driver = "badger"
)

// DefaultPath returns ~/.chorus/profiles.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".chorus", "profiles")
	}
	return filepath.Join(home, ".chorus", "profiles")
}

// Open opens the store implementation selected by driver at path. For the
// yaml and badger drivers path is a directory, for sqlite a database file.
func Open(driver string, path string) (Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	switch Driver(strings.ToLower(driver)) {
	case DriverYAML, "":
		return NewYAMLStore(path)
	case DriverSQLite:
		return NewSQLiteStore(path)
	case DriverBadger:
		return NewBadgerStore(path)
	default:
		return nil, errors.Errorf("unknown profile store driver %q", driver)
	}
}

// LoadAll fetches every id from the store, failing on the first missing one.
func LoadAll(ctx context.Context, s Store, ids []string) ([]*Profile, error) {
	ret := make([]*Profile, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "could not load profile %q", id)
		}
		if p == nil {
			return nil, errors.Errorf("profile %q not found", id)
		}
		ret = append(ret, p)
	}
	return ret, nil
}
