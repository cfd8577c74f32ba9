package profiles

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

const badgerKeyPrefix = "profile/"

// BadgerStore keeps profiles in a badger key/value directory.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

func NewBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "database opening failed")
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(id string) []byte {
	return []byte(badgerKeyPrefix + id)
}

func (s *BadgerStore) Create(_ context.Context, p *Profile) (bool, error) {
	if err := Validate(p); err != nil {
		return false, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return false, errors.Wrap(err, "could not marshal profile")
	}
	created := false
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(p.ID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(badgerKey(p.ID), body); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		// the only key read is the id, so a concurrent create won
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "could not store profile %q", p.ID)
	}
	return created, nil
}

func (s *BadgerStore) Get(_ context.Context, id string) (*Profile, error) {
	var p *Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p = &Profile{}
			return json.Unmarshal(val, p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not load profile %q", id)
	}
	return p, nil
}

func (s *BadgerStore) List(_ context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), badgerKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list profiles")
	}
	return ids, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
