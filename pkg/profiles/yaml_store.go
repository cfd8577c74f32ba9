package profiles

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// YAMLStore keeps one human-readable <id>.yaml file per profile in a
// directory.
type YAMLStore struct {
	dir string
}

var _ Store = (*YAMLStore)(nil)

func NewYAMLStore(dir string) (*YAMLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create profile directory %s", dir)
	}
	return &YAMLStore{dir: dir}, nil
}

func (s *YAMLStore) path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

func (s *YAMLStore) Create(_ context.Context, p *Profile) (bool, error) {
	if err := Validate(p); err != nil {
		return false, err
	}
	b, err := yaml.Marshal(p)
	if err != nil {
		return false, errors.Wrap(err, "could not marshal profile")
	}

	f, err := os.OpenFile(s.path(p.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			log.Debug().Str("component", "profiles").Str("id", p.ID).Msg("profile file already exists")
			return false, nil
		}
		return false, errors.Wrapf(err, "could not create profile file for %q", p.ID)
	}
	if err := writeAndClose(f, b); err != nil {
		// a partial file would make the id look taken
		_ = os.Remove(f.Name())
		return false, errors.Wrapf(err, "could not write profile %q", p.ID)
	}
	return true, nil
}

// writeFile is swapped in tests.
var writeFile = func(f *os.File, b []byte) error {
	_, err := f.Write(b)
	return err
}

func writeAndClose(f *os.File, b []byte) error {
	if err := writeFile(f, b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *YAMLStore) Get(_ context.Context, id string) (*Profile, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read profile %q", id)
	}
	p := &Profile{}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, errors.Wrapf(err, "could not parse profile %q", id)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (s *YAMLStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read profile directory %s", s.dir)
	}
	ids := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".yaml")
		if ValidateID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *YAMLStore) Close() error {
	return nil
}
