package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"childminder/internal/core"
	"childminder/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps documents in process memory.
type Store struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func New() *Store {
	return &Store{docs: map[string][]byte{}}
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *Store) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Close() error { return nil }

// seedFile is the YAML layout accepted by NewFromSeedFile.
type seedFile struct {
	Children []seedChild `yaml:"children"`
}

type seedChild struct {
	Name     string         `yaml:"name"`
	Rate     string         `yaml:"rate"`
	Email    string         `yaml:"email"`
	Schedule *core.Schedule `yaml:"schedule"`
}

// NewFromSeedFile creates a store pre-populated with the children listed in a
// YAML seed file. A missing file yields an empty store.
func NewFromSeedFile(path string) (*Store, error) {
	s := New()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	children := make([]core.Child, 0, len(seed.Children))
	for i, sc := range seed.Children {
		rate := core.Money{}
		if strings.TrimSpace(sc.Rate) != "" {
			rate, err = core.ParseMoney(sc.Rate)
			if err != nil {
				return nil, fmt.Errorf("seed child %d (%s): rate: %w", i, sc.Name, err)
			}
		}
		c := core.Child{
			ID:       uuid.NewString(),
			Name:     strings.TrimSpace(sc.Name),
			Rate:     rate,
			Email:    strings.TrimSpace(sc.Email),
			Active:   true,
			Schedule: sc.Schedule,
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("seed child %d (%s): %w", i, sc.Name, err)
		}
		children = append(children, c)
	}

	data, err := json.Marshal(children)
	if err != nil {
		return nil, fmt.Errorf("encode seed children: %w", err)
	}
	s.docs[storage.KeyChildren] = data
	return s, nil
}
