package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Identity is the participant state persisted across restarts so a user
// keeps the same ID and can rejoin their last room.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	LastRoom    string `json:"lastRoom,omitempty"`
}

// IdentityStore persists an Identity as a JSON file.
type IdentityStore struct {
	path string
}

// NewIdentityStore creates a store at the given file path.
func NewIdentityStore(path string) *IdentityStore {
	return &IdentityStore{path: path}
}

// Load reads the stored identity. A missing file yields a fresh identity
// with a generated user ID.
func (s *IdentityStore) Load() (Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Identity{UserID: uuid.New().String()}, nil
	}
	if err != nil {
		return Identity{}, fmt.Errorf("read identity: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("parse identity: %w", err)
	}
	if id.UserID == "" {
		id.UserID = uuid.New().String()
	}
	return id, nil
}

// Save writes the identity back to disk.
func (s *IdentityStore) Save(id Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
