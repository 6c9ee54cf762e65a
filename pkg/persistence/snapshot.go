package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
)

// SnapshotVersion is the current version of the snapshot file format.
const SnapshotVersion = 1

// Snapshot is the persisted appliance configuration.
type Snapshot struct {
	// Version is the snapshot file format version.
	Version int `json:"version"`

	// SavedAt is when the snapshot was last saved.
	SavedAt time.Time `json:"saved_at"`

	Description *description.DeviceDescription `json:"description"`

	// PSK is the URL-safe base64 pre-shared key.
	PSK string `json:"psk64"`

	// Services overrides the default service versions.
	Services map[string]int `json:"services,omitempty"`

	// State holds admin state records ({uid, value_raw, access, ...})
	// applied after the appliance is built.
	State []map[string]any `json:"state,omitempty"`
}

// FromBundle builds a snapshot from a loaded upload.
func FromBundle(b *description.Bundle) *Snapshot {
	return &Snapshot{
		Description: b.Description,
		PSK:         b.PSK,
		Services:    b.Services,
		State:       b.State,
	}
}

// Bundle returns the snapshot as a loadable bundle.
func (s *Snapshot) Bundle() *description.Bundle {
	return &description.Bundle{
		Description: s.Description,
		PSK:         s.PSK,
		Services:    s.Services,
		State:       s.State,
	}
}

// snapshotFile is the on-disk layout. The description is kept raw so it can
// be validated on load.
type snapshotFile struct {
	Version     int              `json:"version"`
	SavedAt     time.Time        `json:"saved_at"`
	Description json.RawMessage  `json:"description"`
	PSK         string           `json:"psk64"`
	Services    map[string]int   `json:"services,omitempty"`
	State       []map[string]any `json:"state,omitempty"`
}

// Store manages one snapshot file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for the snapshot at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the snapshot to disk.
func (s *Store) Save(snap *Snapshot) error {
	if snap == nil || snap.Description == nil {
		return fmt.Errorf("save %s: snapshot has no description", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	snap.Version = SnapshotVersion
	snap.SavedAt = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// Load reads the snapshot from disk.
// Returns nil, nil if the file doesn't exist.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var file snapshotFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	if file.Version > SnapshotVersion {
		return nil, fmt.Errorf("load %s: unsupported snapshot version %d", s.path, file.Version)
	}

	desc, err := description.Parse(file.Description)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return &Snapshot{
		Version:     file.Version,
		SavedAt:     file.SavedAt,
		Description: desc,
		PSK:         file.PSK,
		Services:    file.Services,
		State:       file.State,
	}, nil
}

// Clear removes the snapshot file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
