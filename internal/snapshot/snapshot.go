// Package snapshot persists the annotated host dataset between runs so a
// scan can resume without re-querying Zabbix and Vulners.
package snapshot

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
)

// ErrNotFound is returned by Load and Stat when no snapshot exists.
var ErrNotFound = errors.New("snapshot not found")

// formatVersion is bumped whenever HostRecord changes incompatibly.
const formatVersion = 1

// Snapshot is the persisted dataset.
type Snapshot struct {
	Version   int
	CreatedAt time.Time
	Hosts     []matrix.HostRecord
}

// New stamps a snapshot of hosts with the current time.
func New(hosts []matrix.HostRecord) *Snapshot {
	return &Snapshot{Version: formatVersion, CreatedAt: time.Now().UTC(), Hosts: hosts}
}

// Store reads and writes a single snapshot.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	// Stat reports when the snapshot was last written without reading it.
	Stat(ctx context.Context) (time.Time, error)
	// Location describes where the snapshot lives, for logs.
	Location() string
}

// Encode writes s as gob.
func Encode(w io.Writer, s *Snapshot) error {
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Decode reads a gob snapshot and checks its format version.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return &s, nil
}

// NewStore builds the configured backend.
func NewStore(cfg *config.Config, log *zap.Logger) (Store, error) {
	switch cfg.Snapshot.Backend {
	case config.SnapshotS3:
		return NewS3Store(cfg.Snapshot, log)
	case config.SnapshotFile, "":
		return NewFileStore(cfg.SnapshotPath()), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

// Module provides the configured Store.
var Module = fx.Module("snapshot",
	fx.Provide(NewStore),
)
