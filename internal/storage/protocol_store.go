package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
)

const protocolsFile = "protocols_database.json"

type StoredProtocol struct {
	models.ProtocolMetadata
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// UnmarshalJSON keeps the store timestamps, which the embedded metadata
// decoder would otherwise discard.
func (s *StoredProtocol) UnmarshalJSON(data []byte) error {
	if err := s.ProtocolMetadata.UnmarshalJSON(data); err != nil {
		return err
	}
	var stamps struct {
		FirstSeen   time.Time `json:"first_seen"`
		LastUpdated time.Time `json:"last_updated"`
	}
	if err := json.Unmarshal(data, &stamps); err != nil {
		return fmt.Errorf("decode protocol timestamps: %w", err)
	}
	s.FirstSeen, s.LastUpdated = stamps.FirstSeen, stamps.LastUpdated
	return nil
}

// ProtocolFilter selects protocols worth scanning.
type ProtocolFilter interface {
	Match(p models.ProtocolMetadata) bool
}

// ProtocolStore is the JSON database of discovered protocols keyed by id.
type ProtocolStore struct {
	path      string
	logger    *logrus.Logger
	mu        sync.RWMutex
	protocols map[string]StoredProtocol
	now       func() time.Time
}

func NewProtocolStore(storage *LocalStorage, logger *logrus.Logger) (*ProtocolStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	ps := &ProtocolStore{
		path:      filepath.Join(storage.BaseDir(), protocolsDir, protocolsFile),
		logger:    logger,
		protocols: make(map[string]StoredProtocol),
		now:       time.Now,
	}

	var stored []StoredProtocol
	if err := utils.ReadFileJSON(ps.path, &stored); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load protocol database: %w", err)
	}
	for _, p := range stored {
		ps.protocols[p.Key()] = p
	}
	return ps, nil
}

// Upsert adds new protocols and refreshes known ones, keeping first_seen.
func (ps *ProtocolStore) Upsert(protocols []models.ProtocolMetadata) (added, updated int, err error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.now()
	for _, p := range protocols {
		key := p.Key()
		if key == "" {
			ps.logger.Debugf("Skipping protocol without id or name")
			continue
		}
		if existing, ok := ps.protocols[key]; ok {
			ps.protocols[key] = StoredProtocol{ProtocolMetadata: p, FirstSeen: existing.FirstSeen, LastUpdated: now}
			updated++
			continue
		}
		ps.protocols[key] = StoredProtocol{ProtocolMetadata: p, FirstSeen: now, LastUpdated: now}
		added++
	}

	if added+updated == 0 {
		return 0, 0, nil
	}
	if err := ps.save(); err != nil {
		return added, updated, err
	}
	ps.logger.Infof("Protocol database updated: %d added, %d updated", added, updated)
	return added, updated, nil
}

func (ps *ProtocolStore) Get(key string) (StoredProtocol, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.protocols[key]
	return p, ok
}

// List returns all stored protocols ordered by name.
func (ps *ProtocolStore) List() []StoredProtocol {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]StoredProtocol, 0, len(ps.protocols))
	for _, p := range ps.protocols {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName() < out[j].DisplayName() })
	return out
}

func (ps *ProtocolStore) HighRisk(filter ProtocolFilter) []models.ProtocolMetadata {
	var out []models.ProtocolMetadata
	for _, p := range ps.List() {
		if filter.Match(p.ProtocolMetadata) {
			out = append(out, p.ProtocolMetadata)
		}
	}
	return out
}

func (ps *ProtocolStore) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.protocols)
}

func (ps *ProtocolStore) save() error {
	out := make([]StoredProtocol, 0, len(ps.protocols))
	for _, p := range ps.protocols {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return utils.WriteFileJSON(ps.path, out)
}
