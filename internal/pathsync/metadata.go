package pathsync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/driftsync/driftsync/internal/utils"
)

const (
	// MetaDir is the per-root marker/config directory. Its presence is also
	// what workspace discovery treats as "this is a project root".
	MetaDir = ".driftsync"

	metadataFile = "metadata.json"

	// HistoryCap bounds the per-root sync history; the oldest record is
	// evicted first.
	HistoryCap = 50
)

// SyncStatus summarizes one pass for the history log.
type SyncStatus string

const (
	StatusSuccess SyncStatus = "success"
	StatusFailed  SyncStatus = "failed"
	StatusPartial SyncStatus = "partial"
)

// SyncRecord is one entry of the append-only sync history.
type SyncRecord struct {
	Timestamp   time.Time  `json:"timestamp"`
	Direction   Direction  `json:"direction"`
	FilesSynced int        `json:"files_synced"`
	Status      SyncStatus `json:"status"`
}

type rootMetadata struct {
	LastSync      time.Time    `json:"last_sync"`
	LastDirection Direction    `json:"last_direction"`
	History       []SyncRecord `json:"history"`
}

// MetadataStore persists sync activity per project root as a small JSON
// document, loaded lazily and written back after every record. It tracks
// activity only; project identity lives in the config collaborator.
type MetadataStore struct {
	mu     sync.Mutex
	loaded map[string]*rootMetadata
}

func NewMetadataStore() *MetadataStore {
	return &MetadataStore{loaded: make(map[string]*rootMetadata)}
}

func metadataPath(root string) string {
	return filepath.Join(root, MetaDir, metadataFile)
}

// RecordSync appends one record to the root's history and persists it.
// History is a FIFO ring capped at HistoryCap.
func (s *MetadataStore) RecordSync(root string, direction Direction, filesSynced int, status SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadLocked(root)
	if err != nil {
		return err
	}

	record := SyncRecord{
		Timestamp:   time.Now().UTC(),
		Direction:   direction,
		FilesSynced: filesSynced,
		Status:      status,
	}
	meta.LastSync = record.Timestamp
	meta.LastDirection = direction
	meta.History = append(meta.History, record)
	if excess := len(meta.History) - HistoryCap; excess > 0 {
		meta.History = meta.History[excess:]
	}

	return s.saveLocked(root, meta)
}

// LastSync returns the time and direction of the most recent pass, or a zero
// time when the root has never synced.
func (s *MetadataStore) LastSync(root string) (time.Time, Direction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadLocked(root)
	if err != nil {
		return time.Time{}, "", err
	}
	return meta.LastSync, meta.LastDirection, nil
}

// History returns up to limit records, most recent first.
func (s *MetadataStore) History(root string, limit int) ([]SyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadLocked(root)
	if err != nil {
		return nil, err
	}

	n := len(meta.History)
	if limit > n || limit <= 0 {
		limit = n
	}
	records := make([]SyncRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		records = append(records, meta.History[i])
	}
	return records, nil
}

func (s *MetadataStore) loadLocked(root string) (*rootMetadata, error) {
	if meta, ok := s.loaded[root]; ok {
		return meta, nil
	}

	meta := &rootMetadata{}
	data, err := os.ReadFile(metadataPath(root))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read metadata for %s: %w", root, err)
		}
	} else if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", root, err)
	}

	s.loaded[root] = meta
	return meta, nil
}

func (s *MetadataStore) saveLocked(root string, meta *rootMetadata) error {
	path := metadataPath(root)
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata for %s: %w", root, err)
	}
	return nil
}
