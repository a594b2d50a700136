package subscribers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Store is a flat JSON-file subscriber store. The environment tag selects
// between the production and development files so that test records never
// receive production alerts. Reads always return a fresh snapshot from disk;
// nothing is cached between match passes.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *logger.Logger
}

// NewStore creates a subscriber store rooted at dataDir. An environment tag
// of "DEV" (case-insensitive) selects subscribers.dev.json, anything else
// selects subscribers.json.
func NewStore(dataDir, environment string, logger *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create subscriber data dir %s: %w", dataDir, err)
	}

	filename := "subscribers.json"
	if strings.EqualFold(environment, "DEV") {
		filename = "subscribers.dev.json"
	}

	return &Store{
		path:   filepath.Join(dataDir, filename),
		logger: logger.Named("subscriber-store"),
	}, nil
}

// Load returns the full subscriber snapshot. A missing file is an empty
// store, not an error; a corrupt file is logged and treated as empty so a
// bad edit cannot halt the pipeline.
func (s *Store) Load() []Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the snapshot without taking the mutex; callers hold it.
func (s *Store) load() []Subscriber {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Failed to read subscriber file", logger.String("path", s.path), logger.Error(err))
		} else {
			s.logger.Warn("Subscriber file not found", logger.String("path", s.path))
		}
		return nil
	}

	var subs []Subscriber
	if err := json.Unmarshal(data, &subs); err != nil {
		s.logger.Error("Failed to parse subscriber file", logger.String("path", s.path), logger.Error(err))
		return nil
	}

	return subs
}

// Find returns the subscriber with the given email, if any.
func (s *Store) Find(email string) (*Subscriber, bool) {
	for _, sub := range s.Load() {
		if sub.Email == email {
			return &sub, true
		}
	}
	return nil, false
}

// AddOrUpdate inserts a subscriber keyed by email, replacing the contact and
// matching preferences of an existing record. Returns the stored record.
func (s *Store) AddOrUpdate(sub Subscriber) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.load()
	for i := range subs {
		if subs[i].Email == sub.Email {
			subs[i].Phone = sub.Phone
			subs[i].Zones = sub.Zones
			subs[i].Keywords = sub.Keywords
			subs[i].Timezone = sub.Timezone
			subs[i].AlertType = sub.AlertType
			if err := s.save(subs); err != nil {
				return nil, err
			}
			return &subs[i], nil
		}
	}

	sub.ID = uuid.NewString()
	sub.CreatedAt = time.Now().UTC()
	subs = append(subs, sub)
	if err := s.save(subs); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Remove deletes the subscriber with the given email. Removing an unknown
// email is a no-op.
func (s *Store) Remove(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.load()
	kept := subs[:0]
	for _, sub := range subs {
		if sub.Email != email {
			kept = append(kept, sub)
		}
	}
	return s.save(kept)
}

func (s *Store) save(subs []Subscriber) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal subscribers: %w", err)
	}
	// Write-then-rename so a reader never sees a half-written file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write subscriber file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace subscriber file %s: %w", s.path, err)
	}
	return nil
}
