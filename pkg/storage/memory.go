package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory artifact store.
// It is safe for concurrent use by multiple goroutines.
//
// If TTL is configured, a background goroutine removes artifacts older than
// the TTL. Artifacts do not survive a restart; multi-instance deployments
// use RedisStore instead.
type MemoryStore struct {
	mu            sync.RWMutex
	artifacts     map[string]Artifact
	latest        map[string]string
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory store with no TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]Artifact),
		latest:    make(map[string]string),
	}
}

// NewMemoryStoreWithTTL creates an in-memory store whose artifacts expire
// after ttl. The cleanup goroutine must be stopped with Stop.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := NewMemoryStore()
	store.ttl = ttl
	store.cleanupTicker = time.NewTicker(cleanupInterval)
	store.stopCleanup = make(chan struct{})
	store.cleanupDone = make(chan struct{})

	go store.runCleanup()

	return store
}

// Stop shuts down the cleanup goroutine. Safe to call more than once.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes artifacts older than the TTL, along with latest pointers
// to them.
func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	for id, a := range s.artifacts {
		if now.Sub(a.CreatedAt) > s.ttl {
			s.deleteLocked(id)
		}
	}
}

// Put stores a, replacing any artifact with the same id, and makes it the
// latest for its variant.
func (s *MemoryStore) Put(ctx context.Context, a Artifact) error {
	if err := validName("artifact id", a.ID); err != nil {
		return err
	}
	if err := validName("variant", a.Variant); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a.Data = append([]byte(nil), a.Data...)
	s.artifacts[a.ID] = a
	s.latest[a.Variant] = a.ID
	return nil
}

// Get returns the artifact with id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Artifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, found := s.artifacts[id]
	return a, found, nil
}

// Latest returns the artifact most recently put for variant.
func (s *MemoryStore) Latest(ctx context.Context, variant string) (Artifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.latest[variant]
	if !ok {
		return Artifact{}, false, nil
	}
	a, found := s.artifacts[id]
	return a, found, nil
}

// Delete removes the artifact with id. Deleting a missing id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(id)
	return nil
}

func (s *MemoryStore) deleteLocked(id string) {
	a, ok := s.artifacts[id]
	if !ok {
		return
	}
	delete(s.artifacts, id)
	if s.latest[a.Variant] == id {
		delete(s.latest, a.Variant)
	}
}

// Len returns the number of stored artifacts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
