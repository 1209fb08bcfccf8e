package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// flockRetryInterval is how often a blocked file lock acquisition re-polls.
const flockRetryInterval = 100 * time.Millisecond

var nsLock = uuid.NewSHA1(uuid.NameSpaceOID, []byte("inkbase.lock"))

// sourceLocks serializes ingestion per source ID. Goroutines in the same
// process coordinate through a keyed semaphore; separate processes sharing
// a lock directory coordinate through flock files.
//
// Entries are reference counted and evicted once nobody holds or waits on
// them, so a long-lived process does not accumulate one semaphore per
// source ID ever touched.
type sourceLocks struct {
	dir string

	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newSourceLocks(dir string) *sourceLocks {
	return &sourceLocks{
		dir:  dir,
		held: make(map[string]*lockEntry),
	}
}

// acquire blocks until the lock for sourceID is held or ctx is done.
// The returned release function must be called exactly once.
func (s *sourceLocks) acquire(ctx context.Context, sourceID string) (func(), error) {
	sem := s.ref(sourceID)

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		s.unref(sourceID)
		return nil, ctx.Err()
	}

	if s.dir == "" {
		return func() {
			<-sem
			s.unref(sourceID)
		}, nil
	}

	// The file name hashes the source ID so arbitrary IDs cannot escape
	// the lock directory or collide with each other.
	path := filepath.Join(s.dir, uuid.NewSHA1(nsLock, []byte(sourceID)).String()+".lock")
	fl := flock.New(path)

	locked, err := fl.TryLockContext(ctx, flockRetryInterval)
	if err != nil {
		<-sem
		s.unref(sourceID)
		return nil, fmt.Errorf("acquiring file lock for %q: %w", sourceID, err)
	}
	if !locked {
		<-sem
		s.unref(sourceID)
		return nil, fmt.Errorf("file lock for %q not acquired", sourceID)
	}

	return func() {
		_ = fl.Unlock()
		<-sem
		s.unref(sourceID)
	}, nil
}

// ref returns the semaphore for sourceID, creating the entry if needed and
// counting the caller as a holder until the matching unref.
func (s *sourceLocks) ref(sourceID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.held[sourceID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		s.held[sourceID] = e
	}
	e.refs++
	return e.sem
}

func (s *sourceLocks) unref(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.held[sourceID]
	e.refs--
	if e.refs == 0 {
		delete(s.held, sourceID)
	}
}
