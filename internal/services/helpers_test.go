package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"childminder/internal/core"
	"childminder/internal/repository"
	"childminder/internal/storage"
	"childminder/internal/storage/memory"
)

// wednesday is 2025-01-15, a Wednesday.
var wednesday = time.Date(2025, 1, 15, 7, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingStore counts writes per key. Keys in failing reject writes.
type countingStore struct {
	storage.Store
	mu      sync.Mutex
	writes  map[string]int
	failing map[string]error
}

func (s *countingStore) Write(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	err := s.failing[key]
	if err == nil {
		s.writes[key]++
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Write(ctx, key, data)
}

func (s *countingStore) FailWrites(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing == nil {
		s.failing = map[string]error{}
	}
	if err == nil {
		delete(s.failing, key)
		return
	}
	s.failing[key] = err
}

func (s *countingStore) Writes(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

type fixture struct {
	clock      *fakeClock
	store      *countingStore
	repo       *repository.Repository
	reconciler *Reconciler
	attendance *AttendanceService
	children   *ChildService
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	clock := &fakeClock{now: now}
	store := &countingStore{Store: memory.New(), writes: map[string]int{}}

	n := 0
	repo := repository.New(store,
		repository.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("rec-%d", n)
		}),
		repository.WithClock(clock.Now))

	opts := []Option{WithLocation(time.UTC), WithClock(clock.Now)}
	reconciler := NewReconciler(repo, opts...)
	return &fixture{
		clock:      clock,
		store:      store,
		repo:       repo,
		reconciler: reconciler,
		attendance: NewAttendanceService(repo, reconciler, opts...),
		children:   NewChildService(repo, opts...),
	}
}

func (f *fixture) addChild(t *testing.T, c core.Child) core.Child {
	t.Helper()
	saved, outcome, err := f.repo.UpsertChild(context.Background(), c)
	if err != nil || outcome != core.OutcomeOK {
		t.Fatalf("add child %q: outcome=%v err=%v", c.Name, outcome, err)
	}
	return saved
}

func (f *fixture) records(t *testing.T) []core.AttendanceRecord {
	t.Helper()
	records, err := f.repo.ListAttendance(context.Background())
	if err != nil {
		t.Fatalf("list attendance: %v", err)
	}
	return records
}

func weekdaySchedule(start, end string) *core.Schedule {
	return &core.Schedule{Enabled: true, Days: []int{1, 2, 3, 4, 5}, Start: start, End: end}
}

func at(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

// assertInvariants checks at most one open record per child and at most one
// record per (child, day).
func assertInvariants(t *testing.T, records []core.AttendanceRecord) {
	t.Helper()
	open := map[string]int{}
	perDay := map[string]int{}
	for _, r := range records {
		if r.IsOpen() {
			open[r.ChildID]++
		}
		perDay[r.ChildID+"/"+r.Day(time.UTC)]++
	}
	for child, n := range open {
		if n > 1 {
			t.Errorf("child %s has %d open records", child, n)
		}
	}
	for key, n := range perDay {
		if n > 1 {
			t.Errorf("%s has %d records", key, n)
		}
	}
}
