package analysis

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires registered jobs at fixed wall-clock slots. Each "HH:MM"
// slot is a singleton: registering it again replaces the previous job, so no
// two firings for the same slot can ever run concurrently.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Register binds job to the given "HH:MM" slot, replacing any prior
// registration for that slot.
func (s *Scheduler) Register(slot string, job func()) error {
	t, err := time.Parse("15:04", slot)
	if err != nil {
		return fmt.Errorf("invalid slot %q: %w", slot, err)
	}
	spec := fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[slot]; ok {
		s.cron.Remove(prev)
	}
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("register slot %q: %w", slot, err)
	}
	s.entries[slot] = id
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
	s.running = true
}

// Stop halts firing; a job already in flight runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
	s.running = false
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SlotStatus describes one registered slot.
type SlotStatus struct {
	Slot    string    `json:"slot"`
	NextRun time.Time `json:"next_run"`
}

// Slots lists the registered slots in ascending slot order.
func (s *Scheduler) Slots() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SlotStatus, 0, len(s.entries))
	for slot, id := range s.entries {
		out = append(out, SlotStatus{Slot: slot, NextRun: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
