package api

import (
	"sync"

	"github.com/google/uuid"
)

// RunStore keeps simulation summaries in memory for later retrieval.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]GmapRun
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]GmapRun)}
}

// Put assigns an id to run and stores it.
func (s *RunStore) Put(run GmapRun) GmapRun {
	run.ID = newRunID()
	run.Object = "gmap.run"
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	return run
}

func (s *RunStore) Get(id string) (GmapRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	return run, ok
}

func (s *RunStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	return true
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func newRunID() string {
	return "gmap_" + uuid.NewString()
}
