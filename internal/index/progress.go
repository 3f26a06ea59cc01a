package index

import "sync/atomic"

// Status is the indexer lifecycle state.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusIndexing   Status = "INDEXING"
	StatusReady      Status = "READY"
	StatusWatching   Status = "WATCHING"
	StatusFailed     Status = "FAILED"
)

// Progress is an immutable snapshot of indexing state. Callers get a
// consistent value; fields never change after publication.
type Progress struct {
	Status       Status
	FilesIndexed int
	FilesTotal   int
	Err          string
}

// progressState publishes Progress snapshots with a single pointer swap,
// so readers never observe a half-updated value.
type progressState struct {
	p atomic.Pointer[Progress]
}

func newProgressState() *progressState {
	s := &progressState{}
	s.p.Store(&Progress{Status: StatusNotStarted})
	return s
}

// load returns the current snapshot by value.
func (s *progressState) load() Progress {
	return *s.p.Load()
}

// store publishes a new snapshot.
func (s *progressState) store(p Progress) {
	s.p.Store(&p)
}

// update derives a new snapshot from the current one and publishes it.
// Only the single indexing worker mutates progress, so no CAS loop is
// needed.
func (s *progressState) update(fn func(Progress) Progress) {
	s.store(fn(s.load()))
}
