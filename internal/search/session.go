package search

import "sync"

// Source is one searchable shard of symbol/file data, grounded on
// Searcher: Search scans this shard for query and reports results
// incrementally (SearchCallback), returning early if cancel fires. Format
// computes the slow per-result display info (name, file, match ranges)
// for results the UI actually shows.
type Source interface {
	Search(query Query, cancel <-chan struct{}, report func(batch []Result, deltaItemsDone, deltaItemsTotal, deltaBytesDone int))
}

// Session runs one query across a set of Sources on a worker pool,
// collecting a capped, sorted Results snapshot, mirroring SymbolSearcher.
// A new Update call cancels any Session still running for a stale query,
// mirroring update()'s "this method may be called on every frame" contract.
type Session struct {
	pool *Pool
	wake chan<- struct{}

	mu       sync.Mutex
	results  Results
	cancel   chan struct{}
	querySeq int
}

// NewSession builds a Session that fans work out on pool and signals wake
// (non-blocking, buffered size >= 1) whenever a search completes.
func NewSession(pool *Pool, wake chan<- struct{}) *Session {
	s := &Session{pool: pool, wake: wake}
	s.results = newResults()
	return s
}

// Update starts searching sources for query, cancelling any previous
// in-flight search first, and reports true once the new search has
// started (the caller should reset scroll position). Unlike update(),
// which skips restarting when query and symbol count are unchanged, every
// call here starts a fresh search; callers that poll every frame should
// check the query themselves before calling Update.
func (s *Session) Update(sources []Source, query Query) bool {
	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
	}
	cancel := make(chan struct{})
	s.cancel = cancel
	s.querySeq++
	seq := s.querySeq
	s.results = Results{}
	s.mu.Unlock()

	remaining := int32(len(sources))
	if remaining == 0 {
		s.mu.Lock()
		s.results.Complete = true
		s.mu.Unlock()
		s.notify()
		return true
	}

	var mu sync.Mutex
	for idx, src := range sources {
		idx, src := idx, src
		s.pool.Submit(func() {
			src.Search(query, cancel, func(batch []Result, deltaDone, deltaTotal, deltaBytes int) {
				select {
				case <-cancel:
					return
				default:
				}
				for i := range batch {
					batch[i].SourceIdx = idx
				}
				mu.Lock()
				defer mu.Unlock()
				s.mu.Lock()
				defer s.mu.Unlock()
				if s.querySeq != seq {
					return
				}
				s.results.TotalResults += len(batch)
				s.results.Items = sortAndTruncate(append(s.results.Items, batch...))
				s.results.ItemsDone += deltaDone
				s.results.ItemsTotal += deltaTotal
				s.results.BytesDone += deltaBytes
			})
			select {
			case <-cancel:
				return
			default:
			}
			mu.Lock()
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				s.mu.Lock()
				if s.querySeq == seq {
					s.results.Complete = true
				}
				s.mu.Unlock()
				s.notify()
			}
		})
	}
	return true
}

// notify sends a non-blocking wake, the Go analogue of
// context.wake_main_thread.write(1): a full channel means a wake is
// already pending, so the send is simply dropped.
func (s *Session) notify() {
	if s.wake == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Results returns the current snapshot, mirroring get_results.
func (s *Session) Results() Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Cancel stops any in-flight search without starting a new one, mirroring
// SymbolSearcher's Drop impl.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
}
