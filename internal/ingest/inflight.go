package ingest

import (
	"sync"
	"sync/atomic"
)

// ticket belongs to one running ingest. Once superseded, its result may
// still be returned to the caller but is never cached.
type ticket struct {
	superseded atomic.Bool
}

// inflight indexes running ingests by every cache key they may write.
type inflight struct {
	mu    sync.Mutex
	byKey map[string]map[*ticket]struct{}
}

func (f *inflight) begin(keys []string) *ticket {
	t := &ticket{}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byKey == nil {
		f.byKey = map[string]map[*ticket]struct{}{}
	}
	for _, k := range keys {
		set := f.byKey[k]
		if set == nil {
			set = map[*ticket]struct{}{}
			f.byKey[k] = set
		}
		set[t] = struct{}{}
	}
	return t
}

func (f *inflight) end(t *ticket, keys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.byKey[k], t)
		if len(f.byKey[k]) == 0 {
			delete(f.byKey, k)
		}
	}
}

// supersede marks every ingest running for one of keys and returns how
// many were marked.
func (f *inflight) supersede(keys []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range keys {
		for t := range f.byKey[k] {
			if !t.superseded.Swap(true) {
				n++
			}
		}
	}
	return n
}
