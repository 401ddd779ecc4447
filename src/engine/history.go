package engine

import (
	"time"

	"elevsim/src/request"
)

// History is a fixed-size ring of served requests, also bounded by age.
//   - adding past the limit overwrites the oldest entry
//   - an index by id allows lookups of recently served requests
type History struct {
	recent    []*request.Request
	seen      map[string]*request.Request
	nextIndex int
}

func NewHistory(limit int) *History {
	return &History{
		recent: make([]*request.Request, limit),
		seen:   make(map[string]*request.Request),
	}
}

func (h *History) Add(r *request.Request) {
	if len(h.recent) == 0 {
		return
	}
	if old := h.recent[h.nextIndex]; old != nil {
		delete(h.seen, old.ID)
	}
	h.recent[h.nextIndex] = r
	h.seen[r.ID] = r
	h.nextIndex = (h.nextIndex + 1) % len(h.recent)
}

// Prune drops entries served more than maxAge before now.
func (h *History) Prune(now time.Time, maxAge time.Duration) int {
	var dropped int
	for i, r := range h.recent {
		if r != nil && now.Sub(servedAt(r)) > maxAge {
			delete(h.seen, r.ID)
			h.recent[i] = nil
			dropped++
		}
	}
	return dropped
}

func (h *History) Get(id string) (*request.Request, bool) {
	r, ok := h.seen[id]
	return r, ok
}

// All returns the retained requests, oldest first.
func (h *History) All() []*request.Request {
	out := make([]*request.Request, 0, len(h.seen))
	for i := range h.recent {
		if r := h.recent[(h.nextIndex+i)%len(h.recent)]; r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (h *History) Len() int {
	return len(h.seen)
}

func servedAt(r *request.Request) time.Time {
	return r.CreatedAt.Add(r.FinalWaitTime)
}
