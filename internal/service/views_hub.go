package service

import "sync"

// hub fans view snapshots out to stream subscribers. Each subscriber has a
// one-slot buffer holding the newest undelivered snapshot.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan ViewSnapshot]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan ViewSnapshot]struct{})}
}

func (h *hub) subscribe(view string) (chan ViewSnapshot, func()) {
	ch := make(chan ViewSnapshot, 1)
	h.mu.Lock()
	if h.subs[view] == nil {
		h.subs[view] = make(map[chan ViewSnapshot]struct{})
	}
	h.subs[view][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[view], ch)
			if len(h.subs[view]) == 0 {
				delete(h.subs, view)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) has(view string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[view]) > 0
}

func (h *hub) broadcast(view string, snap ViewSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[view] {
		replaceLatest(ch, snap)
	}
}

func (h *hub) deliver(view string, ch chan ViewSnapshot, snap ViewSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[view][ch]; !ok {
		return
	}
	// A broadcast that got here first is newer; keep it.
	select {
	case ch <- snap:
	default:
	}
}

// replaceLatest drops a pending snapshot in favour of snap. Callers hold h.mu,
// which also guards against sending on a closed channel.
func replaceLatest(ch chan ViewSnapshot, snap ViewSnapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
