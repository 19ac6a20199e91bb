package queue

import "sync"

// waiters maps job ids to the channels of producers blocked on them.
type waiters struct {
	mu   sync.Mutex
	byID map[string]map[chan struct{}]struct{}
}

func newWaiters() *waiters {
	return &waiters{byID: make(map[string]map[chan struct{}]struct{})}
}

func (w *waiters) register(id string) chan struct{} {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	set, ok := w.byID[id]
	if !ok {
		set = make(map[chan struct{}]struct{})
		w.byID[id] = set
	}
	set[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

func (w *waiters) remove(id string, ch chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set, ok := w.byID[id]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(w.byID, id)
	}
}

func (w *waiters) notify(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.byID[id] {
		signal(ch)
	}
}

func (w *waiters) notifyAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, set := range w.byID {
		for ch := range set {
			signal(ch)
		}
	}
}

func (w *waiters) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byID)
}

// signal never blocks; a pending signal already guarantees a recheck.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
