package port

import "sync"

// watchers is the callback registry shared by all drivers.
type watchers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Level)
}

func (w *watchers) add(fn func(Level)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func(Level))
	}
	id := w.next
	w.next++
	w.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.fns, id)
			w.mu.Unlock()
		})
	}
}

func (w *watchers) notify(level Level) {
	w.mu.Lock()
	fns := make([]func(Level), 0, len(w.fns))
	for i := 0; i < w.next; i++ {
		if fn, ok := w.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(level)
	}
}

func (w *watchers) clear() {
	w.mu.Lock()
	w.fns = nil
	w.mu.Unlock()
}
