// Package feed holds the bounded, de-duplicated windows that back the live
// dashboard views. Poll snapshots and subscription pushes land in the same
// window.
package feed

import (
	"slices"
	"time"
)

// Window keeps at most Cap items ordered newest first. Items are keyed by
// ID; when two items share a key the one with the later timestamp wins, and
// on a tie the incoming one wins. Window is not safe for concurrent use.
type Window[T any] struct {
	cap   int
	key   func(T) string
	stamp func(T) time.Time
	items []T
	index map[string]int
}

// NewWindow creates a window holding at most capacity items.
func NewWindow[T any](capacity int, key func(T) string, stamp func(T) time.Time) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{
		cap:   capacity,
		key:   key,
		stamp: stamp,
		index: make(map[string]int),
	}
}

// Add upserts items and trims the window. It returns the number of items
// that changed the window's contents.
func (w *Window[T]) Add(items ...T) int {
	changed := 0
	for _, it := range items {
		k := w.key(it)
		if k == "" {
			continue
		}
		if i, ok := w.index[k]; ok {
			if w.stamp(it).Before(w.stamp(w.items[i])) {
				continue
			}
			w.items[i] = it
		} else {
			w.items = append(w.items, it)
			w.index[k] = len(w.items) - 1
		}
		changed++
	}
	if changed > 0 {
		w.reorder()
	}
	return changed
}

// Merge overlays a polled snapshot onto the window.
func (w *Window[T]) Merge(snapshot []T) int {
	return w.Add(snapshot...)
}

// Items returns a copy of the window, newest first.
func (w *Window[T]) Items() []T {
	return slices.Clone(w.items)
}

// Len returns the number of items held.
func (w *Window[T]) Len() int { return len(w.items) }

// Get returns the item stored under key.
func (w *Window[T]) Get(key string) (T, bool) {
	i, ok := w.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return w.items[i], true
}

func (w *Window[T]) reorder() {
	slices.SortStableFunc(w.items, func(a, b T) int {
		return w.stamp(b).Compare(w.stamp(a))
	})
	if len(w.items) > w.cap {
		clear(w.items[w.cap:])
		w.items = w.items[:w.cap]
	}
	clear(w.index)
	for i, it := range w.items {
		w.index[w.key(it)] = i
	}
}
