package schema

import (
	"slices"
	"sync"
)

// IndexLifecycle tracks which of a view's indexes are usable for query
// planning (active) and which exist but are not usable (inactive).
//
// Activate never removes a name from the inactive list and the deactivate
// operations append without deduplication, so a reactivated name keeps its
// inactive history. Overlap reports such names.
type IndexLifecycle struct {
	mu       sync.Mutex
	active   StringSet
	inactive []string
}

func NewIndexLifecycle() *IndexLifecycle {
	return &IndexLifecycle{
		active:   StringSet{},
		inactive: []string{},
	}
}

// Activate adds names to the active set.
func (l *IndexLifecycle) Activate(names []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active.Add(names...)
}

// DeactivateAll moves every active name to the end of the inactive list.
func (l *IndexLifecycle) DeactivateAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inactive = append(l.inactive, l.active.Sorted()...)
	l.active = StringSet{}
}

// Deactivate removes name from the active set, if present, and appends it
// to the inactive list.
func (l *IndexLifecycle) Deactivate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, name)
	l.inactive = append(l.inactive, name)
}

// ResolveActive returns the handles of all active indexes that lookup can
// resolve. Unknown names are skipped; a nil lookup yields an empty set.
func (l *IndexLifecycle) ResolveActive(lookup IndexLookup) IndexSet {
	out := IndexSet{}
	if lookup == nil {
		return out
	}
	for _, name := range l.ActiveNames() {
		if idx, ok := lookup.GetIndex(name); ok {
			out.Add(idx)
		}
	}
	return out
}

// CollectActive adds the resolved active indexes to out and then every index
// lookup declares for className.
func (l *IndexLifecycle) CollectActive(lookup IndexLookup, className string, out IndexCollection) {
	if lookup == nil {
		return
	}
	for _, name := range l.ActiveNames() {
		if idx, ok := lookup.GetIndex(name); ok {
			out.Add(idx)
		}
	}
	lookup.GetClassIndexes(className, out)
}

// ActiveNames returns the active names in lexical order.
func (l *IndexLifecycle) ActiveNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.Sorted()
}

// InactiveNames returns the inactive names in insertion order.
func (l *IndexLifecycle) InactiveNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.inactive)
}

func (l *IndexLifecycle) IsActive(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.Contains(name)
}

func (l *IndexLifecycle) HasActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active) > 0
}

// Overlap returns the names that are both active and inactive, sorted.
func (l *IndexLifecycle) Overlap() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	both := StringSet{}
	for _, name := range l.inactive {
		if l.active.Contains(name) {
			both.Add(name)
		}
	}
	return both.Sorted()
}

func (l *IndexLifecycle) snapshot() (StringSet, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.Clone(), slices.Clone(l.inactive)
}

func (l *IndexLifecycle) restore(active StringSet, inactive []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if active != nil {
		l.active = active.Clone()
	}
	if inactive != nil {
		l.inactive = slices.Clone(inactive)
	}
}

// reset replaces both containers with copies of the given state.
func (l *IndexLifecycle) reset(active StringSet, inactive []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = NewStringSet(active.Sorted()...)
	l.inactive = append([]string{}, inactive...)
}
