package graph

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"
)

// Strategy selects how a Tracker finds ready tasks.
type Strategy string

const (
	// Eager pushes a task onto a deadline-ordered heap the moment its last
	// dependency completes.
	Eager Strategy = "eager"
	// Lazy records the dependents of each completed task as candidates and
	// re-checks only those candidates on Drain.
	Lazy Strategy = "lazy"
)

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Eager, "":
		return Eager, nil
	case Lazy:
		return Lazy, nil
	}
	return "", fmt.Errorf("unknown readiness strategy %q (want eager or lazy)", s)
}

// Tracker decides which tasks of a Graph may run. It owns the live
// remaining-dependency counts and the completion Registry.
//
// Every mutation happens under one mutex, so the completion of sibling
// dependencies can neither lose a decrement nor make a dependent ready twice.
type Tracker struct {
	graph    *Graph
	strategy Strategy

	mu         sync.Mutex
	remaining  map[string]int
	drained    map[string]bool
	queue      readyQueue          // Eager
	candidates map[string]struct{} // Lazy
	completed  *Registry

	notify chan struct{}
}

// NewTracker returns a Tracker with every dependency-free task ready.
func NewTracker(g *Graph, strategy Strategy) *Tracker {
	if strategy == "" {
		strategy = Eager
	}
	t := &Tracker{
		graph:      g,
		strategy:   strategy,
		remaining:  make(map[string]int, len(g.Tasks)),
		drained:    make(map[string]bool, len(g.Tasks)),
		candidates: make(map[string]struct{}),
		completed:  newRegistry(len(g.Tasks)),
		notify:     make(chan struct{}, 1),
	}
	for _, id := range g.Order {
		n := len(g.DependsOn[id])
		t.remaining[id] = n
		if n == 0 {
			t.makeEligible(id)
		}
	}
	if len(g.Order) > 0 {
		t.signal()
	}
	return t
}

// Strategy returns the readiness strategy in use.
func (t *Tracker) Strategy() Strategy {
	return t.strategy
}

// Completed returns the completion registry.
func (t *Tracker) Completed() *Registry {
	return t.completed
}

// Ready returns a channel that receives a value whenever new tasks have
// become eligible since the last receive.
func (t *Tracker) Ready() <-chan struct{} {
	return t.notify
}

// Drain returns up to limit ready task IDs, earliest deadline first. A limit
// <= 0 means no limit. Each ID is returned at most once over the tracker's
// lifetime; completed tasks are never returned.
func (t *Tracker) Drain(limit int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.strategy == Lazy {
		return t.drainLazy(limit)
	}
	return t.drainEager(limit)
}

func (t *Tracker) drainEager(limit int) []string {
	var ready []string
	for t.queue.Len() > 0 && (limit <= 0 || len(ready) < limit) {
		e := heap.Pop(&t.queue).(entry)
		if t.drained[e.id] || t.completed.Has(e.id) {
			continue
		}
		t.drained[e.id] = true
		ready = append(ready, e.id)
	}
	return ready
}

func (t *Tracker) drainLazy(limit int) []string {
	var eligible []entry
	for id := range t.candidates {
		if t.drained[id] || t.completed.Has(id) {
			delete(t.candidates, id)
			continue
		}
		if !t.satisfied(id) {
			// The completion of its last dependency will add it back.
			delete(t.candidates, id)
			continue
		}
		eligible = append(eligible, entry{deadline: t.graph.Tasks[id].Deadline, id: id})
	}
	sort.Slice(eligible, func(i, j int) bool { return readyQueue(eligible).Less(i, j) })

	var ready []string
	for _, e := range eligible {
		if limit > 0 && len(ready) >= limit {
			break
		}
		delete(t.candidates, e.id)
		t.drained[e.id] = true
		ready = append(ready, e.id)
	}
	return ready
}

// satisfied reports whether every dependency of id is in the registry.
func (t *Tracker) satisfied(id string) bool {
	for _, dep := range t.graph.DependsOn[id] {
		if !t.completed.Has(dep) {
			return false
		}
	}
	return true
}

// OnCompleted records id as terminal and unlocks its dependents. It must be
// called once per task; a repeated or unknown ID is rejected without
// touching any count.
func (t *Tracker) OnCompleted(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.graph.Tasks[id]; !ok {
		return fmt.Errorf("complete %q: unknown task", id)
	}
	if !t.completed.add(id) {
		return fmt.Errorf("complete %q: already completed", id)
	}

	unlocked := false
	for _, dep := range t.graph.Dependents[id] {
		if t.completed.Has(dep) {
			continue
		}
		t.remaining[dep]--
		switch t.strategy {
		case Lazy:
			t.candidates[dep] = struct{}{}
			unlocked = unlocked || t.remaining[dep] == 0
		default:
			if t.remaining[dep] == 0 {
				t.makeEligible(dep)
				unlocked = true
			}
		}
	}
	if unlocked {
		t.signal()
	}
	return nil
}

// makeEligible must be called with mu held (or before the tracker is shared).
func (t *Tracker) makeEligible(id string) {
	if t.strategy == Lazy {
		t.candidates[id] = struct{}{}
		return
	}
	heap.Push(&t.queue, entry{deadline: t.graph.Tasks[id].Deadline, id: id})
}

func (t *Tracker) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Remaining returns the number of dependencies of id that have not completed.
func (t *Tracker) Remaining(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining[id]
}

// Pending returns the number of tasks not yet handed out by Drain.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.graph.Tasks) - len(t.drained)
}

// Done reports whether every task has completed.
func (t *Tracker) Done() bool {
	return t.completed.Len() == len(t.graph.Tasks)
}
