// Package graph holds the dependency graph of a task batch and tracks which
// tasks are ready to run as their dependencies complete.
package graph

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/me/emailflow/pkg/model"
)

// Graph is the immutable dependency structure of one run.
type Graph struct {
	// Tasks maps task ID to its definition. Read-only after Build.
	Tasks map[string]*model.Task
	// DependsOn maps each task ID to the task IDs it depends on, in
	// declaration order with duplicates removed.
	DependsOn map[string][]string
	// Dependents is the reverse index: DependsOn[b] contains a implies
	// Dependents[a] contains b.
	Dependents map[string][]string
	// Order is a topological order of all tasks. Among tasks that become
	// orderable at the same time, earlier deadlines come first, then IDs.
	Order []string
}

// Build validates the task set and constructs its dependency graph.
//
// It fails with *model.ValidationError for empty or duplicate IDs, negative
// deadlines and references to unknown tasks, and with *model.CycleError if
// the dependency relation is not acyclic (a self-reference is a cycle).
// Cycle detection uses Kahn's algorithm.
func Build(tasks []model.Task) (*Graph, error) {
	g := &Graph{
		Tasks:      make(map[string]*model.Task, len(tasks)),
		DependsOn:  make(map[string][]string, len(tasks)),
		Dependents: make(map[string][]string, len(tasks)),
	}

	for i := range tasks {
		t := &tasks[i]
		if t.ID == "" {
			return nil, &model.ValidationError{Message: fmt.Sprintf("task at index %d has an empty id", i)}
		}
		if _, dup := g.Tasks[t.ID]; dup {
			return nil, &model.ValidationError{TaskID: t.ID, Message: "duplicate id"}
		}
		if t.Deadline < 0 {
			return nil, &model.ValidationError{TaskID: t.ID, Message: fmt.Sprintf("negative deadline %s", t.Deadline)}
		}
		g.Tasks[t.ID] = t
	}

	inDegree := make(map[string]int, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		seen := make(map[string]bool, len(t.Dependencies))
		deps := make([]string, 0, len(t.Dependencies))
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return nil, &model.CycleError{TaskIDs: []string{t.ID}}
			}
			if _, ok := g.Tasks[dep]; !ok {
				return nil, &model.ValidationError{TaskID: t.ID, Message: fmt.Sprintf("unknown dependency %q", dep)}
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			deps = append(deps, dep)
			g.Dependents[dep] = append(g.Dependents[dep], t.ID)
		}
		g.DependsOn[t.ID] = deps
		inDegree[t.ID] = len(deps)
	}

	// Kahn's algorithm with a deadline-ordered frontier.
	frontier := &readyQueue{}
	for id, deg := range inDegree {
		if deg == 0 {
			heap.Push(frontier, entry{deadline: g.Tasks[id].Deadline, id: id})
		}
	}
	order := make([]string, 0, len(tasks))
	for frontier.Len() > 0 {
		e := heap.Pop(frontier).(entry)
		order = append(order, e.id)
		for _, succ := range g.Dependents[e.id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				heap.Push(frontier, entry{deadline: g.Tasks[succ].Deadline, id: succ})
			}
		}
	}

	if len(order) != len(g.Tasks) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &model.CycleError{TaskIDs: stuck}
	}

	g.Order = order
	return g, nil
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.Tasks)
}

// Task returns the task with the given ID, or nil.
func (g *Graph) Task(id string) *model.Task {
	return g.Tasks[id]
}

// Roots returns the IDs of tasks without dependencies, in Order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.Order {
		if len(g.DependsOn[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// CriticalPath returns the length, in tasks, of the longest dependency chain.
func (g *Graph) CriticalPath() int {
	depth := make(map[string]int, len(g.Order))
	longest := 0
	for _, id := range g.Order {
		d := 1
		for _, dep := range g.DependsOn[id] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
		if d > longest {
			longest = d
		}
	}
	return longest
}
