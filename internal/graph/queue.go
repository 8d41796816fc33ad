package graph

import "time"

type entry struct {
	deadline time.Duration
	id       string
}

// readyQueue is a min-heap of entries ordered by deadline, then ID.
// It implements container/heap.Interface.
type readyQueue []entry

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].deadline != q[j].deadline {
		return q[i].deadline < q[j].deadline
	}
	return q[i].id < q[j].id
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(entry)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}
