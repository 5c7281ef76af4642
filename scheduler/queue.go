package scheduler

import (
	"container/heap"
	"time"
)

type boundary uint8

const (
	boundaryStart boundary = iota + 1
	boundaryOperation
	boundaryTransition
	boundarySave
)

func (b boundary) String() string {
	switch b {
	case boundaryStart:
		return "start"
	case boundaryOperation:
		return "operation"
	case boundaryTransition:
		return "transition"
	case boundarySave:
		return "save"
	}
	return "unknown"
}

// deadline is one scheduled wake-up. gen is the generation of the match at scheduling time; a deadline
// whose generation no longer matches has been cancelled.
type deadline struct {
	at      time.Time
	seq     uint64
	matchID string
	gen     uint64
	kind    boundary
	turn    int
}

// deadlineQueue is a min-heap on (at, seq).
type deadlineQueue []deadline

func (q deadlineQueue) Len() int { return len(q) }

func (q deadlineQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q deadlineQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *deadlineQueue) Push(x any) { *q = append(*q, x.(deadline)) }

func (q *deadlineQueue) Pop() any {
	old := *q
	n := len(old)
	d := old[n-1]
	*q = old[:n-1]
	return d
}

func (q *deadlineQueue) push(d deadline) { heap.Push(q, d) }

func (q *deadlineQueue) pop() deadline { return heap.Pop(q).(deadline) }

func (q deadlineQueue) peek() (deadline, bool) {
	if len(q) == 0 {
		return deadline{}, false
	}
	return q[0], true
}

// drop removes every deadline of a match.
func (q *deadlineQueue) drop(matchID string) {
	kept := (*q)[:0]
	for _, d := range *q {
		if d.matchID != matchID {
			kept = append(kept, d)
		}
	}
	*q = kept
	heap.Init(q)
}
