package frontier

import (
	"container/heap"
	"time"
)

// hostQueue holds the queued URLs of one host and its politeness clock.
type hostQueue struct {
	name        string
	urls        []string
	nextAllowed time.Time
	index       int // position in hostHeap, -1 when not scheduled
}

// hostHeap orders hosts with queued URLs by their next allowed fetch time.
type hostHeap []*hostQueue

func (h hostHeap) Len() int { return len(h) }

func (h hostHeap) Less(i, j int) bool {
	if h[i].nextAllowed.Equal(h[j].nextAllowed) {
		return h[i].name < h[j].name
	}
	return h[i].nextAllowed.Before(h[j].nextAllowed)
}

func (h hostHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *hostHeap) Push(x any) {
	q := x.(*hostQueue)
	q.index = len(*h)
	*h = append(*h, q)
}

func (h *hostHeap) Pop() any {
	old := *h
	n := len(old)
	q := old[n-1]
	old[n-1] = nil
	q.index = -1
	*h = old[:n-1]
	return q
}

// delayedItem is a retried URL waiting for its backoff to pass.
type delayedItem struct {
	url       string
	host      string
	notBefore time.Time
}

type delayedHeap []delayedItem

func (h delayedHeap) Len() int           { return len(h) }
func (h delayedHeap) Less(i, j int) bool { return h[i].notBefore.Before(h[j].notBefore) }
func (h delayedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(delayedItem)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

var (
	_ heap.Interface = (*hostHeap)(nil)
	_ heap.Interface = (*delayedHeap)(nil)
)
