package playback

import (
	"fmt"
	"math/rand"
)

// VideoRef is one entry of a playlist queue.
type VideoRef struct {
	ID              string
	ExternalID      string
	Title           string
	DurationSeconds int
	// Position is the canonical, persisted order index. The queue's
	// session order may be a shuffled permutation of it.
	Position int
}

// Queue holds the session's playback order for a playlist. The canonical
// order is kept as a snapshot so a shuffle can be undone exactly; the
// canonical order itself is only rewritten by an explicit save-order
// action outside this package.
type Queue struct {
	items     []VideoRef
	canonical []VideoRef
	shuffled  bool
}

// NewQueue builds a queue from videos already in canonical order.
func NewQueue(items []VideoRef) *Queue {
	q := &Queue{
		items:     make([]VideoRef, len(items)),
		canonical: make([]VideoRef, len(items)),
	}
	copy(q.items, items)
	copy(q.canonical, items)
	return q
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Shuffled() bool { return q.shuffled }

// At returns the video at session-order index i.
func (q *Queue) At(i int) (VideoRef, bool) {
	if i < 0 || i >= len(q.items) {
		return VideoRef{}, false
	}
	return q.items[i], true
}

// Items returns a copy of the session order.
func (q *Queue) Items() []VideoRef {
	out := make([]VideoRef, len(q.items))
	copy(out, q.items)
	return out
}

// IndexOf returns the session-order index of the given video, or -1.
func (q *Queue) IndexOf(videoID string) int {
	for i, v := range q.items {
		if v.ID == videoID {
			return i
		}
	}
	return -1
}

// Shuffle reorders the session order with a uniform Fisher-Yates
// permutation. The canonical snapshot is untouched.
func (q *Queue) Shuffle(rng *rand.Rand) {
	for i := len(q.items) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		q.items[i], q.items[j] = q.items[j], q.items[i]
	}
	q.shuffled = true
}

// Restore puts the session order back to the exact canonical order.
func (q *Queue) Restore() {
	copy(q.items, q.canonical)
	q.shuffled = false
}

// Move relocates the element at index from to index to, shifting the
// elements in between. It is the queue-permutation primitive behind
// drag-and-drop reordering.
func (q *Queue) Move(from, to int) error {
	n := len(q.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("playback: move %d -> %d out of range (len %d)", from, to, n)
	}
	if from == to {
		return nil
	}
	v := q.items[from]
	if from < to {
		copy(q.items[from:to], q.items[from+1:to+1])
	} else {
		copy(q.items[to+1:from+1], q.items[to:from])
	}
	q.items[to] = v
	q.shuffled = true
	return nil
}
