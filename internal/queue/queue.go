package queue

import "slices"

// Queue is a strict FIFO of waiting session ids. It is not safe for
// concurrent use; the hub goroutine owns it.
type Queue struct {
	waiting []string
}

func New() *Queue { return &Queue{} }

// Enqueue appends sessionID unless it is already waiting. It reports whether
// the session was added.
func (q *Queue) Enqueue(sessionID string) bool {
	if q.Contains(sessionID) {
		return false
	}
	q.waiting = append(q.waiting, sessionID)
	return true
}

// PushFront puts sessionID back at the head, used when a freshly dequeued
// pair could not be turned into a match through no fault of this session.
func (q *Queue) PushFront(sessionID string) {
	if q.Contains(sessionID) {
		return
	}
	q.waiting = append([]string{sessionID}, q.waiting...)
}

// DequeuePairIfReady removes and returns the two longest-waiting sessions.
func (q *Queue) DequeuePairIfReady() (string, string, bool) {
	if len(q.waiting) < 2 {
		return "", "", false
	}
	a, b := q.waiting[0], q.waiting[1]
	q.waiting = slices.Delete(q.waiting, 0, 2)
	return a, b, true
}

func (q *Queue) Remove(sessionID string) bool {
	i := slices.Index(q.waiting, sessionID)
	if i < 0 {
		return false
	}
	q.waiting = slices.Delete(q.waiting, i, i+1)
	return true
}

func (q *Queue) Contains(sessionID string) bool {
	return slices.Contains(q.waiting, sessionID)
}

func (q *Queue) Len() int { return len(q.waiting) }

// Waiting returns the queued session ids, longest-waiting first.
func (q *Queue) Waiting() []string { return slices.Clone(q.waiting) }
