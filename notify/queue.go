package notify

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Type distinguishes notification kinds.
type Type string

const (
	// TypeReceived indicates another user requested a connection.
	TypeReceived Type = "received"

	// TypeAccept indicates another user accepted our connection request.
	TypeAccept Type = "accept"
)

// Notification is one entry in the queue.
type Notification struct {
	// ID uniquely identifies the notification for later removal.
	ID string `json:"id"`

	// Type says what happened.
	Type Type `json:"type"`

	// UserID is the remote user the notification concerns.
	UserID string `json:"userId"`

	// Username is the remote user's display name, if known.
	Username string `json:"username"`
}

// Queue holds pending notifications in arrival order. Safe for concurrent
// use.
type Queue struct {
	mu       sync.RWMutex
	items    []Notification
	changeCb func([]Notification)
}

// NewQueue creates an empty notification queue.
func NewQueue() *Queue {
	return &Queue{}
}

// SetChangeCallback registers fn, invoked with a snapshot of the queue
// after every mutation.
func (q *Queue) SetChangeCallback(fn func([]Notification)) {
	q.mu.Lock()
	q.changeCb = fn
	q.mu.Unlock()
}

// Add appends a notification, assigning it a fresh ID, and returns the
// stored entry.
func (q *Queue) Add(t Type, userID, username string) Notification {
	n := Notification{
		ID:       uuid.NewString(),
		Type:     t,
		UserID:   userID,
		Username: username,
	}

	q.mu.Lock()
	q.items = append(q.items, n)
	snapshot, cb := q.snapshotLocked()
	q.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Add",
		"type":     string(t),
		"user_id":  userID,
	}).Debug("Notification added")

	if cb != nil {
		cb(snapshot)
	}
	return n
}

// Remove deletes the notification with the given ID. Returns true if an
// entry was removed.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	removed := false
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			removed = true
			break
		}
	}
	var snapshot []Notification
	var cb func([]Notification)
	if removed {
		snapshot, cb = q.snapshotLocked()
	}
	q.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return removed
}

// List returns a copy of the pending notifications, oldest first.
func (q *Queue) List() []Notification {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of pending notifications.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.items = nil
	snapshot, cb := q.snapshotLocked()
	q.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// snapshotLocked copies state for callback delivery. Callers hold q.mu.
func (q *Queue) snapshotLocked() ([]Notification, func([]Notification)) {
	if q.changeCb == nil {
		return nil, nil
	}
	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out, q.changeCb
}
