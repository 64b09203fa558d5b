// Package notify holds short user-facing notices raised by background work,
// such as a failed organization reload, until the next read drains them.
package notify

import (
	"sync"
	"time"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const defaultCapacity = 20

// Inbox is a bounded FIFO of notices. When full, the oldest notice is dropped.
type Inbox struct {
	mu       sync.Mutex
	capacity int
	now      func() time.Time
	items    []Notice
}

func NewInbox(capacity int, now func() time.Time) *Inbox {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Inbox{capacity: capacity, now: now}
}

func (i *Inbox) Push(level Level, message string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.items) == i.capacity {
		i.items = i.items[1:]
	}
	i.items = append(i.items, Notice{Level: level, Message: message, At: i.now().UTC()})
}

func (i *Inbox) Success(message string) { i.Push(LevelSuccess, message) }

func (i *Inbox) Error(message string) { i.Push(LevelError, message) }

// Drain returns pending notices oldest first and empties the inbox.
func (i *Inbox) Drain() []Notice {
	if i == nil {
		return []Notice{}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.items
	i.items = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

func (i *Inbox) Len() int {
	if i == nil {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}
