package bot

import "time"

// Status is the fine-grained activity label a job reports while it
// works. States (see State) describe the lifecycle; statuses describe
// what the job is doing right now.
type Status string

const (
	StatusScheduled     Status = "scheduled"
	StatusRunning       Status = "running"
	StatusProcessing    Status = "processing"
	StatusLiking        Status = "liking"
	StatusLiked         Status = "liked"
	StatusPostCompleted Status = "post_completed"
	StatusIdle          Status = "idle"
	StatusPaused        Status = "paused"
	StatusStopped       Status = "stopped"
	StatusError         Status = "error"
)

// Event is a status update emitted by a job runner
type Event struct {
	Account   string    `json:"account"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Likes     int64     `json:"likes"`
	PostLink  string    `json:"post_link,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives job events. Implementations must not block; the
// runner calls Notify from its work loop.
type Notifier interface {
	Notify(event Event)
}

// NopNotifier discards all events
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(event Event) { f(event) }
