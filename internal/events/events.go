package events

import "time"

// Level tags local notices that do not originate from a server frame.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Event carries data between background services and the UI renderer.
// Kind is zero for local notices; Level is set instead.
type Event struct {
	Kind      Kind
	Level     Level
	Message   string
	From      string
	To        string
	RequestID string
	Action    string
	Status    string
	MessageID string
	FileName  string
	MimeType  string
	Path      string
	Size      int64
	Timestamp time.Time
	Progress  *ProgressState
}

// IsNotice reports whether the event is a local status or error notice.
func (e Event) IsNotice() bool {
	return !e.Kind.Valid()
}

// Notice builds a local notice event.
func Notice(level Level, message string) Event {
	return Event{Level: level, Message: message, Timestamp: time.Now()}
}

// ProgressState models upload progress updates.
type ProgressState struct {
	ID        string
	Current   int64
	Total     int64
	Percent   float64
	Label     string
	MimeType  string
	Done      bool
	Path      string
	Peer      string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Fraction returns progress in the range [0, 1]. Percent reported by the
// server wins over byte counters.
func (p *ProgressState) Fraction() float64 {
	if p == nil {
		return 0
	}
	var f float64
	switch {
	case p.Percent > 0:
		f = p.Percent / 100
	case p.Total > 0:
		f = float64(p.Current) / float64(p.Total)
	}
	if p.Done {
		f = 1
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
