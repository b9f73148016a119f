package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/network"
)

// Reconnect re-dials dropped gateway channels and reports the outcome on
// the event stream. It returns true when at least one channel came back.
func (s *Session) Reconnect(ctx context.Context) bool {
	gw := s.Gateway()
	if gw == nil {
		return false
	}
	restored, err := gw.Reconnect(ctx)
	if err != nil {
		s.Logger.Warn("reconnect: %v", err)
		if errors.Is(err, network.ErrUnauthorized) {
			s.emitStatus(events.LevelError, "Session rejected by gateway; sign in again with @login")
		}
	}
	if len(restored) == 0 {
		return false
	}
	s.emitStatus(events.LevelInfo, fmt.Sprintf("Reconnected to %s", strings.Join(restored, " and ")))
	return true
}

// StartReconnectWatcher polls channel state and re-dials whatever dropped.
// The returned function stops the watcher.
func (s *Session) StartReconnectWatcher(interval time.Duration) func() {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				gw := s.Gateway()
				if gw == nil {
					continue
				}
				contacts, messages := gw.Connected()
				if contacts && messages {
					continue
				}
				dialCtx, done := context.WithTimeout(ctx, interval)
				s.Reconnect(dialCtx)
				done()
			}
		}
	}()
	return func() {
		once.Do(cancel)
	}
}

func (s *Session) emitStatus(level events.Level, message string) {
	if s.Events == nil {
		return
	}
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	select {
	case s.Events <- events.Notice(level, trimmed):
	default:
	}
}
