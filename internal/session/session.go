package session

import (
	"context"
	"sync"

	"github.com/hamzawahab/contactsterm/internal/config"
	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/history"
	"github.com/hamzawahab/contactsterm/internal/logger"
	"github.com/hamzawahab/contactsterm/internal/network"
	"github.com/hamzawahab/contactsterm/internal/snackbar"
)

// Gateway is the remote side of a session. *network.Client implements it.
type Gateway interface {
	UserID() string
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) ([]string, error)
	Connected() (contacts, messages bool)
	ListContacts(ctx context.Context) ([]network.Contact, error)
	PendingRequests(ctx context.Context) ([]network.ContactRequest, error)
	Resolve(ctx context.Context, target string) (*network.Contact, error)
	Download(ctx context.Context, messageID, dir string) (string, error)
	SendContactRequest(targetUserID string) error
	RespondToRequest(requestID, senderID string, accept bool) error
	RemoveContact(contactID, targetUserID string) error
	SendMessage(receiverID, content string) error
	SendFile(ctx context.Context, receiverID, path string) (string, error)
	Search(ctx context.Context, query string) ([]network.User, error)
	Conversation(ctx context.Context, contactUserID string) ([]network.Message, error)
	Logout(ctx context.Context) error
	Close()
}

// Dialer builds the gateway for a signed-in configuration.
type Dialer func(cfg *config.Config) (Gateway, error)

// Session wires together contactsterm runtime services.
type Session struct {
	Config  *config.Config
	Logger  *logger.Logger
	History *history.Manager
	Events  chan events.Event

	mu       sync.RWMutex
	gateway  Gateway
	dial     Dialer
	notifier *snackbar.Notifier
}

func New(cfg *config.Config, log *logger.Logger, hist *history.Manager, gw Gateway, events chan events.Event) *Session {
	return &Session{
		Config:  cfg,
		Logger:  log,
		History: hist,
		Events:  events,
		gateway: gw,
	}
}

// Gateway returns the current gateway, or nil while signed out.
func (s *Session) Gateway() Gateway {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gateway
}

// SetDialer installs the constructor used by SignIn.
func (s *Session) SetDialer(d Dialer) {
	s.mu.Lock()
	s.dial = d
	s.mu.Unlock()
}

// swapGateway installs gw and closes the one it replaces.
func (s *Session) swapGateway(gw Gateway) {
	s.mu.Lock()
	prev := s.gateway
	s.gateway = gw
	s.mu.Unlock()
	if prev != nil && prev != gw {
		prev.Close()
	}
}

// AttachSurface binds the toast notifier to surface, replacing any earlier
// one.
func (s *Session) AttachSurface(surface snackbar.Surface, opts ...snackbar.Option) {
	n := snackbar.New(surface, opts...)
	s.mu.Lock()
	prev := s.notifier
	s.notifier = n
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Notify shows message as a toast. Without an attached surface it returns
// snackbar.ErrSurfaceMissing.
func (s *Session) Notify(message string) error {
	s.mu.RLock()
	n := s.notifier
	s.mu.RUnlock()
	if n == nil {
		return snackbar.ErrSurfaceMissing
	}
	return n.Notify(message)
}

// Close releases resources associated with the session.
func (s *Session) Close() {
	s.mu.Lock()
	n := s.notifier
	s.notifier = nil
	gw := s.gateway
	s.gateway = nil
	s.mu.Unlock()
	if n != nil {
		n.Close()
	}
	if gw != nil {
		gw.Close()
	}
	if s.Logger != nil {
		_ = s.Logger.Close()
	}
}
