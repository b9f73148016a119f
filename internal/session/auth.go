package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/network"
)

// ErrNoDialer is returned by SignIn when the session cannot build a
// gateway.
var ErrNoDialer = errors.New("session: no gateway dialer configured")

// SignIn stores creds in the config file and replaces the gateway with a
// fresh one dialed for the new user. A failed dial still keeps the new
// gateway so the reconnect watcher can retry it.
func (s *Session) SignIn(ctx context.Context, creds *network.Credentials) error {
	s.mu.RLock()
	dial := s.dial
	s.mu.RUnlock()
	if dial == nil {
		return ErrNoDialer
	}

	s.Config.UserID = creds.UserID
	s.Config.SessionToken = creds.SessionToken
	if creds.Username != "" {
		s.Config.Username = creds.Username
	}
	if err := s.Config.Save(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	gw, err := dial(s.Config)
	if err != nil {
		return err
	}
	s.swapGateway(gw)
	s.Logger.Info("signed in as %s (%s)", s.Config.Username, creds.UserID)
	if err := gw.Connect(ctx); err != nil {
		s.Logger.Warn("connect after sign-in: %v", err)
		s.emitStatus(events.LevelError, fmt.Sprintf("Signed in, but the channels are not up yet: %v", err))
	}
	return nil
}

// SignOut ends the server session when one exists, forgets the stored
// token and drops the gateway. The local credentials are cleared even when
// the gateway cannot be reached.
func (s *Session) SignOut(ctx context.Context) error {
	var remote error
	if gw := s.Gateway(); gw != nil {
		if remote = gw.Logout(ctx); remote != nil {
			s.Logger.Warn("logout: %v", remote)
		}
	}
	s.swapGateway(nil)
	s.Config.SessionToken = ""
	s.Config.UserID = ""
	if err := s.Config.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	s.Logger.Info("signed out")
	return remote
}
