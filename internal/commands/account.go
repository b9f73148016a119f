package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hamzawahab/contactsterm/internal/network"
	"github.com/hamzawahab/contactsterm/internal/session"
)

const searchLimit = 10

func (h *Handler) cmdLogin(parts []string, args string) (Result, error) {
	if len(parts) < 3 {
		return Result{Output: "Usage: @login <username> <password>"}, nil
	}
	username := parts[1]
	password := strings.TrimSpace(strings.TrimPrefix(args, username))

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	creds, err := network.Login(ctx, h.session.Config.GatewayURL, username, password)
	if err != nil {
		return Result{}, err
	}
	if creds.Username == "" {
		creds.Username = username
	}
	if err := h.session.SignIn(ctx, creds); err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Signed in as %s", creds.Username)}, nil
}

func (h *Handler) cmdLogout() (Result, error) {
	if h.session.Gateway() == nil && h.session.Config.SessionToken == "" {
		return Result{Output: "Already signed out."}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := h.session.SignOut(ctx); err != nil {
		return Result{Output: fmt.Sprintf("Signed out locally; the gateway said: %v", err)}, nil
	}
	return Result{Output: "Signed out."}, nil
}

func (h *Handler) cmdSearch(query string) (Result, error) {
	if query == "" {
		return Result{Output: "Usage: @search <name>"}, nil
	}
	gw, err := h.gateway()
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	users, err := gw.Search(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if len(users) == 0 {
		return Result{Output: fmt.Sprintf("No users match %q.", query)}, nil
	}
	var b strings.Builder
	for i, u := range users {
		if i == searchLimit {
			fmt.Fprintf(&b, "… %d more, refine the query\n", len(users)-searchLimit)
			break
		}
		fmt.Fprintf(&b, "%s <%s>  %s\n", safePeerLabel(u.Username), safePeerLabel(u.Email), u.ID)
	}
	b.WriteString("Use @add <username> to send a request.")
	return Result{Output: b.String()}, nil
}

// findUser returns the single search hit whose username or email equals
// name, or nil when there is none.
func (h *Handler) findUser(gw session.Gateway, name string) (*network.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	users, err := gw.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, name) || strings.EqualFold(users[i].Email, name) {
			return &users[i], nil
		}
	}
	return nil, nil
}
