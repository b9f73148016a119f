package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Credentials is what the auth service returns for a successful login.
type Credentials struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	SessionToken string `json:"session_token" validate:"required"`
	Username     string `json:"username"`
	Email        string `json:"email"`
}

// User is one search hit. The auth service encodes its user rows under the
// Go field names and never includes the caller.
type User struct {
	ID       string `json:"ID"`
	Username string `json:"Username"`
	Email    string `json:"Email"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges a username (or email) and password for a session token.
// It needs no prior session.
func Login(ctx context.Context, gatewayURL, username, password string) (*Credentials, error) {
	body := loginRequest{Username: strings.TrimSpace(username), Password: password}
	if err := validate.Struct(body); err != nil {
		return nil, errors.New("username and password are required")
	}
	d := NewDirectory(gatewayURL, "", "")
	resp, err := d.send(ctx, http.MethodPost, "/auth/login", nil, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if err := validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("incomplete login response: %w", err)
	}
	return &creds, nil
}
