package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrContactNotFound = errors.New("network: contact not found")

// Person is the public profile attached to contacts and requests.
type Person struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Contact is one entry of the user's contact list.
type Contact struct {
	ID        string    `json:"ID"`
	UserID    string    `json:"UserID"`
	ContactID string    `json:"ContactID"`
	CreatedAt time.Time `json:"CreatedAt"`
	Details   *Person   `json:"ContactDetails"`
}

// Label returns the most readable name available.
func (c Contact) Label() string {
	if c.Details != nil {
		if name := strings.TrimSpace(c.Details.Username); name != "" {
			return name
		}
		if email := strings.TrimSpace(c.Details.Email); email != "" {
			return email
		}
	}
	return c.ContactID
}

// ContactRequest is a pending request involving the user.
type ContactRequest struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	Sender     *Person   `json:"sender_details,omitempty"`
	Target     *Person   `json:"target_user_details,omitempty"`
}

// Directory talks to the gateway's HTTP endpoints and caches the contact
// list for name resolution.
type Directory struct {
	base   string
	userID string
	token  string
	client *http.Client

	mu       sync.RWMutex
	contacts []Contact
	requests map[string]ContactRequest
}

func NewDirectory(gatewayURL, userID, token string) *Directory {
	return &Directory{
		base:   strings.TrimSuffix(strings.TrimSpace(gatewayURL), "/"),
		userID: userID,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Contacts fetches the contact list and refreshes the cache.
func (d *Directory) Contacts(ctx context.Context) ([]Contact, error) {
	var body struct {
		Contacts []Contact `json:"contacts"`
	}
	q := url.Values{"user_id": {d.userID}}
	if err := d.getJSON(ctx, "/contacts/", q, &body); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.contacts = append([]Contact(nil), body.Contacts...)
	d.mu.Unlock()
	return body.Contacts, nil
}

// PendingRequests lists contact requests sent to or by the user. Every
// listed request is remembered so later updates can be tied to their
// peers.
func (d *Directory) PendingRequests(ctx context.Context) ([]ContactRequest, error) {
	var requests []ContactRequest
	q := url.Values{"user_id": {d.userID}}
	if err := d.getJSON(ctx, "/contacts/requests/", q, &requests); err != nil {
		return nil, err
	}
	for _, r := range requests {
		d.remember(r)
	}
	return requests, nil
}

// Search looks users up by username. The caller is never part of the
// result.
func (d *Directory) Search(ctx context.Context, query string) ([]User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty search query")
	}
	var users []User
	if err := d.getJSON(ctx, "/auth/search", url.Values{"q": {query}}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Conversation returns the messages exchanged with contactUserID, oldest
// first.
func (d *Directory) Conversation(ctx context.Context, contactUserID string) ([]Message, error) {
	if _, err := uuid.Parse(contactUserID); err != nil {
		return nil, fmt.Errorf("invalid contact id %q: %w", contactUserID, err)
	}
	var messages []Message
	q := url.Values{"user_id": {d.userID}, "contact_id": {contactUserID}}
	if err := d.getJSON(ctx, "/messages/", q, &messages); err != nil {
		return nil, err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// Logout ends the server-side session behind the token.
func (d *Directory) Logout(ctx context.Context) error {
	resp, err := d.send(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Request returns a remembered contact request.
func (d *Directory) Request(id string) (ContactRequest, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.requests[strings.ToLower(id)]
	return r, ok
}

func (d *Directory) remember(r ContactRequest) {
	if r.ID == "" {
		return
	}
	d.mu.Lock()
	if d.requests == nil {
		d.requests = make(map[string]ContactRequest)
	}
	d.requests[strings.ToLower(r.ID)] = r
	d.mu.Unlock()
}

// Resolve finds a cached contact by username, email, contact user id or
// contact row id.
func (d *Directory) Resolve(target string) (*Contact, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("empty target")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.contacts {
		c := d.contacts[i]
		if strings.EqualFold(c.ContactID, target) || strings.EqualFold(c.ID, target) {
			return &c, nil
		}
		if c.Details == nil {
			continue
		}
		if strings.EqualFold(c.Details.Username, target) || strings.EqualFold(c.Details.Email, target) {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrContactNotFound, target)
}

// Cached returns the contacts from the last fetch.
func (d *Directory) Cached() []Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Contact(nil), d.contacts...)
}

// Download stores the file attached to messageID under dir and returns the
// written path.
func (d *Directory) Download(ctx context.Context, messageID, dir string) (string, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return "", fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	resp, err := d.send(ctx, http.MethodGet, "/messages/file/", url.Values{"message_id": {messageID}}, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	name := attachmentName(resp.Header.Get("Content-Disposition"))
	if name == "" {
		ext := ""
		if mt, err := mimetype.DetectFile(tmp.Name()); err == nil {
			ext = mt.Extension()
		}
		name = "file-" + messageID + ext
	}
	dest := uniquePath(filepath.Join(dir, name))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (d *Directory) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := d.send(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// send issues one gateway request. A non-nil body is encoded as JSON.
func (d *Directory) send(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	if d.base == "" {
		return nil, errors.New("gateway url not configured")
	}
	endpoint := d.base + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: d.token})
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		defer resp.Body.Close()
		if reason := gatewayReason(resp.Body); reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, reason)
		}
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("gateway: %s not found", path)
	default:
		defer resp.Body.Close()
		if reason := gatewayReason(resp.Body); reason != "" {
			return nil, fmt.Errorf("gateway responded with %s: %s", resp.Status, reason)
		}
		return nil, fmt.Errorf("gateway responded with %s", resp.Status)
	}
}

// gatewayReason extracts the error text of a failed response. The auth
// service wraps it as {"message": ...}; the others send plain text.
func gatewayReason(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4<<10))
	text := strings.TrimSpace(string(data))
	var wrapped struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(text), &wrapped) == nil && wrapped.Message != "" {
		return wrapped.Message
	}
	return text
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	name := filepath.Base(strings.TrimSpace(params["filename"]))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}
