package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzawahab/contactsterm/internal/config"
	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/history"
	"github.com/hamzawahab/contactsterm/internal/network"
	"github.com/hamzawahab/contactsterm/internal/session"
)

const (
	selfID  = "1b4e28ba-2fa1-41d2-883f-0016d3cca427"
	bobID   = "6fa459ea-ee8a-4ca4-894e-db77e160355e"
	carolID = "3c9e2a1f-7b4d-4e8a-9f6c-2d1b0a9e8f7c"
	inReq   = "9b2d4c7e-3f1a-4a55-9f0b-1c2d3e4f5a6b"
	outReq  = "0e8f7c2a-5b6d-4e3f-8a9b-7c6d5e4f3a2b"
	rowID   = "5d6e7f80-1a2b-4c3d-8e9f-a0b1c2d3e4f5"
)

type fakeGateway struct {
	mu        sync.Mutex
	messages  []string
	requests  []string
	responses []string
	removed   []string
	uploads   chan string
	loggedOut bool
}

func (g *fakeGateway) UserID() string                              { return selfID }
func (g *fakeGateway) Connect(context.Context) error               { return nil }
func (g *fakeGateway) Reconnect(context.Context) ([]string, error) { return nil, nil }
func (g *fakeGateway) Connected() (bool, bool)                     { return true, false }
func (g *fakeGateway) Close()                                      {}

func (g *fakeGateway) ListContacts(context.Context) ([]network.Contact, error) {
	return []network.Contact{{
		ID: rowID, UserID: selfID, ContactID: bobID,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		Details:   &network.Person{UserID: bobID, Username: "bob"},
	}}, nil
}

func (g *fakeGateway) PendingRequests(context.Context) ([]network.ContactRequest, error) {
	return []network.ContactRequest{
		{ID: inReq, SenderID: carolID, ReceiverID: selfID, Status: "pending", Sender: &network.Person{Username: "carol"}},
		{ID: outReq, SenderID: selfID, ReceiverID: bobID, Status: "pending", Target: &network.Person{Username: "bob"}},
	}, nil
}

func (g *fakeGateway) Resolve(ctx context.Context, target string) (*network.Contact, error) {
	contacts, _ := g.ListContacts(ctx)
	for _, c := range contacts {
		if strings.EqualFold(c.Details.Username, target) || c.ContactID == target {
			return &c, nil
		}
	}
	return nil, network.ErrContactNotFound
}

func (g *fakeGateway) Download(_ context.Context, messageID, dir string) (string, error) {
	path := filepath.Join(dir, "file-"+messageID+".txt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte("payload"), 0o644)
}

func (g *fakeGateway) SendContactRequest(target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, target)
	return nil
}

func (g *fakeGateway) RespondToRequest(requestID, senderID string, accept bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	verdict := "reject"
	if accept {
		verdict = "accept"
	}
	g.responses = append(g.responses, verdict+":"+requestID+":"+senderID)
	return nil
}

func (g *fakeGateway) RemoveContact(contactID, targetUserID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, contactID+":"+targetUserID)
	return nil
}

func (g *fakeGateway) SendMessage(receiverID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, receiverID+":"+content)
	return nil
}

func (g *fakeGateway) SendFile(_ context.Context, receiverID, path string) (string, error) {
	if g.uploads != nil {
		g.uploads <- receiverID + ":" + filepath.Base(path)
	}
	return "file-id", nil
}

func (g *fakeGateway) Search(_ context.Context, query string) ([]network.User, error) {
	var hits []network.User
	for _, u := range []network.User{
		{ID: bobID, Username: "bob", Email: "bob@example.com"},
		{ID: carolID, Username: "carol", Email: "carol@example.com"},
	} {
		if strings.Contains(u.Username, strings.ToLower(query)) || strings.EqualFold(u.Email, query) {
			hits = append(hits, u)
		}
	}
	return hits, nil
}

func (g *fakeGateway) Conversation(_ context.Context, contactUserID string) ([]network.Message, error) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)
	return []network.Message{
		{ID: "m1", SenderID: contactUserID, ReceiverID: selfID, Content: "morning", CreatedAt: base},
		{ID: "m2", SenderID: selfID, ReceiverID: contactUserID, Content: "hi bob", CreatedAt: base.Add(time.Minute)},
		{ID: "m3", SenderID: contactUserID, ReceiverID: selfID, FileName: "plan.pdf", MessageType: "file", CreatedAt: base.Add(2 * time.Minute)},
	}, nil
}

func (g *fakeGateway) Logout(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loggedOut = true
	return nil
}

func newHandler(t *testing.T) (*Handler, *fakeGateway, *session.Session) {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		BaseDir:      base,
		UserID:       selfID,
		Username:     "alice",
		GatewayURL:   "http://localhost:8080",
		DownloadsDir: filepath.Join(base, "downloads"),
		ChunkSize:    32 * 1024,
		UploadRate:   20,
	}
	gw := &fakeGateway{uploads: make(chan string, 1)}
	sess := session.New(cfg, nil, history.New(filepath.Join(base, "logs")), gw, make(chan events.Event, 8))
	return New(sess), gw, sess
}

func TestHandleRejectsPlainText(t *testing.T) {
	h, _, _ := newHandler(t)
	res, err := h.Handle("hello")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "@help")

	_, err = h.Handle("@nope")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	res, err = h.Handle("@exit")
	require.NoError(t, err)
	assert.True(t, res.Quit)
}

func TestContactsAndRequests(t *testing.T) {
	h, _, _ := newHandler(t)
	res, err := h.Handle("@contacts")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "bob ("+bobID+")")
	assert.Contains(t, res.Output, "2 hours ago")

	res, err = h.Handle("@requests")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "← "+inReq+"  carol")
	assert.Contains(t, res.Output, "→ "+outReq+"  bob")
}

func TestAddResolvesNamesAndIDs(t *testing.T) {
	h, gw, _ := newHandler(t)
	res, err := h.Handle("@add bob")
	require.NoError(t, err)
	assert.Equal(t, "Contact request sent to bob", res.Output)

	res, err = h.Handle("@add dave")
	require.NoError(t, err)
	assert.Equal(t, "No user named dave. Try @search dave.", res.Output)

	res, err = h.Handle("@add " + selfID)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "yourself")

	_, err = h.Handle("@add " + carolID)
	require.NoError(t, err)
	assert.Equal(t, []string{bobID, carolID}, gw.requests)
}

func TestAcceptAndReject(t *testing.T) {
	h, gw, _ := newHandler(t)
	res, err := h.Handle("@accept " + inReq)
	require.NoError(t, err)
	assert.Equal(t, "Accepted request from carol", res.Output)

	res, err = h.Handle("@reject " + outReq)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "sent by you")

	res, err = h.Handle("@reject " + carolID)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "No pending request")

	assert.Equal(t, []string{"accept:" + inReq + ":" + carolID}, gw.responses)
}

func TestSendRecordsHistory(t *testing.T) {
	h, gw, sess := newHandler(t)
	res, err := h.Handle("@send bob see you at 5")
	require.NoError(t, err)
	assert.Equal(t, "Sent message to bob", res.Output)
	assert.Equal(t, []string{bobID + ":see you at 5"}, gw.messages)

	_, err = h.Handle("@send dave hi")
	assert.ErrorIs(t, err, network.ErrContactNotFound)

	entries, err := sess.History.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, events.MessageSentAck, entries[0].Kind)

	res, err = h.Handle("@history")
	require.NoError(t, err)
	lines := strings.Split(res.Output, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "WHEN"))
	assert.Contains(t, lines[1], "message")
	assert.Contains(t, lines[1], "→")
	assert.Contains(t, lines[1], "see you at 5")
}

func TestHistoryRowsFollowKind(t *testing.T) {
	h, _, sess := newHandler(t)
	require.NoError(t, sess.History.Record(events.Event{
		Kind: events.NewFileReceived, From: bobID, To: selfID, FileName: "plan.pdf", Size: 2048,
		Timestamp: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, sess.History.AppendContact(events.UpdateReceivedOnContactRequest, carolID, selfID, "accepted"))

	res, err := h.Handle("@history")
	require.NoError(t, err)
	lines := strings.Split(res.Output, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "file")
	assert.Contains(t, lines[1], "←")
	assert.Contains(t, lines[1], "plan.pdf (2.0 KiB)")
	assert.Contains(t, lines[2], "request update")
	assert.Contains(t, lines[2], "accepted")
}

func TestHistoryWithoutManager(t *testing.T) {
	h, _, sess := newHandler(t)
	sess.History = nil

	res, err := h.Handle("@history")
	require.NoError(t, err)
	assert.Equal(t, "History is empty.", res.Output)

	res, err = h.Handle("@clear history")
	require.NoError(t, err)
	assert.Equal(t, "History cleared.", res.Output)

	_, err = h.Handle("@send bob hi")
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	h, _, _ := newHandler(t)
	res, err := h.Handle("@search car")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "carol <carol@example.com>  "+carolID)
	assert.NotContains(t, res.Output, "bob")

	res, err = h.Handle("@search zed")
	require.NoError(t, err)
	assert.Equal(t, `No users match "zed".`, res.Output)

	res, err = h.Handle("@search")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Usage")
}

func TestMessages(t *testing.T) {
	h, _, _ := newHandler(t)
	res, err := h.Handle("@messages bob")
	require.NoError(t, err)
	lines := strings.Split(res.Output, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2026-03-01 09:00  bob: morning", lines[0])
	assert.Equal(t, "2026-03-01 09:01  you: hi bob", lines[1])
	assert.Equal(t, "2026-03-01 09:02  bob sent plan.pdf (@download m3)", lines[2])

	res, err = h.Handle("@messages bob 1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01 09:02  bob sent plan.pdf (@download m3)", res.Output)

	res, err = h.Handle("@messages bob zero")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Usage")
}

func TestLoginAndLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/auth/login" || body.Password != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"user_id": carolID, "session_token": "tok-1", "username": "carol", "email": "carol@example.com",
		})
	}))
	defer srv.Close()

	h, old, sess := newHandler(t)
	sess.Config.GatewayURL = srv.URL
	next := &fakeGateway{}
	sess.SetDialer(func(*config.Config) (session.Gateway, error) { return next, nil })

	_, err := h.Handle("@login carol wrong")
	assert.ErrorIs(t, err, network.ErrUnauthorized)
	assert.Same(t, old, sess.Gateway())

	res, err := h.Handle("@login carol s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as carol", res.Output)
	assert.Same(t, next, sess.Gateway())
	assert.Equal(t, "tok-1", sess.Config.SessionToken)
	assert.Equal(t, carolID, sess.Config.UserID)

	res, err = h.Handle("@logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out.", res.Output)
	assert.True(t, next.loggedOut)
	assert.Nil(t, sess.Gateway())
	assert.Empty(t, sess.Config.SessionToken)

	res, err = h.Handle("@logout")
	require.NoError(t, err)
	assert.Equal(t, "Already signed out.", res.Output)

	_, err = h.Handle("@contacts")
	assert.ErrorIs(t, err, ErrSignedOut)
}

func TestRemove(t *testing.T) {
	h, gw, _ := newHandler(t)
	_, err := h.Handle("@remove bob")
	require.NoError(t, err)
	assert.Equal(t, []string{rowID + ":" + bobID}, gw.removed)
}

func TestFileUploadsInBackground(t *testing.T) {
	h, gw, sess := newHandler(t)
	path := filepath.Join(t.TempDir(), "my notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	res, err := h.Handle(`@file bob "` + path + `"`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Uploading my notes.txt (10 B) to bob")

	select {
	case got := <-gw.uploads:
		assert.Equal(t, bobID+":my notes.txt", got)
	case <-time.After(2 * time.Second):
		t.Fatal("upload never started")
	}
	assert.Eventually(t, func() bool {
		entries, err := sess.History.ReadAll()
		return err == nil && len(entries) == 1 && entries[0].Kind == events.FileSentAck
	}, 2*time.Second, 10*time.Millisecond)

	res, err = h.Handle("@file bob " + filepath.Dir(path))
	require.NoError(t, err)
	assert.Contains(t, res.Output, "directory")
}

func TestDownloadUsesConfiguredDir(t *testing.T) {
	h, _, sess := newHandler(t)
	res, err := h.Handle("@download " + outReq)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Saved")
	assert.FileExists(t, filepath.Join(sess.Config.DownloadsDir, "file-"+outReq+".txt"))
}

func TestStatus(t *testing.T) {
	h, _, _ := newHandler(t)
	res, err := h.Handle("@status")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Contacts channel: connected")
	assert.Contains(t, res.Output, "Messages channel: disconnected")
	assert.Contains(t, res.Output, "32 KiB at 20 chunks/s")
}

func TestWithoutGateway(t *testing.T) {
	sess := session.New(&config.Config{}, nil, nil, nil, nil)
	_, err := New(sess).Handle("@contacts")
	assert.Error(t, err)
}

func TestNormalizePathArg(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := normalizePathArg("~/docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "docs"), got)

	_, err = normalizePathArg(`""`)
	assert.Error(t, err)
	_, err = normalizePathArg("~bob/x")
	assert.Error(t, err)
}
