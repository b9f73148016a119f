package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzawahab/contactsterm/internal/config"
	"github.com/hamzawahab/contactsterm/internal/events"
)

func TestClientRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan map[string]any, 8)
	serve := func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f map[string]any
			if json.Unmarshal(data, &f) == nil {
				frames <- f
			}
		}
	}
	gw := newGateway(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/contacts", serve)
	mux.HandleFunc("/ws/messages", serve)
	mux.Handle("/", gw.Config.Handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.Config{GatewayURL: srv.URL, UserID: aliceID, SessionToken: testToken, ChunkSize: 4, UploadRate: 1000}
	out := make(chan events.Event, 32)
	client, err := NewClient(cfg, nil, out)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Connect(context.Background()))
	contacts, messages := client.Connected()
	assert.True(t, contacts)
	assert.True(t, messages)

	contact, err := client.Resolve(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, client.SendMessage(contact.ContactID, "hello bob"))
	require.NoError(t, client.RespondToRequest(requestID, bobID, true))

	seen := map[string]map[string]any{}
	for len(seen) < 2 {
		select {
		case f := <-frames:
			seen[f["type"].(string)] = f
		case <-time.After(5 * time.Second):
			t.Fatalf("frames not delivered, got %v", seen)
		}
	}
	assert.Equal(t, "hello bob", seen["send_message"]["content"])
	assert.Equal(t, "accept", seen["accept_contact_request"]["action"])

	restored, err := client.Reconnect(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, restored)
}

func TestNewClientNeedsUser(t *testing.T) {
	_, err := NewClient(&config.Config{GatewayURL: "http://localhost:8080"}, nil, nil)
	assert.Error(t, err)
}

func TestClientAnnotatesRequestUpdates(t *testing.T) {
	client, err := NewClient(&config.Config{GatewayURL: "http://localhost:8080", UserID: aliceID}, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	update := events.Event{Kind: events.UpdateSentOnContactRequest, RequestID: requestID, Action: "accept"}
	client.annotateRequest(&update)
	assert.Empty(t, update.From, "unknown requests stay anonymous")

	client.annotateRequest(&events.Event{
		Kind: events.NewContactRequestReceived, RequestID: requestID, From: bobID, To: aliceID,
	})
	client.annotateRequest(&update)
	assert.Equal(t, bobID, update.From)
	assert.Equal(t, aliceID, update.To)
}
