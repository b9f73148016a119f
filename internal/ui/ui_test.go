package ui

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzawahab/contactsterm/internal/config"
	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/history"
	"github.com/hamzawahab/contactsterm/internal/session"
	"github.com/hamzawahab/contactsterm/internal/snackbar"
	"github.com/hamzawahab/contactsterm/internal/textfmt"
)

const bobID = "6fa459ea-ee8a-4ca4-894e-db77e160355e"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestUI(t *testing.T) (*UI, *syncBuffer, *session.Session) {
	t.Helper()
	cfg := &config.Config{UserID: "1b4e28ba-2fa1-41d2-883f-0016d3cca427", GatewayURL: "http://localhost:8080"}
	sess := session.New(cfg, nil, history.New(filepath.Join(t.TempDir(), "logs")), nil, make(chan events.Event, 8))
	out := &syncBuffer{}
	u := newUI(sess, nil, out)
	sess.AttachSurface(u)
	t.Cleanup(sess.Close)
	return u, out, sess
}

func TestToastCoversEveryKind(t *testing.T) {
	u, _, _ := newTestUI(t)
	u.labels[bobID] = "bob"

	cases := map[events.Kind]events.Event{
		events.ContactRequestSentAck:          {},
		events.NewContactRequestReceived:      {From: bobID},
		events.UpdateReceivedOnContactRequest: {Action: "accept"},
		events.UpdateSentOnContactRequest:     {Action: "reject"},
		events.MessageSentAck:                 {},
		events.NewMessageReceived:             {From: bobID},
		events.FileSentAck:                    {FileName: "a.pdf"},
		events.NewFileReceived:                {From: bobID, FileName: "a.pdf"},
		events.FileUploadProgress:             {Progress: &events.ProgressState{ID: "f", Percent: 100, Done: true}},
	}
	require.Len(t, cases, len(events.Kinds()))
	for kind, evt := range cases {
		evt.Kind = kind
		assert.NotEmpty(t, u.Toast(evt), kind.String())
	}

	assert.Equal(t, "New contact request from bob", u.Toast(events.Event{Kind: events.NewContactRequestReceived, From: bobID}))
	assert.Equal(t, "Your contact request was accepted", u.Toast(events.Event{Kind: events.UpdateReceivedOnContactRequest, Action: "accept"}))
	assert.Equal(t, "New message from 6fa459ea", u.Toast(events.Event{Kind: events.NewMessageReceived, From: "6fa459ea-0000"}))
}

func TestToastSkipsRunningProgress(t *testing.T) {
	u, _, _ := newTestUI(t)
	assert.Empty(t, u.Toast(events.Event{Kind: events.FileUploadProgress, Progress: &events.ProgressState{Percent: 40}}))
	assert.Empty(t, u.Toast(events.Event{Progress: &events.ProgressState{Current: 1, Total: 2}}))
	assert.Equal(t, "Lost connection", u.Toast(events.Notice(events.LevelError, "Lost connection")))
}

func TestSurfaceDrivesFooter(t *testing.T) {
	u, _, _ := newTestUI(t)
	u.SetText("hello")
	assert.Empty(t, u.footer(), "text alone does not show")

	u.Show()
	assert.Contains(t, textfmt.StripANSI(u.footer()), "hello")

	u.Hide()
	assert.Empty(t, u.footer())
	assert.Equal(t, "hello", u.toastText)
}

func TestRenderEventShowsToastAndRecordsHistory(t *testing.T) {
	u, out, sess := newTestUI(t)
	u.renderEvent(events.Event{Kind: events.NewMessageReceived, From: bobID, To: sess.Config.UserID, Message: "lunch?"})

	assert.Contains(t, textfmt.StripANSI(out.String()), "lunch?")
	assert.Contains(t, textfmt.StripANSI(u.footer()), "New message from 6fa459ea")

	entries, err := sess.History.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lunch?", entries[0].Message)
}

func TestShutdownDetachesSurface(t *testing.T) {
	u, _, sess := newTestUI(t)
	assert.True(t, u.Available())
	u.shutdown()
	assert.False(t, u.Available())
	assert.ErrorIs(t, sess.Notify("late"), snackbar.ErrSurfaceMissing)

	// rendering after shutdown must not fail
	u.renderEvent(events.Event{Kind: events.MessageSentAck})
}

func TestProgressMergesServerPercent(t *testing.T) {
	u, out, _ := newTestUI(t)
	u.renderEvent(events.Event{Progress: &events.ProgressState{ID: "f1", Label: "report.pdf", MimeType: "application/pdf", Current: 50, Total: 100}})
	footer := textfmt.StripANSI(u.footer())
	assert.Contains(t, footer, "report.pdf [application/pdf]")
	assert.Contains(t, footer, "50% local 50 B/100 B")

	u.renderEvent(events.Event{Kind: events.FileUploadProgress, Progress: &events.ProgressState{ID: "f1", Percent: 80}})
	footer = textfmt.StripANSI(u.footer())
	assert.Contains(t, footer, "80% server")
	assert.NotContains(t, footer, "local")

	u.renderEvent(events.Event{Progress: &events.ProgressState{ID: "f1", Current: 60, Total: 100}})
	assert.Contains(t, textfmt.StripANSI(u.footer()), "80% server", "a later local count does not pull the bar back")

	u.renderEvent(events.Event{Kind: events.FileUploadProgress, Progress: &events.ProgressState{ID: "f1", Percent: 100, Done: true}})
	assert.Contains(t, textfmt.StripANSI(out.String()), "✓ Uploaded report.pdf [application/pdf]")
	assert.Contains(t, textfmt.StripANSI(u.footer()), "Upload complete")

	before := out.String()
	u.renderEvent(events.Event{Progress: &events.ProgressState{ID: "f1", Current: 100, Total: 100, Done: true}})
	assert.Equal(t, before, out.String(), "finished uploads are not redrawn")
}

func TestComposeFooter(t *testing.T) {
	assert.Empty(t, composeFooter("", "", 80))
	assert.Equal(t, "\rbar", composeFooter("\rbar", "", 80))
	assert.Equal(t, "\rhi", composeFooter("", "hi", 80))
	assert.Equal(t, "\rbar  toast", composeFooter("bar", "toast", 80))

	long := strings.Repeat("x", 100)
	got := composeFooter("bar", long, 20)
	assert.Equal(t, 20, textfmt.Width(got))

	assert.Equal(t, "\r"+long[:78], composeFooter(long[:78], "toast", 80))
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, "accepted", verdict(events.Event{Action: "accept"}))
	assert.Equal(t, "pending", verdict(events.Event{Status: "PENDING"}))
}
