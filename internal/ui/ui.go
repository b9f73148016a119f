package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/hamzawahab/contactsterm/internal/commands"
	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/session"
	"github.com/hamzawahab/contactsterm/internal/snackbar"
	"github.com/hamzawahab/contactsterm/internal/version"
)

const (
	colorReset   = "\033[0m"
	colorPrimary = "\033[36m"
	colorSuccess = "\033[32m"
	colorError   = "\033[31m"
	colorMuted   = "\033[90m"
	colorAccent  = "\033[38;2;198;149;255m"
	bannerWidth  = 80
)

var welcomeBanner = []string{
	"  ___ ___  _  _ _____ _   ___ _____ ___ ",
	" / __/ _ \\| \\| |_   _/_\\ / __|_   _/ __|",
	"| (_| (_) | .` | | |/ _ \\ (__  | | \\__ \\",
	" \\___\\___/|_|\\_| |_/_/ \\_\\___| |_| |___/",
}

// UI is the interactive console. It doubles as the toast surface: the
// toast text shares the footer line with the upload progress bar.
type UI struct {
	session *session.Session
	handler *commands.Handler
	rl      *readline.Instance
	out     io.Writer
	done    chan struct{}

	printMu    sync.Mutex
	progressMu sync.Mutex

	barID        string
	barLine      string
	progressMeta map[string]events.ProgressState
	finished     map[string]bool

	toastText    string
	toastVisible bool

	labelsMu sync.RWMutex
	labels   map[string]string
}

func New(session *session.Session, handler *commands.Handler) (*UI, error) {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	cfg := &readline.Config{
		Prompt:                 colorMuted + "> " + colorReset,
		InterruptPrompt:        colorMuted + "^C" + colorReset + "\n",
		EOFPrompt:              "",
		HistorySearchFold:      true,
		DisableAutoSaveHistory: true,
		Stdin:                  os.Stdin,
		Stdout:                 os.Stdout,
		Stderr:                 os.Stderr,
	}
	configureReadline(cfg)
	enableANSI()
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}
	if !interactive {
		fmt.Fprintln(os.Stderr, colorMuted+"(Limited terminal detected; line editing shortcuts may be unavailable.)"+colorReset)
	}
	u := newUI(session, handler, rl.Stdout())
	u.rl = rl
	session.AttachSurface(u)
	return u, nil
}

func newUI(session *session.Session, handler *commands.Handler, out io.Writer) *UI {
	return &UI{
		session:      session,
		handler:      handler,
		out:          out,
		done:         make(chan struct{}),
		progressMeta: make(map[string]events.ProgressState),
		finished:     make(map[string]bool),
		labels:       make(map[string]string),
	}
}

func configureReadline(cfg *readline.Config) {
	cfg.HistoryLimit = 1024
	cfg.FuncIsTerminal = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	}
	cfg.FuncGetWidth = func() int {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || width <= 0 {
			return bannerWidth
		}
		return width
	}
}

// Run starts the interactive session.
func (u *UI) Run() {
	defer u.rl.Close()
	u.printWelcome()
	go u.refreshLabels()
	go u.consumeEvents()
	for {
		line, err := u.rl.Readline()
		if err == readline.ErrInterrupt {
			u.writeLine(colorMuted + "^C" + colorReset)
			continue
		}
		if err == io.EOF {
			u.shutdown()
			return
		}
		if err != nil {
			u.writeLine(colorError + "Error reading input: " + err.Error() + colorReset)
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "@login") {
			_ = u.rl.SaveHistory(line)
		}
		result, err := u.handler.Handle(line)
		if err != nil {
			u.writeLine(colorError + err.Error() + colorReset)
			continue
		}
		if result.Clear {
			u.clearScreen(false)
			continue
		}
		if result.Output != "" {
			u.writeLine(colorSuccess + result.Output + colorReset)
		}
		if strings.HasPrefix(line, "@contacts") || strings.HasPrefix(line, "@accept") || strings.HasPrefix(line, "@login") {
			go u.refreshLabels()
		}
		if result.Quit {
			u.shutdown()
			return
		}
	}
}

func (u *UI) consumeEvents() {
	for {
		select {
		case evt := <-u.session.Events:
			u.renderEvent(evt)
		case <-u.done:
			return
		}
	}
}

// refreshLabels caches contact names so events can show them instead of
// raw user ids.
func (u *UI) refreshLabels() {
	gw := u.session.Gateway()
	if gw == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	contacts, err := gw.ListContacts(ctx)
	if err != nil {
		u.session.Logger.Warn("refresh contact names: %v", err)
		return
	}
	u.labelsMu.Lock()
	for _, c := range contacts {
		u.labels[c.ContactID] = c.Label()
	}
	u.labelsMu.Unlock()
}

func (u *UI) label(userID string) string {
	u.labelsMu.RLock()
	name, ok := u.labels[userID]
	u.labelsMu.RUnlock()
	if ok && name != "" {
		return name
	}
	return shortID(userID)
}

func (u *UI) renderEvent(evt events.Event) {
	if evt.Progress != nil {
		u.renderProgress(evt)
		if !evt.Kind.Valid() {
			return
		}
	}
	if line := u.describe(evt); line != "" {
		u.writeLine(line)
	}
	if evt.Kind.Valid() && u.session.History != nil {
		if err := u.session.History.Record(evt); err != nil {
			u.session.Logger.Error("history: %v", err)
		}
	}
	if text := u.Toast(evt); text != "" {
		if err := u.session.Notify(text); err != nil {
			if errors.Is(err, snackbar.ErrSurfaceMissing) || errors.Is(err, snackbar.ErrClosed) {
				u.session.Logger.Debug("toast skipped: %v", err)
			} else {
				u.session.Logger.Error("toast: %v", err)
			}
		}
	}
}

// describe renders the scroll-back line for evt.
func (u *UI) describe(evt events.Event) string {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := ts.Local().Format("15:04:05")
	switch evt.Kind {
	case events.NewMessageReceived:
		return fmt.Sprintf("%s[%s] %s ➜ You:%s %s", colorPrimary, stamp, u.label(evt.From), colorReset, evt.Message)
	case events.MessageSentAck:
		return fmt.Sprintf("%s[%s] Message delivered%s", colorMuted, stamp, colorReset)
	case events.NewFileReceived:
		return fmt.Sprintf("%s[%s] %s sent %s%s %s(@download %s)%s", colorPrimary, stamp, u.label(evt.From), safe(evt.FileName), mimeSuffix(evt.MimeType), colorMuted, evt.MessageID, colorReset)
	case events.FileSentAck:
		return fmt.Sprintf("%s[%s] You ➜ %s: %s delivered%s", colorMuted, stamp, u.label(evt.To), safe(evt.FileName), colorReset)
	case events.ContactRequestSentAck:
		return fmt.Sprintf("%s[%s] Contact request sent%s", colorMuted, stamp, colorReset)
	case events.NewContactRequestReceived:
		return fmt.Sprintf("%s[%s] Contact request from %s %s(@accept %s / @reject %s)%s", colorPrimary, stamp, u.label(evt.From), colorMuted, evt.RequestID, evt.RequestID, colorReset)
	case events.UpdateReceivedOnContactRequest:
		return fmt.Sprintf("%s[%s] Your contact request was %s%s", colorPrimary, stamp, verdict(evt), colorReset)
	case events.UpdateSentOnContactRequest:
		return fmt.Sprintf("%s[%s] You %s the contact request%s", colorMuted, stamp, verdict(evt), colorReset)
	case events.FileUploadProgress:
		return ""
	}
	if evt.Message == "" {
		return ""
	}
	if evt.Level == events.LevelError {
		return fmt.Sprintf("%s[%s] %s%s", colorError, stamp, evt.Message, colorReset)
	}
	return fmt.Sprintf("%s[%s] %s%s", colorMuted, stamp, evt.Message, colorReset)
}

func (u *UI) printWelcome() {
	for _, line := range welcomeBanner {
		u.writeLine(colorPrimary + centerLine(line, bannerWidth) + colorReset)
	}
	tagline := "Contacts, messages and files from your terminal."
	u.writeLine(colorSuccess + centerLine(tagline, bannerWidth) + colorReset)
	u.writeLine("")
	cfg := u.session.Config
	u.writeLine(fmt.Sprintf("%s🌐 Welcome to contactsterm v%s%s", colorPrimary, version.Version, colorReset))
	u.writeLine(fmt.Sprintf("%s👤 User:%s %s | ID: %s", colorMuted, colorReset, safe(cfg.Username), safe(cfg.UserID)))
	state := "Offline, use @login"
	if gw := u.session.Gateway(); gw != nil {
		contacts, messages := gw.Connected()
		switch {
		case contacts && messages:
			state = "Connected"
		case contacts || messages:
			state = "Partially connected"
		}
	}
	u.writeLine(fmt.Sprintf("%s📡 Gateway:%s %s (%s)", colorMuted, colorReset, cfg.GatewayURL, state))
	u.writeLine("Type @help for commands.")
}

func (u *UI) clearScreen(printWelcome bool) {
	u.printMu.Lock()
	fmt.Fprint(u.out, "\033[2J\033[H")
	u.printMu.Unlock()
	if u.rl != nil {
		u.rl.Refresh()
	}
	u.progressMu.Lock()
	u.barID, u.barLine = "", ""
	u.progressMu.Unlock()
	if printWelcome {
		u.printWelcome()
	}
}

func (u *UI) shutdown() {
	select {
	case <-u.done:
	default:
		close(u.done)
	}
	u.writeLine(colorMuted + "Ending contactsterm session. Goodbye!" + colorReset)
}

// footer returns the progress and toast line, or "" when neither is shown.
func (u *UI) footer() string {
	u.progressMu.Lock()
	progress := u.barLine
	toast := ""
	if u.toastVisible {
		toast = formatToast(u.toastText)
	}
	u.progressMu.Unlock()
	return composeFooter(progress, toast, u.terminalWidth()-2)
}

func (u *UI) writeLine(line string) {
	footer := u.footer()
	u.printMu.Lock()
	fmt.Fprintf(u.out, "\r\033[K%s\n", line)
	if footer != "" {
		fmt.Fprint(u.out, footer)
	}
	u.printMu.Unlock()
	if u.rl != nil {
		u.rl.Refresh()
	}
}

func (u *UI) redrawFooter() {
	if !u.Available() {
		return
	}
	footer := u.footer()
	u.printMu.Lock()
	fmt.Fprintf(u.out, "\r\033[J%s", footer)
	u.printMu.Unlock()
	if u.rl != nil {
		u.rl.Refresh()
	}
}

func safe(in string) string {
	if strings.TrimSpace(in) == "" {
		return "(unknown)"
	}
	return in
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "(unknown)"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func mimeSuffix(mime string) string {
	if mime == "" {
		return ""
	}
	return " [" + mime + "]"
}

func verdict(evt events.Event) string {
	switch strings.ToLower(evt.Action) {
	case "accept":
		return "accepted"
	case "reject":
		return "rejected"
	}
	if evt.Status != "" {
		return strings.ToLower(evt.Status)
	}
	return "updated"
}

func centerLine(line string, width int) string {
	trimmed := strings.TrimRight(line, "\n")
	if len(trimmed) >= width {
		return trimmed
	}
	pad := (width - len(trimmed)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + trimmed
}

func (u *UI) terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err == nil && width > 0 {
		return width
	}
	return bannerWidth
}
