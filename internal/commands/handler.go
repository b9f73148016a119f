package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/history"
	"github.com/hamzawahab/contactsterm/internal/network"
	"github.com/hamzawahab/contactsterm/internal/session"
	"github.com/hamzawahab/contactsterm/internal/textfmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrSignedOut      = errors.New("not signed in: use @login <username> <password>")
)

const (
	requestTimeout  = 15 * time.Second
	downloadTimeout = 5 * time.Minute
	defaultMessages = 20
)

// Result carries command execution outcome back to the UI.
type Result struct {
	Output string
	Clear  bool
	Quit   bool
}

type Handler struct {
	session *session.Session
}

func New(session *session.Session) *Handler {
	return &Handler{session: session}
}

// Handle parses command input and executes matching action.
func (h *Handler) Handle(input string) (Result, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Result{}, nil
	}
	if !strings.HasPrefix(trimmed, "@") {
		return Result{Output: "Commands must start with @. Type @help for options."}, nil
	}
	parts := strings.Fields(trimmed)
	cmd := strings.TrimPrefix(parts[0], "@")
	args := strings.TrimSpace(strings.TrimPrefix(trimmed, parts[0]))

	switch cmd {
	case "help":
		return Result{Output: helpText()}, nil
	case "login":
		return h.cmdLogin(parts, args)
	case "logout":
		return h.cmdLogout()
	case "whoami":
		return h.cmdWhoAmI()
	case "search":
		return h.cmdSearch(args)
	case "contacts":
		return h.cmdContacts()
	case "requests":
		return h.cmdRequests()
	case "add":
		return h.cmdAdd(args)
	case "accept":
		return h.cmdRespond(args, true)
	case "reject":
		return h.cmdRespond(args, false)
	case "remove":
		return h.cmdRemove(args)
	case "send":
		return h.cmdSend(parts, args)
	case "messages":
		return h.cmdMessages(parts)
	case "file":
		return h.cmdFile(parts, args)
	case "download":
		return h.cmdDownload(parts)
	case "history":
		return h.cmdHistory()
	case "status":
		return h.cmdStatus()
	case "clear":
		return h.cmdClear(args)
	case "exit":
		return Result{Quit: true}, nil
	default:
		return Result{}, ErrUnknownCommand
	}
}

func (h *Handler) gateway() (session.Gateway, error) {
	gw := h.session.Gateway()
	if gw == nil {
		return nil, ErrSignedOut
	}
	return gw, nil
}

func (h *Handler) cmdWhoAmI() (Result, error) {
	cfg := h.session.Config
	name := cfg.Username
	if name == "" {
		name = "(not set)"
	}
	msg := fmt.Sprintf("Username: %s\nUser ID: %s\nGateway: %s", name, safePeerLabel(cfg.UserID), cfg.GatewayURL)
	if h.session.Gateway() == nil {
		msg += "\nSigned out. Use @login to connect."
	}
	return Result{Output: msg}, nil
}

func (h *Handler) cmdContacts() (Result, error) {
	gw, err := h.gateway()
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	contacts, err := gw.ListContacts(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(contacts) == 0 {
		return Result{Output: "No contacts yet. Use @search <name> and @add to send a request."}, nil
	}
	lines := make([]string, 0, len(contacts))
	for _, c := range contacts {
		lines = append(lines, fmt.Sprintf("%s (%s) • added %s", safePeerLabel(c.Label()), c.ContactID, textfmt.Ago(c.CreatedAt)))
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (h *Handler) cmdRequests() (Result, error) {
	gw, err := h.gateway()
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	requests, err := gw.PendingRequests(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(requests) == 0 {
		return Result{Output: "No pending contact requests."}, nil
	}
	self := gw.UserID()
	lines := make([]string, 0, len(requests))
	for _, r := range requests {
		arrow, who := "←", personLabel(r.Sender, r.SenderID)
		if strings.EqualFold(r.SenderID, self) {
			arrow, who = "→", personLabel(r.Target, r.ReceiverID)
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s (%s) • %s", arrow, r.ID, who, r.Status, textfmt.Ago(r.CreatedAt)))
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

// cmdAdd accepts a user id, or a username or email that a search resolves
// to exactly one user.
func (h *Handler) cmdAdd(args string) (Result, error) {
	target := strings.TrimSpace(args)
	if target == "" {
		return Result{Output: "Usage: @add <username|email|user_id>"}, nil
	}
	gw, err := h.gateway()
	if err != nil {
		return Result{}, err
	}
	userID := target
	if _, err := uuid.Parse(target); err != nil {
		user, err := h.findUser(gw, target)
		if err != nil {
			return Result{}, err
		}
		if user == nil {
			return Result{Output: fmt.Sprintf("No user named %s. Try @search %s.", target, target)}, nil
		}
		userID = user.ID
	}
	if strings.EqualFold(userID, gw.UserID()) {
		return Result{Output: "You cannot add yourself."}, nil
	}
	if err := gw.SendContactRequest(userID); err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Contact request sent to %s", target)}, nil
}

func (h *Handler) cmdRespond(args string, accept bool) (Result, error) {
	requestID := strings.TrimSpace(args)
	if requestID == "" {
		if accept {
			return Result{Output: "Usage: @accept <request_id>"}, nil
		}
		return Result{Output: "Usage: @reject <request_id>"}, nil
	}
	gw, err := h.gateway()
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	requests, err := gw.PendingRequests(ctx)
	if err != nil {
		return Result{}, err
	}
	for _, r := range requests {
		if !strings.EqualFold(r.ID, requestID) {
			continue
		}
		if strings.EqualFold(r.SenderID, gw.UserID()) {
			return Result{Output: "That request was sent by you; wait for the other side to respond."}, nil
		}
		if err := gw.RespondToRequest(r.ID, r.SenderID, accept); err != nil {
			return Result{}, err
		}
		verb := "Rejected"
		if accept {
			verb = "Accepted"
		}
		return Result{Output: fmt.Sprintf("%s request from %s", verb, personLabel(r.Sender, r.SenderID))}, nil
	}
	return Result{Output: fmt.Sprintf("No pending request %s. Use @requests to list them.", requestID)}, nil
}

func (h *Handler) cmdRemove(args string) (Result, error) {
	target := strings.TrimSpace(args)
	if target == "" {
		return Result{Output: "Usage: @remove <contact>"}, nil
	}
	gw, contact, err := h.resolveContact(target)
	if err != nil {
		return Result{}, err
	}
	if err := gw.RemoveContact(contact.ID, contact.ContactID); err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Removed %s from contacts", contact.Label())}, nil
}

func (h *Handler) cmdSend(parts []string, args string) (Result, error) {
	if len(parts) < 2 {
		return Result{Output: "Usage: @send <contact> <message>"}, nil
	}
	target := parts[1]
	message := strings.TrimSpace(strings.TrimPrefix(args, target))
	if message == "" {
		return Result{Output: "Message cannot be empty."}, nil
	}
	gw, contact, err := h.resolveContact(target)
	if err != nil {
		return Result{}, err
	}
	if err := gw.SendMessage(contact.ContactID, message); err != nil {
		return Result{}, err
	}
	if err := h.session.History.AppendChat(gw.UserID(), contact.ContactID, message); err != nil {
		h.session.Logger.Error("history append: %v", err)
	}
	return Result{Output: fmt.Sprintf("Sent message to %s", contact.Label())}, nil
}

// cmdMessages shows the stored conversation with a contact, newest last.
func (h *Handler) cmdMessages(parts []string) (Result, error) {
	const usage = "Usage: @messages <contact> [count]"
	if len(parts) < 2 || len(parts) > 3 {
		return Result{Output: usage}, nil
	}
	limit := defaultMessages
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n <= 0 {
			return Result{Output: usage}, nil
		}
		limit = n
	}
	gw, contact, err := h.resolveContact(parts[1])
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	msgs, err := gw.Conversation(ctx, contact.ContactID)
	if err != nil {
		return Result{}, err
	}
	if len(msgs) == 0 {
		return Result{Output: fmt.Sprintf("No messages with %s yet.", contact.Label())}, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	self := gw.UserID()
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		who := contact.Label()
		if strings.EqualFold(m.SenderID, self) {
			who = "you"
		}
		stamp := m.CreatedAt.Local().Format("2006-01-02 15:04")
		if m.IsFile() {
			lines = append(lines, fmt.Sprintf("%s  %s sent %s (@download %s)", stamp, who, safePeerLabel(m.FileName), m.ID))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s  %s: %s", stamp, who, m.Content))
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

// cmdFile starts the upload in the background. Progress and failures come
// back on the event stream.
func (h *Handler) cmdFile(parts []string, args string) (Result, error) {
	if len(parts) < 3 {
		return Result{Output: "Usage: @file <contact> <path>"}, nil
	}
	target := parts[1]
	path, err := normalizePathArg(strings.TrimPrefix(args, target))
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if info.IsDir() {
		return Result{Output: "Path is a directory. Only single files can be sent."}, nil
	}
	gw, contact, err := h.resolveContact(target)
	if err != nil {
		return Result{}, err
	}
	go func() {
		if _, err := gw.SendFile(context.Background(), contact.ContactID, path); err != nil {
			h.session.Logger.Error("upload %s: %v", path, err)
			h.emit(events.Notice(events.LevelError, fmt.Sprintf("Upload of %s failed: %v", filepath.Base(path), err)))
			return
		}
		if err := h.session.History.AppendTransfer(gw.UserID(), contact.ContactID, path, info.Size(), history.ActionSent); err != nil {
			h.session.Logger.Error("history append: %v", err)
		}
	}()
	return Result{Output: fmt.Sprintf("Uploading %s (%s) to %s", filepath.Base(path), textfmt.Bytes(info.Size()), contact.Label())}, nil
}

func (h *Handler) cmdDownload(parts []string) (Result, error) {
	if len(parts) < 2 || len(parts) > 3 {
		return Result{Output: "Usage: @download <message_id> [dir]"}, nil
	}
	gw, err := h.gateway()
	if err != nil {
		return Result{}, err
	}
	dir := h.session.Config.DownloadsDir
	if len(parts) == 3 {
		if dir, err = normalizePathArg(parts[2]); err != nil {
			return Result{}, err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()
	path, err := gw.Download(ctx, parts[1], dir)
	if err != nil {
		return Result{}, err
	}
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if err := h.session.History.AppendTransfer("", gw.UserID(), path, size, history.ActionDownloaded); err != nil {
		h.session.Logger.Error("history append: %v", err)
	}
	return Result{Output: fmt.Sprintf("Saved %s (%s)", displayPath(path), textfmt.Bytes(size))}, nil
}

func (h *Handler) cmdHistory() (Result, error) {
	entries, err := h.session.History.ReadAll()
	if err != nil {
		return Result{}, err
	}
	if len(entries) == 0 {
		return Result{Output: "History is empty."}, nil
	}
	return Result{Output: renderHistory(entries, h.session.Config.UserID)}, nil
}

func (h *Handler) cmdStatus() (Result, error) {
	cfg := h.session.Config
	contacts, messages := false, false
	if gw := h.session.Gateway(); gw != nil {
		contacts, messages = gw.Connected()
	}
	lines := []string{
		fmt.Sprintf("Username: %s", safePeerLabel(cfg.Username)),
		fmt.Sprintf("Gateway: %s", cfg.GatewayURL),
		fmt.Sprintf("Contacts channel: %s", stateLabel(contacts)),
		fmt.Sprintf("Messages channel: %s", stateLabel(messages)),
		fmt.Sprintf("Chunk size: %s at %d chunks/s", textfmt.Bytes(int64(cfg.ChunkSize)), cfg.UploadRate),
		fmt.Sprintf("Downloads: %s", cfg.DownloadsDir),
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (h *Handler) cmdClear(arg string) (Result, error) {
	switch {
	case arg == "":
		return Result{Clear: true}, nil
	case strings.EqualFold(arg, "history"):
		if err := h.session.History.Clear(); err != nil {
			return Result{}, err
		}
		return Result{Output: "History cleared."}, nil
	}
	return Result{Output: "Usage: @clear [history]"}, nil
}

func (h *Handler) resolveContact(target string) (session.Gateway, *network.Contact, error) {
	gw, err := h.gateway()
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	contact, err := gw.Resolve(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	return gw, contact, nil
}

func (h *Handler) emit(evt events.Event) {
	if h.session.Events == nil {
		return
	}
	select {
	case h.session.Events <- evt:
	default:
	}
}

func displayPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if rel, err := filepath.Rel(home, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.Join("~", rel)
	}
	return path
}

func personLabel(p *network.Person, fallback string) string {
	if p != nil {
		if name := strings.TrimSpace(p.Username); name != "" {
			return name
		}
		if email := strings.TrimSpace(p.Email); email != "" {
			return email
		}
	}
	return safePeerLabel(fallback)
}

func stateLabel(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}

func safePeerLabel(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "(unknown)"
	}
	return trimmed
}

// normalizePathArg strips one level of quotes and expands a leading ~.
// Relative paths resolve against the working directory.
func normalizePathArg(input string) (string, error) {
	path := strings.TrimSpace(input)
	if n := len(path); n >= 2 && (path[0] == '"' || path[0] == '\'') && path[n-1] == path[0] {
		path = strings.TrimSpace(path[1 : n-1])
	}
	if path == "" {
		return "", errors.New("empty path")
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		if rest != "" && rest[0] != '/' && rest[0] != '\\' {
			return "", fmt.Errorf("unsupported home expansion for %s", path)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimLeft(rest, `/\`))
	}
	return filepath.Abs(path)
}

func helpText() string {
	const (
		reset   = "\033[0m"
		heading = "\033[36m"
		accent  = "\033[96m"
		dim     = "\033[90m"
	)
	sections := []struct {
		title string
		items [][2]string
	}{
		{"Account", [][2]string{
			{"@login <username> <password>", "Sign in and store the session token."},
			{"@logout", "End the session and forget the token."},
			{"@whoami", "Show your username, user id and gateway."},
		}},
		{"Contacts", [][2]string{
			{"@search <name>", "Find users by username."},
			{"@contacts", "List your contacts."},
			{"@requests", "Show pending requests you sent (→) and received (←)."},
			{"@add <username|email|user_id>", "Ask someone to become a contact."},
			{"@accept <request_id> / @reject <request_id>", "Answer a request you received."},
			{"@remove <contact>", "Drop a contact."},
		}},
		{"Messaging & Files", [][2]string{
			{"@send <contact> <message>", "Send a text message."},
			{"@messages <contact> [count]", "Show the conversation stored on the server."},
			{"@file <contact> <path>", "Upload a file. ~ expansion and quoted paths supported."},
			{"@download <message_id> [dir]", "Save a received file."},
			{"@history", "Review messages, transfers and contact activity kept locally."},
		}},
		{"Session", [][2]string{
			{"@status", "Show channel health and transfer settings."},
			{"@clear [history]", "Clear the screen, or include history to wipe saved logs."},
			{"@help", "View this guide again."},
			{"@exit", "Quit contactsterm."},
		}},
	}

	var b strings.Builder
	b.WriteString(heading + "contactsterm Command Guide" + reset + "\n")
	b.WriteString(dim + "Prefix every command with @. A contact is a username, email or user id." + reset + "\n")
	for _, sec := range sections {
		b.WriteString("\n" + heading + sec.title + reset + "\n")
		for _, item := range sec.items {
			b.WriteString("  " + accent + item[0] + reset + "\n")
			b.WriteString("    " + item[1] + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
