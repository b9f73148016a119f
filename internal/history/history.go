package history

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hamzawahab/contactsterm/internal/events"
)

// Transfer actions stored alongside file kinds.
const (
	ActionSent       = "sent"
	ActionReceived   = "received"
	ActionDownloaded = "downloaded"
)

const (
	fieldSep    = " | "
	unknownSize = "bytes=?"
)

var logFiles = map[events.Category]string{
	events.CategoryMessaging: "chat.log",
	events.CategoryFiles:     "transfers.log",
	events.CategoryContacts:  "contacts.log",
}

// Manager keeps chat, transfer and contact activity in one flat file per
// event category. A nil *Manager records nothing and reads nothing.
type Manager struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Manager {
	return &Manager{dir: dir}
}

// Entry is one stored activity line. Size is zero when the sender did not
// report it.
type Entry struct {
	Timestamp time.Time
	Kind      events.Kind
	Action    string
	From      string
	To        string
	Message   string
	Path      string
	Size      int64
}

// AppendChat records an outgoing message.
func (m *Manager) AppendChat(from, to, message string) error {
	return m.write(time.Now(), events.MessageSentAck, from, to, oneLine(message))
}

// AppendTransfer records a file moving between from and to. action is one
// of ActionSent, ActionReceived or ActionDownloaded.
func (m *Manager) AppendTransfer(from, to, path string, size int64, action string) error {
	kind := events.NewFileReceived
	if action == ActionSent {
		kind = events.FileSentAck
	}
	sizeField := unknownSize
	if size > 0 {
		sizeField = "bytes=" + strconv.FormatInt(size, 10)
	}
	return m.writeAt(time.Now(), kind, action+fieldSep+endpoints(from, to)+fieldSep+oneLine(path)+fieldSep+sizeField)
}

// AppendContact records a contact-request lifecycle step.
func (m *Manager) AppendContact(kind events.Kind, from, to, status string) error {
	if kind.Category() != events.CategoryContacts {
		return fmt.Errorf("history: %s is not a contact event", kind)
	}
	return m.write(time.Now(), kind, from, to, oneLine(status))
}

// Record stores evt in the matching log. Notices, progress, bare
// acknowledgements and request updates whose peers are unknown are
// skipped.
func (m *Manager) Record(evt events.Event) error {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	switch evt.Kind {
	case events.NewMessageReceived:
		return m.write(ts, evt.Kind, evt.From, evt.To, oneLine(evt.Message))
	case events.NewFileReceived:
		sizeField := unknownSize
		if evt.Size > 0 {
			sizeField = "bytes=" + strconv.FormatInt(evt.Size, 10)
		}
		return m.writeAt(ts, evt.Kind, ActionReceived+fieldSep+endpoints(evt.From, evt.To)+fieldSep+oneLine(evt.FileName)+fieldSep+sizeField)
	case events.NewContactRequestReceived, events.UpdateReceivedOnContactRequest:
		if evt.From == "" && evt.To == "" {
			return nil
		}
		status := evt.Status
		if status == "" {
			status = evt.Action
		}
		return m.write(ts, evt.Kind, evt.From, evt.To, oneLine(status))
	}
	return nil
}

func (m *Manager) write(ts time.Time, kind events.Kind, from, to, detail string) error {
	return m.writeAt(ts, kind, endpoints(from, to)+fieldSep+detail)
}

func (m *Manager) writeAt(ts time.Time, kind events.Kind, rest string) error {
	if m == nil {
		return nil
	}
	name, ok := logFiles[kind.Category()]
	if !ok {
		return fmt.Errorf("history: no log for %s", kind)
	}
	line := ts.UTC().Format(time.RFC3339) + fieldSep + kind.String() + fieldSep + rest + "\n"

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(filepath.Join(m.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(line)
	return err
}

// ReadAll returns every parseable entry, oldest first. Corrupt lines are
// skipped.
func (m *Manager) ReadAll() ([]Entry, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []Entry
	for _, name := range logFiles {
		file, err := os.Open(filepath.Join(m.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if entry, err := parseLine(scanner.Text()); err == nil {
				entries = append(entries, entry)
			}
		}
		err = scanner.Err()
		file.Close()
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// Clear removes every log file.
func (m *Manager) Clear() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range logFiles {
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func parseLine(line string) (Entry, error) {
	head := strings.SplitN(line, fieldSep, 3)
	if len(head) < 3 {
		return Entry{}, errors.New("history: short line")
	}
	ts, err := time.Parse(time.RFC3339, head[0])
	if err != nil {
		return Entry{}, err
	}
	kind, err := events.ParseKind(head[1])
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Timestamp: ts, Kind: kind}

	if kind.Category() == events.CategoryFiles {
		parts := strings.SplitN(head[2], fieldSep, 4)
		if len(parts) < 4 {
			return Entry{}, errors.New("history: short transfer line")
		}
		entry.Action = parts[0]
		entry.From, entry.To = splitEndpoints(parts[1])
		entry.Path = parts[2]
		if n, err := strconv.ParseInt(strings.TrimPrefix(parts[3], "bytes="), 10, 64); err == nil {
			entry.Size = n
		}
		return entry, nil
	}

	parts := strings.SplitN(head[2], fieldSep, 2)
	if len(parts) < 2 {
		return Entry{}, errors.New("history: short line")
	}
	entry.From, entry.To = splitEndpoints(parts[0])
	entry.Message = parts[1]
	return entry, nil
}

func endpoints(from, to string) string {
	return from + " -> " + to
}

func splitEndpoints(segment string) (string, string) {
	from, to, ok := strings.Cut(segment, " -> ")
	if !ok {
		return "", ""
	}
	return from, to
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
