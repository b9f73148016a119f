package events

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a wire name is not part of the kind table.
var ErrUnknownKind = errors.New("events: unknown kind")

// Kind enumerates the real-time events exchanged with the contacts and
// messaging channels. The zero value is not a valid kind.
type Kind uint8

const (
	ContactRequestSentAck Kind = iota + 1
	NewContactRequestReceived
	UpdateReceivedOnContactRequest
	UpdateSentOnContactRequest

	MessageSentAck
	NewMessageReceived

	NewFileReceived
	FileSentAck
	FileUploadProgress

	kindEnd
)

var kindNames = [kindEnd]string{
	ContactRequestSentAck:          "CONTACT_REQUEST_SENT_ACK",
	NewContactRequestReceived:      "NEW_CONTACT_REQUEST_RECEIVED",
	UpdateReceivedOnContactRequest: "UPDATE_RECEIVED_ON_CONTACT_REQUEST",
	UpdateSentOnContactRequest:     "UPDATE_SENT_ON_CONTACT_REQUEST",
	MessageSentAck:                 "MESSAGE_SENT_ACK",
	NewMessageReceived:             "NEW_MESSAGE_RECEIVED",
	NewFileReceived:                "NEW_FILE_RECEIVED",
	FileSentAck:                    "FILE_SENT_ACK",
	FileUploadProgress:             "FILE_UPLOAD_PROGRESS",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k := ContactRequestSentAck; k < kindEnd; k++ {
		m[kindNames[k]] = k
	}
	return m
}()

// Category groups kinds by the service that emits them.
type Category string

const (
	CategoryContacts  Category = "contacts"
	CategoryMessaging Category = "messaging"
	CategoryFiles     Category = "files"
)

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, int(kindEnd)-1)
	for k := ContactRequestSentAck; k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is a member of the table.
func (k Kind) Valid() bool {
	return k >= ContactRequestSentAck && k < kindEnd
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Category reports which channel the kind belongs to. Invalid kinds
// return the empty category.
func (k Kind) Category() Category {
	switch k {
	case ContactRequestSentAck, NewContactRequestReceived, UpdateReceivedOnContactRequest, UpdateSentOnContactRequest:
		return CategoryContacts
	case MessageSentAck, NewMessageReceived:
		return CategoryMessaging
	case NewFileReceived, FileSentAck, FileUploadProgress:
		return CategoryFiles
	default:
		return ""
	}
}

// ParseKind maps a wire name back to its kind.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindsByName[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
