package network

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hamzawahab/contactsterm/internal/events"
)

// Outbound frame types understood by the contacts and messaging services.
const (
	frameSendContactRequest   = "send_contact_request"
	frameAcceptContactRequest = "accept_contact_request"
	frameRejectContactRequest = "reject_contact_request"
	frameRemoveContact        = "remove_contact"
	frameSendMessage          = "send_message"
	frameSendFileChunk        = "send_file_chunk"
)

var validate = validator.New()

type contactFrame struct {
	Type         string `json:"type" validate:"oneof=send_contact_request accept_contact_request reject_contact_request remove_contact"`
	UserID       string `json:"user_id" validate:"required,uuid"`
	TargetUserID string `json:"target_user_id" validate:"required,uuid"`
	RequestID    string `json:"request_id,omitempty" validate:"omitempty,uuid"`
	Action       string `json:"action,omitempty" validate:"omitempty,oneof=accept reject"`
	ContactID    string `json:"contact_id,omitempty" validate:"omitempty,uuid"`
}

type messageFrame struct {
	Type        string `json:"type" validate:"oneof=send_message send_file_chunk"`
	SenderID    string `json:"sender_id" validate:"required,uuid"`
	ReceiverID  string `json:"receiver_id" validate:"required,uuid"`
	Content     string `json:"content,omitempty" validate:"required_if=Type send_message"`
	FileID      string `json:"file_id,omitempty" validate:"required_if=Type send_file_chunk"`
	FileName    string `json:"file_name,omitempty" validate:"required_if=Type send_file_chunk"`
	ChunkIndex  int    `json:"chunk_index,omitempty" validate:"gte=0"`
	TotalChunks int    `json:"total_chunks,omitempty" validate:"gte=0"`
	ChunkData   []byte `json:"chunk_data,omitempty"`
}

func validateFrame(frame any) error {
	if err := validate.Struct(frame); err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}
	switch f := frame.(type) {
	case contactFrame:
		switch f.Type {
		case frameAcceptContactRequest, frameRejectContactRequest:
			if f.RequestID == "" {
				return fmt.Errorf("invalid frame: %s without request_id", f.Type)
			}
		case frameRemoveContact:
			if f.ContactID == "" {
				return fmt.Errorf("invalid frame: %s without contact_id", f.Type)
			}
		}
	case messageFrame:
		if f.Type == frameSendFileChunk && (f.TotalChunks <= 0 || f.ChunkIndex >= f.TotalChunks) {
			return fmt.Errorf("invalid frame: chunk %d of %d", f.ChunkIndex, f.TotalChunks)
		}
	}
	return nil
}

// Message is one row of a conversation as the messaging service stores it.
// The service encodes most fields under their Go names.
type Message struct {
	ID           string    `json:"ID"`
	SenderID     string    `json:"SenderID"`
	ReceiverID   string    `json:"ReceiverID"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"CreatedAt"`
	MessageType  string    `json:"MessageType"`
	FilePath     string    `json:"FilePath"`
	FileName     string    `json:"FileName"`
	FileMimeType string    `json:"FileMimeType"`
}

// IsFile reports whether the message carries an attachment.
func (m Message) IsFile() bool {
	return m.FileName != "" || strings.EqualFold(m.MessageType, "file")
}

type inboundFrame struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	SenderID   string         `json:"sender_id"`
	ReceiverID string         `json:"receiver_id"`
	Status     string         `json:"status"`
	Action     string         `json:"action"`
	CreatedAt  time.Time      `json:"created_at"`
	FileID     string         `json:"file_id"`
	Progress   float64        `json:"progress"`
	Message    *Message `json:"message"`
}

// decodeFrame turns a server frame into an event. Frames whose type is not
// in the kind table yield an error wrapping events.ErrUnknownKind.
func decodeFrame(data []byte) (events.Event, error) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		return events.Event{}, fmt.Errorf("decode frame: %w", err)
	}
	kind, err := events.ParseKind(in.Type)
	if err != nil {
		return events.Event{}, err
	}
	evt := events.Event{Kind: kind, Timestamp: time.Now()}
	switch kind {
	case events.ContactRequestSentAck, events.MessageSentAck:
	case events.NewContactRequestReceived:
		evt.RequestID = in.ID
		evt.From = in.SenderID
		evt.To = in.ReceiverID
		evt.Status = in.Status
		if !in.CreatedAt.IsZero() {
			evt.Timestamp = in.CreatedAt
		}
	case events.UpdateReceivedOnContactRequest, events.UpdateSentOnContactRequest:
		evt.RequestID = in.ID
		evt.Action = in.Action
		evt.Status = in.Status
	case events.NewMessageReceived, events.NewFileReceived, events.FileSentAck:
		if in.Message == nil {
			return events.Event{}, fmt.Errorf("decode frame: %s without message", kind)
		}
		m := in.Message
		evt.MessageID = m.ID
		evt.From = m.SenderID
		evt.To = m.ReceiverID
		evt.Message = m.Content
		evt.FileName = m.FileName
		evt.MimeType = m.FileMimeType
		evt.Path = m.FilePath
		if !m.CreatedAt.IsZero() {
			evt.Timestamp = m.CreatedAt
		}
	case events.FileUploadProgress:
		evt.Progress = &events.ProgressState{
			ID:        in.FileID,
			Percent:   in.Progress,
			Done:      in.Progress >= 100,
			UpdatedAt: evt.Timestamp,
		}
	}
	return evt, nil
}
