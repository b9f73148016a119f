package network

import (
	"context"
	"errors"
	"strings"

	"github.com/hamzawahab/contactsterm/internal/config"
	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/logger"
)

const (
	ChannelContacts = "contacts"
	ChannelMessages = "messages"
)

// Client bundles the two gateway channels and the HTTP directory for one
// signed-in user.
type Client struct {
	userID    string
	contacts  *Channel
	messages  *Channel
	directory *Directory
	uploader  *Uploader
	logger    *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger, out chan<- events.Event) (*Client, error) {
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("user_id is not configured")
	}
	contactsURL, err := cfg.ChannelURL(ChannelContacts)
	if err != nil {
		return nil, err
	}
	messagesURL, err := cfg.ChannelURL(ChannelMessages)
	if err != nil {
		return nil, err
	}
	c := &Client{
		userID:    cfg.UserID,
		contacts:  NewChannel(ChannelContacts, contactsURL, cfg.SessionToken, log, out),
		messages:  NewChannel(ChannelMessages, messagesURL, cfg.SessionToken, log, out),
		directory: NewDirectory(cfg.GatewayURL, cfg.UserID, cfg.SessionToken),
		logger:    log,
	}
	c.uploader = NewUploader(c.messages.Send, cfg.ChunkSize, cfg.UploadRate, log, out)
	c.contacts.annotate = c.annotateRequest
	return c, nil
}

// annotateRequest ties request updates to their peers. The contacts
// service sends only the request id with an update, so the peers come from
// requests seen earlier in this session.
func (c *Client) annotateRequest(evt *events.Event) {
	switch evt.Kind {
	case events.NewContactRequestReceived:
		c.directory.remember(ContactRequest{
			ID:         evt.RequestID,
			SenderID:   evt.From,
			ReceiverID: evt.To,
			Status:     evt.Status,
			CreatedAt:  evt.Timestamp,
		})
	case events.UpdateReceivedOnContactRequest, events.UpdateSentOnContactRequest:
		if r, ok := c.directory.Request(evt.RequestID); ok {
			evt.From, evt.To = r.SenderID, r.ReceiverID
		}
	}
}

// UserID returns the signed-in user's id.
func (c *Client) UserID() string { return c.userID }

// Connect dials both channels. Both are attempted even if one fails.
func (c *Client) Connect(ctx context.Context) error {
	return errors.Join(c.contacts.Connect(ctx), c.messages.Connect(ctx))
}

// Reconnect re-dials channels that have dropped and reports which ones
// were restored.
func (c *Client) Reconnect(ctx context.Context) ([]string, error) {
	var restored []string
	var errs []error
	for _, ch := range []*Channel{c.contacts, c.messages} {
		if ch.Connected() {
			continue
		}
		if err := ch.Connect(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		restored = append(restored, ch.Name())
	}
	return restored, errors.Join(errs...)
}

// Connected reports the state of each channel.
func (c *Client) Connected() (contacts, messages bool) {
	return c.contacts.Connected(), c.messages.Connected()
}

// ListContacts fetches the contact list, refreshing the resolver cache.
func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	return c.directory.Contacts(ctx)
}

// PendingRequests lists contact requests involving the user.
func (c *Client) PendingRequests(ctx context.Context) ([]ContactRequest, error) {
	return c.directory.PendingRequests(ctx)
}

// Resolve maps a username, email or id onto a known contact. The cache is
// filled on first use.
func (c *Client) Resolve(ctx context.Context, target string) (*Contact, error) {
	if len(c.directory.Cached()) == 0 {
		if _, err := c.directory.Contacts(ctx); err != nil {
			return nil, err
		}
	}
	return c.directory.Resolve(target)
}

// Search finds users by username.
func (c *Client) Search(ctx context.Context, query string) ([]User, error) {
	return c.directory.Search(ctx, query)
}

// Conversation fetches the messages exchanged with contactUserID.
func (c *Client) Conversation(ctx context.Context, contactUserID string) ([]Message, error) {
	return c.directory.Conversation(ctx, contactUserID)
}

// Logout ends the server-side session. The channels stay open until Close.
func (c *Client) Logout(ctx context.Context) error {
	return c.directory.Logout(ctx)
}

// Download fetches the attachment of messageID into dir.
func (c *Client) Download(ctx context.Context, messageID, dir string) (string, error) {
	return c.directory.Download(ctx, messageID, dir)
}

// SendContactRequest asks targetUserID to become a contact.
func (c *Client) SendContactRequest(targetUserID string) error {
	return c.contacts.Send(contactFrame{
		Type:         frameSendContactRequest,
		UserID:       c.userID,
		TargetUserID: targetUserID,
	})
}

// RespondToRequest accepts or rejects requestID, which senderID sent.
func (c *Client) RespondToRequest(requestID, senderID string, accept bool) error {
	frame := contactFrame{
		Type:         frameRejectContactRequest,
		Action:       "reject",
		UserID:       c.userID,
		TargetUserID: senderID,
		RequestID:    requestID,
	}
	if accept {
		frame.Type = frameAcceptContactRequest
		frame.Action = "accept"
	}
	return c.contacts.Send(frame)
}

// RemoveContact deletes the contact row contactID shared with targetUserID.
func (c *Client) RemoveContact(contactID, targetUserID string) error {
	return c.contacts.Send(contactFrame{
		Type:         frameRemoveContact,
		UserID:       c.userID,
		TargetUserID: targetUserID,
		ContactID:    contactID,
	})
}

// SendMessage delivers plain text to receiverID.
func (c *Client) SendMessage(receiverID, content string) error {
	return c.messages.Send(messageFrame{
		Type:       frameSendMessage,
		SenderID:   c.userID,
		ReceiverID: receiverID,
		Content:    content,
	})
}

// SendFile uploads path to receiverID in chunks.
func (c *Client) SendFile(ctx context.Context, receiverID, path string) (string, error) {
	return c.uploader.Upload(ctx, c.userID, receiverID, path)
}

// Close shuts both channels.
func (c *Client) Close() {
	c.contacts.Close()
	c.messages.Close()
}
