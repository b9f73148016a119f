package ui

import (
	"fmt"
	"strings"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/textfmt"
)

// SetText replaces the toast text without changing visibility.
func (u *UI) SetText(text string) {
	u.progressMu.Lock()
	u.toastText = text
	u.progressMu.Unlock()
}

func (u *UI) Show() {
	u.progressMu.Lock()
	u.toastVisible = true
	u.progressMu.Unlock()
	u.redrawFooter()
}

// Hide removes the toast from the footer. The text is kept.
func (u *UI) Hide() {
	u.progressMu.Lock()
	u.toastVisible = false
	u.progressMu.Unlock()
	u.redrawFooter()
}

// Available reports false once the console has shut down.
func (u *UI) Available() bool {
	select {
	case <-u.done:
		return false
	default:
		return true
	}
}

// Toast returns the transient notification for evt, or "" when the event
// does not warrant one.
func (u *UI) Toast(evt events.Event) string {
	switch evt.Kind {
	case events.ContactRequestSentAck:
		return "Contact request sent"
	case events.NewContactRequestReceived:
		return fmt.Sprintf("New contact request from %s", u.label(evt.From))
	case events.UpdateReceivedOnContactRequest:
		return fmt.Sprintf("Your contact request was %s", verdict(evt))
	case events.UpdateSentOnContactRequest:
		return fmt.Sprintf("Contact request %s", verdict(evt))
	case events.MessageSentAck:
		return "Message sent"
	case events.NewMessageReceived:
		return fmt.Sprintf("New message from %s", u.label(evt.From))
	case events.FileSentAck:
		return fmt.Sprintf("File %s sent", safe(evt.FileName))
	case events.NewFileReceived:
		return fmt.Sprintf("%s sent you %s", u.label(evt.From), safe(evt.FileName))
	case events.FileUploadProgress:
		if evt.Progress != nil && evt.Progress.Done {
			return "Upload complete"
		}
		return ""
	}
	if evt.Progress != nil {
		return ""
	}
	return strings.TrimSpace(evt.Message)
}

func formatToast(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return ""
	}
	return colorAccent + "●" + colorReset + " " + text
}

// composeFooter joins the progress line and the toast into one line no
// wider than maxWidth. The progress bar keeps priority when space runs out.
func composeFooter(progress, toast string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = bannerWidth
	}
	progress = strings.TrimPrefix(progress, "\r")
	switch {
	case progress == "" && toast == "":
		return ""
	case progress == "":
		return "\r" + textfmt.TruncateANSI(toast, maxWidth)
	case toast == "":
		return "\r" + progress
	}
	const separator = "  "
	room := maxWidth - textfmt.Width(progress) - len(separator)
	if room < 4 {
		return "\r" + progress
	}
	return "\r" + progress + separator + textfmt.TruncateANSI(toast, room)
}
