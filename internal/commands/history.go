package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/history"
	"github.com/hamzawahab/contactsterm/internal/textfmt"
)

const detailLimit = 48

// renderHistory lays entries out in aligned columns, one row per entry.
// Direction is relative to self: → outgoing, ← incoming.
func renderHistory(entries []history.Entry, self string) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tWHAT\t\tPEER\tDETAIL")
	for _, e := range entries {
		arrow, peer := direction(e, self)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("01-02 15:04"),
			historyLabel(e),
			arrow,
			textfmt.Middle(safePeerLabel(peer), 20),
			textfmt.Middle(historyDetail(e), detailLimit),
		)
	}
	tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func direction(e history.Entry, self string) (string, string) {
	switch {
	case e.Kind == events.FileSentAck || e.Kind == events.MessageSentAck:
		return "→", e.To
	case self != "" && strings.EqualFold(e.From, self):
		return "→", e.To
	case e.From == "":
		return "←", "server"
	}
	return "←", e.From
}

func historyLabel(e history.Entry) string {
	switch e.Kind {
	case events.MessageSentAck, events.NewMessageReceived:
		return "message"
	case events.FileSentAck:
		return "file sent"
	case events.NewFileReceived:
		if e.Action == history.ActionDownloaded {
			return "download"
		}
		return "file"
	case events.NewContactRequestReceived, events.ContactRequestSentAck:
		return "request"
	case events.UpdateReceivedOnContactRequest, events.UpdateSentOnContactRequest:
		return "request update"
	}
	return strings.ToLower(e.Kind.String())
}

func historyDetail(e history.Entry) string {
	if e.Kind.Category() != events.CategoryFiles {
		return e.Message
	}
	name := filepath.Base(e.Path)
	if e.Size <= 0 {
		return name
	}
	return name + " (" + textfmt.Bytes(e.Size) + ")"
}
