package delivery

import (
	"fmt"
	"strings"

	"github.com/cccc-dev/cccc/internal/ledger"
)

const maxAttachmentLines = 8

// FormatPrefix builds the one-block-per-message prefix an actor's CLI
// sees ahead of a chat.message's text, per the formatting table in
// spec §4.G. Conditions are independent and, when more than one
// applies, stack in the table's order.
func FormatPrefix(ev ledger.Event, data ledger.ChatMessageData) string {
	var lines []string

	if data.Priority == ledger.PriorityAttention {
		lines = append(lines, fmt.Sprintf("[cccc] IMPORTANT (event_id=%s):", ev.ID))
	}
	if data.ReplyRequired {
		lines = append(lines, fmt.Sprintf("[cccc] REPLY REQUIRED (event_id=%s): reply via cccc_message_reply.", ev.ID))
	}
	if data.Provenance != nil {
		lines = append(lines, fmt.Sprintf("[cccc] RELAYED FROM (group_id=%s, event_id=%s):",
			data.Provenance.SourceGroupID, data.Provenance.SourceEventID))
	}
	if len(data.Attachments) > 0 {
		lines = append(lines, "[cccc] Attachments:")
		shown := data.Attachments
		truncated := 0
		if len(shown) > maxAttachmentLines {
			truncated = len(shown) - maxAttachmentLines
			shown = shown[:maxAttachmentLines]
		}
		for _, a := range shown {
			lines = append(lines, fmt.Sprintf("- %s (%d bytes) [%s]", a.Title, a.Bytes, a.Path))
		}
		if truncated > 0 {
			lines = append(lines, fmt.Sprintf("- … (%d more)", truncated))
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// FormatMessage joins the prefix (if any) with the message text into
// the single block the actor's CLI sees.
func FormatMessage(ev ledger.Event, data ledger.ChatMessageData) string {
	prefix := FormatPrefix(ev, data)
	if prefix == "" {
		return data.Text
	}
	return prefix + data.Text
}
