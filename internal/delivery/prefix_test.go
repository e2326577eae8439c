package delivery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cccc-dev/cccc/internal/ledger"
)

func TestFormatPrefix_AttentionAndReplyRequired(t *testing.T) {
	ev := ledger.Event{ID: "ev_1"}
	data := ledger.ChatMessageData{
		Text:          "hello",
		Priority:      ledger.PriorityAttention,
		ReplyRequired: true,
	}

	got := FormatPrefix(ev, data)
	assert.Contains(t, got, "[cccc] IMPORTANT (event_id=ev_1):")
	assert.Contains(t, got, "[cccc] REPLY REQUIRED (event_id=ev_1): reply via cccc_message_reply.")
}

func TestFormatPrefix_CrossGroupRelay(t *testing.T) {
	ev := ledger.Event{ID: "ev_2"}
	data := ledger.ChatMessageData{
		Text: "relayed text",
		Provenance: &ledger.Provenance{
			SourceGroupID: "g_src",
			SourceEventID: "ev_src_9",
		},
	}

	got := FormatPrefix(ev, data)
	assert.Contains(t, got, "[cccc] RELAYED FROM (group_id=g_src, event_id=ev_src_9):")
}

func TestFormatPrefix_AttachmentsTruncatedAfterEight(t *testing.T) {
	var attachments []ledger.Attachment
	for i := 0; i < 10; i++ {
		attachments = append(attachments, ledger.Attachment{Title: "f", Bytes: 10, Path: "/tmp/f"})
	}
	ev := ledger.Event{ID: "ev_3"}
	data := ledger.ChatMessageData{Text: "see attached", Attachments: attachments}

	got := FormatPrefix(ev, data)
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")

	assert.Equal(t, "[cccc] Attachments:", lines[0])
	attachmentLines := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "- f (10 bytes)") {
			attachmentLines++
		}
	}
	assert.Equal(t, 8, attachmentLines)
	assert.Contains(t, got, "- … (2 more)")
}

func TestFormatPrefix_NoConditionsReturnsEmpty(t *testing.T) {
	ev := ledger.Event{ID: "ev_4"}
	data := ledger.ChatMessageData{Text: "plain message"}
	assert.Equal(t, "", FormatPrefix(ev, data))
}

func TestFormatMessage_PrependsPrefixToText(t *testing.T) {
	ev := ledger.Event{ID: "ev_5"}
	data := ledger.ChatMessageData{Text: "body text", Priority: ledger.PriorityAttention}

	got := FormatMessage(ev, data)
	assert.True(t, strings.HasSuffix(got, "body text"))
	assert.Contains(t, got, "IMPORTANT")
}
