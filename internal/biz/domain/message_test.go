package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboundMessage_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want string
	}{
		{"full name", InboundMessage{UserID: "7", Username: "bob", FirstName: "Bob", LastName: "Smith"}, "Bob Smith"},
		{"username fallback", InboundMessage{UserID: "7", Username: "bob"}, "bob"},
		{"id fallback", InboundMessage{UserID: "7"}, "7"},
		{"newlines stripped", InboundMessage{FirstName: "Bo\nb"}, "Bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.DisplayName())
		})
	}
}

func TestInboundMessage_FindAttachment(t *testing.T) {
	msg := &InboundMessage{Attachments: []Attachment{
		{Kind: AttachmentDocument, FileID: "doc"},
		{Kind: AttachmentPhoto, FileID: "small", Width: 90},
		{Kind: AttachmentPhoto, FileID: "large", Width: 1280},
		{Kind: AttachmentPhoto, FileID: "medium", Width: 320},
	}}

	photo, ok := msg.FindAttachment(AttachmentPhoto)
	assert.True(t, ok)
	assert.Equal(t, "large", photo.FileID)

	_, ok = msg.FindAttachment(AttachmentVoice, AttachmentAudio)
	assert.False(t, ok)

	assert.Empty(t, msg.ReplyText())
	msg.ReplyTo = &InboundMessage{Text: "quoted"}
	assert.Equal(t, "quoted", msg.ReplyText())
}
