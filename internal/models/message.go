package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source identifies the channel a message originated from.
type Source string

const (
	SourceWhatsApp Source = "WHATSAPP"
	SourceWeb      Source = "WEB"
	SourceAPI      Source = "API"
)

// MessageType identifies the payload shape of a queued message.
type MessageType string

const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeImage    MessageType = "IMAGE"
	MessageTypeDocument MessageType = "DOCUMENT"
)

// QueueMessage is the normalized envelope for an inbound chat event,
// independent of its origin channel. It is created once at ingestion,
// serialized onto the queue, and never mutated afterwards.
type QueueMessage struct {
	MessageID        string      `json:"messageId"`
	Source           Source      `json:"source"`
	MessageType      MessageType `json:"messageType"`
	SessionID        string      `json:"sessionId"`
	SenderPhone      string      `json:"senderPhone,omitempty"`
	Text             string      `json:"text,omitempty"`
	MediaFilePath    string      `json:"mediaFilePath,omitempty"`
	MimeType         string      `json:"mimeType,omitempty"`
	OriginalFilename string      `json:"originalFilename,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
}

func newQueueMessage() QueueMessage {
	return QueueMessage{
		MessageID: uuid.New().String(),
		Timestamp: time.Now().UTC(),
	}
}

// ForWhatsAppText builds a TEXT message from a WhatsApp sender. The sender's
// phone number doubles as the session partition key.
func ForWhatsAppText(senderPhone, text string) QueueMessage {
	msg := newQueueMessage()
	msg.Source = SourceWhatsApp
	msg.MessageType = MessageTypeText
	msg.SessionID = senderPhone
	msg.SenderPhone = senderPhone
	msg.Text = text
	return msg
}

// ForWhatsAppImage builds an IMAGE message referencing a locally stored file.
// The caption may be empty.
func ForWhatsAppImage(senderPhone, caption, filePath, mimeType string) QueueMessage {
	msg := newQueueMessage()
	msg.Source = SourceWhatsApp
	msg.MessageType = MessageTypeImage
	msg.SessionID = senderPhone
	msg.SenderPhone = senderPhone
	msg.Text = caption
	msg.MediaFilePath = filePath
	msg.MimeType = mimeType
	return msg
}

// ForWhatsAppDocument builds a DOCUMENT message referencing a locally stored
// file, keeping the original filename for context.
func ForWhatsAppDocument(senderPhone, caption, filePath, mimeType, originalFilename string) QueueMessage {
	msg := newQueueMessage()
	msg.Source = SourceWhatsApp
	msg.MessageType = MessageTypeDocument
	msg.SessionID = senderPhone
	msg.SenderPhone = senderPhone
	msg.Text = caption
	msg.MediaFilePath = filePath
	msg.MimeType = mimeType
	msg.OriginalFilename = originalFilename
	return msg
}

// ForWebText builds a TEXT message originating from the web chat UI.
func ForWebText(sessionID, text string) QueueMessage {
	msg := newQueueMessage()
	msg.Source = SourceWeb
	msg.MessageType = MessageTypeText
	msg.SessionID = sessionID
	msg.Text = text
	return msg
}

// Validate checks the messageType/field invariant: TEXT messages carry text
// only, IMAGE and DOCUMENT messages require a stored media path and MIME
// type with the text acting as an optional caption.
func (m QueueMessage) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("message ID is required")
	}
	if m.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	switch m.Source {
	case SourceWhatsApp:
		if m.SenderPhone == "" {
			return fmt.Errorf("sender phone is required for WhatsApp messages")
		}
	case SourceWeb, SourceAPI:
	default:
		return fmt.Errorf("unknown source: %q", m.Source)
	}
	switch m.MessageType {
	case MessageTypeText:
		if m.MediaFilePath != "" || m.MimeType != "" {
			return fmt.Errorf("text messages must not carry media fields")
		}
	case MessageTypeImage, MessageTypeDocument:
		if m.MediaFilePath == "" {
			return fmt.Errorf("media file path is required for %s messages", m.MessageType)
		}
		if m.MimeType == "" {
			return fmt.Errorf("MIME type is required for %s messages", m.MessageType)
		}
	default:
		return fmt.Errorf("unknown message type: %q", m.MessageType)
	}
	return nil
}

// HasCaption reports whether a media message carries a non-empty caption.
func (m QueueMessage) HasCaption() bool {
	return m.Text != ""
}

// Attachment describes a stored media file handed to the completion client.
type Attachment struct {
	FilePath string
	MimeType string
}

// Attachment returns the message's media reference, or nil when the message
// carries no media.
func (m QueueMessage) Attachment() *Attachment {
	if m.MediaFilePath == "" {
		return nil
	}
	return &Attachment{FilePath: m.MediaFilePath, MimeType: m.MimeType}
}
