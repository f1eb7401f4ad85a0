package service

import (
	"context"

	"chatbridge/internal/constants"
	"chatbridge/internal/models"

	"github.com/sirupsen/logrus"
)

// TextSender delivers a reply back to a WhatsApp recipient.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

// Worker processes dequeued messages: it dispatches on (source, type),
// drives the completion service, and delivers WhatsApp replies. A returned
// error signals the consumer to redeliver or dead-letter.
type Worker struct {
	completions Completions
	sender      TextSender
	logger      *logrus.Logger
}

func NewWorker(completions Completions, sender TextSender, logger *logrus.Logger) *Worker {
	return &Worker{
		completions: completions,
		sender:      sender,
		logger:      logger,
	}
}

func (w *Worker) Process(ctx context.Context, msg models.QueueMessage) error {
	logger := w.logger.WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"source":     msg.Source,
		"type":       msg.MessageType,
		"session_id": msg.SessionID,
	})
	logger.Info("Processing queued message")

	var err error
	switch {
	case msg.Source == models.SourceWhatsApp && msg.MessageType == models.MessageTypeText:
		err = w.processWhatsAppText(ctx, msg)
	case msg.Source == models.SourceWhatsApp && (msg.MessageType == models.MessageTypeImage || msg.MessageType == models.MessageTypeDocument):
		err = w.processWhatsAppMedia(ctx, msg)
	case msg.Source == models.SourceWeb || msg.Source == models.SourceAPI:
		_, err = w.completions.Complete(ctx, msg.SessionID, msg.Text, msg.Attachment())
	default:
		logger.Warn("No handler for message, acknowledging without action")
		return nil
	}

	if err != nil {
		logger.WithError(err).Error("Message processing failed")
		w.apologize(ctx, msg)
		return err
	}
	return nil
}

func (w *Worker) processWhatsAppText(ctx context.Context, msg models.QueueMessage) error {
	reply, err := w.completions.Complete(ctx, msg.SessionID, msg.Text, nil)
	if err != nil {
		return err
	}
	if reply == "" {
		w.logger.WithField("message_id", msg.MessageID).Debug("Empty reply, nothing to deliver")
		return nil
	}
	return w.sender.SendText(ctx, msg.SenderPhone, reply)
}

// processWhatsAppMedia handles image and document messages. Without a
// caption the file is only recorded in the session history; the user's
// next message tells the model what to do with it. With a caption the
// completion runs immediately with the attachment.
func (w *Worker) processWhatsAppMedia(ctx context.Context, msg models.QueueMessage) error {
	if !msg.HasCaption() {
		w.completions.RecordUpload(msg.SessionID, msg.MediaFilePath)
		return nil
	}

	reply, err := w.completions.Complete(ctx, msg.SessionID, msg.Text, msg.Attachment())
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	return w.sender.SendText(ctx, msg.SenderPhone, reply)
}

// apologize makes a best-effort attempt to tell the WhatsApp user the
// message failed. Web sessions get their apology from the HTTP handler,
// and a failed apology never masks the original error.
func (w *Worker) apologize(ctx context.Context, msg models.QueueMessage) {
	if msg.Source != models.SourceWhatsApp || msg.SenderPhone == "" {
		return
	}
	if err := w.sender.SendText(ctx, msg.SenderPhone, constants.ApologyReply); err != nil {
		w.logger.WithError(err).WithField("message_id", msg.MessageID).Warn("Failed to deliver apology")
	}
}
