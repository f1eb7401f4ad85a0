package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatbridge/internal/constants"
	"chatbridge/internal/middleware"
	"chatbridge/internal/models"
	"chatbridge/internal/queue"
	"chatbridge/internal/service"
	"chatbridge/pkg/media"
	"chatbridge/pkg/whatsapp"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxUploadMemory = 32 << 20

type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	cfg         *models.Config
	producer    queue.Producer
	waClient    whatsapp.Client
	storage     media.Storage
	completions service.Completions
	server      *http.Server
}

func NewServer(cfg *models.Config, producer queue.Producer, waClient whatsapp.Client, storage media.Storage, completions service.Completions, logger *logrus.Logger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		cfg:         cfg,
		producer:    producer,
		waClient:    waClient,
		storage:     storage,
		completions: completions,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	s.router.HandleFunc("/webhook", s.handleWebhookVerify()).Methods(http.MethodGet)
	s.router.HandleFunc("/webhook", s.handleWebhook()).Methods(http.MethodPost)
	s.router.HandleFunc("/webhook/test", s.handleWebhookTest()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat", s.handleChat()).Methods(http.MethodPost)
	api.HandleFunc("/chat/history/{sessionId}", s.handleClearHistory()).Methods(http.MethodDelete)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  timeoutOrDefault(s.cfg.Server.ReadTimeoutSec, 15),
		WriteTimeout: timeoutOrDefault(s.cfg.Server.WriteTimeoutSec, 120),
		IdleTimeout:  timeoutOrDefault(s.cfg.Server.IdleTimeoutSec, 60),
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func timeoutOrDefault(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// handleWebhookVerify answers the Cloud API subscription handshake. The
// challenge is echoed only on an exact mode and token match.
func (s *Server) handleWebhookVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")

		if mode == "subscribe" && token == s.cfg.WhatsApp.VerifyToken {
			s.logger.Info("Webhook verified")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(challenge))
			return
		}

		s.logger.Warn("Webhook verification failed")
		w.WriteHeader(http.StatusForbidden)
	}
}

// handleWebhook ingests inbound Cloud API events. The response is always
// the acknowledgment sentinel; failures on the media path drop the message
// rather than making the channel redeliver the whole event.
func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer s.acknowledge(w)

		var payload models.WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.logger.WithError(err).Warn("Failed to decode webhook payload")
			return
		}

		msg := payload.FirstMessage()
		if msg == nil {
			s.logger.Debug("Webhook event carried no message")
			return
		}

		queueMsg, ok := s.normalizeWebhookMessage(r.Context(), msg)
		if !ok {
			return
		}

		if err := s.producer.Enqueue(r.Context(), queueMsg); err != nil {
			s.logger.WithError(err).Error("Failed to enqueue webhook message")
		}
	}
}

// normalizeWebhookMessage turns a webhook message node into a queue
// message, fetching and storing media first. ok=false means the message is
// unsupported or its media could not be stored.
func (s *Server) normalizeWebhookMessage(ctx context.Context, msg *models.WebhookMessage) (models.QueueMessage, bool) {
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return models.QueueMessage{}, false
		}
		return models.ForWhatsAppText(msg.From, msg.Text.Body), true

	case "image":
		if msg.Image == nil {
			return models.QueueMessage{}, false
		}
		path, err := s.fetchMedia(ctx, msg.Image.ID, msg.Image.MimeType)
		if err != nil {
			s.logger.WithError(err).WithField("media_id", msg.Image.ID).Error("Dropping image message, media fetch failed")
			return models.QueueMessage{}, false
		}
		return models.ForWhatsAppImage(msg.From, msg.Image.Caption, path, msg.Image.MimeType), true

	case "document":
		if msg.Document == nil {
			return models.QueueMessage{}, false
		}
		path, err := s.fetchMedia(ctx, msg.Document.ID, msg.Document.MimeType)
		if err != nil {
			s.logger.WithError(err).WithField("media_id", msg.Document.ID).Error("Dropping document message, media fetch failed")
			return models.QueueMessage{}, false
		}
		return models.ForWhatsAppDocument(msg.From, msg.Document.Caption, path, msg.Document.MimeType, msg.Document.Filename), true

	default:
		s.logger.WithField("type", msg.Type).Debug("Ignoring unsupported message type")
		return models.QueueMessage{}, false
	}
}

// fetchMedia resolves a media ID to its signed URL, downloads it, and
// stores it under the upload directory.
func (s *Server) fetchMedia(ctx context.Context, mediaID, mimeType string) (string, error) {
	url, err := s.waClient.ResolveMediaURL(ctx, mediaID)
	if err != nil {
		return "", err
	}

	body, err := s.waClient.DownloadMedia(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	return s.storage.SaveDownloaded(mediaID, mimeType, body)
}

func (s *Server) acknowledge(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(constants.WebhookAck))
}

// handleWebhookTest sends a test message through the delivery sink so
// operators can confirm credentials without waiting for inbound traffic.
func (s *Server) handleWebhookTest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Usage: /webhook/test?phone=<recipient phone number>"))
			return
		}

		if err := s.waClient.SendText(r.Context(), phone, "Test message from chatbridge. Your WhatsApp integration is working."); err != nil {
			s.logger.WithError(err).Error("Test message delivery failed")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(fmt.Sprintf("Failed to send test message: %v", err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Test message sent to " + phone))
	}
}

// ChatResponse is the web chat reply envelope. Timestamp is Unix
// milliseconds.
type ChatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// handleChat serves the web chat channel synchronously: the reply rides
// back in the HTTP response instead of a delivery channel. Processing
// errors surface as the fixed apology body, not a 5xx.
func (s *Server) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}

		message := r.FormValue("message")
		if message == "" {
			http.Error(w, "message is required", http.StatusBadRequest)
			return
		}

		sessionID := r.FormValue("sessionId")
		if sessionID == "" {
			sessionID = constants.DefaultWebSessionID
		}

		att, err := s.storeChatUpload(r)
		if err != nil {
			s.logger.WithError(err).Error("Failed to store uploaded file")
			http.Error(w, "failed to store uploaded file", http.StatusBadRequest)
			return
		}

		reply, err := s.completions.Complete(r.Context(), sessionID, message, att)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", sessionID).Error("Chat completion failed")
			reply = constants.ApologyReply
		}

		s.writeJSON(w, ChatResponse{
			Message:   reply,
			SessionID: sessionID,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// storeChatUpload saves the optional multipart file and returns it as an
// attachment. A missing file is not an error.
func (s *Server) storeChatUpload(r *http.Request) (*models.Attachment, error) {
	file, header, err := r.FormFile("files")
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	path, err := s.storage.SaveUpload(header.Filename, contentType, file)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"filename": header.Filename,
		"path":     path,
	}).Info("Stored uploaded file")

	return &models.Attachment{FilePath: path, MimeType: contentType}, nil
}

func (s *Server) handleClearHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionId"]
		s.completions.ClearSession(sessionID)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
