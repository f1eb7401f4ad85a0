package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/http/httptest"
	"strings"
	"testing"

	"chatbridge/internal/constants"
	"chatbridge/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockWhatsAppClient struct {
	mock.Mock
}

func (m *mockWhatsAppClient) SendText(ctx context.Context, to, body string) error {
	args := m.Called(ctx, to, body)
	return args.Error(0)
}

func (m *mockWhatsAppClient) SendImage(ctx context.Context, to, imageURL, caption string) error {
	args := m.Called(ctx, to, imageURL, caption)
	return args.Error(0)
}

func (m *mockWhatsAppClient) ResolveMediaURL(ctx context.Context, mediaID string) (string, error) {
	args := m.Called(ctx, mediaID)
	return args.String(0), args.Error(1)
}

func (m *mockWhatsAppClient) DownloadMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	args := m.Called(ctx, mediaURL)
	if rc := args.Get(0); rc != nil {
		return rc.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveDownloaded(mediaID, mimeType string, r io.Reader) (string, error) {
	args := m.Called(mediaID, mimeType, r)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) SaveUpload(originalFilename, contentType string, r io.Reader) (string, error) {
	args := m.Called(originalFilename, contentType, r)
	return args.String(0), args.Error(1)
}

type mockCompletions struct {
	mock.Mock
}

func (m *mockCompletions) Complete(ctx context.Context, sessionID, prompt string, att *models.Attachment) (string, error) {
	args := m.Called(ctx, sessionID, prompt, att)
	return args.String(0), args.Error(1)
}

func (m *mockCompletions) RecordUpload(sessionID, filePath string) {
	m.Called(sessionID, filePath)
}

func (m *mockCompletions) ClearSession(sessionID string) {
	m.Called(sessionID)
}

type serverMocks struct {
	producer    *mockProducer
	waClient    *mockWhatsAppClient
	storage     *mockStorage
	completions *mockCompletions
}

func newTestServer(t *testing.T) (*Server, *serverMocks) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &models.Config{}
	cfg.Server.Port = 8080
	cfg.WhatsApp.VerifyToken = "secret-verify-token"

	mocks := &serverMocks{
		producer:    &mockProducer{},
		waClient:    &mockWhatsAppClient{},
		storage:     &mockStorage{},
		completions: &mockCompletions{},
	}
	server := NewServer(cfg, mocks.producer, mocks.waClient, mocks.storage, mocks.completions, logger)
	return server, mocks
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWebhookVerification(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "valid subscription",
			query:        "hub.mode=subscribe&hub.verify_token=secret-verify-token&hub.challenge=challenge-123",
			expectedCode: http.StatusOK,
			expectedBody: "challenge-123",
		},
		{
			name:         "wrong token",
			query:        "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-123",
			expectedCode: http.StatusForbidden,
			expectedBody: "",
		},
		{
			name:         "wrong mode",
			query:        "hub.mode=unsubscribe&hub.verify_token=secret-verify-token&hub.challenge=challenge-123",
			expectedCode: http.StatusForbidden,
			expectedBody: "",
		},
		{
			name:         "missing everything",
			query:        "",
			expectedCode: http.StatusForbidden,
			expectedBody: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t)

			rec := httptest.NewRecorder()
			server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Equal(t, tt.expectedBody, rec.Body.String())
		})
	}
}

func webhookBody(message string) string {
	return fmt.Sprintf(`{"entry":[{"changes":[{"value":{"messages":[%s]}}]}]}`, message)
}

func TestWebhookTextMessageEnqueued(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.producer.On("Enqueue", mock.Anything, mock.MatchedBy(func(msg models.QueueMessage) bool {
		return msg.Source == models.SourceWhatsApp &&
			msg.MessageType == models.MessageTypeText &&
			msg.SenderPhone == "15551234567" &&
			msg.Text == "Hello"
	})).Return(nil)

	body := webhookBody(`{"from":"15551234567","type":"text","text":{"body":"Hello"}}`)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.WebhookAck, rec.Body.String())
	mocks.producer.AssertExpectations(t)
}

func TestWebhookStatusEventAcknowledgedWithoutEnqueue(t *testing.T) {
	server, mocks := newTestServer(t)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"entry":[]}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.WebhookAck, rec.Body.String())
	mocks.producer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestWebhookMalformedPayloadStillAcknowledged(t *testing.T) {
	server, mocks := newTestServer(t)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.WebhookAck, rec.Body.String())
	mocks.producer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestWebhookImageMessageFetchesAndEnqueues(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.waClient.On("ResolveMediaURL", mock.Anything, "media-1").Return("https://cdn.example.com/media-1", nil)
	mocks.waClient.On("DownloadMedia", mock.Anything, "https://cdn.example.com/media-1").
		Return(io.NopCloser(strings.NewReader("image bytes")), nil)
	mocks.storage.On("SaveDownloaded", "media-1", "image/jpeg", mock.Anything).Return("/data/uploads/media-1.jpg", nil)
	mocks.producer.On("Enqueue", mock.Anything, mock.MatchedBy(func(msg models.QueueMessage) bool {
		return msg.MessageType == models.MessageTypeImage &&
			msg.MediaFilePath == "/data/uploads/media-1.jpg" &&
			msg.Text == "a passport" &&
			msg.MimeType == "image/jpeg"
	})).Return(nil)

	body := webhookBody(`{"from":"15551234567","type":"image","image":{"id":"media-1","mime_type":"image/jpeg","caption":"a passport"}}`)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.WebhookAck, rec.Body.String())
	mocks.producer.AssertExpectations(t)
	mocks.storage.AssertExpectations(t)
}

func TestWebhookDocumentMessageKeepsFilename(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.waClient.On("ResolveMediaURL", mock.Anything, "media-2").Return("https://cdn.example.com/media-2", nil)
	mocks.waClient.On("DownloadMedia", mock.Anything, "https://cdn.example.com/media-2").
		Return(io.NopCloser(strings.NewReader("pdf bytes")), nil)
	mocks.storage.On("SaveDownloaded", "media-2", "application/pdf", mock.Anything).Return("/data/uploads/media-2.pdf", nil)
	mocks.producer.On("Enqueue", mock.Anything, mock.MatchedBy(func(msg models.QueueMessage) bool {
		return msg.MessageType == models.MessageTypeDocument &&
			msg.OriginalFilename == "report.pdf"
	})).Return(nil)

	body := webhookBody(`{"from":"15551234567","type":"document","document":{"id":"media-2","mime_type":"application/pdf","filename":"report.pdf"}}`)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	mocks.producer.AssertExpectations(t)
}

func TestWebhookMediaFetchFailureDropsMessage(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.waClient.On("ResolveMediaURL", mock.Anything, "media-1").Return("", fmt.Errorf("lookup failed"))

	body := webhookBody(`{"from":"15551234567","type":"image","image":{"id":"media-1","mime_type":"image/jpeg"}}`)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.WebhookAck, rec.Body.String())
	mocks.producer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestWebhookUnsupportedTypeAcknowledged(t *testing.T) {
	server, mocks := newTestServer(t)

	body := webhookBody(`{"from":"15551234567","type":"audio"}`)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.WebhookAck, rec.Body.String())
	mocks.producer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestWebhookTestEndpoint(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.waClient.On("SendText", mock.Anything, "15551234567", mock.Anything).Return(nil)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/test?phone=15551234567", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "15551234567")
	mocks.waClient.AssertExpectations(t)
}

func TestWebhookTestEndpointRequiresPhone(t *testing.T) {
	server, mocks := newTestServer(t)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/test", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Usage")
	mocks.waClient.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func multipartChatRequest(t *testing.T, fields map[string]string, filename, fileContentType, fileBody string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}

	if filename != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filename))
		header.Set("Content-Type", fileContentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(fileBody))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestChatEndpoint(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.completions.On("Complete", mock.Anything, "session-1", "Hello", (*models.Attachment)(nil)).Return("Hi there", nil)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, multipartChatRequest(t, map[string]string{
		"message":   "Hello",
		"sessionId": "session-1",
	}, "", "", ""))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hi there", resp.Message)
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Positive(t, resp.Timestamp)
}

func TestChatEndpointDefaultsSession(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.completions.On("Complete", mock.Anything, constants.DefaultWebSessionID, "Hello", (*models.Attachment)(nil)).Return("Hi", nil)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, multipartChatRequest(t, map[string]string{"message": "Hello"}, "", "", ""))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, constants.DefaultWebSessionID, resp.SessionID)
	mocks.completions.AssertExpectations(t)
}

func TestChatEndpointRequiresMessage(t *testing.T) {
	server, mocks := newTestServer(t)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, multipartChatRequest(t, map[string]string{"sessionId": "s1"}, "", "", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mocks.completions.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChatEndpointWithUpload(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.storage.On("SaveUpload", "passport.jpg", "image/jpeg", mock.Anything).Return("/data/uploads/gen.jpg", nil)
	mocks.completions.On("Complete", mock.Anything, "s1", "extract this",
		&models.Attachment{FilePath: "/data/uploads/gen.jpg", MimeType: "image/jpeg"}).Return(`{"passport_no": "A1"}`, nil)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, multipartChatRequest(t, map[string]string{
		"message":   "extract this",
		"sessionId": "s1",
	}, "passport.jpg", "image/jpeg", "image bytes"))

	require.Equal(t, http.StatusOK, rec.Code)
	mocks.storage.AssertExpectations(t)
	mocks.completions.AssertExpectations(t)
}

func TestChatEndpointErrorReturnsApology(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.completions.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", fmt.Errorf("model backend unreachable"))

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, multipartChatRequest(t, map[string]string{"message": "Hello"}, "", "", ""))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, constants.ApologyReply, resp.Message)
}

func TestClearHistoryEndpoint(t *testing.T) {
	server, mocks := newTestServer(t)

	mocks.completions.On("ClearSession", "session-1").Return()

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/chat/history/session-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	mocks.completions.AssertExpectations(t)
}
