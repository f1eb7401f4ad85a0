package service

import (
	"context"

	"chatbridge/internal/models"
	"chatbridge/pkg/ollama"

	"github.com/stretchr/testify/mock"
)

type mockOllamaClient struct {
	mock.Mock
}

func (m *mockOllamaClient) Chat(ctx context.Context, model string, messages []ollama.ChatMessage) (string, error) {
	args := m.Called(ctx, model, messages)
	return args.String(0), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, filePath, mimeType string) string {
	args := m.Called(ctx, filePath, mimeType)
	return args.String(0)
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

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, to, body string) error {
	args := m.Called(ctx, to, body)
	return args.Error(0)
}
