package service

import (
	"context"
	"encoding/json"
	"fmt"

	"chatbridge/internal/extractor"
	"chatbridge/internal/models"
	"chatbridge/internal/session"
	"chatbridge/pkg/ollama"

	"github.com/sirupsen/logrus"
)

const systemPrompt = `You are a specialized AI assistant with access to specific tools. You can ONLY perform tasks that you have tools for.

CRITICAL RULES - YOU MUST FOLLOW THESE:

1. When you identify a task that matches an available tool, you MUST answer with the tool directive IMMEDIATELY without asking for permission.
2. DO NOT say "I will call the tool" or describe what the tool does - answer with the directive directly.
3. DO NOT attempt to process images yourself - you CANNOT see images, only tools can.
4. If a user asks you to do something and you DON'T have a tool for it, respond with: "Sorry, I don't have the appropriate tools to execute your request."
5. DO NOT answer general knowledge questions, provide explanations, or engage in conversations unrelated to your available tools.
6. When you see a file path in the user's message, pick the matching tool and answer with its directive immediately.

Available Tools:
- extract_passport: Extracts passport information from an image file. Returns passport information in JSON format with fields: passport_no, name, birthdate, gender, nationality, issue_date, expiry_date.

To invoke a tool, reply with ONLY a JSON object of the form {"tool": "<tool name>"} and nothing else.

If the user's request doesn't match ANY of your available tools, say: "Hi, what can I help you with today?"`

const passportToolName = "extract_passport"

// PassportExtractor runs the passport tool against a stored image.
type PassportExtractor interface {
	Extract(ctx context.Context, filePath, mimeType string) string
}

// Completions is the completion surface consumed by the worker and the
// HTTP chat handler.
type Completions interface {
	Complete(ctx context.Context, sessionID, prompt string, att *models.Attachment) (string, error)
	RecordUpload(sessionID, filePath string)
	ClearSession(sessionID string)
}

// ChatService keeps per-session history and turns prompts into model
// replies, routing tool directives to the passport extractor.
type ChatService struct {
	llm       ollama.Client
	model     string
	store     session.Store
	extractor PassportExtractor
	logger    *logrus.Logger
}

func NewChatService(llm ollama.Client, model string, store session.Store, extractor PassportExtractor, logger *logrus.Logger) *ChatService {
	return &ChatService{
		llm:       llm,
		model:     model,
		store:     store,
		extractor: extractor,
		logger:    logger,
	}
}

// Complete appends the prompt to the session history, asks the model for
// the next turn, and resolves a tool directive when the model emits one.
// The assistant turn is recorded before returning, so history and reply
// always agree.
func (s *ChatService) Complete(ctx context.Context, sessionID, prompt string, att *models.Attachment) (string, error) {
	userContent := prompt
	if att != nil {
		userContent = fmt.Sprintf("%s\n\nFILE_PATH: %s\nMIME_TYPE: %s\n\nChoose and execute the appropriate tool NOW. Do not explain, just execute.",
			prompt, att.FilePath, att.MimeType)
	}

	s.store.Append(sessionID, session.Turn{Role: session.RoleUser, Content: userContent})

	history := s.store.GetOrCreate(sessionID)
	messages := make([]ollama.ChatMessage, 0, len(history)+1)
	messages = append(messages, ollama.ChatMessage{Role: ollama.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, ollama.ChatMessage{Role: turn.Role, Content: turn.Content})
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"messages":   len(messages),
	}).Debug("Requesting completion")

	reply, err := s.llm.Chat(ctx, s.model, messages)
	if err != nil {
		return "", err
	}

	if tool, ok := parseToolDirective(reply); ok {
		reply = s.runTool(ctx, sessionID, tool, att)
	}

	s.store.Append(sessionID, session.Turn{Role: session.RoleAssistant, Content: reply})
	return reply, nil
}

// RecordUpload notes a stored media file in the session history without
// asking the model for anything. A later captioned message lets the model
// pick the file up through the recorded path.
func (s *ChatService) RecordUpload(sessionID, filePath string) {
	note := "upload file to filepath: " + filePath
	s.store.Append(sessionID, session.Turn{Role: session.RoleUser, Content: note})
	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"file_path":  filePath,
	}).Info("Recorded file upload in session history")
}

// ClearSession drops the session's history.
func (s *ChatService) ClearSession(sessionID string) {
	s.store.Clear(sessionID)
	s.logger.WithField("session_id", sessionID).Info("Cleared session history")
}

func (s *ChatService) runTool(ctx context.Context, sessionID, tool string, att *models.Attachment) string {
	if tool != passportToolName {
		s.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"tool":       tool,
		}).Warn("Model requested an unknown tool")
		return "Sorry, I don't have the appropriate tools to execute your request."
	}
	if att == nil {
		s.logger.WithField("session_id", sessionID).Warn("Tool directive without an attachment")
		return "Sorry, I don't have the appropriate tools to execute your request."
	}
	return s.extractor.Extract(ctx, att.FilePath, att.MimeType)
}

type toolDirective struct {
	Tool string `json:"tool"`
}

// parseToolDirective recognizes a reply consisting solely of a tool
// directive, fenced or bare. Anything else is a normal assistant reply.
func parseToolDirective(reply string) (string, bool) {
	clean := extractor.StripCodeFence(reply)
	var directive toolDirective
	if err := json.Unmarshal([]byte(clean), &directive); err != nil {
		return "", false
	}
	if directive.Tool == "" {
		return "", false
	}
	return directive.Tool, true
}
