package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/pkg/ollama"

	"github.com/sirupsen/logrus"
)

// Passport holds the fields extracted from a passport image. Date fields
// are normalized to YYYY-MM-DD.
type Passport struct {
	PassportNo  string `json:"passport_no"`
	Name        string `json:"name"`
	Birthdate   string `json:"birthdate"`
	Gender      string `json:"gender"`
	Nationality string `json:"nationality"`
	IssueDate   string `json:"issue_date"`
	ExpiryDate  string `json:"expiry_date"`
}

const extractionPrompt = "Extract the following information from this passport image and return ONLY a valid JSON object with these exact fields: " +
	"passport_no (string), name (string), birthdate (string in YYYY-MM-DD format), " +
	"gender (string), nationality (string), issue_date (string in YYYY-MM-DD format), " +
	"expiry_date (string in YYYY-MM-DD format). " +
	"Return only the JSON object, no additional text or explanation."

// Extractor reads a passport image and asks a vision model for its fields.
type Extractor struct {
	client ollama.Client
	model  string
	logger *logrus.Logger
}

func New(client ollama.Client, visionModel string, logger *logrus.Logger) *Extractor {
	return &Extractor{
		client: client,
		model:  visionModel,
		logger: logger,
	}
}

// Extract returns the passport fields as indented JSON. Every failure mode
// is folded into an error-shaped JSON payload so the caller can hand the
// result straight back to the conversation.
func (e *Extractor) Extract(ctx context.Context, filePath, mimeType string) string {
	e.logger.WithFields(logrus.Fields{
		"file_path": filePath,
		"mime_type": mimeType,
	}).Info("Extracting passport information")

	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return e.errorPayload(err)
	}

	encoded := base64.StdEncoding.EncodeToString(fileBytes)
	reply, err := e.client.Chat(ctx, e.model, []ollama.ChatMessage{
		{
			Role:    ollama.RoleUser,
			Content: extractionPrompt,
			Images:  []string{encoded},
		},
	})
	if err != nil {
		return e.errorPayload(err)
	}

	passport, err := parsePassport(reply)
	if err != nil {
		e.logger.WithError(errors.Wrap(err, errors.ErrCodeSchemaValidation, "vision model returned an unusable payload")).
			Error("Passport extraction failed")
		return e.errorPayload(err)
	}

	pretty, err := json.MarshalIndent(passport, "", "  ")
	if err != nil {
		return e.errorPayload(err)
	}

	e.logger.WithField("name", passport.Name).Info("Passport extraction completed")
	return string(pretty)
}

func parsePassport(reply string) (Passport, error) {
	clean := StripCodeFence(reply)

	var passport Passport
	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&passport); err != nil {
		return Passport{}, fmt.Errorf("invalid JSON: %w", err)
	}

	for field, value := range map[string]string{
		"birthdate":   passport.Birthdate,
		"issue_date":  passport.IssueDate,
		"expiry_date": passport.ExpiryDate,
	} {
		if value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return Passport{}, fmt.Errorf("%s %q is not in YYYY-MM-DD format", field, value)
		}
	}

	return passport, nil
}

func (e *Extractor) errorPayload(err error) string {
	e.logger.WithError(err).Error("Failed to extract passport information")
	payload, marshalErr := json.Marshal(map[string]string{
		"error": "Failed to extract passport information: " + err.Error(),
	})
	if marshalErr != nil {
		return `{"error": "Failed to extract passport information"}`
	}
	return string(payload)
}

// StripCodeFence removes a surrounding ```json / ``` fence, which vision
// models commonly wrap their output in.
func StripCodeFence(s string) string {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}
