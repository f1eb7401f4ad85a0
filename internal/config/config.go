package config

import (
	"encoding/json"
	"os"

	"chatbridge/internal/constants"
	"chatbridge/internal/models"
)

var (
	ErrMissingAMQPURL     = models.ConfigError{Message: "missing AMQP broker URL"}
	ErrMissingOllamaURL   = models.ConfigError{Message: "missing Ollama base URL"}
	ErrMissingOllamaModel = models.ConfigError{Message: "missing Ollama model name"}
	ErrMissingPhoneID     = models.ConfigError{Message: "missing WhatsApp phone number ID"}
	ErrMissingUploadDir   = models.ConfigError{Message: "missing upload directory"}
)

// LoadConfig reads the JSON config file, applies defaults, overlays secrets
// from the environment, and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.AMQP.Prefetch <= 0 {
		c.AMQP.Prefetch = constants.DefaultPrefetch
	}
	if c.AMQP.WorkerCount <= 0 {
		c.AMQP.WorkerCount = constants.DefaultWorkerCount
	}
	if c.Ollama.Temperature <= 0 {
		c.Ollama.Temperature = constants.DefaultTemperature
	}
	if c.Ollama.TimeoutSec <= 0 {
		c.Ollama.TimeoutSec = constants.DefaultOllamaTimeoutSec
	}
	if c.Ollama.VisionModel == "" {
		c.Ollama.VisionModel = c.Ollama.Model
	}
	if c.WhatsApp.APIBaseURL == "" {
		c.WhatsApp.APIBaseURL = constants.DefaultWhatsAppAPIBaseURL
	}
	if c.WhatsApp.APIVersion == "" {
		c.WhatsApp.APIVersion = constants.DefaultWhatsAppAPIVersion
	}
	if c.WhatsApp.TimeoutSec <= 0 {
		c.WhatsApp.TimeoutSec = constants.DefaultWhatsAppTimeoutSec
	}
}

// Secrets are never read from the config file; they come from the
// environment only. Non-secret overrides allow container deployments to
// reuse a single config file.
func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("AMQP_URL"); url != "" {
		c.AMQP.URL = url
	}
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		c.Ollama.BaseURL = url
	}
	if token := os.Getenv("CHATBRIDGE_VERIFY_TOKEN"); token != "" {
		c.WhatsApp.VerifyToken = token
	}
	if token := os.Getenv("CHATBRIDGE_ACCESS_TOKEN"); token != "" {
		c.WhatsApp.AccessToken = token
	}
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		c.UploadDir = dir
	}
}

func validate(c *models.Config) error {
	if c.AMQP.URL == "" {
		return ErrMissingAMQPURL
	}
	if c.Ollama.BaseURL == "" {
		return ErrMissingOllamaURL
	}
	if c.Ollama.Model == "" {
		return ErrMissingOllamaModel
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return ErrMissingPhoneID
	}
	if c.UploadDir == "" {
		return ErrMissingUploadDir
	}
	return nil
}
