package models

// ConfigError indicates an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// Config is the top-level service configuration, loaded from a JSON file
// with secrets overlaid from the environment.
type Config struct {
	Server    ServerConfig   `json:"server"`
	AMQP      AMQPConfig     `json:"amqp"`
	Ollama    OllamaConfig   `json:"ollama"`
	WhatsApp  WhatsAppConfig `json:"whatsapp"`
	Tracing   TracingConfig  `json:"tracing"`
	UploadDir string         `json:"uploadDir"`
	LogLevel  string         `json:"logLevel"`
}

type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// AMQPConfig describes the broker connection. The queue topology itself
// (exchanges, queues, bindings) is fixed in internal/queue.
type AMQPConfig struct {
	URL         string `json:"url"`
	Prefetch    int    `json:"prefetch"`
	WorkerCount int    `json:"workerCount"`
}

// OllamaConfig points at the local model endpoint. Model answers chat
// messages; VisionModel reads images for the extraction tool.
type OllamaConfig struct {
	BaseURL     string  `json:"baseUrl"`
	Model       string  `json:"model"`
	VisionModel string  `json:"visionModel"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
	TimeoutSec  int     `json:"timeoutSec"`
}

type WhatsAppConfig struct {
	APIBaseURL    string `json:"apiBaseUrl"`
	APIVersion    string `json:"apiVersion"`
	PhoneNumberID string `json:"phoneNumberId"`
	VerifyToken   string `json:"-"`
	AccessToken   string `json:"-"`
	TimeoutSec    int    `json:"timeoutSec"`
}

type TracingConfig struct {
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"useStdout"`
}
