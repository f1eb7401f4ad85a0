package constants

// Default server configuration values
const (
	DefaultServerPort           = 8080
	DefaultServerReadTimeoutSec = 15
	// Write timeout covers the synchronous chat endpoint, which blocks on
	// the model.
	DefaultServerWriteTimeoutSec = 120
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Default broker configuration values
const (
	DefaultPrefetch    = 1
	DefaultWorkerCount = 1
)

// Default model configuration values
const (
	DefaultOllamaTimeoutSec = 60
	DefaultTemperature      = 0.2
)

// Default WhatsApp Cloud API values
const (
	DefaultWhatsAppAPIBaseURL = "https://graph.facebook.com"
	DefaultWhatsAppAPIVersion = "v19.0"
	DefaultWhatsAppTimeoutSec = 30
)

// Session history limits
const (
	MaxSessionHistoryEntries = 20
	DefaultWebSessionID      = "default"
)

// WebhookAck is the fixed sentinel returned for every acknowledged webhook
// POST regardless of outcome.
const WebhookAck = "EVENT_RECEIVED"

// ApologyReply is sent to the user when processing fails before the message
// is handed back to the broker for redelivery.
const ApologyReply = "Sorry, I encountered an error processing your message. Please try again."

const ServerErrorChannelSize = 1
