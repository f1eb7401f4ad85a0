package models

// WhatsApp Cloud API webhook payload. Only the fields the ingestion path
// reads are modeled; everything else is ignored by the JSON decoder.

type WebhookPayload struct {
	Entry []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	Messages []WebhookMessage `json:"messages"`
}

// WebhookMessage is a single inbound message node. Type decides which of
// the nested payloads is populated.
type WebhookMessage struct {
	From     string           `json:"from"`
	Type     string           `json:"type"`
	Text     *WebhookText     `json:"text,omitempty"`
	Image    *WebhookMedia    `json:"image,omitempty"`
	Document *WebhookDocument `json:"document,omitempty"`
}

type WebhookText struct {
	Body string `json:"body"`
}

type WebhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type WebhookDocument struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

// FirstMessage extracts entry[0].changes[0].value.messages[0], the only
// message node the Cloud API delivers per event. Nil means the payload is a
// status update or other non-message event.
func (p *WebhookPayload) FirstMessage() *WebhookMessage {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[0]
}
