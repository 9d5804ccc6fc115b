// Package whatsapp implements the WhatsApp Cloud API wire format: inbound webhook
// payloads, their normalization, and the outbound HTTP client.
package whatsapp

// WebhookPayload is the body of a webhook delivery. Only the fields the gateway reads
// are modelled.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []InboundMessage `json:"messages"`
}

type WebhookContact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// InboundMessage is a single message event.
type InboundMessage struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Video       *Media       `json:"video,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Document    *Media       `json:"document,omitempty"`
	Sticker     *Media       `json:"sticker,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

// Media is the common shape of image, video, audio, document and sticker objects.
type Media struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type Interactive struct {
	Type        string      `json:"type"`
	ButtonReply *ReplyValue `json:"button_reply,omitempty"`
	ListReply   *ReplyValue `json:"list_reply,omitempty"`
}

type ReplyValue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Event returns the first message event and the value it was delivered in.
func (p *WebhookPayload) Event() (*InboundMessage, *Value, bool) {
	if p == nil || len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil, nil, false
	}
	value := &p.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, nil, false
	}
	return &value.Messages[0], value, true
}

// Profile returns the sender's profile, falling back to the message's from field when
// the delivery carries no contacts entry.
func (v *Value) Profile(msg *InboundMessage) (waID, name, picture string) {
	if len(v.Contacts) > 0 && v.Contacts[0].WaID != "" {
		c := v.Contacts[0]
		return c.WaID, c.Profile.Name, c.Profile.Picture
	}
	return msg.From, "", ""
}
