package whatsapp

import (
	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

// Draft is a provider message mapped onto the gateway's canonical message fields.
type Draft struct {
	Kind              model.MessageKind
	Body              string
	MediaURL          string
	MediaName         string
	Mime              string
	ProviderMessageID string

	// InteractiveReplyID is the selected option id of a button or list reply. It is
	// consumed by the flow engine and never stored.
	InteractiveReplyID string
}

// Normalize maps a webhook payload onto a Draft. ok is false when the payload carries
// no message event.
func Normalize(p *WebhookPayload) (draft Draft, msg *InboundMessage, value *Value, ok bool) {
	msg, value, ok = p.Event()
	if !ok {
		return Draft{}, nil, nil, false
	}
	return NormalizeMessage(msg), msg, value, true
}

// NormalizeMessage maps one inbound message event onto a Draft.
func NormalizeMessage(msg *InboundMessage) Draft {
	d := Draft{
		Kind:              model.KindText,
		ProviderMessageID: msg.ID,
	}

	kind := msg.Type
	if kind == "" {
		kind = "text"
	}

	switch kind {
	case "text":
		if msg.Text != nil {
			d.Body = msg.Text.Body
		}
	case "interactive":
		if reply := msg.Interactive.reply(); reply != nil {
			d.Body = reply.Title
			d.InteractiveReplyID = reply.ID
		}
	case "image":
		d.Kind = model.KindImage
		d.fromMedia(msg.Image, false)
	case "video":
		d.Kind = model.KindVideo
		d.fromMedia(msg.Video, false)
	case "audio":
		d.Kind = model.KindAudio
		d.fromMedia(msg.Audio, false)
		d.Body = "[Audio]"
	case "document":
		d.Kind = model.KindDocument
		d.fromMedia(msg.Document, true)
		switch {
		case msg.Document != nil && msg.Document.Caption != "":
			d.Body = msg.Document.Caption
		case msg.Document != nil && msg.Document.Filename != "":
			d.Body = msg.Document.Filename
		default:
			d.Body = "[Documento]"
		}
	case "sticker":
		d.Kind = model.KindImage
		d.fromMedia(msg.Sticker, false)
		d.Body = "[Sticker]"
	default:
		d.Body = "[Mensaje tipo " + kind + "]"
	}
	return d
}

func (d *Draft) fromMedia(m *Media, preferFilename bool) {
	if m == nil {
		return
	}
	d.Body = m.Caption
	d.MediaURL = m.URL
	d.MediaName = m.ID
	if preferFilename && m.Filename != "" {
		d.MediaName = m.Filename
	}
	d.Mime = m.MimeType
}

func (i *Interactive) reply() *ReplyValue {
	if i == nil {
		return nil
	}
	switch i.Type {
	case "button_reply":
		return i.ButtonReply
	case "list_reply":
		return i.ListReply
	}
	return nil
}
