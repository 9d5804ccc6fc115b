package whatsapp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

func payloadWith(t *testing.T, message string) *WebhookPayload {
	t.Helper()
	raw := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"contacts":[{"wa_id":"5491122334455","profile":{"name":"Ana"}}],
		"messages":[` + message + `]}}]}]}`
	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func TestNormalize_Kinds(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Draft
	}{
		{
			name:    "text",
			message: `{"id":"wamid.1","from":"5491122334455","type":"text","text":{"body":"hola"}}`,
			want:    Draft{Kind: model.KindText, Body: "hola", ProviderMessageID: "wamid.1"},
		},
		{
			name:    "image with caption",
			message: `{"id":"wamid.2","type":"image","image":{"id":"img1","url":"https://cdn/x","mime_type":"image/jpeg","caption":"mirá"}}`,
			want: Draft{Kind: model.KindImage, Body: "mirá", MediaURL: "https://cdn/x", MediaName: "img1",
				Mime: "image/jpeg", ProviderMessageID: "wamid.2"},
		},
		{
			name:    "video without caption",
			message: `{"id":"wamid.3","type":"video","video":{"id":"vid1","url":"https://cdn/v","mime_type":"video/mp4"}}`,
			want: Draft{Kind: model.KindVideo, MediaURL: "https://cdn/v", MediaName: "vid1",
				Mime: "video/mp4", ProviderMessageID: "wamid.3"},
		},
		{
			name:    "audio uses placeholder body",
			message: `{"id":"wamid.4","type":"audio","audio":{"id":"aud1","url":"https://cdn/a"}}`,
			want: Draft{Kind: model.KindAudio, Body: "[Audio]", MediaURL: "https://cdn/a", MediaName: "aud1",
				ProviderMessageID: "wamid.4"},
		},
		{
			name:    "document prefers caption",
			message: `{"id":"wamid.5","type":"document","document":{"id":"doc1","url":"https://cdn/d","filename":"cv.pdf","caption":"mi cv","mime_type":"application/pdf"}}`,
			want: Draft{Kind: model.KindDocument, Body: "mi cv", MediaURL: "https://cdn/d", MediaName: "cv.pdf",
				Mime: "application/pdf", ProviderMessageID: "wamid.5"},
		},
		{
			name:    "document falls back to filename",
			message: `{"id":"wamid.6","type":"document","document":{"id":"doc2","url":"https://cdn/d","filename":"cv.pdf"}}`,
			want: Draft{Kind: model.KindDocument, Body: "cv.pdf", MediaURL: "https://cdn/d", MediaName: "cv.pdf",
				ProviderMessageID: "wamid.6"},
		},
		{
			name:    "document falls back to placeholder and id",
			message: `{"id":"wamid.7","type":"document","document":{"id":"doc3","url":"https://cdn/d"}}`,
			want: Draft{Kind: model.KindDocument, Body: "[Documento]", MediaURL: "https://cdn/d", MediaName: "doc3",
				ProviderMessageID: "wamid.7"},
		},
		{
			name:    "sticker is stored as image",
			message: `{"id":"wamid.8","type":"sticker","sticker":{"id":"stk1","url":"https://cdn/s","mime_type":"image/webp"}}`,
			want: Draft{Kind: model.KindImage, Body: "[Sticker]", MediaURL: "https://cdn/s", MediaName: "stk1",
				Mime: "image/webp", ProviderMessageID: "wamid.8"},
		},
		{
			name:    "button reply",
			message: `{"id":"wamid.9","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"opt_1","title":"Turnos"}}}`,
			want:    Draft{Kind: model.KindText, Body: "Turnos", ProviderMessageID: "wamid.9", InteractiveReplyID: "opt_1"},
		},
		{
			name:    "list reply",
			message: `{"id":"wamid.10","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"row_2","title":"Cardiología"}}}`,
			want:    Draft{Kind: model.KindText, Body: "Cardiología", ProviderMessageID: "wamid.10", InteractiveReplyID: "row_2"},
		},
		{
			name:    "unknown kind degrades to placeholder",
			message: `{"id":"wamid.11","type":"location","location":{"latitude":1}}`,
			want:    Draft{Kind: model.KindText, Body: "[Mensaje tipo location]", ProviderMessageID: "wamid.11"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, msg, value, ok := Normalize(payloadWith(t, tt.message))
			require.True(t, ok)
			require.NotNil(t, msg)
			require.NotNil(t, value)
			assert.Equal(t, tt.want, draft)
		})
	}
}

func TestNormalize_NoMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty object", `{}`},
		{"no changes", `{"entry":[{"id":"1"}]}`},
		{"status update", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"read"}]}}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p WebhookPayload
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &p))
			_, _, _, ok := Normalize(&p)
			assert.False(t, ok)
		})
	}

	_, _, _, ok := Normalize(nil)
	assert.False(t, ok)
}

func TestValueProfile(t *testing.T) {
	p := payloadWith(t, `{"id":"wamid.1","from":"5491122334455","type":"text","text":{"body":"hola"}}`)
	msg, value, ok := p.Event()
	require.True(t, ok)

	waID, name, _ := value.Profile(msg)
	assert.Equal(t, "5491122334455", waID)
	assert.Equal(t, "Ana", name)

	value.Contacts = nil
	waID, name, picture := value.Profile(msg)
	assert.Equal(t, "5491122334455", waID)
	assert.Empty(t, name)
	assert.Empty(t, picture)
}
