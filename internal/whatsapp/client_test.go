package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path string
	auth string
	body map[string]any
}

func newProviderServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got.body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:       baseURL,
		APIVersion:    "v22.0",
		PhoneNumberID: "12345",
		AccessToken:   "secret",
	})
}

func TestClient_SendText(t *testing.T) {
	srv, got := newProviderServer(t, http.StatusOK, `{"messages":[{"id":"wamid.out"}]}`)

	id, err := testClient(srv.URL).SendText(context.Background(), "5491122334455", "hola")
	require.NoError(t, err)
	assert.Equal(t, "wamid.out", id)

	assert.Equal(t, "/v22.0/12345/messages", got.path)
	assert.Equal(t, "Bearer secret", got.auth)
	assert.Equal(t, "whatsapp", got.body["messaging_product"])
	assert.Equal(t, "541122334455", got.body["to"])
	assert.Equal(t, "text", got.body["type"])
	assert.Equal(t, map[string]any{"body": "hola"}, got.body["text"])
}

func TestClient_SendButtons(t *testing.T) {
	srv, got := newProviderServer(t, http.StatusOK, `{"messages":[{"id":"wamid.btn"}]}`)

	buttons := []Button{
		{ID: "a", Title: "Uno"},
		{ID: "b", Title: "Un título demasiado largo para WhatsApp"},
		{ID: "c", Title: "Tres"},
		{ID: "d", Title: "Cuatro"},
	}
	id, err := testClient(srv.URL).SendButtons(context.Background(), "100", "Elegí", buttons)
	require.NoError(t, err)
	assert.Equal(t, "wamid.btn", id)

	interactive := got.body["interactive"].(map[string]any)
	assert.Equal(t, "button", interactive["type"])
	assert.Equal(t, map[string]any{"text": "Elegí"}, interactive["body"])

	sent := interactive["action"].(map[string]any)["buttons"].([]any)
	require.Len(t, sent, MaxButtons)
	second := sent[1].(map[string]any)
	assert.Equal(t, "reply", second["type"])
	reply := second["reply"].(map[string]any)
	assert.Equal(t, "b", reply["id"])
	assert.Equal(t, maxButtonTitle, len([]rune(reply["title"].(string))))
}

func TestClient_SendList(t *testing.T) {
	srv, got := newProviderServer(t, http.StatusOK, `{"messages":[{"id":"wamid.list"}]}`)

	rows := make([]ListRow, 0, 12)
	for i := 0; i < 12; i++ {
		rows = append(rows, ListRow{ID: strings.Repeat("r", i+1), Title: "Fila", Description: "desc"})
	}
	_, err := testClient(srv.URL).SendList(context.Background(), "100", ListMessage{
		Body:         "Especialidades",
		ButtonText:   "Ver opciones",
		SectionTitle: "Opciones",
		Rows:         rows,
	})
	require.NoError(t, err)

	interactive := got.body["interactive"].(map[string]any)
	assert.Equal(t, "list", interactive["type"])
	action := interactive["action"].(map[string]any)
	assert.Equal(t, "Ver opciones", action["button"])
	sections := action["sections"].([]any)
	require.Len(t, sections, 1)
	section := sections[0].(map[string]any)
	assert.Equal(t, "Opciones", section["title"])
	assert.Len(t, section["rows"].([]any), MaxListRows)
}

func TestClient_SendFailure(t *testing.T) {
	srv, _ := newProviderServer(t, http.StatusBadRequest, `{"error":{"message":"invalid recipient"}}`)

	_, err := testClient(srv.URL).SendText(context.Background(), "100", "hola")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestClient_SendWithoutMessageID(t *testing.T) {
	for name, response := range map[string]string{
		"unparseable": `<html>ok</html>`,
		"no messages": `{"messages":[]}`,
		"empty id":    `{"messages":[{"id":""}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := newProviderServer(t, http.StatusOK, response)

			id, err := testClient(srv.URL).SendText(context.Background(), "100", "hola")
			assert.Empty(t, id)
			assert.ErrorIs(t, err, ErrMissingMessageID)
			assert.NotErrorIs(t, err, ErrSendFailed)
		})
	}
}

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("imagebytes"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(Config{AccessToken: "secret", MaxMediaBytes: 32})

	data, err := client.Download(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, []byte("imagebytes"), data)

	_, err = client.Download(context.Background(), srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrDownloadFailed)

	_, err = client.Download(context.Background(), srv.URL+"/big")
	assert.ErrorIs(t, err, ErrMediaTooLarge)
}

func TestFormatPhoneNumber(t *testing.T) {
	assert.Equal(t, "541122334455", FormatPhoneNumber("5491122334455"))
	assert.Equal(t, "14155550100", FormatPhoneNumber("14155550100"))
	assert.Equal(t, "", FormatPhoneNumber(""))
}
