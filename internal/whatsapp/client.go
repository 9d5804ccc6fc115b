package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
)

const (
	// MaxButtons is the most reply buttons an interactive message may carry.
	MaxButtons = 3
	// MaxListRows is the most rows a list message may carry.
	MaxListRows = 10

	maxButtonTitle    = 20
	maxRowTitle       = 24
	maxRowDescription = 72
)

var (
	// ErrSendFailed indicates the provider rejected an outbound message.
	ErrSendFailed = errors.New("whatsapp send failed")
	// ErrDownloadFailed indicates a media download did not succeed.
	ErrDownloadFailed = errors.New("whatsapp media download failed")
	// ErrMissingMessageID indicates the provider accepted a message but its response
	// carried no readable message id.
	ErrMissingMessageID = errors.New("whatsapp send accepted without message id")
	// ErrMediaTooLarge indicates a media payload exceeded the configured limit.
	ErrMediaTooLarge = errors.New("whatsapp media too large")
)

// Config holds provider API configuration.
type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
	MaxMediaBytes int64
}

// Client talks to the WhatsApp Cloud API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a provider client. Every request is bounded by cfg.Timeout.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v22.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = 100 * 1024 * 1024
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Button is a reply button of an interactive message.
type Button struct {
	ID    string
	Title string
}

// ListRow is a row of a list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListMessage is an interactive list.
type ListMessage struct {
	Body         string
	ButtonText   string
	SectionTitle string
	Rows         []ListRow
}

type outboundMessage struct {
	MessagingProduct string               `json:"messaging_product"`
	RecipientType    string               `json:"recipient_type"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *outboundText        `json:"text,omitempty"`
	Interactive      *outboundInteractive `json:"interactive,omitempty"`
}

type outboundText struct {
	Body string `json:"body"`
}

type outboundInteractive struct {
	Type   string           `json:"type"`
	Body   outboundBodyText `json:"body"`
	Action outboundAction   `json:"action"`
}

type outboundBodyText struct {
	Text string `json:"text"`
}

type outboundAction struct {
	Button   string            `json:"button,omitempty"`
	Buttons  []outboundButton  `json:"buttons,omitempty"`
	Sections []outboundSection `json:"sections,omitempty"`
}

type outboundButton struct {
	Type  string        `json:"type"`
	Reply outboundReply `json:"reply"`
}

type outboundReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type outboundSection struct {
	Title string        `json:"title"`
	Rows  []outboundRow `json:"rows"`
}

type outboundRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.send(ctx, &outboundMessage{
		To:   to,
		Type: "text",
		Text: &outboundText{Body: body},
	})
}

// SendButtons sends a reply-button menu. Buttons beyond MaxButtons are dropped.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) (string, error) {
	if len(buttons) > MaxButtons {
		buttons = buttons[:MaxButtons]
	}
	out := make([]outboundButton, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, outboundButton{
			Type:  "reply",
			Reply: outboundReply{ID: b.ID, Title: truncate(b.Title, maxButtonTitle)},
		})
	}
	return c.send(ctx, &outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &outboundInteractive{
			Type:   "button",
			Body:   outboundBodyText{Text: body},
			Action: outboundAction{Buttons: out},
		},
	})
}

// SendList sends a single-section list menu. Rows beyond MaxListRows are dropped.
func (c *Client) SendList(ctx context.Context, to string, list ListMessage) (string, error) {
	rows := list.Rows
	if len(rows) > MaxListRows {
		rows = rows[:MaxListRows]
	}
	out := make([]outboundRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, outboundRow{
			ID:          r.ID,
			Title:       truncate(r.Title, maxRowTitle),
			Description: truncate(r.Description, maxRowDescription),
		})
	}
	return c.send(ctx, &outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &outboundInteractive{
			Type: "list",
			Body: outboundBodyText{Text: list.Body},
			Action: outboundAction{
				Button:   list.ButtonText,
				Sections: []outboundSection{{Title: list.SectionTitle, Rows: out}},
			},
		},
	})
}

// Download fetches a media asset with the access token and returns its bytes.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %s", ErrDownloadFailed, resp.Status)
	}

	limited := &io.LimitedReader{R: resp.Body, N: c.cfg.MaxMediaBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if int64(len(data)) > c.cfg.MaxMediaBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrMediaTooLarge, c.cfg.MaxMediaBytes)
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, msg *outboundMessage) (id string, err error) {
	payloadType := msg.Type
	if msg.Interactive != nil {
		payloadType = msg.Interactive.Type
	}
	defer func() {
		if errors.Is(err, ErrMissingMessageID) {
			metrics.RecordSend(payloadType, nil)
			return
		}
		metrics.RecordSend(payloadType, err)
	}()

	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"
	msg.To = FormatPhoneNumber(msg.To)

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.APIVersion, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s body=%s", ErrSendFailed, resp.Status, strings.TrimSpace(string(respBody)))
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingMessageID, err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", fmt.Errorf("%w: body=%s", ErrMissingMessageID, strings.TrimSpace(string(respBody)))
	}
	return parsed.Messages[0].ID, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
