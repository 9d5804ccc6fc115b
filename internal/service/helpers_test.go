package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/internal/flow"
	"github.com/capitalize-ai/messaging-gateway/internal/media"
	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/internal/whatsapp"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

type sentMessage struct {
	Type    string
	To      string
	Body    string
	Buttons []whatsapp.Button
	List    whatsapp.ListMessage
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) record(m sentMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return fmt.Sprintf("wamid.out.%d", len(f.sent)), nil
}

func (f *fakeSender) SendText(_ context.Context, to, body string) (string, error) {
	return f.record(sentMessage{Type: "text", To: to, Body: body})
}

func (f *fakeSender) SendButtons(_ context.Context, to, body string, buttons []whatsapp.Button) (string, error) {
	return f.record(sentMessage{Type: "button", To: to, Body: body, Buttons: buttons})
}

func (f *fakeSender) SendList(_ context.Context, to string, list whatsapp.ListMessage) (string, error) {
	return f.record(sentMessage{Type: "list", To: to, Body: list.Body, List: list})
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type recordingPublisher struct {
	mu        sync.Mutex
	summaries []model.SummaryEvent
	events    []model.MessageEvent
}

func (p *recordingPublisher) PublishSummary(_ context.Context, ev model.SummaryEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, ev)
}

func (p *recordingPublisher) PublishMessage(_ context.Context, ev model.MessageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type stubFetcher struct {
	url string
	err error
	got []media.Attachment
}

func (f *stubFetcher) Fetch(_ context.Context, att media.Attachment) (string, error) {
	f.got = append(f.got, att)
	return f.url, f.err
}

type panickingRunner struct{}

func (panickingRunner) Handle(context.Context, string, flow.Input) (*flow.Turn, error) {
	panic("boom")
}

type failingRunner struct{}

func (failingRunner) Handle(context.Context, string, flow.Input) (*flow.Turn, error) {
	return nil, errors.New("engine down")
}

type fixture struct {
	store      *store.Memory
	sender     *fakeSender
	publisher  *recordingPublisher
	fetcher    *stubFetcher
	dispatcher *Dispatcher
	inbound    *InboundService
	messages   *MessageService
	convs      *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveFlow(context.Background(),
		model.Flow{ID: "main", Name: "Main", Active: true, StartNodeID: "welcome"}, supportFlow()))

	f := &fixture{
		store:     mem,
		sender:    &fakeSender{},
		publisher: &recordingPublisher{},
		fetcher:   &stubFetcher{url: "/storage/whatsapp/x/image_img1.jpeg"},
	}
	engine := flow.NewEngine(mem, log)
	f.dispatcher = NewDispatcher(f.sender, mem, f.publisher, log)
	f.inbound = NewInboundService(NewResolver(mem, mem), mem, f.fetcher, f.publisher,
		engine, f.dispatcher, log)
	f.messages = NewMessageService(mem, f.dispatcher, log)
	f.convs = NewConversationService(mem, engine, log)
	return f
}

func supportFlow() []model.Node {
	return []model.Node{
		{ID: "welcome", Kind: model.NodeText, Body: "Hola! Soy el bot.", NextNodeID: "menu"},
		{ID: "menu", Key: flow.MenuKey, Kind: model.NodeButtons, Body: "Elegí una opción", Settings: model.ButtonsSettings{
			Buttons: []model.Option{
				{ID: "opt_1", Title: "Consultar DNI", NodeRef: model.NodeRef{NodeID: "ask_dni"}},
				{ID: "opt_3", Title: "Hablar con alguien", NodeRef: model.NodeRef{NodeID: "agent"}},
				{ID: "opt_4", Title: "Sectores", NodeRef: model.NodeRef{NodeID: "sectors"}},
			},
		}},
		{ID: "ask_dni", Kind: model.NodeInput, Body: "Ingresá tu DNI", Settings: &model.InputSettings{
			Variable: "dni", ValidationRegex: "^[0-9]{4}$", ErrorMessage: "DNI inválido", NodeRef: model.NodeRef{NodeID: "confirm"},
		}},
		{ID: "confirm", Kind: model.NodeText, Body: "Tu DNI es {dni}"},
		{ID: "agent", Kind: model.NodeHandoff, Body: "Te derivamos con un agente"},
		{ID: "sectors", Kind: model.NodeList, Body: "Elegí un sector", Settings: model.ListSettings{
			Rows: []model.Option{{ID: "ventas", Title: "Ventas", Description: "Consultas comerciales", NodeRef: model.NodeRef{NodeID: "agent"}}},
		}},
		{ID: "empty_menu", Kind: model.NodeButtons, Body: "Sin opciones", Settings: model.ButtonsSettings{}},
	}
}

func webhook(t *testing.T, message string) *whatsapp.WebhookPayload {
	t.Helper()
	raw := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"contacts":[{"wa_id":"5491122334455","profile":{"name":"Ana"}}],
		"messages":[` + message + `]}}]}]}`
	var p whatsapp.WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func textMessage(id, body string) string {
	return `{"id":"` + id + `","from":"5491122334455","type":"text","text":{"body":"` + body + `"}}`
}

func buttonReply(id, replyID, title string) string {
	return `{"id":"` + id + `","from":"5491122334455","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"` +
		replyID + `","title":"` + title + `"}}}`
}
