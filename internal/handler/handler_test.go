package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/internal/flow"
	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/realtime"
	"github.com/capitalize-ai/messaging-gateway/internal/service"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/internal/whatsapp"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

type stubSender struct {
	mu   sync.Mutex
	to   []string
	err  error
	sent int
}

func (s *stubSender) send(to string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent++
	s.to = append(s.to, to)
	return fmt.Sprintf("wamid.handler.%d", s.sent), nil
}

func (s *stubSender) SendText(_ context.Context, to, _ string) (string, error) {
	return s.send(to)
}

func (s *stubSender) SendButtons(_ context.Context, to, _ string, _ []whatsapp.Button) (string, error) {
	return s.send(to)
}

func (s *stubSender) SendList(_ context.Context, to string, _ whatsapp.ListMessage) (string, error) {
	return s.send(to)
}

type apiFixture struct {
	store  *store.Memory
	sender *stubSender
	router http.Handler
	conv   *model.Conversation
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logger.NewNop()
	mem := store.NewMemory()
	sender := &stubSender{}
	publisher := realtime.NewBroadcaster(log, time.Second)

	contact, err := mem.UpsertContact(context.Background(),
		model.ContactProfile{WhatsAppID: "5491122334455", Name: "Ana"}, time.Now())
	require.NoError(t, err)
	conv, err := mem.OpenConversation(context.Background(), contact.ID)
	require.NoError(t, err)

	require.NoError(t, mem.SaveFlow(context.Background(),
		model.Flow{ID: "main", Name: "Main", Active: true, StartNodeID: "welcome"},
		[]model.Node{{ID: "welcome", FlowID: "main", Kind: model.NodeText, Body: "Hola", Settings: model.TextSettings{}}},
	))

	convs := service.NewConversationService(mem, flow.NewEngine(mem, log), log)
	dispatcher := service.NewDispatcher(sender, mem, publisher, log)
	messages := service.NewMessageService(mem, dispatcher, log)

	ch := NewConversationHandler(convs, messages, log)
	fh := NewFlowHandler(convs, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", ch.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ch.Get)
				r.Get("/messages", ch.Messages)
				r.Post("/messages", ch.Send)
				r.Post("/read", ch.MarkRead)
				r.Put("/bot", ch.UpdateBot)
				r.Patch("/bot", ch.UpdateBot)
			})
		})
		r.Get("/flows", fh.List)
		r.Get("/flows/{id}/nodes", fh.Nodes)
	})

	return &apiFixture{store: mem, sender: sender, router: r, conv: conv}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}
