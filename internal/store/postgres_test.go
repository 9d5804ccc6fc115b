package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

// openTestPostgres connects to TEST_DATABASE_URL and applies migrations.
func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, Migrate(dsn))

	s, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgres_InboundLifecycle(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()
	waID := "549" + uuid.NewString()[:8]

	c, err := s.UpsertContact(ctx, model.ContactProfile{WhatsAppID: waID, Name: "Ana"}, time.Now())
	require.NoError(t, err)

	again, err := s.UpsertContact(ctx, model.ContactProfile{WhatsAppID: waID}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, "Ana", again.Name)

	conv, err := s.OpenConversation(ctx, c.ID)
	require.NoError(t, err)
	conv2, err := s.OpenConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, conv2.ID)
	assert.True(t, conv.Bot.Enabled)

	pid := "wamid." + uuid.NewString()
	msg := &model.Message{
		ConversationID: conv.ID, Sender: model.SenderContact, Kind: model.KindText,
		Body: model.StringPtr("hola"), Status: model.StatusReceived, ProviderMessageID: &pid,
	}
	first, created, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)

	dup, created, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	state := model.BotState{Enabled: true, FlowID: "f", NodeID: "n", Vars: map[string]string{"nombre": "Ana"}}
	require.NoError(t, s.SaveBotState(ctx, conv.ID, state))
	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, state.Equal(got.Bot))

	n, err := s.MarkRead(ctx, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPostgres_SaveFlowRoundTrip(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()
	flowID := "flow-" + uuid.NewString()

	nodes := []model.Node{
		{ID: flowID + "-menu", Kind: model.NodeButtons, Body: "Elegí", Settings: model.ButtonsSettings{
			Buttons: []model.Option{{ID: "a", Title: "A", NodeRef: model.NodeRef{NodeID: flowID + "-ask"}}},
		}},
		{ID: flowID + "-ask", Kind: model.NodeInput, Body: "Tu nombre", Settings: &model.InputSettings{
			Variable: "nombre", ValidationRegex: "^[a-z]+$",
		}},
	}
	require.NoError(t, s.SaveFlow(ctx, model.Flow{ID: flowID, Name: "Test", StartNodeID: nodes[0].ID}, nodes))

	got, err := s.ListNodes(ctx, flowID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, flowID+"-ask", got[0].Options()[0].NodeID)

	input, ok := got[1].Settings.(*model.InputSettings)
	require.True(t, ok)
	assert.False(t, input.Accepts("ANA"))
	assert.True(t, input.Accepts("ana"))
}
