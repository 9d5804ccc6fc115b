package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

func seedConversation(t *testing.T, s Store) *model.Conversation {
	t.Helper()
	ctx := context.Background()
	c, err := s.UpsertContact(ctx, model.ContactProfile{WhatsAppID: "5491122334455", Name: "Ana"}, time.Now())
	require.NoError(t, err)
	conv, err := s.OpenConversation(ctx, c.ID)
	require.NoError(t, err)
	return conv
}

func TestMemory_UpsertContactKeepsStoredFields(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	first, err := s.UpsertContact(ctx, model.ContactProfile{WhatsAppID: "549111", Name: "Ana", AvatarURL: "https://a/p.jpg"}, t0)
	require.NoError(t, err)

	second, err := s.UpsertContact(ctx, model.ContactProfile{WhatsAppID: "549111"}, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ana", second.Name)
	assert.Equal(t, "https://a/p.jpg", second.AvatarURL)
	assert.Equal(t, t0.Add(time.Hour), second.LastInteractionAt)

	third, err := s.UpsertContact(ctx, model.ContactProfile{WhatsAppID: "549111", Name: "Ana María"}, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Ana María", third.Name)
}

func TestMemory_UpsertContactRequiresID(t *testing.T) {
	_, err := NewMemory().UpsertContact(context.Background(), model.ContactProfile{Name: "x"}, time.Now())
	assert.Error(t, err)
}

func TestMemory_OneOpenConversationPerContact(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	c, err := s.UpsertContact(ctx, model.ContactProfile{WhatsAppID: "549111"}, time.Now())
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := s.OpenConversation(ctx, c.ID)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	conv, err := s.GetConversation(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, conv.Bot.Enabled)
	assert.False(t, conv.Bot.HasPointer())
	require.NotNil(t, conv.Contact)
	assert.Equal(t, "549111", conv.Contact.WhatsAppID)
}

func TestMemory_OpenConversationUnknownContact(t *testing.T) {
	_, err := NewMemory().OpenConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_CreateMessageIsIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv := seedConversation(t, s)

	msg := &model.Message{
		ConversationID:    conv.ID,
		Sender:            model.SenderContact,
		Kind:              model.KindText,
		Body:              model.StringPtr("hola"),
		Status:            model.StatusReceived,
		ProviderMessageID: model.StringPtr("wamid.1"),
	}

	stored, created, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, stored.ID)

	again, created, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)

	msgs, err := s.ListMessages(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMemory_MessagesWithoutProviderIDAreNotDeduplicated(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv := seedConversation(t, s)

	for i := 0; i < 2; i++ {
		_, created, err := s.CreateMessage(ctx, &model.Message{
			ConversationID: conv.ID, Sender: model.SenderOperator, Kind: model.KindText,
			Body: model.StringPtr("hola"), Status: model.StatusSent,
		})
		require.NoError(t, err)
		assert.True(t, created)
	}

	msgs, err := s.ListMessages(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestMemory_ListConversationsAndMarkRead(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv := seedConversation(t, s)

	for _, body := range []string{"uno", "dos"} {
		_, _, err := s.CreateMessage(ctx, &model.Message{
			ConversationID: conv.ID, Sender: model.SenderContact, Kind: model.KindText,
			Body: model.StringPtr(body), Status: model.StatusReceived,
		})
		require.NoError(t, err)
	}

	list, total, err := s.ListConversations(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Ana", list[0].Name)
	assert.Equal(t, "dos", list[0].LastMessage)
	assert.Equal(t, 2, list[0].UnreadCount)

	n, err := s.MarkRead(ctx, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, _, err = s.ListConversations(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount)
}

func TestMemory_SaveBotStateDoesNotAlias(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv := seedConversation(t, s)

	state := model.BotState{Enabled: true, FlowID: "f1", NodeID: "n1", Vars: map[string]string{"nombre": "Ana"}}
	require.NoError(t, s.SaveBotState(ctx, conv.ID, state))
	state.Vars["nombre"] = "mutated"

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Bot.Vars["nombre"])
	assert.Equal(t, "n1", got.Bot.NodeID)

	assert.ErrorIs(t, s.SaveBotState(ctx, "missing", state), ErrNotFound)
}

func TestMemory_Flows(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.FirstActiveFlow(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveFlow(ctx, model.Flow{ID: "draft", Name: "Draft"}, nil))
	require.NoError(t, s.SaveFlow(ctx, model.Flow{ID: "main", Name: "Main", Active: true, StartNodeID: "n1"}, []model.Node{
		{ID: "n1", FlowID: "main", Kind: model.NodeText, Body: "Hola", Settings: model.TextSettings{}},
	}))

	f, err := s.FirstActiveFlow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", f.ID)

	flows, err := s.ListFlows(ctx)
	require.NoError(t, err)
	assert.Len(t, flows, 2)

	nodes, err := s.ListNodes(ctx, "main")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	_, err = s.ListNodes(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, paginate(items, 0, 0))
	assert.Equal(t, []int{3, 4}, paginate(items, 2, 2))
	assert.Equal(t, []int{5}, paginate(items, 10, 4))
	assert.Empty(t, paginate(items, 2, 10))
}
