package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

// Postgres is a Store backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Ping implements Store.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *Postgres) Close() error {
	return s.db.Close()
}

// UpsertContact implements ContactRepository.
func (s *Postgres) UpsertContact(ctx context.Context, profile model.ContactProfile, at time.Time) (*model.Contact, error) {
	if profile.WhatsAppID == "" {
		return nil, fmt.Errorf("whatsapp id is required")
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO contacts (id, whatsapp_id, name, avatar_url, last_interaction_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $5, $5)
		ON CONFLICT (whatsapp_id) DO UPDATE SET
			name                = COALESCE(EXCLUDED.name, contacts.name),
			avatar_url          = COALESCE(EXCLUDED.avatar_url, contacts.avatar_url),
			last_interaction_at = EXCLUDED.last_interaction_at,
			updated_at          = EXCLUDED.updated_at
		RETURNING id, whatsapp_id, name, avatar_url, last_interaction_at, created_at, updated_at
	`, newID(), profile.WhatsAppID, profile.Name, profile.AvatarURL, at)

	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert contact: %w", err)
	}
	return c, nil
}

// OpenConversation implements ConversationRepository.
func (s *Postgres) OpenConversation(ctx context.Context, contactID string) (*model.Conversation, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, contact_id, status)
		VALUES ($1, $2, 'open')
		ON CONFLICT (contact_id) WHERE status = 'open' DO NOTHING
	`, newID(), contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	row := s.db.QueryRowContext(ctx, conversationSelect+` WHERE c.contact_id = $1 AND c.status = 'open'`, contactID)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load open conversation: %w", err)
	}
	return conv, nil
}

// GetConversation implements ConversationRepository.
func (s *Postgres) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, conversationSelect+` WHERE c.id = $1`, id)
	return scanConversation(row)
}

// ListConversations implements ConversationRepository.
func (s *Postgres) ListConversations(ctx context.Context, limit, offset int) ([]model.ConversationSummary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM conversations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	if limit <= 0 {
		limit = total
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.contact_id, COALESCE(ct.name, ct.whatsapp_id), COALESCE(ct.avatar_url, ''), c.bot_enabled,
		       lm.kind, lm.body, lm.created_at,
		       (SELECT count(*) FROM messages u WHERE u.conversation_id = c.id AND u.status = 'received')
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		LEFT JOIN LATERAL (
			SELECT m.kind, m.body, m.created_at FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		ORDER BY COALESCE(lm.created_at, c.updated_at) DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var (
			sum    model.ConversationSummary
			kind   sql.NullString
			body   sql.NullString
			lastAt sql.NullTime
		)
		if err := rows.Scan(&sum.ID, &sum.ContactID, &sum.Name, &sum.AvatarURL, &sum.BotEnabled,
			&kind, &body, &lastAt, &sum.UnreadCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if lastAt.Valid {
			at := lastAt.Time
			sum.LastMessageAt = &at
			sum.LastMessage = model.Preview(model.MessageKind(kind.String), body.String)
		}
		out = append(out, sum)
	}
	return out, total, rows.Err()
}

// SetBotEnabled implements ConversationRepository.
func (s *Postgres) SetBotEnabled(ctx context.Context, id string, enabled bool) (*model.Conversation, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET bot_enabled = $2, updated_at = now() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to update bot flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

// SaveBotState implements ConversationRepository.
func (s *Postgres) SaveBotState(ctx context.Context, id string, state model.BotState) error {
	vars := state.Vars
	if vars == nil {
		vars = map[string]string{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("failed to marshal bot state: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET bot_enabled = $2, bot_flow_id = NULLIF($3, ''), bot_node_id = NULLIF($4, ''), bot_state = $5, updated_at = now()
		WHERE id = $1
	`, id, state.Enabled, state.FlowID, state.NodeID, data)
	if err != nil {
		return fmt.Errorf("failed to save bot state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMessage implements MessageRepository. The unique provider_message_id column
// makes repeated deliveries a no-op.
func (s *Postgres) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, bool, error) {
	id := msg.ID
	if id == "" {
		id = newID()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, kind, body, media_url, media_name, status, provider_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider_message_id) DO NOTHING
		RETURNING `+messageColumns,
		id, msg.ConversationID, msg.Sender, msg.Kind, msg.Body, msg.MediaURL, msg.MediaName, msg.Status,
		msg.ProviderMessageID, createdAt)

	stored, err := scanMessage(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, ErrNotFound) || msg.ProviderMessageID == nil {
		return nil, false, fmt.Errorf("failed to insert message: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE provider_message_id = $1`, *msg.ProviderMessageID)
	existing, err := scanMessage(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing message: %w", err)
	}
	return existing, false, nil
}

// ListMessages implements MessageRepository.
func (s *Postgres) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY created_at, id OFFSET $2`
	args := []any{conversationID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// MarkRead implements MessageRepository.
func (s *Postgres) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = 'read' WHERE conversation_id = $1 AND status = 'received'
	`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.RowsAffected()
}

// FirstActiveFlow implements FlowRepository.
func (s *Postgres) FirstActiveFlow(ctx context.Context) (*model.Flow, error) {
	row := s.db.QueryRowContext(ctx, flowSelect+` WHERE is_active ORDER BY created_at, id LIMIT 1`)
	return scanFlow(row)
}

// GetFlow implements FlowRepository.
func (s *Postgres) GetFlow(ctx context.Context, id string) (*model.Flow, error) {
	row := s.db.QueryRowContext(ctx, flowSelect+` WHERE id = $1`, id)
	return scanFlow(row)
}

// ListFlows implements FlowRepository.
func (s *Postgres) ListFlows(ctx context.Context) ([]model.Flow, error) {
	rows, err := s.db.QueryContext(ctx, flowSelect+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var out []model.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// ListNodes implements FlowRepository. Settings are decoded and validated against
// the node kind here.
func (s *Postgres) ListNodes(ctx context.Context, flowID string) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow_id, COALESCE(key, ''), type, COALESCE(body, ''), settings, COALESCE(next_node_id, ''), created_at
		FROM bot_nodes WHERE flow_id = $1 ORDER BY created_at, id
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var out []model.Node
	for rows.Next() {
		var (
			n        model.Node
			kind     string
			settings []byte
		)
		if err := rows.Scan(&n.ID, &n.FlowID, &n.Key, &kind, &n.Body, &settings, &n.NextNodeID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Kind = model.NodeKind(kind)
		n.Settings, err = model.DecodeSettings(n.Kind, settings)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

const conversationSelect = `
	SELECT c.id, c.contact_id, c.status, c.bot_enabled, COALESCE(c.bot_flow_id, ''), COALESCE(c.bot_node_id, ''),
	       c.bot_state, c.created_at, c.updated_at,
	       ct.id, ct.whatsapp_id, ct.name, ct.avatar_url, ct.last_interaction_at, ct.created_at, ct.updated_at
	FROM conversations c
	JOIN contacts ct ON ct.id = c.contact_id`

const messageColumns = `id, conversation_id, sender, kind, body, media_url, media_name, status, provider_message_id, created_at`

const flowSelect = `SELECT id, name, COALESCE(description, ''), is_active, COALESCE(start_node_id, ''), created_at FROM bot_flows`

func scanContact(row scanner) (*model.Contact, error) {
	var (
		c      model.Contact
		name   sql.NullString
		avatar sql.NullString
	)
	if err := row.Scan(&c.ID, &c.WhatsAppID, &name, &avatar, &c.LastInteractionAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	c.Name = name.String
	c.AvatarURL = avatar.String
	return &c, nil
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var (
		conv    model.Conversation
		contact model.Contact
		status  string
		vars    []byte
		name    sql.NullString
		avatar  sql.NullString
	)
	err := row.Scan(&conv.ID, &conv.ContactID, &status, &conv.Bot.Enabled, &conv.Bot.FlowID, &conv.Bot.NodeID,
		&vars, &conv.CreatedAt, &conv.UpdatedAt,
		&contact.ID, &contact.WhatsAppID, &name, &avatar, &contact.LastInteractionAt, &contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	conv.Status = model.ConversationStatus(status)
	conv.Bot.Vars = map[string]string{}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &conv.Bot.Vars); err != nil {
			return nil, fmt.Errorf("failed to decode bot state: %w", err)
		}
	}
	contact.Name = name.String
	contact.AvatarURL = avatar.String
	conv.Contact = &contact
	return &conv, nil
}

func scanMessage(row scanner) (*model.Message, error) {
	var (
		m          model.Message
		sender     string
		kind       string
		status     string
		body       sql.NullString
		mediaURL   sql.NullString
		mediaName  sql.NullString
		providerID sql.NullString
	)
	err := row.Scan(&m.ID, &m.ConversationID, &sender, &kind, &body, &mediaURL, &mediaName, &status, &providerID, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	m.Sender = model.Sender(sender)
	m.Kind = model.MessageKind(kind)
	m.Status = model.MessageStatus(status)
	m.Body = nullString(body)
	m.MediaURL = nullString(mediaURL)
	m.MediaName = nullString(mediaName)
	m.ProviderMessageID = nullString(providerID)
	return &m, nil
}

func scanFlow(row scanner) (*model.Flow, error) {
	var f model.Flow
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &f.Active, &f.StartNodeID, &f.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// SaveFlow implements FlowWriter. The flow row is upserted and its nodes replaced
// in one transaction.
func (s *Postgres) SaveFlow(ctx context.Context, flow model.Flow, nodes []model.Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := flow.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bot_flows (id, name, description, start_node_id, is_active, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name          = EXCLUDED.name,
			description   = EXCLUDED.description,
			start_node_id = EXCLUDED.start_node_id,
			is_active     = EXCLUDED.is_active
	`, flow.ID, flow.Name, flow.Description, flow.StartNodeID, flow.Active, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bot_nodes WHERE flow_id = $1`, flow.ID); err != nil {
		return fmt.Errorf("failed to clear nodes: %w", err)
	}

	for i, n := range nodes {
		settings, err := model.EncodeSettings(n.Settings)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		nodeCreated := n.CreatedAt
		if nodeCreated.IsZero() {
			// Preserve authoring order.
			nodeCreated = createdAt.Add(time.Duration(i) * time.Millisecond)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bot_nodes (id, flow_id, key, type, body, settings, next_node_id, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8)
		`, n.ID, flow.ID, n.Key, string(n.Kind), n.Body, settings, n.NextNodeID, nodeCreated)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}
