package repository

import (
	"context"
	"errors"
	"time"

	"finbot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ChatRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewChatRepository(db *pgxpool.Pool, logger *zap.Logger) *ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ChatRepository) CreateSession(ctx context.Context, name string) (*models.ChatSession, error) {
	now := time.Now()
	session := &models.ChatSession{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := squirrel.Insert("chat_sessions").
		Columns("id", "name", "created_at", "updated_at").
		Values(session.ID, session.Name, session.CreatedAt, session.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrapStoreErr("create session", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return nil, wrapStoreErr("create session", err)
	}
	return session, nil
}

// GetSession returns (nil, nil) when the session does not exist.
func (r *ChatRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	query := squirrel.Select("id", "name", "created_at", "updated_at").
		From("chat_sessions").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrapStoreErr("get session", err)
	}

	var session models.ChatSession
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&session.ID, &session.Name, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStoreErr("get session", err)
	}
	return &session, nil
}

// AppendMessage assigns the next message order inside a transaction so
// that order stays strictly increasing per session.
func (r *ChatRepository) AppendMessage(ctx context.Context, sessionID uuid.UUID, role models.MessageRole, content string) (*models.ChatMessage, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, wrapStoreErr("append message begin", err)
	}
	defer tx.Rollback(ctx)

	var nextOrder int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(message_order), 0) + 1 FROM chat_messages WHERE session_id = $1`,
		sessionID,
	).Scan(&nextOrder)
	if err != nil {
		return nil, wrapStoreErr("append message order", err)
	}

	msg := &models.ChatMessage{
		ID:           uuid.New(),
		SessionID:    sessionID,
		Role:         role,
		Content:      content,
		MessageOrder: nextOrder,
		CreatedAt:    time.Now(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, message_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.MessageOrder, msg.CreatedAt,
	)
	if err != nil {
		return nil, wrapStoreErr("append message", err)
	}

	_, err = tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, sessionID)
	if err != nil {
		return nil, wrapStoreErr("append message touch session", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapStoreErr("append message commit", err)
	}
	return msg, nil
}

// ListMessages returns the most recent messages in session order. A
// limit of 0 returns the full transcript. The tail is taken in SQL so
// long sessions never ship their whole transcript over the wire.
func (r *ChatRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	query := squirrel.Select("id", "session_id", "role", "content", "message_order", "created_at").
		From("chat_messages").
		Where(squirrel.Eq{"session_id": sessionID}).
		PlaceholderFormat(squirrel.Dollar)

	if limit > 0 {
		query = query.OrderBy("message_order DESC").Limit(uint64(limit))
	} else {
		query = query.OrderBy("message_order ASC")
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrapStoreErr("list messages", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapStoreErr("list messages", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.MessageOrder, &msg.CreatedAt,
		); err != nil {
			return nil, wrapStoreErr("list messages scan", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("list messages rows", err)
	}

	if limit > 0 {
		// fetched newest-first, flip back to session order
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}
