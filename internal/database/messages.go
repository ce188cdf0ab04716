package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/umar/talkwave/internal/models"
)

// CreateMessage commits the message before returning it, so callers may
// broadcast the result without risking a later rollback.
func (s *Store) CreateMessage(ctx context.Context, roomID, senderID int64, content string, msgType models.MessageType) (*models.MessageWithSender, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", ErrInvalid)
	}
	if msgType == "" {
		msgType = models.MessageText
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("%w: message type %q", ErrInvalid, msgType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var m models.MessageWithSender
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (content, sender_id, room_id, sent_at, message_type)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, content, sender_id, room_id, sent_at, message_type`,
		content, senderID, roomID, now(), string(msgType),
	).Scan(&m.ID, &m.Content, &m.SenderID, &m.RoomID, &m.Timestamp, &m.MessageType)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: room %d or sender %d", ErrNotFound, roomID, senderID)
		}
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = $1`, senderID,
	).Scan(&m.SenderUsername); err != nil {
		return nil, fmt.Errorf("failed to load message sender: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return &m, nil
}

// ListRecentMessages returns at most limit of the newest messages, oldest first.
func (s *Store) ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.MessageWithSender, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.sender_id, m.room_id, m.sent_at, m.message_type, u.username
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.sent_at DESC, m.id DESC LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []models.MessageWithSender{}
	for rows.Next() {
		var m models.MessageWithSender
		if err := rows.Scan(&m.ID, &m.Content, &m.SenderID, &m.RoomID, &m.Timestamp, &m.MessageType,
			&m.SenderUsername); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}
