package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/umar/talkwave/internal/models"
)

const roomWithCountColumns = `r.id, r.name, r.description, r.is_private, r.created_by, r.created_at,
	(SELECT COUNT(*) FROM room_members c WHERE c.room_id = r.id)`

// CreateRoom stores the room and makes its creator an admin member in one transaction.
func (s *Store) CreateRoom(ctx context.Context, name, description string, isPrivate bool, createdBy int64) (*models.ChatRoom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is empty", ErrInvalid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := now()
	var r models.ChatRoom
	err = tx.QueryRowContext(ctx,
		`INSERT INTO chat_rooms (name, description, is_private, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, description, is_private, created_by, created_at`,
		name, description, isPrivate, createdBy, createdAt,
	).Scan(&r.ID, &r.Name, &r.Description, &r.IsPrivate, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: creator %d", ErrNotFound, createdBy)
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_members (user_id, room_id, joined_at, role) VALUES ($1, $2, $3, $4)`,
		createdBy, r.ID, createdAt, string(models.RoleAdmin),
	); err != nil {
		return nil, fmt.Errorf("failed to add room creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit room: %w", err)
	}
	return &r, nil
}

func (s *Store) GetRoom(ctx context.Context, id int64) (*models.ChatRoom, error) {
	var r models.ChatRoom
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_private, created_by, created_at FROM chat_rooms WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Name, &r.Description, &r.IsPrivate, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &r, nil
}

func (s *Store) ListRoomsForUser(ctx context.Context, userID int64) ([]models.RoomWithCount, error) {
	return s.listRooms(ctx,
		`SELECT `+roomWithCountColumns+`
		 FROM chat_rooms r JOIN room_members rm ON rm.room_id = r.id
		 WHERE rm.user_id = $1
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID,
	)
}

func (s *Store) ListPublicRooms(ctx context.Context) ([]models.RoomWithCount, error) {
	return s.listRooms(ctx,
		`SELECT `+roomWithCountColumns+`
		 FROM chat_rooms r
		 WHERE r.is_private = $1
		 ORDER BY r.created_at DESC, r.id DESC`,
		false,
	)
}

func (s *Store) listRooms(ctx context.Context, query string, args ...any) ([]models.RoomWithCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []models.RoomWithCount{}
	for rows.Next() {
		var r models.RoomWithCount
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.IsPrivate, &r.CreatedBy, &r.CreatedAt,
			&r.MemberCount); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// DeleteRoom removes the room; its messages and memberships go with it.
func (s *Store) DeleteRoom(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
