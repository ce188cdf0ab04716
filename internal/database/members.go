package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/umar/talkwave/internal/models"
)

// AddRoomMember fails with ErrDuplicate when the user already belongs to the room.
func (s *Store) AddRoomMember(ctx context.Context, roomID, userID int64, role models.Role) (*models.RoomMember, error) {
	var m models.RoomMember
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO room_members (user_id, room_id, joined_at, role) VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, room_id, joined_at, role`,
		userID, roomID, now(), string(role),
	).Scan(&m.ID, &m.UserID, &m.RoomID, &m.JoinedAt, &m.Role)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, ErrDuplicate
		case isForeignKeyViolation(err):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to add room member: %w", err)
	}
	return &m, nil
}

func (s *Store) RemoveRoomMember(ctx context.Context, roomID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove room member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove room member: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) IsRoomMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (s *Store) GetMemberRole(ctx context.Context, roomID, userID int64) (models.Role, error) {
	var role models.Role
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM room_members WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}

func (s *Store) ListRoomIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id FROM room_members WHERE user_id = $1 ORDER BY room_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user rooms: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListRoomMembers(ctx context.Context, roomID int64) ([]models.RoomMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rm.id, rm.user_id, rm.room_id, rm.joined_at, rm.role, u.username
		FROM room_members rm JOIN users u ON u.id = rm.user_id
		WHERE rm.room_id = $1
		ORDER BY rm.joined_at, rm.id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room members: %w", err)
	}
	defer rows.Close()

	members := []models.RoomMember{}
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.ID, &m.UserID, &m.RoomID, &m.JoinedAt, &m.Role, &m.Username); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
