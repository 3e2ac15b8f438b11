package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"chat-platform/internal/models"
	"chat-platform/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// EnsureSchema creates the tables the chat core reads and writes.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Identity lookup
func (db *PostgresDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, username, COALESCE(email, ''), avatar_url, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.AvatarURL, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}

	return user, nil
}

// Group membership
func (db *PostgresDB) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, groupID, userID).Scan(&exists)
	return exists, err
}

// Message store
func (db *PostgresDB) SaveRoomMessage(ctx context.Context, msg *models.Message) (int64, error) {
	return db.insertMessage(ctx, models.ScopeRoom, msg)
}

func (db *PostgresDB) SaveGroupMessage(ctx context.Context, msg *models.Message) (int64, error) {
	return db.insertMessage(ctx, models.ScopeGroup, msg)
}

func (db *PostgresDB) SavePrivateMessage(ctx context.Context, msg *models.Message) (int64, error) {
	return db.insertMessage(ctx, models.ScopePrivate, msg)
}

func (db *PostgresDB) insertMessage(ctx context.Context, scope models.Scope, msg *models.Message) (int64, error) {
	query := `
		INSERT INTO messages (scope, room_id, group_id, sender_id, receiver_id, content, type,
		                      file_url, file_name, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at`

	var fileURL, fileName string
	var fileSize int64
	if msg.File != nil {
		fileURL, fileName, fileSize = msg.File.URL, msg.File.Name, msg.File.Size
	}

	var id int64
	err := db.pool.QueryRow(ctx, query,
		string(scope), msg.RoomID, msg.GroupID, msg.SenderID, msg.ReceiverID, msg.Content, string(msg.Type),
		fileURL, fileName, fileSize,
	).Scan(&id, &msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to save %s message: %w", scope, err)
	}

	return id, nil
}

func (db *PostgresDB) GetRecentMessages(ctx context.Context, scope models.Scope, scopeID int64, count int) ([]*models.Message, error) {
	column := "room_id"
	switch scope {
	case models.ScopeGroup:
		column = "group_id"
	case models.ScopePrivate:
		column = "receiver_id"
	}
	query := fmt.Sprintf(`
		SELECT m.id, m.scope, m.room_id, m.group_id, m.receiver_id, m.sender_id, u.username,
		       m.content, m.type, m.file_url, m.file_name, m.file_size, m.created_at
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.scope = $1 AND m.%s = $2
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3`, column)

	rows, err := db.pool.Query(ctx, query, string(scope), scopeID, ClampHistory(count))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var scopeName, msgType, fileURL, fileName string
		var fileSize int64
		if err := rows.Scan(&msg.ID, &scopeName, &msg.RoomID, &msg.GroupID, &msg.ReceiverID, &msg.SenderID,
			&msg.SenderName, &msg.Content, &msgType, &fileURL, &fileName, &fileSize, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Scope = models.Scope(scopeName)
		msg.Type = models.MessageType(msgType)
		if fileURL != "" {
			msg.File = &models.FileMeta{URL: fileURL, Name: fileName, Size: fileSize}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) RecentSenders(ctx context.Context, roomID int64, limit int) ([]*models.UserPresence, error) {
	query := `
		SELECT u.id, u.username, u.avatar_url, MAX(m.created_at) AS last_active
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.scope = 'room' AND m.room_id = $1
		GROUP BY u.id, u.username, u.avatar_url
		ORDER BY last_active DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, ClampHistory(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.UserPresence
	for rows.Next() {
		u := &models.UserPresence{Status: models.StatusRecent}
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.LastActive); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
