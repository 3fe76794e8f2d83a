package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"social_platform/internal/domain"
	apperrors "social_platform/pkg/errors"
	"social_platform/pkg/logger"
)

// ConversationRepository stores the conversation aggregate (row, members,
// bans and mutes) as one unit. Update is optimistic: it succeeds only if the
// stored version still equals conv.Version, and bumps it on success.
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	FindDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	Update(ctx context.Context, conv *domain.Conversation) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var directKey *string
	if key := conv.DirectKey(); key != "" {
		directKey = &key
	}

	query := `
		INSERT INTO conversations (id, kind, name, owner_id, password_hash, version, direct_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		conv.ID, conv.Kind, conv.Name, conv.OwnerID, conv.PasswordHash,
		conv.Version, directKey, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("conversation %s: %w", conv.ID, apperrors.ErrAlreadyExists)
		}
		r.log.Error("Failed to create conversation", "error", err)
		return err
	}

	if err := r.writeSets(ctx, tx, conv); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit conversation", "error", err)
		return err
	}
	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, kind, name, owner_id, password_hash, version, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.Kind, &conv.Name, &conv.OwnerID, &conv.PasswordHash,
		&conv.Version, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, apperrors.ErrNotFound)
		}
		r.log.Error("Failed to get conversation by ID", "error", err)
		return nil, err
	}

	if err := r.loadSets(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) loadSets(ctx context.Context, conv *domain.Conversation) error {
	conv.Participants = domain.NewUserSet()
	conv.Admins = domain.NewUserSet()
	conv.Banned = domain.NewUserSet()
	conv.Muted = make(map[uuid.UUID]time.Time)

	batch := &pgx.Batch{}
	batch.Queue(`SELECT user_id, is_admin FROM conversation_members WHERE conversation_id = $1`, conv.ID)
	batch.Queue(`SELECT user_id FROM conversation_bans WHERE conversation_id = $1`, conv.ID)
	batch.Queue(`SELECT user_id, expires_at FROM conversation_mutes WHERE conversation_id = $1`, conv.ID)

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	rows, err := results.Query()
	if err != nil {
		r.log.Error("Failed to load conversation members", "error", err)
		return err
	}
	for rows.Next() {
		var userID uuid.UUID
		var isAdmin bool
		if err := rows.Scan(&userID, &isAdmin); err != nil {
			rows.Close()
			return err
		}
		conv.Participants.Add(userID)
		if isAdmin {
			conv.Admins.Add(userID)
		}
	}
	rows.Close()

	rows, err = results.Query()
	if err != nil {
		r.log.Error("Failed to load conversation bans", "error", err)
		return err
	}
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return err
		}
		conv.Banned.Add(userID)
	}
	rows.Close()

	rows, err = results.Query()
	if err != nil {
		r.log.Error("Failed to load conversation mutes", "error", err)
		return err
	}
	for rows.Next() {
		var userID uuid.UUID
		var expiresAt time.Time
		if err := rows.Scan(&userID, &expiresAt); err != nil {
			rows.Close()
			return err
		}
		conv.Muted[userID] = expiresAt
	}
	rows.Close()

	return nil
}

func (r *conversationRepository) writeSets(ctx context.Context, tx pgx.Tx, conv *domain.Conversation) error {
	members := make([][]any, 0, len(conv.Participants))
	for _, userID := range conv.Participants.Slice() {
		members = append(members, []any{conv.ID, userID, conv.Admins.Has(userID)})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"conversation_members"},
		[]string{"conversation_id", "user_id", "is_admin"}, pgx.CopyFromRows(members)); err != nil {
		r.log.Error("Failed to write conversation members", "error", err)
		return err
	}

	bans := make([][]any, 0, len(conv.Banned))
	for _, userID := range conv.Banned.Slice() {
		bans = append(bans, []any{conv.ID, userID})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"conversation_bans"},
		[]string{"conversation_id", "user_id"}, pgx.CopyFromRows(bans)); err != nil {
		r.log.Error("Failed to write conversation bans", "error", err)
		return err
	}

	mutes := make([][]any, 0, len(conv.Muted))
	for userID, expiresAt := range conv.Muted {
		mutes = append(mutes, []any{conv.ID, userID, expiresAt})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"conversation_mutes"},
		[]string{"conversation_id", "user_id", "expires_at"}, pgx.CopyFromRows(mutes)); err != nil {
		r.log.Error("Failed to write conversation mutes", "error", err)
		return err
	}

	return nil
}

func (r *conversationRepository) FindDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT c.id
		FROM conversations c
		JOIN conversation_members ma ON ma.conversation_id = c.id AND ma.user_id = $1
		JOIN conversation_members mb ON mb.conversation_id = c.id AND mb.user_id = $2
		WHERE c.kind = 'DIRECT'
		LIMIT 1
	`

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, a, b).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("direct conversation: %w", apperrors.ErrNotFound)
		}
		r.log.Error("Failed to find direct conversation", "error", err)
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	query := `
		SELECT c.id
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err)
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		r.log.Error("Failed to scan conversation ids", "error", err)
		return nil, err
	}

	conversations := make([]*domain.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (r *conversationRepository) Update(ctx context.Context, conv *domain.Conversation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE conversations
		SET kind = $3, name = $4, owner_id = $5, password_hash = $6,
		    version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $2
	`
	tag, err := tx.Exec(ctx, query,
		conv.ID, conv.Version, conv.Kind, conv.Name, conv.OwnerID, conv.PasswordHash, conv.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to update conversation", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conv.ID, apperrors.ErrConflict)
	}

	for _, table := range []string{"conversation_members", "conversation_bans", "conversation_mutes"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE conversation_id = $1`, conv.ID); err != nil {
			r.log.Error("Failed to clear conversation set", "table", table, "error", err)
			return err
		}
	}
	if err := r.writeSets(ctx, tx, conv); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit conversation update", "error", err)
		return err
	}
	conv.Version++
	return nil
}

// Delete removes the conversation; members, bans, mutes and messages go with
// it through ON DELETE CASCADE.
func (r *conversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete conversation", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
