package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auth-service/internal/models"
	"auth-service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SaveRefreshToken сохраняет новую запись refresh-токена в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
        INSERT INTO refresh_tokens(id, jti, user_id, token_hash, is_used, is_revoked, issued_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	_, err := s.db.Exec(ctx, query,
		token.ID,
		token.JTI,
		token.UserID,
		token.TokenHash,
		token.IsUsed,
		token.IsRevoked,
		token.IssuedAt,
		token.ExpiresAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByHash находит запись по хэшу открытого значения.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
        SELECT id, jti, user_id, token_hash, is_used, is_revoked, issued_at, expires_at
        FROM refresh_tokens
        WHERE token_hash = $1
    `

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&token.ID,
		&token.JTI,
		&token.UserID,
		&token.TokenHash,
		&token.IsUsed,
		&token.IsRevoked,
		&token.IssuedAt,
		&token.ExpiresAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// MarkUsedAndRevoked атомарно помечает запись использованной и отозванной.
// Условие is_used = FALSE в самом UPDATE гарантирует, что из двух конкурентных
// обменов одного refresh-токена переход достанется ровно одному.
// Возвращает:
//
//	(true, nil)  — запись была активна и помечена этим вызовом;
//	(false, nil) — запись существует, но уже была использована;
//	(false, ErrNotFound) — запись не найдена.
func (s *Storage) MarkUsedAndRevoked(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.postgres.MarkUsedAndRevoked"

	const upd = `
		UPDATE refresh_tokens
		SET is_used = TRUE, is_revoked = TRUE
		WHERE id = $1 AND is_used = FALSE
		RETURNING user_id
	`

	var userID string
	err := s.db.QueryRow(ctx, upd, id).Scan(&userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT is_used
		FROM refresh_tokens
		WHERE id = $1
	`

	var used bool
	err = s.db.QueryRow(ctx, sel, id).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// DeleteExpiredTokens удаляет все просроченные записи.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1
    `

	_, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
