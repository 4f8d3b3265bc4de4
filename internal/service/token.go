package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"auth-service/internal/cache"
	"auth-service/internal/models"
	"auth-service/internal/pkg/log"
	"auth-service/internal/storage"

	"github.com/google/uuid"
)

// hashRefreshValue сводит открытое значение refresh-токена к хэшу хранения
// (SHA-256 → base64url без паддинга).
func hashRefreshValue(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateRefreshToken создает запись refresh-токена, привязанную к jti
// access-токена, и возвращает открытое значение.
// Открытое значение — 32 байта из crypto/rand в base64; в БД попадает только хэш.
func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID, jti string, now time.Time) (string, error) {
	const (
		op          = "service.token.generateRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}
		plain := base64.RawURLEncoding.EncodeToString(b)
		hash := hashRefreshValue(plain)

		token := &models.RefreshToken{
			ID:        uuid.New(),
			JTI:       jti,
			UserID:    userID,
			TokenHash: hash,
			IsUsed:    false,
			IsRevoked: false,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		// Кэш — best-effort: промах или сбой не влияют на корректность.
		if s.rcache != nil {
			entry := &cache.RefreshEntry{
				ID:        token.ID,
				UserID:    userID,
				Used:      false,
				Revoked:   false,
				ExpiresAt: token.ExpiresAt,
			}
			if err := s.rcache.Set(ctx, hash, entry, s.cfg.RefreshTokenTTL); err != nil {
				lg.Warn("refresh_cache_set_failed",
					slog.String("op", op),
					slog.String("err", err.Error()),
				)
			}
		}

		return plain, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// lookupRefreshToken находит запись по открытому значению.
// Сначала пробует кэш: запись со взведёнными used/revoked отклоняется без
// похода в БД; во всех остальных случаях истиной остаётся хранилище.
func (s *Service) lookupRefreshToken(ctx context.Context, plain string) (*models.RefreshToken, error) {
	const op = "service.token.lookupRefreshToken"

	lg := log.From(ctx)
	hash := hashRefreshValue(plain)

	if s.rcache != nil {
		entry, ok, err := s.rcache.Get(ctx, hash)
		if err != nil {
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if ok && entry.Used {
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenUsed)
		} else if ok && entry.Revoked {
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
		}
	}

	token, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenNotFound)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// checkRefreshToken проверяет состояние найденной записи:
// использована → отозвана → просрочена. Порядок фиксирован, первая
// сработавшая проверка завершает обмен.
func (s *Service) checkRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "service.token.checkRefreshToken"

	lg := log.From(ctx)

	if token.IsUsed {
		lg.Warn("refresh_already_used",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return fmt.Errorf("%s: %w", op, ErrRefreshTokenUsed)
	}

	if token.IsRevoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
	}

	if s.now().After(token.ExpiresAt) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return fmt.Errorf("%s: %w", op, ErrRefreshTokenExpired)
	}

	return nil
}

// markRotated выполняет единственный синхронизирующий шаг обмена: условный
// UPDATE is_used=FALSE → TRUE. Проигравший гонку получает ErrRefreshTokenUsed
// и новой пары не видит.
func (s *Service) markRotated(ctx context.Context, token *models.RefreshToken) error {
	const op = "service.token.markRotated"

	lg := log.From(ctx)

	rotated, err := s.storage.MarkUsedAndRevoked(ctx, token.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrRefreshTokenNotFound)
		}

		lg.Error("refresh_rotate_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	if !rotated {
		lg.Warn("refresh_rotate_lost_race",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return fmt.Errorf("%s: %w", op, ErrRefreshTokenUsed)
	}

	if s.rcache != nil {
		if err := s.rcache.MarkUsed(ctx, token.TokenHash); err != nil {
			lg.Warn("refresh_cache_mark_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	return nil
}
