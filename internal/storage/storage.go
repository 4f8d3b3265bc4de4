package storage

import (
	"context"
	"errors"
	"time"

	"auth-service/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/refresh-токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (username/email/jti/token_hash).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByUsername находит пользователя по username.
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новую запись refresh-токена в БД.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит запись по хэшу открытого значения.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// MarkUsedAndRevoked атомарно переводит запись в состояние
	// is_used=TRUE, is_revoked=TRUE, если она ещё не была использована.
	// Возвращает:
	//
	//	(true, nil)  — переход выполнен этим вызовом;
	//	(false, nil) — запись существует, но уже была использована;
	//	(false, ErrNotFound) — запись не найдена.
	MarkUsedAndRevoked(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteExpiredTokens удаляет все просроченные записи.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
