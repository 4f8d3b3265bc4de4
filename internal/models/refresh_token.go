package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken - запись refresh-токена, привязанная к конкретному access-токену.
//
// Описание:
//   - JTI — идентификатор access-токена, с которым выпущена запись; при обмене
//     предъявленный access-токен обязан нести ровно этот jti;
//   - TokenHash — SHA-256 (base64url) от открытого значения; сам секрет
//     клиентский и в БД не хранится;
//   - IsUsed выставляется ровно один раз и никогда не сбрасывается: после
//     успешного обмена запись мертва для повторного обмена;
//   - IsRevoked выставляется вместе с IsUsed при ротации либо административно.
type RefreshToken struct {
	ID        uuid.UUID
	JTI       string
	UserID    uuid.UUID
	TokenHash string
	IsUsed    bool
	IsRevoked bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}
