package models

import (
	"time"

	"github.com/google/uuid"
)

// User - модель пользователя в системе.
// PasswordHash хранит bcrypt-хэш; открытый пароль нигде не сохраняется.
type User struct {
	ID           uuid.UUID
	Username     string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
