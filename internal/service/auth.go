package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"auth-service/internal/models"
	"auth-service/internal/pkg/log"
	"auth-service/internal/pkg/redact"
	"auth-service/internal/signer"
	"auth-service/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterUser регистрирует нового пользователя и выдаёт первую пару токенов.
func (s *Service) RegisterUser(ctx context.Context, username, name, email, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByUsername(ctx, username)
	if err == nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Name:         strings.TrimSpace(name),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		"user_id", user.ID.String(),
		"email", redact.Email(user.Email),
	)

	return s.issueTokenPair(ctx, user)
}

// LoginUser выполняет вход по username+пароль и выдаёт пару токенов.
func (s *Service) LoginUser(ctx context.Context, username, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	username = strings.TrimSpace(username)
	if username == "" || len(password) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		log.From(ctx).Warn("login_failed",
			"user_id", user.ID.String(),
			"email", redact.Email(user.Email),
		)

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return s.issueTokenPair(ctx, user)
}

// RedeemTokenPair обменивает истёкший access-токен + refresh-токен на новую пару.
//
// Проверки выполняются строго по порядку, первая сработавшая завершает обмен:
//  1. структурная валидность access-токена (подпись);
//  2. алгоритм подписи — ровно HS512;
//  3. access-токен обязан быть уже истёкшим;
//  4. запись refresh-токена существует;
//  5. запись не использована;
//  6. запись не отозвана и не просрочена;
//  7. jti access-токена совпадает с jti записи;
//  8. условная ротация записи (проигравший гонку получает "already used");
//  9. перевыпуск пары владельцу записи.
//
// Состояние used/revoked проверяется по записи в хранилище, а не по claims
// предъявленного access-токена: секретом обмена является refresh-токен,
// access-токен к этому моменту истёк и используется только для сверки jti.
func (s *Service) RedeemTokenPair(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RedeemTokenPair"

	// Шаги 1-2: структура, подпись и алгоритм (signer фиксирует HS512).
	claims, err := s.signer.ValidateStructure(accessToken)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	// Шаг 3: обмен только для уже истёкшего access-токена.
	if claims.ExpiresAt == nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if claims.ExpiresAt.Time.After(s.now()) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrAccessTokenNotExpired)
	}

	// Шаг 4: запись по предъявленному значению.
	token, err := s.lookupRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	// Шаги 5-6: состояние записи (used → revoked → expired).
	if err := s.checkRefreshToken(ctx, token); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	// Шаг 7: связка access-токена и записи через jti.
	if claims.ID != token.JTI {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenBindingMismatch)
	}

	// Шаг 8: единственная точка синхронизации.
	if err := s.markRotated(ctx, token); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	// Шаг 9: перевыпуск. Отмена запроса после шага 8 означает, что refresh-токен
	// уже потреблён и новой пары вызывающий не получит — повторная попытка
	// корректно упадёт на шаге 5.
	user, err := s.storage.UserByID(ctx, token.UserID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.issueTokenPair(ctx, user)
}

// RevokeToken отзывает refresh-токен (logout).
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) error {
	const op = "service.auth.RevokeToken"

	token, err := s.lookupRefreshToken(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.markRotated(ctx, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ValidateToken проверяет access-токен целиком (подпись + срок)
// и возвращает его claims. Используется авторизацией обычных запросов.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (*signer.Claims, error) {
	const op = "service.auth.ValidateToken"

	claims, err := s.signer.ValidateToken(accessToken)
	if err != nil {
		if errors.Is(err, signer.ErrExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
// Выпуск атомарен с точки зрения вызывающего: access-токен не возвращается,
// если запись refresh-токена не сохранилась.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.issueTokenPair"

	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	accessToken, jti, err := s.signer.Sign(user, now, expiresAt)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, err := s.generateRefreshToken(ctx, user.ID, jti, now)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: expiresAt,
	}, user.ID, nil
}
