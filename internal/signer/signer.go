// signer инкапсулирует выпуск и структурную проверку access-токенов (JWT, HS512).
//
// Основные аспекты:
//   - Подпись и проверка — чистые функции от входа и секрета, без I/O;
//   - ValidateStructure проверяет подпись и алгоритм, но НЕ срок действия:
//     протокол обмена работает с уже истёкшими access-токенами, и решение
//     о сроке принимает вызывающая сторона;
//   - ValidateToken — полная проверка (подпись + срок + issuer/audience),
//     используется для авторизации обычных запросов.
package signer

import (
	"errors"
	"fmt"
	"time"

	"auth-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed — строка не разбирается как JWT.
	ErrMalformed = errors.New("malformed token")
	// ErrSignatureInvalid — подпись не сходится с секретом либо алгоритм
	// в заголовке отличается от HS512 (защита от подмены алгоритма).
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrExpired — срок действия токена истёк (только ValidateToken).
	ErrExpired = errors.New("token expired")
)

// Claims — фиксированный набор утверждений access-токена.
// Subject несёт ID пользователя, ID (jti) связывает токен с refresh-записью.
type Claims struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Signer подписывает и проверяет access-токены симметричным секретом.
type Signer struct {
	secret   []byte
	issuer   string
	audience []string
}

// New создаёт Signer с заданным секретом и параметрами issuer/audience.
func New(secret, issuer string, audience []string) *Signer {
	return &Signer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// Sign выпускает подписанный access-токен для пользователя со свежим jti.
// Возвращает сериализованный токен и использованный jti.
func (s *Signer) Sign(user *models.User, issuedAt, expiresAt time.Time) (string, string, error) {
	const op = "signer.Sign"

	jti := uuid.NewString()

	claims := Claims{
		Name:     user.Name,
		Email:    user.Email,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings(s.audience),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, jti, nil
}

// ValidateStructure разбирает токен и проверяет подпись и алгоритм,
// не проверяя сроки действия и прочие claims.
func (s *Signer) ValidateStructure(tokenStr string) (*Claims, error) {
	const op = "signer.ValidateStructure"

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrSignatureInvalid)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrSignatureInvalid)
	}

	return claims, nil
}

// ValidateToken выполняет полную проверку access-токена: подпись, алгоритм,
// срок действия, issuer и audience.
func (s *Signer) ValidateToken(tokenStr string) (*Claims, error) {
	const op = "signer.ValidateToken"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		opts = append(opts, jwt.WithAudience(s.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, s.keyFunc, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%s: %w", op, ErrExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
		default:
			return nil, fmt.Errorf("%s: %w", op, ErrSignatureInvalid)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrSignatureInvalid)
	}

	return claims, nil
}

// keyFunc дополнительно фиксирует алгоритм на уровне выбора ключа.
func (s *Signer) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS512 {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	return s.secret, nil
}
