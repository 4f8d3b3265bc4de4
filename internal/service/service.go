// service содержит бизнес-логику auth-сервиса:
// регистрацию/аутентификацию пользователей, выпуск пар токенов
// и протокол обмена истёкшего access-токена + refresh-токена на новую пару.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Единственной точкой синхронизации при обмене является условный UPDATE
//     в storage.MarkUsedAndRevoked: из двух конкурентных обменов одного
//     refresh-токена успеха достигает ровно один.
//   - Ошибки возвращаются и далее маппятся транспортом на HTTP-статусы
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"
	"time"

	"auth-service/internal/cache"
	"auth-service/internal/config"
	"auth-service/internal/signer"
	"auth-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Транспорт: 401 Unauthorized.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — access-токен не разбирается, подпись не сходится либо
	// заявлен чужой алгоритм подписи. Транспорт: 401 Unauthorized.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия access-токена истёк (полная валидация
	// для авторизации запросов). Транспорт: 401 Unauthorized.
	ErrTokenExpired = errors.New("token expired")

	// ErrAccessTokenNotExpired — обмен запрошен с ещё действующим access-токеном.
	// Обмен существует только для продления истёкшего токена, не живого.
	// Транспорт: 400 Bad Request.
	ErrAccessTokenNotExpired = errors.New("access token has not expired yet")

	// ErrRefreshTokenNotFound — предъявленное значение refresh-токена
	// не соответствует ни одной записи. Транспорт: 401 (обобщённое сообщение).
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrRefreshTokenUsed — запись уже была использована; повторный обмен
	// невозможен навсегда, в том числе при проигрыше гонки конкурентному
	// обмену. Транспорт: 401 (обобщённое сообщение).
	ErrRefreshTokenUsed = errors.New("refresh token already used")

	// ErrRefreshTokenRevoked — запись отозвана. Транспорт: 401 (обобщённое сообщение).
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")

	// ErrRefreshTokenExpired — срок жизни записи refresh-токена истёк.
	// Транспорт: 401 (обобщённое сообщение).
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrTokenBindingMismatch — jti предъявленного access-токена не совпадает
	// с jti, под который выпускалась запись refresh-токена (смешаны креденшелы
	// из разных пар). Транспорт: 401 (обобщённое сообщение).
	ErrTokenBindingMismatch = errors.New("token binding mismatch")

	// ErrUsernameTaken — username уже занят другим пользователем.
	// Транспорт: 409 Conflict.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: 400 Bad Request.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности.
	// Транспорт: 400 Bad Request.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. Транспорт: 400 Bad Request.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальное
	// значение refresh-токена (крайне редкие коллизии хэша в БД).
	// Транспорт: 500 Internal Server Error.
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	signer  *signer.Signer
	cfg     config.AuthConfig
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
	now     func() time.Time
}

// New создаёт новый экземпляр Service с часами по умолчанию (UTC).
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		signer:  signer.New(cfg.JWTSecret, cfg.Issuer, cfg.Audience),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}

// SetClock подменяет источник времени. Вся логика сроков ходит через него,
// поэтому тесты двигают время без реальных ожиданий.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}
