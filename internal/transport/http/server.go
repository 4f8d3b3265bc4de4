// transport/http содержит реализацию HTTP-эндпоинтов auth-сервиса.
// Здесь выполняется только маппинг данных и ошибок доменного слоя (service) в HTTP.
// Вся валидация и бизнес-логика находятся в пакете service.
//
// Принципы:
//   - Контекст запроса прокидывается в сервис без потерь;
//   - Ошибки сервиса явно транслируются в статусы:
//   - ErrInvalidEmail/ErrWeakPassword/ErrEmptyPassword/ErrAccessTokenNotExpired -> 400;
//   - ErrUsernameTaken -> 409;
//   - ErrInvalidCredentials/ErrInvalidToken/ErrTokenExpired -> 401;
//   - ErrRefreshTokenNotFound/Used/Revoked/Expired -> 401 с единым сообщением
//     "invalid refresh token": какая именно проверка сработала, наружу не
//     сообщается, различие остаётся в логах и тестах;
//   - иные ошибки -> 500 c единым безопасным сообщением.
//
// Безопасность:
//   - Для 500 наружу не утекают детали внутренних ошибок; подробности должны
//     попадать в логи через middleware на уровне сервера.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"auth-service/internal/service"

	"github.com/go-chi/chi/v5"
)

type AuthServer struct {
	service *service.Service
}

// NewAuthServer создаёт HTTP-сервер авторизации поверх сервисного слоя.
func NewAuthServer(service *service.Service) *AuthServer {
	return &AuthServer{service: service}
}

// Routes регистрирует эндпоинты аутентификации на роутере.
func (s *AuthServer) Routes(r chi.Router) {
	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/logout", s.handleLogout)
	r.With(s.RequireAuth).Get("/me", s.handleMe)
}

type registerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	UserID          string `json:"userId"`
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	AccessExpiresAt int64  `json:"accessExpiresAt"`
}

type meResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// handleRegister регистрирует пользователя и возвращает пару токенов.
func (s *AuthServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pair, uid, err := s.service.RegisterUser(r.Context(), req.Username, req.Name, req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokenPairResponse{
		UserID:          uid.String(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

// handleLogin аутентифицирует пользователя и возвращает новую пару токенов.
func (s *AuthServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pair, uid, err := s.service.LoginUser(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		UserID:          uid.String(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

// handleRefresh обменивает истёкший access-токен + refresh-токен на новую пару.
func (s *AuthServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.AccessToken) == "" || strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "accessToken and refreshToken are required")
		return
	}

	pair, uid, err := s.service.RedeemTokenPair(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		UserID:          uid.String(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

// handleLogout отзывает refresh-токен.
func (s *AuthServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.service.RevokeToken(r.Context(), strings.TrimSpace(req.RefreshToken)); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleMe возвращает данные пользователя из проверенного access-токена.
func (s *AuthServer) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:   claims.Subject,
		Username: claims.Username,
		Name:     claims.Name,
		Email:    claims.Email,
	})
}

// writeServiceError транслирует ошибки сервисного слоя в HTTP-статусы.
func (s *AuthServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		writeError(w, http.StatusBadRequest, "invalid registration data")

	case errors.Is(err, service.ErrAccessTokenNotExpired):
		writeError(w, http.StatusBadRequest, "access token has not yet expired")

	case errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username already taken")

	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")

	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "invalid token")

	case errors.Is(err, service.ErrTokenBindingMismatch):
		writeError(w, http.StatusUnauthorized, "token doesn't match")

	// Обобщённое сообщение: not found / used / revoked / expired снаружи
	// неразличимы, чтобы не подсказывать перебором состояние чужих токенов.
	case errors.Is(err, service.ErrRefreshTokenNotFound),
		errors.Is(err, service.ErrRefreshTokenUsed),
		errors.Is(err, service.ErrRefreshTokenRevoked),
		errors.Is(err, service.ErrRefreshTokenExpired):
		writeError(w, http.StatusUnauthorized, "invalid refresh token")

	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readHeaderTimeout — верхняя граница на дочитывание заголовков запроса.
const readHeaderTimeout = 5 * time.Second

// NewServer собирает http.Server с роутером поверх AuthServer.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
