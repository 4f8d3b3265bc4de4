package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auth-service/internal/config"
	"auth-service/internal/models"
	"auth-service/internal/service"
	"auth-service/internal/storage"
	"auth-service/mocks"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "transport-secret",
		AccessTokenTTL:  30 * time.Second,
		RefreshTokenTTL: time.Hour,
		Issuer:          "auth-service",
		Audience:        []string{"api"},
	}
}

// newTestServer собирает полный роутер поверх сервиса с mock-хранилищем.
func newTestServer(t *testing.T) (*httptest.Server, *mocks.MockStorage, *service.Service, *fakeClock) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	st := mocks.NewMockStorage(ctrl)
	svc := service.New(st, testAuthCfg())

	clk := &fakeClock{cur: time.Now().UTC().Truncate(time.Second)}
	svc.SetClock(clk.Now)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(NewAuthServer(svc), RouterOptions{
		Logger:         logger,
		RequestTimeout: 5 * time.Second,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, st, svc, clk
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	return resp, decoded
}

// registerThroughAPI прогоняет регистрацию через HTTP и возвращает выданную пару,
// а также запись refresh-токена, попавшую в хранилище.
func registerThroughAPI(t *testing.T, srv *httptest.Server, st *mocks.MockStorage) (map[string]any, *models.RefreshToken) {
	t.Helper()

	var saved *models.RefreshToken
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tok *models.RefreshToken) error {
			saved = tok
			return nil
		})

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/register", map[string]string{
		"username": "alice",
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "Abcdef1!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, body["accessToken"])
	require.NotEmpty(t, body["refreshToken"])
	require.NotEmpty(t, body["userId"])
	require.NotNil(t, saved)

	return body, saved
}

func TestRegister_OK(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	registerThroughAPI(t, srv, st)
}

func TestRegister_ValidationErrors(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	// Невалидный email.
	resp, body := postJSON(t, srv.URL+"/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "not-an-email", "password": "Abcdef1!",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid registration data", body["error"])

	// Слабый пароль.
	resp, body = postJSON(t, srv.URL+"/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "a@e.com", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid registration data", body["error"])
}

func TestRegister_UsernameTaken(t *testing.T) {
	srv, st, _, _ := newTestServer(t)

	st.EXPECT().UserByUsername(gomock.Any(), "alice").
		Return(&models.User{Username: "alice"}, nil)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/register", map[string]string{
		"username": "alice", "email": "a@e.com", "password": "Abcdef1!",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "username already taken", body["error"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv, st, _, _ := newTestServer(t)

	st.EXPECT().UserByUsername(gomock.Any(), "alice").
		Return(nil, storage.ErrNotFound)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/login", map[string]string{
		"username": "alice", "password": "Abcdef1!",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid credentials", body["error"])
}

func TestRefresh_MissingFields(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/refresh", map[string]string{
		"accessToken": "", "refreshToken": "",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "accessToken and refreshToken are required", body["error"])
}

func TestRefresh_GarbageAccessToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/refresh", map[string]string{
		"accessToken": "not-a-jwt", "refreshToken": "whatever",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid token", body["error"])
}

func TestRefresh_AccessNotYetExpired(t *testing.T) {
	srv, st, _, _ := newTestServer(t)

	pair, _ := registerThroughAPI(t, srv, st)

	// Часы не двигаем: access-токен ещё действует.
	resp, body := postJSON(t, srv.URL+"/api/v1/auth/refresh", map[string]string{
		"accessToken":  pair["accessToken"].(string),
		"refreshToken": pair["refreshToken"].(string),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "access token has not yet expired", body["error"])
}

// TestRefresh_FailuresCollapseExternally — not found / used / revoked / expired
// наружу выглядят одинаково: различимы только статус 401 и единое сообщение.
func TestRefresh_FailuresCollapseExternally(t *testing.T) {
	srv, st, _, clk := newTestServer(t)

	pair, record := registerThroughAPI(t, srv, st)
	clk.Advance(time.Minute)

	doRefresh := func() (*http.Response, map[string]any) {
		return postJSON(t, srv.URL+"/api/v1/auth/refresh", map[string]string{
			"accessToken":  pair["accessToken"].(string),
			"refreshToken": pair["refreshToken"].(string),
		})
	}

	// not found
	st.EXPECT().RefreshTokenByHash(gomock.Any(), record.TokenHash).
		Return(nil, storage.ErrNotFound)
	resp, notFoundBody := doRefresh()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// used
	used := *record
	used.IsUsed = true
	st.EXPECT().RefreshTokenByHash(gomock.Any(), record.TokenHash).Return(&used, nil)
	resp, usedBody := doRefresh()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// revoked
	revoked := *record
	revoked.IsRevoked = true
	st.EXPECT().RefreshTokenByHash(gomock.Any(), record.TokenHash).Return(&revoked, nil)
	resp, revokedBody := doRefresh()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// expired
	expired := *record
	expired.ExpiresAt = clk.Now().Add(-time.Minute)
	st.EXPECT().RefreshTokenByHash(gomock.Any(), record.TokenHash).Return(&expired, nil)
	resp, expiredBody := doRefresh()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.Equal(t, notFoundBody, usedBody)
	require.Equal(t, notFoundBody, revokedBody)
	require.Equal(t, notFoundBody, expiredBody)
	require.Equal(t, "invalid refresh token", notFoundBody["error"])
}

func TestRefresh_OK(t *testing.T) {
	srv, st, _, clk := newTestServer(t)

	pair, record := registerThroughAPI(t, srv, st)
	clk.Advance(time.Minute)

	user := &models.User{ID: record.UserID, Username: "alice", Email: "alice@example.com"}

	st.EXPECT().RefreshTokenByHash(gomock.Any(), record.TokenHash).Return(record, nil)
	st.EXPECT().MarkUsedAndRevoked(gomock.Any(), record.ID).Return(true, nil)
	st.EXPECT().UserByID(gomock.Any(), record.UserID).Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/refresh", map[string]string{
		"accessToken":  pair["accessToken"].(string),
		"refreshToken": pair["refreshToken"].(string),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["accessToken"])
	require.NotEmpty(t, body["refreshToken"])
	require.NotEqual(t, pair["refreshToken"], body["refreshToken"])
}

func TestLogout_OK(t *testing.T) {
	srv, st, _, _ := newTestServer(t)

	pair, record := registerThroughAPI(t, srv, st)

	st.EXPECT().RefreshTokenByHash(gomock.Any(), record.TokenHash).Return(record, nil)
	st.EXPECT().MarkUsedAndRevoked(gomock.Any(), record.ID).Return(true, nil)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/logout", map[string]string{
		"refreshToken": pair["refreshToken"].(string),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])
}

func TestMe_RequiresAndUsesBearer(t *testing.T) {
	srv, st, _, _ := newTestServer(t)

	// Без токена.
	resp, err := http.Get(srv.URL + "/api/v1/auth/me")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// С валидным access-токеном.
	pair, _ := registerThroughAPI(t, srv, st)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair["accessToken"].(string))

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "alice", body["username"])
	require.Equal(t, pair["userId"], body["userId"])
}

func TestProbes(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	for _, path := range []string{"/livez", "/healthz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestUnknownError_Returns500WithoutDetails(t *testing.T) {
	srv, st, _, _ := newTestServer(t)

	st.EXPECT().UserByUsername(gomock.Any(), "alice").
		Return(nil, io.ErrUnexpectedEOF)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/login", map[string]string{
		"username": "alice", "password": "Abcdef1!",
	})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "internal server error", body["error"])
}
