package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kerhoff/giftlist/internal/auth"
	"github.com/Kerhoff/giftlist/internal/claim"
	"github.com/Kerhoff/giftlist/internal/live"
	"github.com/Kerhoff/giftlist/internal/metrics"
	"github.com/Kerhoff/giftlist/internal/repository/memory"
	"github.com/Kerhoff/giftlist/internal/service"
)

type testEnv struct {
	srv *httptest.Server
	hub *live.Hub
}

func newTestEnv(t *testing.T, claimCfg claim.Config, opts Options) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memory.New()
	hub := live.NewHub(logger)
	claims := claim.New(store, store.Claims(), hub, logger, claimCfg, nil)
	svc := service.New(logger, store.Users(), store.Wishlists(), claims, hub,
		auth.NewJWTManager("api-test-secret-0123456789", time.Hour),
		auth.NewPasswordHasher(bcrypt.MinCost),
	)

	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS = 1000
		opts.RateLimitBurst = 1000
	}
	server := NewServer(svc, live.NewWSHandler(hub, logger, "*"), logger, opts)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 {
		out = map[string]any{"raw": string(raw)}
	}
	return resp, out
}

// ownerWithList registers an owner and creates a public list with one
// single-gift item and one group-funded item.
func (e *testEnv) ownerWithList(t *testing.T) (token, slug string, single, group int64) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "kate@example.com", "password": "password123", "name": "Kate",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	token = body["token"].(string)

	resp, body = e.do(t, http.MethodPost, "/api/wishlists", token, map[string]any{
		"title": "Birthday", "event_date": "2026-12-24",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	slug = body["share_slug"].(string)
	listID := int64(body["id"].(float64))

	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/api/wishlists/%d/items", listID), token, map[string]any{
		"title": "Headphones", "price": "5000",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	single = int64(body["id"].(float64))

	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/api/wishlists/%d/items", listID), token, map[string]any{
		"title": "Espresso machine", "price": 30000, "allow_group_funding": true, "min_contribution": "500",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	group = int64(body["id"].(float64))
	return token, slug, single, group
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{})
	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{})

	resp, _ := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "kate@example.com", "password": "password123", "name": "Kate",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotContains(t, fmt.Sprint(body), "password")

	resp, body = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "kate@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_exists", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "kate@example.com", "password": "nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "kate@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)

	resp, body = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Kate", body["name"])

	resp, _ = env.do(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReserveFlow(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{})
	_, slug, single, _ := env.ownerWithList(t)

	path := fmt.Sprintf("/api/public/items/%d/reserve", single)
	resp, body := env.do(t, http.MethodPost, path, "", map[string]string{"guest_name": "Anna", "message": "Enjoy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.NotContains(t, fmt.Sprint(body), "Anna")

	resp, body = env.do(t, http.MethodPost, path, "", map[string]string{"guest_name": "Boris"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_claimed", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/public/items/999999/reserve", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])

	resp, body = env.do(t, http.MethodGet, "/api/public/wishlists/"+slug, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Kate", body["owner_name"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, true, items[0].(map[string]any)["reserved"])
}

func TestContributeFlow(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{})
	token, slug, single, group := env.ownerWithList(t)

	groupPath := fmt.Sprintf("/api/public/items/%d/contribute", group)
	for _, amount := range []any{"10000", 10000, "10000.00"} {
		resp, body := env.do(t, http.MethodPost, groupPath, "", map[string]any{"amount": amount, "guest_name": "Friend"})
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	}

	tests := []struct {
		name   string
		path   string
		amount any
		status int
		code   string
	}{
		{name: "zero", path: groupPath, amount: "0", status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "below minimum", path: groupPath, amount: "100", status: http.StatusUnprocessableEntity, code: "below_minimum"},
		{name: "not group funded", path: fmt.Sprintf("/api/public/items/%d/contribute", single), amount: "100", status: http.StatusUnprocessableEntity, code: "group_funding_disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, tt.path, "", map[string]any{"amount": tt.amount})
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
		})
	}

	resp, body := env.do(t, http.MethodGet, "/api/public/wishlists/"+slug, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	espresso := body["items"].([]any)[1].(map[string]any)
	assert.Equal(t, "30000", espresso["total_contributed"])
	assert.Equal(t, true, espresso["is_fully_funded"])

	// The owner sees aggregates only.
	resp, raw := env.do(t, http.MethodGet, "/api/wishlists", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, fmt.Sprint(raw), "Friend")
	assert.NotContains(t, fmt.Sprint(raw), "guest_name")
}

func TestOwnerDashboardHidesGuests(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{})
	token, _, single, _ := env.ownerWithList(t)

	resp, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/public/items/%d/reserve", single), "",
		map[string]string{"guest_name": "Secret Santa", "message": "psst"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/wishlists", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, string(raw), "Secret Santa")
	assert.NotContains(t, string(raw), "psst")
	assert.Contains(t, string(raw), `"reserved_count":1`)
}

func TestUpdateEndpoints(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{})
	token, slug, single, _ := env.ownerWithList(t)

	resp, body := env.do(t, http.MethodPatch, fmt.Sprintf("/api/items/%d", single), token, map[string]any{"notes": "black, please"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "black, please", body["notes"])
	assert.Equal(t, "Headphones", body["title"])

	resp, body = env.do(t, http.MethodGet, "/api/wishlists", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = body

	resp, _ = env.do(t, http.MethodGet, "/api/public/wishlists/"+slug, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Find the list id through the dashboard and hide it.
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/wishlists", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var lists []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&lists))
	res.Body.Close()
	require.Len(t, lists, 1)
	listID := int64(lists[0]["id"].(float64))

	resp, body = env.do(t, http.MethodPatch, fmt.Sprintf("/api/wishlists/%d", listID), token, map[string]any{"is_public": false, "event_date": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, slug, body["share_slug"])
	assert.Nil(t, body["event_date"])

	resp, body = env.do(t, http.MethodGet, "/api/public/wishlists/"+slug, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])

	resp, body = env.do(t, http.MethodPatch, fmt.Sprintf("/api/wishlists/%d", listID), token, map[string]any{"unknown": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", body["code"])
}

func TestAuthenticatedReserveIdentity(t *testing.T) {
	env := newTestEnv(t, claim.Config{AllowAuthenticatedIdentityOnReserve: true}, Options{})
	token, _, single, _ := env.ownerWithList(t)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/public/items/%d/reserve", single), token,
		map[string]string{"guest_name": "ignored"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/public/items/%d/reserve", single), "bad-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublicClaimsAreRateLimited(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{RateLimitRPS: 0.01, RateLimitBurst: 2})
	_, _, _, group := env.ownerWithList(t)

	path := fmt.Sprintf("/api/public/items/%d/contribute", group)
	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodPost, path, "", map[string]any{"amount": "600"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodPost, path, "", map[string]any{"amount": "600"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLiveUpdatesOverWebSocket(t *testing.T) {
	m := metrics.New()
	env := newTestEnv(t, claim.Config{}, Options{Instrument: m.InstrumentHandler})
	_, slug, _, group := env.ownerWithList(t)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(live.ControlMessage{Action: live.ActionJoin, Topic: slug}))
	var reply live.Reply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "joined", reply.Type)

	resp, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/public/items/%d/contribute", group), "",
		map[string]any{"amount": "750.25", "guest_name": "Anna"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"type":"contribution_created","topic":%q,"item_id":%d}`, slug, group), string(raw))
	assert.NotContains(t, string(raw), "Anna")
	assert.NotContains(t, string(raw), "750")
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := chain(recovery(logger), requestID)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetOwnerList(t *testing.T) {
	env := newTestEnv(t, claim.Config{}, Options{})
	token, slug, _, group := env.ownerWithList(t)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/public/items/%d/contribute", group), "", map[string]any{
		"amount": "1200.50", "guest_name": "Uncle Bob",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, lists := env.do(t, http.MethodGet, "/api/wishlists", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, lists)

	var ids []struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(lists["raw"].(string)), &ids))
	require.Len(t, ids, 1)
	path := fmt.Sprintf("/api/wishlists/%d", ids[0].ID)

	resp, body = env.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, slug, body["share_slug"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "1200.5", items[1].(map[string]any)["total_contributed"])
	assert.NotContains(t, fmt.Sprint(body), "Uncle Bob")

	resp, _ = env.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "mallory@example.com", "password": "password123", "name": "Mallory",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	mallory := body["token"].(string)

	resp, body = env.do(t, http.MethodGet, path, mallory, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])

	resp, _ = env.do(t, http.MethodGet, "/api/wishlists/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
