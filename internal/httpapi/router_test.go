package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"casino_ledger/internal/app"
	"casino_ledger/internal/config"
	"casino_ledger/internal/database/dbtest"
	"casino_ledger/internal/fairness"
	"casino_ledger/internal/httpapi"
	"casino_ledger/internal/notify"
	"casino_ledger/internal/payment"
	"casino_ledger/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	app    *app.App
	router *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	cfg := config.Default()
	cfg.JWTSecret = testSecret

	db := dbtest.Open(t, app.Models()...)
	a, err := app.New(cfg, db, nil)
	require.NoError(t, err)
	t.Cleanup(a.Dispatcher.Close)

	return &server{app: a, router: httpapi.NewRouter(a)}
}

func token(t *testing.T, accountID, role string) string {
	t.Helper()
	tok, err := httpapi.IssueToken(testSecret, accountID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func TestHealthzAndTraceHeader(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get("X-Request-ID"))
}

func TestAuthRejectsBadTokens(t *testing.T) {
	s := newServer(t)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS512, httpapi.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	expired, err := httpapi.IssueToken(testSecret, "acc-1", "", -time.Minute)
	require.NoError(t, err)

	wrongKey, err := httpapi.IssueToken("other-key", "acc-1", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name string
		tok  string
	}{
		{name: "missing", tok: ""},
		{name: "wrong algorithm", tok: foreign},
		{name: "expired", tok: expired},
		{name: "wrong key", tok: wrongKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/wallet/balance", tt.tok, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/api/admin/requests/deposit/pending", token(t, "acc-1", "player"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/requests/deposit/pending", token(t, "admin-1", httpapi.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/requests/refund/pending", token(t, "admin-1", httpapi.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errorKind(t, w))
}

func TestDepositFlowOverHTTP(t *testing.T) {
	s := newServer(t)
	accountID := uuid.NewString()
	player := token(t, accountID, "")
	admin := token(t, "admin-1", httpapi.RoleAdmin)

	w := s.do(t, http.MethodGet, "/api/wallet/balance", player, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorKind(t, w))

	w = s.do(t, http.MethodPost, "/api/wallet/account", player, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/wallet/account", player, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/payments/deposits", player, gin.H{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/payments/deposits", player, gin.H{"amount": "1000", "destination": "jazzcash"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created payment.Request
	decode(t, w, &created)
	assert.Equal(t, payment.StatusPending, created.Status)

	w = s.do(t, http.MethodPost, "/api/admin/requests/deposit/"+created.RequestID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/admin/requests/deposit/"+created.RequestID+"/approve", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/admin/requests/withdrawal/"+created.RequestID+"/approve", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/wallet/balance", player, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bal wallet.Balance
	decode(t, w, &bal)
	assert.True(t, bal.Available.Equal(decimal.NewFromInt(1000)), bal.Available.String())

	// KYC is still pending
	w = s.do(t, http.MethodPost, "/api/payments/withdrawals", player, gin.H{"amount": "500"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "account_state", errorKind(t, w))

	w = s.do(t, http.MethodGet, "/api/admin/accounts/"+accountID+"/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec wallet.Reconciliation
	decode(t, w, &rec)
	assert.True(t, rec.Balanced)
}

func TestFrozenAccountCannotBet(t *testing.T) {
	s := newServer(t)
	accountID := uuid.NewString()
	player := token(t, accountID, "")
	admin := token(t, "admin-1", httpapi.RoleAdmin)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/wallet/account", player, nil).Code)
	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodPost, "/api/admin/accounts/"+accountID+"/freeze", admin, gin.H{"reason": "chargeback"}).Code)

	w := s.do(t, http.MethodPost, "/api/games/crash/bet", player, gin.H{"stake": "100", "cashout_target": "2"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "account_state", errorKind(t, w))

	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodPost, "/api/admin/accounts/"+accountID+"/unfreeze", admin, nil).Code)

	w = s.do(t, http.MethodPost, "/api/games/crash/bet", player, gin.H{"stake": "100", "cashout_target": "2"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "insufficient_funds", errorKind(t, w))
}

func TestReasonBodyIsOptional(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	accountID := uuid.NewString()
	player := token(t, accountID, "")
	admin := token(t, "admin-1", httpapi.RoleAdmin)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/wallet/account", player, nil).Code)

	w := s.do(t, http.MethodPost, "/api/payments/deposits", player, gin.H{"amount": "1000", "destination": "jazzcash"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created payment.Request
	decode(t, w, &created)

	w = s.do(t, http.MethodPost, "/api/admin/requests/deposit/"+created.RequestID+"/reject", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rejected payment.Request
	decode(t, w, &rejected)
	assert.Equal(t, payment.StatusRejected, rejected.Status)

	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodPost, "/api/admin/accounts/"+accountID+"/freeze", admin, nil).Code)
	acc, err := s.app.Accounts.Account(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, acc.IsFrozen)
	assert.Equal(t, "Frozen by operator", acc.FrozenReason)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/accounts/"+accountID+"/freeze", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+admin)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyIsPublic(t *testing.T) {
	s := newServer(t)
	body := fairness.VerifyRequest{ServerSecret: "abc123", ClientSeed: "seed", Sequence: 7, HouseEdge: 0.03}

	w := s.do(t, http.MethodPost, "/api/fairness/verify", "", body)
	require.Equal(t, http.StatusOK, w.Code)

	var got fairness.VerifyResponse
	decode(t, w, &got)
	want := fairness.Outcome("abc123", "seed", 7, 0.03)
	assert.Equal(t, want.Commitment, got.Commitment)
	assert.True(t, want.Value.Equal(got.OutcomeValue))

	body.HouseEdge = 1
	w = s.do(t, http.MethodPost, "/api/fairness/verify", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromotionTableRoundTrip(t *testing.T) {
	s := newServer(t)
	admin := token(t, "admin-1", httpapi.RoleAdmin)

	w := s.do(t, http.MethodPut, "/api/admin/promotions/first_deposit_108", admin, gin.H{
		"tiers": []gin.H{{"min": "100", "max": "999", "bonus_fixed": "150"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/promotions/first_deposit_108", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Tiers []struct {
			BonusFixed decimal.Decimal `json:"bonus_fixed"`
		} `json:"tiers"`
	}
	decode(t, w, &got)
	require.Len(t, got.Tiers, 1)
	assert.True(t, got.Tiers[0].BonusFixed.Equal(decimal.NewFromInt(150)))

	w = s.do(t, http.MethodPut, "/api/admin/promotions/daily_first_deposit_8", admin, gin.H{
		"tiers": []gin.H{{"min": "1", "bonus_fixed": "1"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationStream(t *testing.T) {
	s := newServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws?token=" + token(t, "acc-ws", "")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// the pong is written after the subscription is in place
	require.NoError(t, conn.WriteJSON(gin.H{"type": "PING"}))
	var pong struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "PONG", pong.Type)

	require.NoError(t, s.app.Hub.Deliver(context.Background(), notify.Message{
		AccountID: "acc-other",
		Channel:   notify.ChannelInApp,
		Event:     notify.EventBetSettled,
	}))
	require.NoError(t, s.app.Hub.Deliver(context.Background(), notify.Message{
		AccountID: "acc-ws",
		Channel:   notify.ChannelInApp,
		Event:     notify.EventDepositApproved,
		Payload:   map[string]interface{}{"amount": "1000.00"},
	}))

	var msg notify.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "acc-ws", msg.AccountID)
	assert.Equal(t, notify.EventDepositApproved, msg.Event)
	assert.Equal(t, "1000.00", msg.Payload["amount"])
}

func TestStreamRequiresToken(t *testing.T) {
	s := newServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
