package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techservice/notifier/internal/application/blacklist"
	"github.com/techservice/notifier/internal/application/notification"
	"github.com/techservice/notifier/internal/application/stats"
	"github.com/techservice/notifier/internal/application/template"
	"github.com/techservice/notifier/internal/application/tracking"
	"github.com/techservice/notifier/internal/application/verification"
	"github.com/techservice/notifier/internal/config"
	"github.com/techservice/notifier/internal/domain"
	jwtinfra "github.com/techservice/notifier/internal/infrastructure/jwt"
	"github.com/techservice/notifier/internal/infrastructure/memory"
	"github.com/techservice/notifier/internal/infrastructure/smtp"
)

type testServer struct {
	handler http.Handler
	key     *rsa.PrivateKey
	notify  notification.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	q := notification.NewQueue()
	agg, err := stats.NewAggregator(reg, q.Len)
	require.NoError(t, err)
	notify := notification.NewService(notification.Deps{
		Queue:     q,
		Templates: template.NewRegistry(nil),
		Blacklist: blacklist.NewFilter(),
		Transport: smtp.LogTransport{},
		Tracker:   tracking.NewTracker(),
		Stats:     agg,
	})
	codes := verification.NewService(verification.Deps{Store: memory.NewCodeRepo()})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{AllowedOrigins: []string{"*"}, RateLimitRPS: 100, RateLimitBurst: 100}
	h := NewRouter(ctx, cfg, &Deps{
		Codes:         codes,
		Notifications: notify,
		Verifier:      jwtinfra.NewVerifierFromKey(&key.PublicKey),
		Gatherer:      reg,
	})
	return &testServer{handler: h, key: key, notify: notify}
}

func (s *testServer) do(t *testing.T, method, target, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, target, bytes.NewReader(b))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if role != "" {
		claims := &jwtinfra.Claims{
			UserID: "u1",
			Role:   role,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Ping(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/health-check/ping", "", nil).Code)
}

func TestRouter_NotificationAccessControl(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{"to": "ana@example.com", "subject": "Hi", "body": "Hello"}

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/v1/notifications", "", body).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/v1/notifications", domain.RoleCustomer, body).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/notifications/statistics", domain.RoleTechnician, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/notifications/statistics", domain.RoleAdmin, nil).Code)
}

func TestRouter_SendProcessTrack(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/v1/notifications", domain.RoleTechnician, map[string]string{
		"to": "ana@example.com", "subject": "Visit scheduled", "body": "Tomorrow 9am",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted struct {
		TrackingID string `json:"tracking_id"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&accepted))

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/notifications/"+accepted.TrackingID, domain.RoleTechnician, nil).Code)
	assert.Equal(t, 1, s.notify.ProcessQueue(context.Background()))

	rr = s.do(t, http.MethodGet, "/v1/notifications/"+accepted.TrackingID, domain.RoleTechnician, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res domain.DeliveryResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.True(t, res.Success)
	assert.Equal(t, "ana@example.com", res.Recipient)
}

func TestRouter_IssueAndVerify(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/v1/verification-codes", "", map[string]string{
		"email": "tech@example.com", "type": "account_activation",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, http.MethodPost, "/v1/verification-codes/verify", "", map[string]string{
		"email": "tech@example.com", "code": "not-it", "type": "account_activation",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, http.MethodPost, "/v1/verification-codes/verify", "", map[string]string{
		"email": "nobody@example.com", "code": "123456", "type": "account_activation",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "notifications_queue_depth")
}
