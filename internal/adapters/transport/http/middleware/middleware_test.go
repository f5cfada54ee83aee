package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agile-platform/backend/internal/adapters/transport/ratelimit"
	"github.com/agile-platform/backend/internal/app/pool"
	customErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	"github.com/agile-platform/backend/internal/domain/auth/jwt"
	"github.com/agile-platform/backend/internal/domain/auth/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func init() { gin.SetMode(gin.TestMode) }

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fixedSource struct {
	m     pool.Metrics
	panic bool
}

func (s *fixedSource) Snapshot() pool.Metrics {
	if s.panic {
		panic("gauges unavailable")
	}
	return s.m
}
func (s *fixedSource) Now() time.Time { return now }

func admissionRouter(src pool.Snapshotter, log *zap.Logger, reached *bool, seen *[]pool.Decision) *gin.Engine {
	r := gin.New()
	r.Use(Admission(src, pool.DefaultGuardPolicy(), log, func(d pool.Decision) { *seen = append(*seen, d) }))
	r.GET("/work", func(c *gin.Context) {
		*reached = true
		c.Status(http.StatusOK)
	})
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdmission_Exhausted(t *testing.T) {
	var reached bool
	var seen []pool.Decision
	r := admissionRouter(&fixedSource{m: pool.Metrics{WaitingRequests: 11}}, zap.NewNop(), &reached, &seen)

	w := do(r, httptest.NewRequest(http.MethodGet, "/work", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.False(t, reached)
	require.Equal(t, "5", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.EqualValues(t, 5, body["retryAfter"])
	require.Equal(t, "Service temporarily unavailable", body["error"])
	require.Equal(t, []pool.Decision{pool.Reject}, seen)
}

func TestAdmission_ErrorBurst(t *testing.T) {
	var reached bool
	var seen []pool.Decision
	src := &fixedSource{m: pool.Metrics{ErrorCount: 6, LastErrorAt: now.Add(-10 * time.Second)}}
	r := admissionRouter(src, zap.NewNop(), &reached, &seen)

	w := do(r, httptest.NewRequest(http.MethodGet, "/work", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.False(t, reached)
	require.Contains(t, w.Body.String(), `"retryAfter":2`)

	src.m.LastErrorAt = now.Add(-40 * time.Second)
	w = do(r, httptest.NewRequest(http.MethodGet, "/work", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, reached)
}

func TestAdmission_WarnsAndPasses(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var reached bool
	var seen []pool.Decision
	r := admissionRouter(&fixedSource{m: pool.Metrics{WaitingRequests: 6}}, zap.New(core), &reached, &seen)

	w := do(r, httptest.NewRequest(http.MethodGet, "/work", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, reached)
	require.Equal(t, 1, logs.FilterMessage("high connection queue detected").Len())
}

func TestAdmission_FailsOpen(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	var reached bool
	var seen []pool.Decision
	r := admissionRouter(&fixedSource{panic: true}, zap.New(core), &reached, &seen)

	w := do(r, httptest.NewRequest(http.MethodGet, "/work", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, reached)
	require.Empty(t, seen)
	require.Equal(t, 1, logs.Len())
}

type verifierStub struct {
	claims jwt.AccessClaims
	err    error
}

func (v verifierStub) ValidateAccessToken(string) (jwt.AccessClaims, error) { return v.claims, v.err }

func authRouter(v AccessVerifier) *gin.Engine {
	r := gin.New()
	r.GET("/me", Authenticate(v), func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.UserID.String(), "role": id.Role})
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	uid := uuid.New()
	good := verifierStub{claims: jwt.AccessClaims{IdentityClaims: jwt.IdentityClaims{
		UserID: uid.String(), Email: "alice@x.com", Role: model.RoleMember,
	}}}

	tests := []struct {
		name   string
		header string
		v      AccessVerifier
		code   int
		body   string
	}{
		{name: "missing", header: "", v: good, code: 401, body: "Access token required"},
		{name: "wrong scheme", header: "Basic abc", v: good, code: 401, body: "Access token required"},
		{name: "empty token", header: "Bearer ", v: good, code: 401, body: "Access token required"},
		{
			name: "invalid", header: "Bearer abc", code: 401, body: "Invalid or expired token",
			v: verifierStub{err: customErrors.ErrInvalidToken},
		},
		{
			name: "bad subject", header: "Bearer abc", code: 401, body: "Invalid or expired token",
			v: verifierStub{claims: jwt.AccessClaims{IdentityClaims: jwt.IdentityClaims{UserID: "nope", Role: model.RoleMember}}},
		},
		{name: "ok", header: "Bearer abc", v: good, code: 200, body: uid.String()},
		{name: "scheme is case-insensitive", header: "bearer abc", v: good, code: 200, body: uid.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := do(authRouter(tt.v), req)
			require.Equal(t, tt.code, w.Code)
			require.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestHTTPRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.Use(NewHTTPRateLimitPerIP(ratelimit.NewVisitors(rate.Limit(1), 1, 100, time.Hour)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := func(addr string) int {
		rq := httptest.NewRequest(http.MethodGet, "/", nil)
		rq.RemoteAddr = addr
		return do(r, rq).Code
	}

	require.Equal(t, http.StatusOK, req("1.2.3.4:12345"))
	require.Equal(t, http.StatusTooManyRequests, req("1.2.3.4:12345"))
	require.Equal(t, http.StatusOK, req("10.0.0.2:2222"))
}

func TestSecureHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecureHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRequestLogger_RedactsAndLogsErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	do(r, req)

	incoming := logs.FilterMessage("incoming request").All()
	require.Len(t, incoming, 1)
	headers := incoming[0].ContextMap()["headers"].(map[string]string)
	require.Equal(t, "[redacted]", headers["Authorization"])

	require.Equal(t, 1, logs.FilterMessage("handler error").Len())
	require.Equal(t, 1, logs.FilterMessage("request completed").Len())
}
