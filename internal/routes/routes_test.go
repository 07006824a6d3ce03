package routes

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

	"github.com/boscod/outreachguard/internal/handlers"
	"github.com/boscod/outreachguard/internal/metrics"
	"github.com/boscod/outreachguard/internal/rabbitmq"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	clientIP  = "203.0.113.7"
	userAgent = "Mozilla/5.0 (X11; Linux x86_64)"
)

type captureSender struct {
	code string
}

func (s *captureSender) SendCode(_ context.Context, _, code string) error {
	s.code = code
	return nil
}

type capturePublisher struct {
	events []rabbitmq.VerificationRequiredEvent
}

func (p *capturePublisher) PublishVerificationRequired(_ context.Context, evt rabbitmq.VerificationRequiredEvent) error {
	p.events = append(p.events, evt)
	return nil
}

type testServer struct {
	app       *fiber.App
	st        *store.MemoryStore
	sender    *captureSender
	publisher *capturePublisher
}

// testProxy is the peer address fiber's in-memory test connection reports.
const testProxy = "0.0.0.0"

type serverOptions struct {
	blockDuplicates bool
	// trustedProxies lists peers whose X-Real-IP header is honoured.
	trustedProxies []string
}

// newTestServer trusts the test connection as a proxy, so the X-Real-IP
// header set by do is the client address.
func newTestServer(t *testing.T, blockDuplicates bool) *testServer {
	t.Helper()
	return newTestServerWith(t, serverOptions{blockDuplicates: blockDuplicates, trustedProxies: []string{testProxy}})
}

func newTestServerWith(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	crypto, err := services.NewCryptoService("test-app-secret")
	require.NoError(t, err)

	jwt := services.NewJWTService("test-jwt-secret", time.Hour)
	notifications := services.NewNotificationService(st)
	sender := &captureSender{}
	publisher := &capturePublisher{}
	risk := services.NewRiskService(st, st, services.RiskConfig{
		DeviceAccountThreshold: 2,
		IPAccountThreshold:     3,
		Window:                 30 * 24 * time.Hour,
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	fingerprints := tracker.NewFingerprintGenerator()
	collector := tracker.NewCollector(
		fingerprints,
		tracker.ContextIPResolver{},
		st,
		risk,
		handlers.NewToastNotifier(notifications, publisher),
		tracker.WithRecorder(m.Recorder(nil)),
	)

	app := fiber.New(fiber.Config{
		ProxyHeader:             "X-Real-IP",
		EnableTrustedProxyCheck: true,
		TrustedProxies:          opts.trustedProxies,
		EnableIPValidation:      true,
	})
	SetupRoutes(app, Dependencies{
		JWT:                   jwt,
		Auth:                  services.NewAuthService(st, jwt),
		Notifications:         notifications,
		Phone:                 services.NewPhoneVerificationService(st, st, crypto, sender, notifications),
		Exports:               services.NewExportService(st),
		Collector:             collector,
		Registry:              tracker.NewRegistry(collector, time.Hour),
		Fingerprints:          fingerprints,
		Signals:               st,
		Metrics:               m,
		Gatherer:              reg,
		BlockDuplicateSignups: opts.blockDuplicates,
	})

	return &testServer{app: app, st: st, sender: sender, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	return s.doFrom(t, clientIP, method, path, token, body)
}

// doFrom sends a request whose X-Real-IP header claims ip.
func (s *testServer) doFrom(t *testing.T, ip, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", ip)
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	resp, raw := s.do(t, method, path, token, body)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func device(canvas string) tracker.DeviceContext {
	return tracker.DeviceContext{
		Language:            "en-US",
		Languages:           []string{"en-US", "id"},
		Platform:            "Linux x86_64",
		ScreenResolution:    "1920x1080",
		ColorDepth:          24,
		Timezone:            "Asia/Jakarta",
		HardwareConcurrency: 8,
		CanvasHash:          canvas,
	}
}

// register creates an account and returns its token and response body.
func (s *testServer) register(t *testing.T, email string, d tracker.DeviceContext) (string, map[string]any) {
	t.Helper()
	status, body := s.doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"email":    email,
		"password": "correct-horse",
		"device":   d,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["token"].(string), body
}

func (s *testServer) track(t *testing.T, token string, d tracker.DeviceContext) map[string]any {
	t.Helper()
	status, body := s.doJSON(t, http.MethodPost, "/api/tracking/session", token, fiber.Map{"device": d})
	require.Equal(t, http.StatusOK, status, body)
	return body
}

func notificationTypes(t *testing.T, s *testServer, token string) []string {
	t.Helper()
	status, body := s.doJSON(t, http.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, http.StatusOK, status)
	var types []string
	for _, n := range body["notifications"].([]any) {
		types = append(types, n.(map[string]any)["type"].(string))
	}
	return types
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{"/health", "/api/health"} {
		status, body := s.doJSON(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{"/api/tracking/status", "/api/tracking/sessions", "/api/notifications", "/api/auth/me"} {
		status, _ := s.doJSON(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
	}
}

func TestTrackSession_SoleOwnerIsNotGated(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.register(t, "alice@example.com", device("canvas-a"))

	body := s.track(t, token, device("canvas-a"))
	assert.Equal(t, false, body["requires_verification"])
	assert.Equal(t, false, body["is_tracking"])
	assert.Empty(t, body["notifications"])
	assert.Equal(t, 1, s.st.SessionCount())
	assert.Equal(t, 1, s.st.FingerprintCount())
	assert.Empty(t, s.publisher.events)
}

func TestTrackSession_SharedDeviceRequiresVerification(t *testing.T) {
	s := newTestServer(t, false)
	shared := device("canvas-shared")

	alice, _ := s.register(t, "alice@example.com", shared)
	s.track(t, alice, shared)

	bob, _ := s.register(t, "bob@example.com", shared)
	body := s.track(t, bob, shared)

	assert.Equal(t, true, body["requires_verification"])
	toasts := body["notifications"].([]any)
	require.Len(t, toasts, 1)
	toast := toasts[0].(map[string]any)
	assert.Equal(t, tracker.VerificationNotification.Title, toast["title"])
	assert.Equal(t, string(tracker.SeverityDestructive), toast["severity"])

	require.Len(t, s.publisher.events, 1)
	assert.Equal(t, "bob@example.com", s.publisher.events[0].Email)
	assert.Equal(t, clientIP, s.publisher.events[0].IPAddress)

	assert.Contains(t, notificationTypes(t, s, bob), "verification_required")

	status, st := s.doJSON(t, http.MethodGet, "/api/tracking/status", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, st["tracked"])
	assert.Equal(t, true, st["requires_verification"])

	// the handler fills the user agent from the request header
	stored := shared
	stored.UserAgent = userAgent
	fp, ok := s.st.Fingerprint(tracker.NewFingerprintGenerator().Generate(stored))
	require.True(t, ok)
	assert.Equal(t, 2, fp.SeenCount)
}

func TestTrackSession_RepeatedGateNotifiesOnce(t *testing.T) {
	s := newTestServer(t, false)
	shared := device("canvas-shared")

	alice, _ := s.register(t, "alice@example.com", shared)
	s.track(t, alice, shared)
	bob, _ := s.register(t, "bob@example.com", shared)

	for i := 0; i < 3; i++ {
		body := s.track(t, bob, shared)
		assert.Equal(t, true, body["requires_verification"])
		assert.Len(t, body["notifications"], 1, "the toast is raised on every call")
	}

	assert.Len(t, s.publisher.events, 1)
	var gated int
	for _, typ := range notificationTypes(t, s, bob) {
		if typ == "verification_required" {
			gated++
		}
	}
	assert.Equal(t, 1, gated)
}

func TestPhoneVerification_LiftsGate(t *testing.T) {
	s := newTestServer(t, false)
	shared := device("canvas-shared")

	alice, _ := s.register(t, "alice@example.com", shared)
	s.track(t, alice, shared)
	bob, _ := s.register(t, "bob@example.com", shared)
	require.Equal(t, true, s.track(t, bob, shared)["requires_verification"])

	status, body := s.doJSON(t, http.MethodPost, "/api/verification/phone/start", bob, fiber.Map{"phone": "0812-3456-7890"})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotContains(t, body["phone"], "3456")
	require.Len(t, s.sender.code, 6)

	wrong := "000000"
	if s.sender.code == wrong {
		wrong = "111111"
	}
	status, _ = s.doJSON(t, http.MethodPost, "/api/verification/phone/confirm", bob, fiber.Map{"code": wrong})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.doJSON(t, http.MethodPost, "/api/verification/phone/confirm", bob, fiber.Map{"code": s.sender.code})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["phone_verified"])

	again := s.track(t, bob, shared)
	assert.Equal(t, false, again["requires_verification"])
	assert.Empty(t, again["notifications"])

	status, _ = s.doJSON(t, http.MethodPost, "/api/verification/phone/start", bob, fiber.Map{"phone": "081234567890"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestPhoneVerification_ConfirmWithoutStart(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.register(t, "alice@example.com", device("canvas-a"))

	status, _ := s.doJSON(t, http.MethodPost, "/api/verification/phone/confirm", token, fiber.Map{"code": "123456"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.doJSON(t, http.MethodPost, "/api/verification/phone/start", token, fiber.Map{"phone": "12"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatus_FreshLoginIsUntracked(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.register(t, "alice@example.com", device("canvas-a"))
	s.track(t, token, device("canvas-a"))

	status, body := s.doJSON(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    "alice@example.com",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, status, body)

	status, st := s.doJSON(t, http.MethodGet, "/api/tracking/status", body["token"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, st["tracked"])
	assert.Equal(t, false, st["requires_verification"])
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "alice@example.com", device("canvas-a"))

	status, _ := s.doJSON(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t, false)

	status, _ := s.doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{"email": "not-an-email", "password": "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{"email": "a@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, status)

	s.register(t, "a@example.com", device("canvas-a"))
	status, _ = s.doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{"email": "A@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestRegister_DuplicateIsFlagged(t *testing.T) {
	s := newTestServer(t, false)
	shared := device("canvas-shared")

	alice, first := s.register(t, "alice@example.com", shared)
	assert.Equal(t, false, first["duplicate_suspected"])
	s.track(t, alice, shared)

	bob, body := s.register(t, "bob@example.com", shared)
	assert.Equal(t, true, body["duplicate_suspected"])
	assert.Contains(t, notificationTypes(t, s, bob), "duplicate_suspected")
}

func TestRegister_DuplicateIsBlocked(t *testing.T) {
	s := newTestServer(t, true)
	shared := device("canvas-shared")

	alice, _ := s.register(t, "alice@example.com", shared)
	s.track(t, alice, shared)

	status, body := s.doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"email":    "bob@example.com",
		"password": "correct-horse",
		"device":   shared,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, services.ErrDuplicateAccount.Error(), body["message"])

	s.register(t, "carol@example.com", device("canvas-other"))
}

func TestDuplicateCheck(t *testing.T) {
	s := newTestServer(t, false)
	shared := device("canvas-shared")
	alice, _ := s.register(t, "alice@example.com", shared)
	s.track(t, alice, shared)

	status, body := s.doJSON(t, http.MethodPost, "/api/public/duplicate-check", "", fiber.Map{"email": "new@example.com", "device": shared})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	_, body = s.doJSON(t, http.MethodPost, "/api/public/duplicate-check", "", fiber.Map{"email": "alice@example.com", "device": shared})
	assert.Equal(t, false, body["duplicate"])

	_, body = s.doJSON(t, http.MethodPost, "/api/public/duplicate-check", "", fiber.Map{"email": "new@example.com", "device": device("canvas-other")})
	assert.Equal(t, false, body["duplicate"])

	status, _ = s.doJSON(t, http.MethodPost, "/api/public/duplicate-check", "", fiber.Map{"email": " "})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSessionsAndExport(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.register(t, "alice@example.com", device("canvas-a"))
	s.track(t, token, device("canvas-a"))
	s.track(t, token, device("canvas-b"))

	status, body := s.doJSON(t, http.MethodGet, "/api/tracking/sessions?limit=1", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["sessions"], 1)

	_, body = s.doJSON(t, http.MethodGet, "/api/tracking/sessions", token, nil)
	assert.Len(t, body["sessions"], 2)

	resp, raw := s.do(t, http.MethodGet, "/api/tracking/export", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment;"))

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Sessions", "Devices"}, f.GetSheetList())
}

func TestNotifications_MarkRead(t *testing.T) {
	s := newTestServer(t, false)
	shared := device("canvas-shared")
	alice, _ := s.register(t, "alice@example.com", shared)
	s.track(t, alice, shared)
	bob, _ := s.register(t, "bob@example.com", shared)
	s.track(t, bob, shared)

	_, body := s.doJSON(t, http.MethodGet, "/api/notifications/unread-count", bob, nil)
	assert.EqualValues(t, 2, body["count"])

	_, list := s.doJSON(t, http.MethodGet, "/api/notifications", bob, nil)
	first := list["notifications"].([]any)[0].(map[string]any)
	id := int64(first["id"].(float64))

	status, _ := s.doJSON(t, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", id), alice, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.doJSON(t, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", id), bob, nil)
	assert.Equal(t, http.StatusOK, status)
	_, body = s.doJSON(t, http.MethodGet, "/api/notifications/unread-count", bob, nil)
	assert.EqualValues(t, 1, body["count"])

	status, _ = s.doJSON(t, http.MethodPost, "/api/notifications/read-all", bob, nil)
	assert.Equal(t, http.StatusOK, status)
	_, body = s.doJSON(t, http.MethodGet, "/api/notifications/unread-count", bob, nil)
	assert.EqualValues(t, 0, body["count"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	token, _ := s.register(t, "alice@example.com", device("canvas-a"))
	s.track(t, token, device("canvas-a"))

	resp, raw := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "outreachguard_http_requests_total")
	assert.Contains(t, string(raw), `outreachguard_sessions_tracked_total{result="ok"} 1`)
}

func TestClientIP_SpoofedHeaderIsIgnored(t *testing.T) {
	s := newTestServerWith(t, serverOptions{})
	token, _ := s.register(t, "alice@example.com", device("canvas-a"))
	s.track(t, token, device("canvas-a"))

	_, body := s.doJSON(t, http.MethodGet, "/api/tracking/sessions", token, nil)
	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 1)
	assert.Equal(t, testProxy, sessions[0].(map[string]any)["ip_address"])

	check := fiber.Map{"email": "new@example.com", "device": device("canvas-b")}
	for i := 0; i < publicRateLimit; i++ {
		resp, _ := s.doFrom(t, fmt.Sprintf("198.51.100.%d", i+1), http.MethodPost, "/api/public/duplicate-check", "", check)
		require.Equal(t, http.StatusOK, resp.StatusCode, i)
	}
	resp, _ := s.doFrom(t, "198.51.100.250", http.MethodPost, "/api/public/duplicate-check", "", check)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "a fresh header does not open a new bucket")
}

func TestDuplicateCheck_RateLimited(t *testing.T) {
	s := newTestServer(t, false)
	check := fiber.Map{"email": "new@example.com", "device": device("canvas-a")}

	for i := 0; i < publicRateLimit; i++ {
		status, _ := s.doJSON(t, http.MethodPost, "/api/public/duplicate-check", "", check)
		require.Equal(t, http.StatusOK, status, i)
	}

	status, body := s.doJSON(t, http.MethodPost, "/api/public/duplicate-check", "", check)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.EqualValues(t, publicRateWindow.Seconds(), body["retry_after"])

	resp, _ := s.doFrom(t, "198.51.100.9", http.MethodPost, "/api/public/duplicate-check", "", check)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "other clients keep their own budget")
}
