package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"locker-kiosk-backend/internal/actuator"
	"locker-kiosk-backend/internal/api"
	appdb "locker-kiosk-backend/internal/db"
	"locker-kiosk-backend/internal/notify"
	"locker-kiosk-backend/internal/otp"
	"locker-kiosk-backend/internal/resolver"
	"locker-kiosk-backend/internal/store"
)

// testApp wires the full backend against an in-memory database and a
// fast orchestrator (one blink, millisecond settle) so background
// actuation completes quickly.
type testApp struct {
	router http.Handler
	store  store.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:itest_%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, appdb.Migrate(gormDB))
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})

	appStore := store.NewGormStore(gormDB, resolver.New())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deviceClient := actuator.NewHTTPClient(time.Second)
	orchestrator := actuator.NewOrchestrator(deviceClient, 1, time.Millisecond)
	sweep := actuator.NewSweep(appStore, deviceClient, time.Hour, true)

	pool := notify.NewWorkerPool(2, appStore, &webpush.Options{})
	pool.Start(ctx)

	handler := api.NewHandler(appStore, orchestrator, sweep, pool, "test-vapid-key", 2*time.Minute)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Millisecond,
	})

	return &testApp{router: router, store: appStore}
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func wrongOTP(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

// Scenario A: a second recipient is turned away from an occupied locker.
func TestSubmissionRejectsSecondRecipient(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/lockers", gin.H{"number": "5"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s@x.edu",
		"recipientEmail": "r@x.edu",
		"note":           "N",
		"lockerNumber":   "5",
		"documentType":   "OJT",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.True(t, otp.Valid(resp["otp"].(string)))
	assert.Equal(t, false, resp["skipActuation"])

	w = app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s@x.edu",
		"recipientEmail": "other@x.edu",
		"lockerNumber":   "5",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s@x.edu",
		"recipientEmail": "r@x.edu",
		"lockerNumber":   "99",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Scenario B: wrong passcode, right passcode, then replay.
func TestRetrievalLifecycle(t *testing.T) {
	app := newTestApp(t)

	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/lockers", gin.H{"number": "5"}).Code)

	w := app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s@x.edu",
		"recipientEmail": "r@x.edu",
		"lockerNumber":   "5",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	code := decode(t, w)["otp"].(string)

	w = app.do(t, http.MethodPost, "/retrieve", gin.H{"lockerNumber": "5", "otp": wrongOTP(code)})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPost, "/retrieve", gin.H{"lockerNumber": "99", "otp": code})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "wrong locker must look identical to wrong passcode")

	w = app.do(t, http.MethodPost, "/retrieve", gin.H{"lockerNumber": "5", "otp": code})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["claimedCount"])

	w = app.do(t, http.MethodPost, "/retrieve", gin.H{"lockerNumber": "5", "otp": code})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a spent passcode cannot be replayed")
}

// Scenario C: two queued documents for one recipient are claimed together.
func TestRetrievalClaimsWholeQueue(t *testing.T) {
	app := newTestApp(t)

	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/lockers", gin.H{"number": "5"}).Code)

	w := app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s@x.edu",
		"recipientEmail": "r@x.edu",
		"lockerNumber":   "5",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	code := decode(t, w)["otp"].(string)

	w = app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s2@x.edu",
		"recipientEmail": "r@x.edu",
		"lockerNumber":   "5",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	second := decode(t, w)
	assert.Equal(t, true, second["skipActuation"])
	assert.Equal(t, code, second["otp"], "queued documents share the locker passcode")

	w = app.do(t, http.MethodPost, "/retrieve", gin.H{"lockerNumber": "5", "otp": code})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["claimedCount"])
}

func TestLockerRegistryStatuses(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/lockers", gin.H{"number": "1"})
	require.Equal(t, http.StatusCreated, w.Code)
	lockerID := decode(t, w)["id"].(string)

	assert.Equal(t, http.StatusConflict, app.do(t, http.MethodPost, "/lockers", gin.H{"number": "1"}).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPut, "/lockers/missing", gin.H{"number": "2"}).Code)

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodPut, "/lockers/"+lockerID, gin.H{"number": "2"}).Code)
	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/lockers/"+lockerID, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, "/lockers/"+lockerID, nil).Code)
}

func TestDeviceDetectionEndpoints(t *testing.T) {
	app := newTestApp(t)

	for _, ip := range []string{"10.0.0.7", "10.0.0.8"} {
		w := app.do(t, http.MethodPost, "/devices/detections", gin.H{
			"deviceName": "esp-1",
			"ipAddress":  ip,
			"locks":      "lock1",
			"leds":       "led1",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := app.do(t, http.MethodGet, "/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var devices []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	assert.Len(t, devices, 2, "re-detection appends, never upserts")
}

func TestAdminCredentialEndpoints(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusCreated,
		app.do(t, http.MethodPost, "/admin/credentials", gin.H{"email": "admin@x.edu", "pin": "1234"}).Code)
	assert.Equal(t, http.StatusConflict,
		app.do(t, http.MethodPost, "/admin/credentials", gin.H{"email": "again@x.edu", "pin": "0000"}).Code)

	w := app.do(t, http.MethodPost, "/admin/credentials/propose", gin.H{"email": "new@x.edu", "pin": "5678"})
	require.Equal(t, http.StatusAccepted, w.Code)
	_, hasExpiry := decode(t, w)["otpExpires"]
	assert.True(t, hasExpiry)
	assert.NotContains(t, w.Body.String(), `"otp":`, "the passcode is never echoed")

	assert.Equal(t, http.StatusUnauthorized,
		app.do(t, http.MethodPost, "/admin/credentials/verify", gin.H{"otp": "000000"}).Code)

	admin, err := app.store.GetAdmin(context.Background())
	require.NoError(t, err)
	require.NotNil(t, admin.OTP)

	assert.Equal(t, http.StatusOK,
		app.do(t, http.MethodPost, "/admin/credentials/verify", gin.H{"otp": *admin.OTP}).Code)

	admin, err = app.store.GetAdmin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new@x.edu", admin.Email)
}

func TestSubscriptionEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPut, "/subscriptions", gin.H{
		"endpoint":       "https://push.example/abc",
		"p256dh":         "p",
		"auth":           "a",
		"recipientEmail": "r@x.edu",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodGet, "/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-vapid-key", decode(t, w)["publicKey"])

	w = app.do(t, http.MethodDelete, "/subscriptions", gin.H{"endpoint": "https://push.example/abc"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

// deviceRecorder is a fake ESP controller that records the channel paths
// it is asked to hit. A non-zero delay makes every call slow.
type deviceRecorder struct {
	mu    sync.Mutex
	paths []string
	delay time.Duration
}

func (d *deviceRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.delay > 0 {
			time.Sleep(d.delay)
		}
		d.mu.Lock()
		d.paths = append(d.paths, r.URL.Path)
		d.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
}

func (d *deviceRecorder) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.paths...)
}

func TestSubmissionActuatesDevice(t *testing.T) {
	app := newTestApp(t)

	device := &deviceRecorder{}
	server := httptest.NewServer(device.handler())
	defer server.Close()
	host := server.Listener.Addr().String()

	w := app.do(t, http.MethodPost, "/lockers", gin.H{
		"number":    "5",
		"ipAddress": host,
		"locks":     "lock1",
		"leds":      "led1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s@x.edu",
		"recipientEmail": "r@x.edu",
		"lockerNumber":   "5",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Eventually(t, func() bool {
		paths := device.recorded()
		if len(paths) < 4 {
			return false
		}
		return paths[0] == "/lock1" && paths[len(paths)-1] == "/led1/on"
	}, 2*time.Second, 10*time.Millisecond, "submission should pulse the lock and settle the LED on")
}

// A claim on a locker without a device snapshot still triggers the LED
// reconciliation pass, but that pass makes its own device calls and must
// not hold up the retrieval response.
func TestRetrievalRespondsBeforeSweepCompletes(t *testing.T) {
	app := newTestApp(t)

	device := &deviceRecorder{delay: 400 * time.Millisecond}
	server := httptest.NewServer(device.handler())
	defer server.Close()
	host := server.Listener.Addr().String()

	w := app.do(t, http.MethodPost, "/lockers", gin.H{
		"number":    "6",
		"ipAddress": host,
		"leds":      "led1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/lockers", gin.H{"number": "5"}).Code)

	w = app.do(t, http.MethodPost, "/submissions", gin.H{
		"senderEmail":    "s@x.edu",
		"recipientEmail": "r@x.edu",
		"lockerNumber":   "5",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	code := decode(t, w)["otp"].(string)

	start := time.Now()
	w = app.do(t, http.MethodPost, "/retrieve", gin.H{"lockerNumber": "5", "otp": code})
	elapsed := time.Since(start)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, elapsed, 200*time.Millisecond,
		"retrieval must not wait for the sweep's device calls")

	assert.Eventually(t, func() bool {
		paths := device.recorded()
		return len(paths) > 0 && paths[len(paths)-1] == "/led1/off"
	}, 2*time.Second, 10*time.Millisecond, "the sweep still settles the wired locker in the background")
}

func TestManualActuateEndpoint(t *testing.T) {
	app := newTestApp(t)

	device := &deviceRecorder{}
	server := httptest.NewServer(device.handler())
	defer server.Close()
	host := server.Listener.Addr().String()

	w := app.do(t, http.MethodPost, "/actuate", gin.H{
		"ipAddress":  host,
		"ledChannel": "led1",
		"finalState": "off",
		"skipLock":   true,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		paths := device.recorded()
		return len(paths) > 0 && paths[len(paths)-1] == "/led1/off"
	}, 2*time.Second, 10*time.Millisecond)

	w = app.do(t, http.MethodPost, "/actuate", gin.H{
		"ipAddress":  host,
		"ledChannel": "led1",
		"finalState": "blink",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
