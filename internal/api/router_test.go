package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"qr-mac-backend/config"
	"qr-mac-backend/internal/camera"
	"qr-mac-backend/internal/camera/snapshot"
	"qr-mac-backend/internal/db"
	"qr-mac-backend/internal/notification"
	"qr-mac-backend/internal/render"
	"qr-mac-backend/internal/scanner"
	"qr-mac-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	router  *gin.Engine
	codes   *store.CodeStore
	manager *camera.Manager
	notices *notification.NoticeBoard
	db      *gorm.DB
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	sqlDB, _ := gormDB.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gormDB
}

// newTestApp wires the real components. An empty snapshotURL leaves the
// daemon without a camera.
func newTestApp(t *testing.T, snapshotURL string) *testApp {
	t.Helper()
	gormDB := newSQLiteDB(t)

	codes := store.NewCodeStore(store.NewGormStorage(gormDB), "codes")
	list := render.NewListRenderer("/api/codes")
	codes.OnChange(func(c []string) { list.Render(c) })
	codes.Load(context.Background())

	preview := camera.NewPreviewSink()
	notices := notification.NewNoticeBoard()
	manager := camera.NewManager(camera.Config{
		Devices:  snapshot.NewDevices(snapshotURL, nil, 10*time.Millisecond, time.Second),
		Sink:     preview,
		Engines:  scanner.Factory{},
		Notifier: notices,
		Codes:    codes,
		Options: camera.Options{
			HighlightScanRegion:      true,
			ReturnDetailedScanResult: true,
			MaxScansPerSecond:        20,
			PreferredCamera:          "environment",
		},
	})
	t.Cleanup(func() { _ = manager.Close(context.Background()) })

	h := NewHandler(Deps{
		Codes:   codes,
		List:    list,
		Cart:    render.NewCart(render.NewQRPainter(), 200),
		Scanner: manager,
		Preview: preview,
		Notices: notices,
		DB:      gormDB,
		Webpush: &webpush.Options{VAPIDPublicKey: "test-public-key"},
	})
	router := NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000}, nil)

	return &testApp{router: router, codes: codes, manager: manager, notices: notices, db: gormDB}
}

func (a *testApp) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type codesResponse struct {
	Added *bool        `json:"added"`
	Codes []render.Row `json:"codes"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func texts(rows []render.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Text
	}
	return out
}

func TestCodes_AddListRemove(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodGet, "/api/codes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"codes":[]}`, w.Body.String())

	w = app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "A"})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[codesResponse](t, w)
	require.NotNil(t, resp.Added)
	assert.True(t, *resp.Added)

	app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "B"})
	app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "C"})

	w = app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "B"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[codesResponse](t, w)
	assert.False(t, *resp.Added)
	assert.Equal(t, []string{"A", "B", "C"}, texts(resp.Codes))

	w = app.do(t, http.MethodDelete, "/api/codes/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[codesResponse](t, w)
	assert.Equal(t, []string{"A", "C"}, texts(resp.Codes))
	assert.Equal(t, 1, resp.Codes[1].Index)
	assert.Equal(t, "/api/codes/1", resp.Codes[1].RemoveURL)
}

func TestCodes_RemoveErrors(t *testing.T) {
	app := newTestApp(t, "")
	app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "A"})
	app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "B"})

	testCases := []struct {
		name   string
		target string
		status int
	}{
		{"not a number", "/api/codes/x", http.StatusBadRequest},
		{"out of range", "/api/codes/5", http.StatusNotFound},
		{"negative", "/api/codes/-1", http.StatusNotFound},
		{"stale row", "/api/codes/0?expect=B", http.StatusConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := app.do(t, http.MethodDelete, tc.target, nil)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, []string{"A", "B"}, app.codes.Codes())

	w := app.do(t, http.MethodDelete, "/api/codes/1?expect=B", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"A"}, app.codes.Codes())
}

func TestCodes_AddRejectsBadInput(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodPost, "/api/codes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, app.codes.Len())
}

func TestCodes_AddKeepsTextVerbatim(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "A"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodPost, "/api/codes", gin.H{"text": " A"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"A", " A"}, texts(decode[codesResponse](t, w).Codes))
	assert.Equal(t, []string{"A", " A"}, app.codes.Codes())
}

func TestCodes_ReloadReadsStorage(t *testing.T) {
	app := newTestApp(t, "")
	app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "A"})

	require.NoError(t, store.NewGormStorage(app.db).SetItem(context.Background(), "codes", `["X","Y"]`))

	w := app.do(t, http.MethodPost, "/api/codes/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"X", "Y"}, texts(decode[codesResponse](t, w).Codes))
}

func TestScan_ToggleWithoutCamera(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(t, http.MethodGet, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"idle","label":"Start Scan"}`, w.Body.String())

	w = app.do(t, http.MethodPost, "/api/scan/toggle", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"Start Scan"`)

	w = app.do(t, http.MethodGet, "/api/notices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notices := decode[struct {
		Notices []notification.Notice `json:"notices"`
	}](t, w).Notices
	require.Len(t, notices, 1)
	assert.Equal(t, "Your device does not support camera access.", notices[0].Message)

	// Notices are delivered once.
	w = app.do(t, http.MethodGet, "/api/notices", nil)
	assert.JSONEq(t, `{"notices":[]}`, w.Body.String())

	w = app.do(t, http.MethodGet, "/api/scan/preview.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScan_CameraDenied(t *testing.T) {
	cam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer cam.Close()
	app := newTestApp(t, cam.URL)

	w := app.do(t, http.MethodPost, "/api/scan/toggle", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, camera.StateIdle, app.manager.Snapshot().State)

	notices := app.notices.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, camera.NoticeCameraFailed, notices[0].Kind)
}

func TestScan_StartScanStop(t *testing.T) {
	png, err := qrcode.Encode("MAC-2024", qrcode.Medium, 256)
	require.NoError(t, err)
	cam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer cam.Close()
	app := newTestApp(t, cam.URL)

	w := app.do(t, http.MethodPost, "/api/scan/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[camera.Snapshot](t, w)
	assert.Equal(t, camera.StateActive, snap.State)
	assert.Equal(t, camera.LabelStop, snap.Label)

	require.Eventually(t, func() bool {
		return slices.Contains(app.codes.Codes(), "MAC-2024")
	}, 5*time.Second, 20*time.Millisecond)

	w = app.do(t, http.MethodGet, "/api/scan/preview.jpg", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = app.do(t, http.MethodPost, "/api/scan/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, camera.StateIdle, decode[camera.Snapshot](t, w).State)

	// Scanning the same symbol many times still stores it once.
	assert.Equal(t, []string{"MAC-2024"}, app.codes.Codes())
	assert.Empty(t, app.notices.Drain())
}

func TestCart(t *testing.T) {
	app := newTestApp(t, "")
	app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "A"})
	app.do(t, http.MethodPost, "/api/codes", gin.H{"text": "B"})

	type cartResp struct {
		Visible bool                `json:"visible"`
		Images  []cartImageResponse `json:"images"`
	}

	w := app.do(t, http.MethodGet, "/api/cart", nil)
	assert.JSONEq(t, `{"visible":false,"images":[]}`, w.Body.String())

	w = app.do(t, http.MethodPost, "/api/cart/open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cart := decode[cartResp](t, w)
	assert.True(t, cart.Visible)
	require.Len(t, cart.Images, 2)
	assert.Equal(t, "B", cart.Images[1].Text)
	assert.Contains(t, cart.Images[0].Src, "data:image/png;base64,")

	w = app.do(t, http.MethodGet, "/api/cart/1.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/cart/7.png", nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/api/cart/1.gif", nil).Code)

	// Reopening reflects removals made while the cart was open.
	app.do(t, http.MethodDelete, "/api/codes/0", nil)
	cart = decode[cartResp](t, app.do(t, http.MethodPost, "/api/cart/open", nil))
	require.Len(t, cart.Images, 1)
	assert.Equal(t, "B", cart.Images[0].Text)

	w = app.do(t, http.MethodPost, "/api/cart/close", nil)
	assert.JSONEq(t, `{"visible":false,"images":[]}`, w.Body.String())
}

func TestSubscriptions(t *testing.T) {
	app := newTestApp(t, "")
	endpoint := "https://push.example.com/send/abc"

	w := app.do(t, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = app.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "k1", "auth": "a1"})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = app.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "k2", "auth": "a2"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), endpoint)

	w = app.do(t, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = app.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	app := newTestApp(t, "")
	w := app.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"test-public-key"}`, w.Body.String())

	h := NewHandler(Deps{})
	router := gin.New()
	router.GET("/key", h.GetVAPIDPublicKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/key", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownAPIRoute(t *testing.T) {
	app := newTestApp(t, "")
	w := app.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}
