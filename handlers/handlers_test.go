package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ecowing/config"
	"ecowing/database"
	"ecowing/geocode"
	"ecowing/middleware"
	"ecowing/models"
	"ecowing/service"
	"ecowing/stubllm"
	"ecowing/taxonomy"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu      sync.Mutex
	reports []models.Report
	media   map[string][]byte
}

func (m *memStore) SaveReport(_ context.Context, r *models.Report, media []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *r)
	if m.media == nil {
		m.media = make(map[string][]byte)
	}
	m.media[r.ID] = media
	return nil
}

func (m *memStore) ListReports(context.Context) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Report(nil), m.reports...), nil
}

func (m *memStore) index(id string) int {
	for i := range m.reports {
		if m.reports[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *memStore) GetReport(_ context.Context, id string) (models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(id); i >= 0 {
		return m.reports[i], nil
	}
	return models.Report{}, database.ErrNotFound
}

func (m *memStore) GetReportMedia(_ context.Context, id string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data := m.media[id]; len(data) > 0 {
		return data, "image/jpeg", nil
	}
	return nil, "", database.ErrNotFound
}

func (m *memStore) SetVerified(_ context.Context, id string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return database.ErrNotFound
	}
	m.reports[i].Verified = verified
	return nil
}

func (m *memStore) DeleteReport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return database.ErrNotFound
	}
	m.reports = append(m.reports[:i], m.reports[i+1:]...)
	return nil
}

type staticGeocoder string

func (g staticGeocoder) Reverse(context.Context, float64, float64) (string, error) {
	return string(g), nil
}

func fp(f float64) *float64 { return &f }

func newTestRouter(t *testing.T, auth *middleware.Authenticator) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memStore{}
	store.reports = []models.Report{
		{ID: "a", LocationName: "Pier A", Lat: fp(22.30), Lng: fp(114.17), Severity: taxonomy.High, Type: "Plastic", SubType: "Bottles", WasteDistribution: map[string]int{"Plastic": 5}, Verified: true, Timestamp: time.Now().UTC()},
		{ID: "b", LocationName: "Shek O", Lat: fp(22.23), Lng: fp(114.25), Severity: taxonomy.Low, Type: "Plastic", WasteDistribution: map[string]int{"Plastic": 2}, Verified: true, Timestamp: time.Now().UTC()},
	}
	store.media = map[string][]byte{"b": []byte("not a jpeg")}

	svc := service.New(store, stubllm.NewClient(), staticGeocoder("Repulse Bay, Hong Kong"), geocode.NewExpander(2*time.Second), service.Options{
		ImageTargetBytes:  1 << 20,
		ImageMaxDimension: 1920,
		TopSitesLimit:     10,
		DetectionTimeout:  time.Second,
		StoreMedia:        true,
	})
	if auth == nil {
		auth = middleware.NewAuthenticator("ecowing", "", "", time.Hour)
	}
	h := NewHandlers(svc, nil, auth, 1<<20)
	cfg := &config.Config{CORSOrigins: []string{"*"}}
	return NewRouter(h, cfg), store
}

func do(r http.Handler, method, target string, body *bytes.Buffer, headers map[string]string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if file != nil {
		fw, err := mw.CreateFormFile("file", "beach.jpg")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := do(router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestDetect(t *testing.T) {
	router, store := newTestRouter(t, nil)

	body, ct := multipartBody(t, map[string]string{"lat": "22.21", "lng": "114.22"}, []byte("tiny photo"))
	w := do(router, http.MethodPost, "/api/detect", body, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var det models.DetectionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &det))
	assert.NotEmpty(t, det.ID)
	assert.Equal(t, "Stub", det.Source)

	require.Len(t, store.reports, 3)
	saved := store.reports[2]
	assert.Equal(t, det.ID, saved.ID)
	assert.Equal(t, "Repulse Bay, Hong Kong", saved.LocationName)
	require.NotNil(t, saved.Lat)
	assert.Equal(t, 22.21, *saved.Lat)
}

func TestDetectRejectsBadInput(t *testing.T) {
	router, store := newTestRouter(t, nil)

	testCases := []struct {
		name   string
		fields map[string]string
		file   []byte
		status int
	}{
		{"missing file", map[string]string{"locationName": "Pier A"}, nil, http.StatusBadRequest},
		{"bad latitude", map[string]string{"lat": "north"}, []byte("x"), http.StatusBadRequest},
		{"NaN latitude", map[string]string{"lat": "NaN", "lng": "114.2"}, []byte("x"), http.StatusBadRequest},
		{"infinite longitude", map[string]string{"lat": "22.2", "lng": "-Inf"}, []byte("x"), http.StatusBadRequest},
		{"empty file", nil, []byte{}, http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.fields, tc.file)
			w := do(router, http.MethodPost, "/api/detect", body, map[string]string{"Content-Type": ct})
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
	assert.Len(t, store.reports, 2)
}

func TestReadEndpoints(t *testing.T) {
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			http.Redirect(w, r, "/maps/place/@22.2380,114.2470,15z", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer redirect.Close()

	router, _ := newTestRouter(t, nil)

	testCases := []struct {
		name     string
		target   string
		headers  map[string]string
		status   int
		contains string
	}{
		{"history", "/api/history?type=Plastic", nil, http.StatusOK, `"locationName":"Shek O"`},
		{"history bad filter", "/api/history?verified=maybe", nil, http.StatusBadRequest, "invalid filter"},
		{"sites", "/api/sites?limit=1", nil, http.StatusOK, `"location":"Pier A"`},
		{"sites bad limit", "/api/sites?limit=abc", nil, http.StatusBadRequest, "limit"},
		{"site details", "/api/sites/details?location=Shek+O", nil, http.StatusOK, `"reports":1`},
		{"site details missing", "/api/sites/details?location=Nowhere", nil, http.StatusNotFound, "not found"},
		{"dashboard", "/api/dashboard", nil, http.StatusOK, `"totalReports":2`},
		{"drilldown zh", "/api/dashboard/drilldown?category=Plastic&lang=zh-TW", nil, http.StatusOK, "未指定"},
		{"drilldown accept-language", "/api/dashboard/drilldown?category=Plastic", map[string]string{"Accept-Language": "en-GB"}, http.StatusOK, "Unspecified"},
		{"points layer", "/api/map/layers/points", nil, http.StatusOK, `"FeatureCollection"`},
		{"unknown layer", "/api/map/layers/satellite", nil, http.StatusBadRequest, "unknown layer"},
		{"clusters", "/api/map/clusters?lat_top=23&lng_left=114&lat_bottom=22&lng_right=115", nil, http.StatusOK, `"report_id":"a"`},
		{"clusters missing bound", "/api/map/clusters?lat_top=23", nil, http.StatusBadRequest, "lng_left"},
		{"coords direct", "/api/coords?url=" + "https://www.google.com/maps/@22.2500,114.1500,17z", nil, http.StatusOK, `"lat":22.25`},
		{"coords expanded", "/api/coords?url=" + redirect.URL + "/short", nil, http.StatusOK, `"lng":114.247`},
		{"coords none", "/api/coords?url=" + redirect.URL + "/plain", nil, http.StatusUnprocessableEntity, "no coordinates"},
		{"expand url", "/api/expand-url?url=" + redirect.URL + "/short", nil, http.StatusOK, "/maps/place/@22.2380"},
		{"expand url missing", "/api/expand-url", nil, http.StatusBadRequest, "Missing url"},
		{"reverse geocode", "/api/geocode/reverse?lat=22.2&lng=114.2", nil, http.StatusOK, "Repulse Bay"},
		{"reverse geocode bad", "/api/geocode/reverse?lat=x&lng=114.2", nil, http.StatusBadRequest, "lat"},
		{"reverse geocode NaN", "/api/geocode/reverse?lat=22.2&lng=NaN", nil, http.StatusBadRequest, "lng"},
		{"labels", "/api/i18n/labels", map[string]string{"Accept-Language": "zh-HK,zh;q=0.9"}, http.StatusOK, `"lang":"zh"`},
		{"annotated not found", "/api/reports/missing/annotated", nil, http.StatusNotFound, "not found"},
		{"annotated undecodable", "/api/reports/b/annotated", nil, http.StatusUnprocessableEntity, "cannot be annotated"},
		{"charts", "/charts", nil, http.StatusOK, "echarts"},
		{"metrics", "/metrics", nil, http.StatusOK, "go_goroutines"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(router, http.MethodGet, tc.target, nil, tc.headers)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tc.contains)
		})
	}
}

func TestProtectedEndpoints(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth := middleware.NewAuthenticator("ecowing", string(hash), "test-secret", time.Hour)
	router, store := newTestRouter(t, auth)

	w := do(router, http.MethodPost, "/api/login", bytes.NewBufferString(`{"username":"ecowing","password":"wrong"}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/login", bytes.NewBufferString(`{"username":"ecowing","password":"s3cret"}`), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)
	bearer := map[string]string{"Authorization": "Bearer " + login.Token, "Content-Type": "application/json"}

	w = do(router, http.MethodPatch, "/api/reports/a/verify", bytes.NewBufferString(`{"verified":false}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPatch, "/api/reports/a/verify", bytes.NewBufferString(`{"verified":false}`), bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"verified":false`)
	assert.False(t, store.reports[0].Verified)

	w = do(router, http.MethodPatch, "/api/reports/a/verify", bytes.NewBufferString(`{}`), bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodDelete, "/api/reports/missing", nil, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodDelete, "/api/reports/b", nil, bearer)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, store.reports, 1)
}

func TestProtectedEndpointsWithoutAuthConfig(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := do(router, http.MethodPost, "/api/login", bytes.NewBufferString(`{"username":"ecowing","password":"x"}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(router, http.MethodDelete, "/api/reports/a", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "not configured"))
}
