package router

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/equiptrack/internal/config"
	"github.com/mamadbah2/equiptrack/internal/metrics"
	"github.com/mamadbah2/equiptrack/internal/repository/memory"
	"github.com/mamadbah2/equiptrack/internal/repository/sessions"
	"github.com/mamadbah2/equiptrack/internal/server/handlers"
	"github.com/mamadbah2/equiptrack/internal/service/auth"
	"github.com/mamadbah2/equiptrack/internal/service/inventory"
	"github.com/mamadbah2/equiptrack/internal/service/loans"
	"github.com/mamadbah2/equiptrack/internal/service/reporting"
	"github.com/mamadbah2/equiptrack/internal/storage"
)

type testServer struct {
	t      *testing.T
	engine http.Handler
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	m := metrics.New()

	inv := inventory.NewService(store, storage.NewMemory(), inventory.Options{Metrics: m}, nil)
	loanSvc := loans.NewService(store, loans.Options{Images: inv, Metrics: m}, nil)
	reports := reporting.NewService(store, nil, time.UTC, nil)
	authSvc := auth.NewService(store, sessions.NewMemoryStore(time.Now), config.AuthConfig{JWTSecret: "test-secret"}, nil)
	t.Cleanup(authSvc.Close)

	engine := New(Handlers{
		Auth:      handlers.NewAuthHandler(authSvc, nil),
		Equipment: handlers.NewEquipmentHandler(inv, nil),
		Loans:     handlers.NewLoanHandler(loanSvc, reports, nil),
		Reports:   handlers.NewReportHandler(reports, nil),
	}, Options{Metrics: m}, nil)

	return &testServer{t: t, engine: engine}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) signUp() {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": "ops@example.com", "password": "secret-pass"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	s.token = decode(s.t, rec)["token"].(string)
}

func (s *testServer) createUnit(code string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/equipment", map[string]any{
		"equipmentId":  code,
		"name":         "Hammer Drill",
		"category":     "Power Tools",
		"serialNumber": "SN-" + code,
		"location":     "Warehouse A",
		"value":        250,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(s.t, rec)["id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "equiptrack_http_requests_total")
}

func TestAPIRequiresSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/equipment", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.token = "not-a-token"
	rec = s.do(http.MethodGet, "/api/equipment", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.token = ""
	s.signUp()
	rec = s.do(http.MethodGet, "/api/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@example.com", decode(t, rec)["email"])

	rec = s.do(http.MethodPost, "/api/auth/signout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/api/equipment", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignOutEverywhereRevokesEverySession(t *testing.T) {
	s := newTestServer(t)
	s.signUp()
	first := s.token

	rec := s.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "ops@example.com", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.token = decode(t, rec)["token"].(string)

	rec = s.do(http.MethodPost, "/api/auth/signout-all", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/equipment", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	s.token = first
	rec = s.do(http.MethodGet, "/api/equipment", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/signout-all", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUpErrors(t *testing.T) {
	s := newTestServer(t)
	s.signUp()

	rec := s.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": "ops@example.com", "password": "secret-pass"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": "nope", "password": "secret-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "email")

	rec = s.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "ops@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBorrowingFlow(t *testing.T) {
	s := newTestServer(t)
	s.signUp()
	unitID := s.createUnit("EQ100")

	rec := s.do(http.MethodPost, "/api/borrowings", map[string]string{"equipmentId": unitID, "borrower": "A. Smith", "department": "Ops"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loanID := decode(t, rec)["id"].(string)

	rec = s.do(http.MethodPost, "/api/borrowings", map[string]string{"equipmentId": unitID, "borrower": "B. Jones", "department": "Ops"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/equipment/"+unitID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "In Use", decode(t, rec)["status"])

	rec = s.do(http.MethodDelete, "/api/equipment/"+unitID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/borrowings/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["activeBorrowings"])

	rec = s.do(http.MethodGet, "/api/borrowings/"+loanID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hammer Drill", decode(t, rec)["equipmentName"])

	rec = s.do(http.MethodPost, "/api/borrowings/"+loanID+"/return", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Returned", decode(t, rec)["status"])

	rec = s.do(http.MethodPost, "/api/borrowings/"+loanID+"/return", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode(t, rec)
	assert.EqualValues(t, 1, dash["totalEquipment"])
	assert.EqualValues(t, 0, dash["currentlyBorrowed"])

	rec = s.do(http.MethodDelete, "/api/borrowings/"+loanID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/api/borrowings/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRentalFlow(t *testing.T) {
	s := newTestServer(t)
	s.signUp()
	unitID := s.createUnit("EQ200")

	rec := s.do(http.MethodPost, "/api/rentals", map[string]any{
		"equipmentId": unitID,
		"client":      "Acme",
		"rentalStart": "2024-03-01T00:00:00Z",
		"rentalEnd":   "2024-03-04T00:00:00Z",
		"rentalRate":  10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rental := decode(t, rec)
	assert.EqualValues(t, 30, rental["totalCost"])
	assert.Equal(t, "Pending", rental["paymentStatus"])

	id := rental["id"].(string)
	rec = s.do(http.MethodPost, "/api/rentals/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPatch, "/api/rentals/"+id, map[string]string{"paymentStatus": "Paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Paid", decode(t, rec)["paymentStatus"])

	rec = s.do(http.MethodPost, "/api/rentals/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/rentals/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 30, decode(t, rec)["revenue"])
}

func TestReports(t *testing.T) {
	s := newTestServer(t)
	s.signUp()
	s.createUnit("EQ300")

	rec := s.do(http.MethodGet, "/api/reports?range=week", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["totalEquipment"])

	rec = s.do(http.MethodGet, "/api/reports?from=2024-01-01&to=2024-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/reports?range=decade", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/reports?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/reports/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["total"])
}

func TestEquipmentImage(t *testing.T) {
	s := newTestServer(t)
	s.signUp()
	unitID := s.createUnit("EQ400")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image", "front view.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/equipment/"+unitID+"/image", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/equipment/"+unitID+"/image", decode(t, rec)["imageUrl"])

	rec = s.do(http.MethodGet, "/api/equipment/"+unitID+"/image", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	rec = s.do(http.MethodDelete, "/api/equipment/"+unitID+"/image", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/equipment/"+unitID+"/image", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
