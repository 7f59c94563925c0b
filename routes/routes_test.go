package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"complaintengine/app"
	"complaintengine/config"
	"complaintengine/models"
	"complaintengine/routes"
	"complaintengine/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	jwtSecret  = "routes-test-secret"
	adminToken = "op-token"
)

type server struct {
	t       *testing.T
	handler http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	cfg := &config.Config{
		Env:      "test",
		Database: config.DatabaseConfig{Driver: "sqlite3", DBName: ":memory:"},
		Auth:     config.AuthConfig{JWTSecret: jwtSecret, AdminToken: adminToken},
		Notification: config.NotificationConfig{
			SendRateLimit: 100,
			SendRateBurst: 100,
		},
		Assignment: config.AssignmentConfig{ClaimRetries: 3},
	}
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	router := routes.SetupRoutes(a.Services, routes.Options{
		Auth:         cfg.Auth,
		Notification: cfg.Notification,
		DB:           a.DB,
		Gatherer:     a.Registry,
		Logger:       zap.NewNop(),
	})
	return &server{t: t, handler: router}
}

func (s *server) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) decode(rec *httptest.ResponseRecorder, dst interface{}) {
	s.t.Helper()
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (s *server) tokenFor(userID, role string) string {
	s.t.Helper()
	token, err := utils.GenerateJWT(userID, role, []byte(jwtSecret), time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *server) createUser(name, role, dept string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/admin/users", adminToken, models.CreateUserRequest{
		Name:         name,
		Email:        name + "@example.org",
		Role:         role,
		DepartmentID: dept,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var user models.User
	s.decode(rec, &user)
	require.NotEmpty(s.t, user.UserID)
	return user.UserID
}

// seed creates a department with one category, an employee, a supervisor and
// a citizen, and returns the citizen and supervisor tokens.
func (s *server) seed() (citizen, supervisor string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/admin/departments", adminToken, models.CreateDepartmentRequest{
		DepartmentID: "public_works",
		Name:         "Public Works",
		IsDefault:    true,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/admin/categories", adminToken, models.Category{
		CategoryID:   "road_damage",
		Name:         "Road damage",
		DepartmentID: "public_works",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	workerID := s.createUser("worker", "employee", "public_works")
	rec = s.do(http.MethodPost, "/api/v1/admin/employees", adminToken, models.CreateEmployeeRequest{
		UserID:        workerID,
		DepartmentID:  "public_works",
		RatingAverage: 4.5,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	supervisorID := s.createUser("supervisor", "supervisor", "public_works")
	citizenID := s.createUser("citizen", "citizen", "")
	return s.tokenFor(citizenID, "citizen"), s.tokenFor(supervisorID, "supervisor")
}

func (s *server) submit(citizen string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/complaints", citizen, models.CreateComplaintRequest{
		Title:       "Pothole on Main Street",
		Description: "Deep pothole near the bus stop",
		CategoryID:  "road_damage",
		Priority:    "urgent",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.CreateComplaintResponse
	s.decode(rec, &created)
	assert.Equal(s.t, models.StatusSubmitted, created.Status)
	return created.ComplaintID
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAdminRoutesRequireOperatorToken(t *testing.T) {
	s := newServer(t)

	for _, token := range []string{"", "wrong"} {
		rec := s.do(http.MethodPost, "/api/v1/admin/departments", token, models.CreateDepartmentRequest{
			DepartmentID: "public_works",
			Name:         "Public Works",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}

	rec := s.do(http.MethodPost, "/api/v1/escalations/process", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/escalations/process", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/admin/sla-rules", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAssignComplaintEndpoint(t *testing.T) {
	s := newServer(t)
	citizen, supervisor := s.seed()
	complaintID := s.submit(citizen)
	body := models.AssignComplaintRequest{ComplaintID: complaintID}

	rec := s.do(http.MethodPost, "/api/v1/assign-complaint", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/assign-complaint", citizen, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/assign-complaint", supervisor, models.AssignComplaintRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/assign-complaint", supervisor, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var assigned models.AssignComplaintResponse
	s.decode(rec, &assigned)
	require.NotNil(t, assigned.Assignment)
	assert.Equal(t, complaintID, assigned.Assignment.ComplaintID)
	assert.Equal(t, models.AssignmentPending, assigned.Status)

	rec = s.do(http.MethodPost, "/api/v1/assign-complaint", supervisor, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var conflict models.ErrorResponse
	s.decode(rec, &conflict)
	assert.Equal(t, models.ConflictAlreadyAssigned, conflict.Error)

	rec = s.do(http.MethodPost, "/api/v1/assign-complaint", supervisor, models.AssignComplaintRequest{ComplaintID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/complaints/"+complaintID+"/timeline", citizen, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendNotificationEndpoint(t *testing.T) {
	s := newServer(t)
	citizen, supervisor := s.seed()

	rec := s.do(http.MethodPost, "/api/v1/send-notification", citizen, models.SendNotificationRequest{
		Role:  "employee",
		Title: "Hello",
		Body:  "World",
		Type:  "announcement",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/send-notification", supervisor, models.SendNotificationRequest{
		UserID: "u1",
		Role:   "employee",
		Title:  "Hello",
		Body:   "World",
		Type:   "announcement",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/send-notification", supervisor, models.SendNotificationRequest{
		Role:  "employee",
		Title: "Hello",
		Body:  "World",
		Type:  "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/send-notification", supervisor, models.SendNotificationRequest{
		Role:         "employee",
		DepartmentID: "public_works",
		Title:        "Road crew briefing",
		Body:         "Briefing at 9am",
		Type:         "announcement",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats models.DeliveryStats
	s.decode(rec, &stats)
	assert.Equal(t, 1, stats.TargetUsers)
	assert.GreaterOrEqual(t, stats.StoredNotifications, 1)
}

func TestGenerateAnalyticsEndpoint(t *testing.T) {
	s := newServer(t)
	citizen, supervisor := s.seed()
	s.submit(citizen)

	rec := s.do(http.MethodPost, "/api/v1/generate-analytics", citizen, models.GenerateAnalyticsRequest{Period: "week"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/generate-analytics", supervisor, models.GenerateAnalyticsRequest{Period: "year"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/generate-analytics", supervisor, models.GenerateAnalyticsRequest{Period: "week"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report models.AnalyticsReport
	s.decode(rec, &report)
	assert.Equal(t, "week", report.Period)
	assert.Equal(t, 1, report.TotalComplaints)
	assert.Equal(t, 1, report.ByPriority["urgent"])
	assert.Len(t, report.Trend, 7)
}
