package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"complaintengine/config"
	"complaintengine/events"
	"complaintengine/models"
	"complaintengine/notification"
	"complaintengine/repository"
	"complaintengine/schema"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// recordingBus captures published events synchronously
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, e events.Event) error {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) ofType(eventType string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakePush records batches; failBatch decides which batches error
type fakePush struct {
	mu        sync.Mutex
	batches   [][]string
	payloads  []notification.PushPayload
	failBatch func(batch []string) error
	reject    map[string]string
}

func (p *fakePush) Send(ctx context.Context, tokens []string, payload notification.PushPayload) ([]notification.TokenResult, error) {
	p.mu.Lock()
	p.batches = append(p.batches, append([]string(nil), tokens...))
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
	if p.failBatch != nil {
		if err := p.failBatch(tokens); err != nil {
			return nil, err
		}
	}
	results := make([]notification.TokenResult, len(tokens))
	for i, token := range tokens {
		if reason, ok := p.reject[token]; ok {
			results[i] = notification.TokenResult{Token: token, Error: reason}
			continue
		}
		results[i] = notification.TokenResult{Token: token, Success: true}
	}
	return results, nil
}

func (p *fakePush) lastPriority() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.payloads) == 0 {
		return ""
	}
	return p.payloads[len(p.payloads)-1].Priority
}

func (p *fakePush) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

// fakeSender accepts everything on one channel
type fakeSender struct {
	channel models.NotificationChannel
	err     error
	mu      sync.Mutex
	sent    int
}

func (s *fakeSender) Send(ctx context.Context, n *models.Notification, to notification.Recipient) error {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return s.err
}

func (s *fakeSender) Channel() models.NotificationChannel { return s.channel }

func (s *fakeSender) Validate(to notification.Recipient) error {
	if to.Email == "" && to.Phone == "" {
		return notification.ErrInvalidRecipient
	}
	return nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *sql.DB
	clock *testClock
	bus   events.Bus

	complaintRepo    *repository.ComplaintRepository
	categoryRepo     *repository.CategoryRepository
	employeeRepo     *repository.EmployeeRepository
	assignmentRepo   *repository.AssignmentRepository
	escalationRepo   *repository.EscalationRepository
	userRepo         *repository.UserRepository
	notificationRepo *repository.NotificationRepository
	preferenceRepo   *repository.PreferenceRepository

	resolver      *SLAPolicyResolver
	ledger        *LedgerService
	complaints    *ComplaintService
	assignments   *AssignmentService
	escalations   *EscalationService
	notifications *NotificationService
	analytics     *AnalyticsService
	push          *fakePush
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	bus          events.Bus
	notification *models.NotificationConfig
	senders      []notification.Sender
}

func withBus(bus events.Bus) fixtureOption {
	return func(c *fixtureConfig) { c.bus = bus }
}

func withNotificationConfig(cfg *models.NotificationConfig) fixtureOption {
	return func(c *fixtureConfig) { c.notification = cfg }
}

func withSenders(senders ...notification.Sender) fixtureOption {
	return func(c *fixtureConfig) { c.senders = senders }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := &fixtureConfig{bus: &recordingBus{}}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, schema.InitializeDatabase(ctx, db, schema.DialectSQLite, nil))

	resolver, err := NewSLAPolicyResolver(config.DefaultSLATable(), nil)
	require.NoError(t, err)

	f := &fixture{
		t:                t,
		ctx:              ctx,
		db:               db,
		clock:            &testClock{now: t0},
		bus:              cfg.bus,
		complaintRepo:    repository.NewComplaintRepository(db),
		categoryRepo:     repository.NewCategoryRepository(db),
		employeeRepo:     repository.NewEmployeeRepository(db),
		assignmentRepo:   repository.NewAssignmentRepository(db),
		escalationRepo:   repository.NewEscalationRepository(db),
		userRepo:         repository.NewUserRepository(db),
		notificationRepo: repository.NewNotificationRepository(db),
		preferenceRepo:   repository.NewPreferenceRepository(db),
		resolver:         resolver,
		push:             &fakePush{},
	}

	f.ledger = NewLedgerService(db, f.complaintRepo, f.assignmentRepo, f.employeeRepo, resolver, f.bus, nil, nil)
	f.ledger.now = f.clock.Now
	f.complaints = NewComplaintService(db, f.complaintRepo, f.categoryRepo, resolver, nil, nil)
	f.complaints.now = f.clock.Now
	f.assignments = NewAssignmentService(db, f.complaintRepo, f.employeeRepo, f.assignmentRepo, f.ledger, f.bus, nil, nil, 3)
	f.assignments.now = f.clock.Now
	f.escalations = NewEscalationService(db, f.complaintRepo, f.employeeRepo, f.escalationRepo, resolver, f.bus, nil, nil)
	f.escalations.now = f.clock.Now
	f.notifications = NewNotificationService(f.userRepo, f.preferenceRepo, f.notificationRepo, f.push, cfg.senders, cfg.notification, nil, nil)
	f.notifications.now = f.clock.Now
	f.analytics = NewAnalyticsService(f.complaintRepo, f.escalationRepo, nil)
	f.analytics.now = f.clock.Now

	require.NoError(t, f.categoryRepo.CreateDepartment(ctx, "public_works", "Public Works", true))
	require.NoError(t, f.categoryRepo.CreateCategory(ctx, &models.Category{
		CategoryID: "road_damage", Name: "Road damage", DepartmentID: "public_works",
	}))
	return f
}

func (f *fixture) addUser(id string, role models.UserRole, department string) *models.User {
	f.t.Helper()
	u := &models.User{
		UserID:       id,
		Name:         id,
		Email:        sql.NullString{String: id + "@example.org", Valid: true},
		Role:         role,
		DepartmentID: sql.NullString{String: department, Valid: department != ""},
		IsActive:     true,
		CreatedAt:    t0,
	}
	require.NoError(f.t, f.userRepo.CreateUser(f.ctx, u))
	return u
}

func (f *fixture) addEmployee(id string, workload int, rating float64, joined time.Time) *models.Employee {
	f.t.Helper()
	f.addUser("user-"+id, models.RoleEmployee, "public_works")
	e := &models.Employee{
		EmployeeID:      id,
		UserID:          "user-" + id,
		DepartmentID:    "public_works",
		Status:          models.EmployeeActive,
		CurrentWorkload: workload,
		RatingAverage:   rating,
		JoinedDate:      joined,
	}
	require.NoError(f.t, f.employeeRepo.CreateEmployee(f.ctx, e))
	return e
}

func (f *fixture) addToken(userID, token string) {
	f.t.Helper()
	require.NoError(f.t, f.userRepo.SavePushToken(f.ctx, &models.PushToken{
		Token: token, UserID: userID, Platform: "android",
	}, t0))
}

// submit creates a road_damage complaint at the current clock time
func (f *fixture) submit(priority models.Priority) string {
	f.t.Helper()
	resp, err := f.complaints.CreateComplaint(f.ctx, "citizen-1", &models.CreateComplaintRequest{
		Title:      "Pothole on main road",
		CategoryID: "road_damage",
		Priority:   string(priority),
	})
	require.NoError(f.t, err)
	return resp.ComplaintID
}

func (f *fixture) complaint(id string) *models.Complaint {
	f.t.Helper()
	c, err := f.complaintRepo.GetComplaintByID(f.ctx, id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) employee(id string) *models.Employee {
	f.t.Helper()
	e, err := f.employeeRepo.GetEmployeeByID(f.ctx, id)
	require.NoError(f.t, err)
	return e
}

func (f *fixture) notificationsFor(userID string) []models.Notification {
	f.t.Helper()
	list, err := f.notificationRepo.GetNotificationsByRecipient(f.ctx, userID)
	require.NoError(f.t, err)
	return list
}

func errProvider(retryable bool) error {
	return &models.ProviderError{Provider: "push", Retryable: retryable, Err: errors.New("upstream unavailable")}
}

func tokens(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%03d", prefix, i)
	}
	return out
}
