package routes

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"complaintengine/config"
	"complaintengine/handler"
	"complaintengine/middleware"
	"complaintengine/models"
	"complaintengine/repository"
	"complaintengine/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles everything the HTTP layer calls into
type Services struct {
	Complaints    *service.ComplaintService
	Ledger        *service.LedgerService
	Assignments   *service.AssignmentService
	Escalations   *service.EscalationService
	Notifications *service.NotificationService
	Analytics     *service.AnalyticsService
	Directory     *service.DirectoryService
	Resolver      *service.SLAPolicyResolver
	Users         *repository.UserRepository
}

// Options configures auth, rate limits and the observability endpoints
type Options struct {
	Auth         config.AuthConfig
	Notification config.NotificationConfig
	DB           *sql.DB
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
}

// notifierRoles may send ad-hoc notifications and read analytics
var notifierRoles = []models.UserRole{
	models.RoleSupervisor,
	models.RoleDepartmentHead,
	models.RoleAdmin,
}

// SetupRoutes configures all API routes
func SetupRoutes(svc Services, opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()

	// Initialize handlers
	complaintHandler := handler.NewComplaintHandler(svc.Complaints, svc.Ledger, logger)
	assignmentHandler := handler.NewAssignmentHandler(svc.Assignments, logger)
	escalationHandler := handler.NewEscalationHandler(svc.Escalations, logger)
	notificationHandler := handler.NewNotificationHandler(svc.Notifications, logger)
	analyticsHandler := handler.NewAnalyticsHandler(svc.Analytics, logger)
	adminHandler := handler.NewAdminHandler(svc.Directory, svc.Resolver, logger)

	authMiddleware := middleware.NewAuthMiddleware(svc.Users, opts.Auth.JWTSecret)
	adminAuth := middleware.NewAdminAuth(opts.Auth.AdminToken, opts.Auth.AdminTokenHash)
	sendLimiter := middleware.NewRateLimiter(opts.Notification.SendRateLimit, opts.Notification.SendRateBurst)
	requireStaff := middleware.RequireRole(middleware.StaffRoles...)
	requireNotifier := middleware.RequireRole(notifierRoles...)

	authed := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuth(h)
	}
	staff := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuth(requireStaff(h))
	}

	// API v1 routes
	apiV1 := router.PathPrefix("/api/v1").Subrouter()

	// Assignment, dispatch and reporting operations
	apiV1.Handle("/assign-complaint", staff(assignmentHandler.AssignComplaint)).Methods("POST")
	apiV1.Handle("/send-notification", authMiddleware.RequireAuth(requireNotifier(sendLimiter.Limit(http.HandlerFunc(notificationHandler.SendNotification))))).Methods("POST")
	apiV1.Handle("/generate-analytics", authMiddleware.RequireAuth(requireNotifier(http.HandlerFunc(analyticsHandler.GenerateAnalytics)))).Methods("POST")

	// Complaint routes (require auth)
	complaints := apiV1.PathPrefix("/complaints").Subrouter()
	complaints.Handle("", authed(complaintHandler.CreateComplaint)).Methods("POST")
	complaints.Handle("/{id}", authed(complaintHandler.GetComplaintByID)).Methods("GET")
	complaints.Handle("/{id}/timeline", authed(complaintHandler.GetStatusTimeline)).Methods("GET")
	complaints.Handle("/{id}/status", staff(complaintHandler.UpdateComplaintStatus)).Methods("POST")
	complaints.Handle("/{id}/reopen", authed(complaintHandler.ReopenComplaint)).Methods("POST")
	complaints.Handle("/{id}/assignments", authed(assignmentHandler.GetAssignments)).Methods("GET")
	complaints.Handle("/{id}/escalations", authed(escalationHandler.GetEscalations)).Methods("GET")
	complaints.Handle("/{id}/escalation-check", staff(escalationHandler.CheckComplaint)).Methods("POST")

	// Assignment lifecycle (staff only)
	assignments := apiV1.PathPrefix("/assignments").Subrouter()
	assignments.Handle("/{id}/transfer", staff(assignmentHandler.TransferAssignment)).Methods("POST")
	assignments.Handle("/{id}/status", staff(assignmentHandler.UpdateAssignmentStatus)).Methods("POST")

	// Caller's notification settings
	me := apiV1.PathPrefix("/users/me").Subrouter()
	me.Handle("/notifications", authed(notificationHandler.ListMyNotifications)).Methods("GET")
	me.Handle("/notification-preferences", authed(notificationHandler.GetPreferences)).Methods("GET")
	me.Handle("/notification-preferences", authed(notificationHandler.UpdatePreferences)).Methods("PUT")
	me.Handle("/push-tokens", authed(notificationHandler.RegisterPushToken)).Methods("POST")

	// Escalation sweep on demand (operator token)
	escalations := apiV1.PathPrefix("/escalations").Subrouter()
	escalations.Handle("/process", adminAuth.RequireAdminAuth(http.HandlerFunc(escalationHandler.ProcessEscalations))).Methods("POST")

	apiV1.HandleFunc("/categories", adminHandler.ListCategories).Methods("GET")

	// Admin routes (operator token). Directory and SLA rule inspection.
	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.Use(adminAuth.RequireAdminAuth)
	admin.HandleFunc("/users", adminHandler.CreateUser).Methods("POST")
	admin.HandleFunc("/users/{id}", adminHandler.GetUser).Methods("GET")
	admin.HandleFunc("/employees", adminHandler.CreateEmployee).Methods("POST")
	admin.HandleFunc("/employees/{id}", adminHandler.GetEmployee).Methods("GET")
	admin.HandleFunc("/departments", adminHandler.CreateDepartment).Methods("POST")
	admin.HandleFunc("/categories", adminHandler.CreateCategory).Methods("POST")
	admin.HandleFunc("/sla-rules", adminHandler.GetSLARules).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", healthHandler(opts.DB)).Methods("GET")

	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	router.Use(middleware.RequestLogger(logger))
	return router
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
