package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"complaintengine/metrics"
	"complaintengine/models"
	"complaintengine/notification"
	"complaintengine/repository"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Target selects the recipients of a dispatch. It is implemented only by
// UserTarget, UsersTarget and RoleTarget.
type Target interface {
	target()
}

// UserTarget addresses one user
type UserTarget struct {
	UserID string
}

// UsersTarget addresses an explicit list of users
type UsersTarget struct {
	UserIDs []string
}

// RoleTarget addresses every active user with a role, optionally within one department
type RoleTarget struct {
	Role         models.UserRole
	DepartmentID string
}

func (UserTarget) target()  {}
func (UsersTarget) target() {}
func (RoleTarget) target()  {}

// DispatchRequest is one logical notification fanned out to a target
type DispatchRequest struct {
	Target        Target
	Title         string
	Body          string
	Data          map[string]interface{}
	Type          models.NotificationType
	ReferenceID   string
	ReferenceType string
}

// NotificationService is the notification dispatcher. Every (recipient,
// channel) pair that survives preferences is stored before delivery, and
// delivery failures are recorded on the row instead of being returned.
type NotificationService struct {
	users         *repository.UserRepository
	preferences   *repository.PreferenceRepository
	notifications *repository.NotificationRepository
	push          notification.PushProvider
	senders       map[models.NotificationChannel]notification.Sender
	breaker       *gobreaker.CircuitBreaker
	config        *models.NotificationConfig
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NotificationConfig is an alias for models.NotificationConfig
type NotificationConfig = models.NotificationConfig

// NewNotificationService creates a new notification service
func NewNotificationService(
	users *repository.UserRepository,
	preferences *repository.PreferenceRepository,
	notifications *repository.NotificationRepository,
	push notification.PushProvider,
	senders []notification.Sender,
	config *models.NotificationConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *NotificationService {
	if config == nil {
		config = models.DefaultNotificationConfig()
	}
	cfg := *config
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}
	if cfg.WorkerBatchSize <= 0 {
		cfg.WorkerBatchSize = models.DefaultNotificationConfig().WorkerBatchSize
	}
	config = &cfg
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("notification")
	if push == nil {
		push = notification.NewLogPushProvider(logger)
	}

	byChannel := make(map[models.NotificationChannel]notification.Sender, len(senders))
	for _, sender := range senders {
		byChannel[sender.Channel()] = sender
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "push-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &NotificationService{
		users:         users,
		preferences:   preferences,
		notifications: notifications,
		push:          push,
		senders:       byChannel,
		breaker:       breaker,
		config:        config,
		metrics:       m,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// deliveryOutcome is the result of one delivery attempt for one stored row
type deliveryOutcome struct {
	err       error
	retryable bool
}

// statsRecorder aggregates DeliveryStats across the worker pool
type statsRecorder struct {
	mu    sync.Mutex
	stats models.DeliveryStats
}

func (r *statsRecorder) add(fn func(s *models.DeliveryStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Dispatch fans one notification out to its target. Partial delivery failures
// are reported in the stats and never returned as an error.
func (s *NotificationService) Dispatch(ctx context.Context, req DispatchRequest) (*models.DeliveryStats, error) {
	if err := validateDispatch(req); err != nil {
		return nil, err
	}
	defer s.metrics.DispatchStarted()()

	recipients, err := s.resolveTarget(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	rec := &statsRecorder{stats: models.DeliveryStats{TargetUsers: len(recipients)}}
	if len(recipients) == 0 {
		return &rec.stats, nil
	}

	ids := make([]string, len(recipients))
	for i, u := range recipients {
		ids[i] = u.UserID
	}
	prefs, err := s.preferences.GetPreferences(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification preferences: %w", err)
	}

	payload, err := encodePayload(req.Data)
	if err != nil {
		return nil, models.NewValidationError("data", err.Error())
	}

	now := s.now()
	var (
		mu     sync.Mutex
		inApp  []*models.Notification
		pushes []*models.Notification
		direct []directDelivery
	)

	// store
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.WorkerPoolSize)
	for i := range recipients {
		user := recipients[i]
		pref := prefs[user.UserID]
		if pref == nil {
			pref = models.DefaultNotificationPreference(user.UserID)
		}
		g.Go(func() error {
			for _, channel := range models.AllChannels {
				if !pref.ChannelEnabled(req.Type, channel) {
					continue
				}
				n := s.newNotification(req, user.UserID, channel, payload, now)
				deferred, until := shouldDefer(pref, req.Type, channel, now)
				if deferred {
					n.NextAttemptAt = sql.NullTime{Time: until, Valid: true}
				}
				if err := s.notifications.CreateNotification(gctx, n); err != nil {
					s.logger.Error("failed to store notification",
						zap.String("user_id", user.UserID), zap.String("channel", string(channel)), zap.Error(err))
					rec.add(func(st *models.DeliveryStats) { st.Failed++ })
					continue
				}
				rec.add(func(st *models.DeliveryStats) {
					st.StoredNotifications++
					if deferred {
						st.Deferred++
					}
				})
				if deferred {
					s.metrics.NotificationOutcome(string(channel), "deferred")
					continue
				}

				mu.Lock()
				switch channel {
				case models.ChannelInApp:
					inApp = append(inApp, n)
				case models.ChannelPush:
					pushes = append(pushes, n)
				default:
					direct = append(direct, directDelivery{n: n, to: notification.RecipientFromUser(&user)})
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// deliver
	for _, n := range inApp {
		s.finish(ctx, n, deliveryOutcome{}, rec)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.config.WorkerPoolSize)
	for _, d := range direct {
		d := d
		g.Go(func() error {
			s.finish(gctx, d.n, s.sendDirect(gctx, d.n, d.to), rec)
			return nil
		})
	}
	s.deliverPush(gctx, g, pushes, pushPayload(req), rec)
	_ = g.Wait()

	stats := rec.stats
	s.logger.Info("notification dispatched",
		zap.String("type", string(req.Type)),
		zap.Int("target_users", stats.TargetUsers),
		zap.Int("stored", stats.StoredNotifications),
		zap.Int("delivered", stats.Delivered),
		zap.Int("failed", stats.Failed),
		zap.Int("deferred", stats.Deferred))
	return &stats, nil
}

type directDelivery struct {
	n  *models.Notification
	to notification.Recipient
}

func validateDispatch(req DispatchRequest) error {
	if req.Target == nil {
		return models.NewValidationError("target", "one of userId, userIds or role is required")
	}
	switch t := req.Target.(type) {
	case UserTarget:
		if t.UserID == "" {
			return models.NewValidationError("userId", "userId is required")
		}
	case UsersTarget:
		if len(t.UserIDs) == 0 {
			return models.NewValidationError("userIds", "userIds must not be empty")
		}
	case RoleTarget:
		if t.Role == "" {
			return models.NewValidationError("role", "role is required")
		}
	}
	if strings.TrimSpace(req.Title) == "" {
		return models.NewValidationError("title", "title is required")
	}
	if _, ok := models.ParseNotificationType(string(req.Type)); !ok {
		return models.NewValidationError("type", fmt.Sprintf("unknown notification type %q", req.Type))
	}
	return nil
}

func (s *NotificationService) resolveTarget(ctx context.Context, target Target) ([]models.User, error) {
	switch t := target.(type) {
	case UserTarget:
		users, err := s.users.GetActiveUsersByIDs(ctx, []string{t.UserID})
		if err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return nil, models.NewNotFoundError("user", t.UserID)
		}
		return users, nil
	case UsersTarget:
		return s.users.GetActiveUsersByIDs(ctx, dedupe(t.UserIDs))
	case RoleTarget:
		return s.users.GetActiveUsersByRole(ctx, t.Role, t.DepartmentID)
	default:
		return nil, models.NewValidationError("target", "unknown target")
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func encodePayload(data map[string]interface{}) (sql.NullString, error) {
	if len(data) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to serialize data: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func (s *NotificationService) newNotification(
	req DispatchRequest,
	userID string,
	channel models.NotificationChannel,
	payload sql.NullString,
	now time.Time,
) *models.Notification {
	return &models.Notification{
		RecipientUserID: userID,
		Type:            req.Type,
		Channel:         channel,
		Title:           req.Title,
		Body:            req.Body,
		Payload:         payload,
		ReferenceID:     sql.NullString{String: req.ReferenceID, Valid: req.ReferenceID != ""},
		ReferenceType:   sql.NullString{String: req.ReferenceType, Valid: req.ReferenceType != ""},
		Status:          models.NotificationStatusPending,
		MaxAttempts:     s.config.DefaultMaxAttempts,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func pushPayload(req DispatchRequest) notification.PushPayload {
	data := map[string]string{"type": string(req.Type)}
	for k, v := range req.Data {
		data[k] = fmt.Sprint(v)
	}
	if req.ReferenceID != "" {
		data["reference_id"] = req.ReferenceID
		data["reference_type"] = req.ReferenceType
	}
	priority := "normal"
	if req.Type.IsCritical() {
		priority = "high"
	}
	return notification.PushPayload{Title: req.Title, Body: req.Body, Data: data, Priority: priority}
}

func payloadFromRow(n *models.Notification) notification.PushPayload {
	req := DispatchRequest{Title: n.Title, Body: n.Body, Type: n.Type, ReferenceID: n.ReferenceID.String, ReferenceType: n.ReferenceType.String}
	if n.Payload.Valid {
		_ = json.Unmarshal([]byte(n.Payload.String), &req.Data)
	}
	return pushPayload(req)
}

// pushState collects per-token results for one push row across batches
type pushState struct {
	n         *models.Notification
	delivered bool
	lastErr   error
	retryable bool
}

// deliverPush sends every push row's tokens in batches of at most
// PushBatchSize. Each batch is one provider call; a failed batch only marks
// the tokens in it as failed. Rows are finished after all batches returned.
func (s *NotificationService) deliverPush(
	ctx context.Context,
	g *errgroup.Group,
	rows []*models.Notification,
	payload notification.PushPayload,
	rec *statsRecorder,
) {
	if len(rows) == 0 {
		return
	}
	userIDs := make([]string, len(rows))
	for i, n := range rows {
		userIDs[i] = n.RecipientUserID
	}
	tokensByUser, err := s.users.GetPushTokens(ctx, userIDs)
	if err != nil {
		s.logger.Error("failed to load push tokens", zap.Error(err))
		for _, n := range rows {
			s.finish(ctx, n, deliveryOutcome{err: err, retryable: true}, rec)
		}
		return
	}

	// a token shared by several rows is sent once and its result applies to all of them
	states := make(map[string]*pushState, len(rows))
	owners := make(map[string][]*pushState)
	var tokens []string
	for _, n := range rows {
		userTokens := tokensByUser[n.RecipientUserID]
		if len(userTokens) == 0 {
			s.finish(ctx, n, deliveryOutcome{err: notification.ErrNoPushToken}, rec)
			continue
		}
		st := &pushState{n: n}
		states[n.NotificationID] = st
		for _, token := range userTokens {
			if _, seen := owners[token]; !seen {
				tokens = append(tokens, token)
			}
			owners[token] = append(owners[token], st)
		}
	}
	if len(tokens) == 0 {
		return
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var invalid []string
	for _, batch := range notification.Chunk(tokens, s.config.PushBatchSize) {
		batch := batch
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			results, err := s.sendPushBatch(ctx, batch, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				retryable := true
				var perr *models.ProviderError
				if errors.As(err, &perr) {
					retryable = perr.Retryable
				}
				for _, token := range batch {
					for _, st := range owners[token] {
						st.lastErr = err
						st.retryable = st.retryable || retryable
					}
				}
				return nil
			}
			for _, r := range results {
				for _, st := range owners[r.Token] {
					if r.Success {
						st.delivered = true
						continue
					}
					st.lastErr = &models.ProviderError{Provider: "push", Err: errors.New(r.Error)}
				}
				if !r.Success && isInvalidToken(r.Error) {
					invalid = append(invalid, r.Token)
				}
			}
			return nil
		})
	}

	// finish once every batch reported
	g.Go(func() error {
		wg.Wait()
		for _, token := range invalid {
			if err := s.users.DeletePushToken(ctx, token); err != nil {
				s.logger.Warn("failed to drop invalid push token", zap.Error(err))
			}
		}
		ordered := make([]*pushState, 0, len(states))
		for _, st := range states {
			ordered = append(ordered, st)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].n.NotificationID < ordered[j].n.NotificationID })
		for _, st := range ordered {
			outcome := deliveryOutcome{}
			if !st.delivered {
				outcome = deliveryOutcome{err: st.lastErr, retryable: st.retryable}
				if outcome.err == nil {
					outcome.err = notification.ErrNoPushToken
				}
			}
			s.finish(ctx, st.n, outcome, rec)
			if st.delivered {
				rec.add(func(stats *models.DeliveryStats) { stats.PushNotificationsSent++ })
			}
		}
		return nil
	})
}

// isInvalidToken reports whether the provider rejected a token permanently
func isInvalidToken(reason string) bool {
	switch reason {
	case "unregistered", "invalid_token":
		return true
	}
	return false
}

// sendPushBatch performs one bounded provider call behind the circuit breaker.
// A timeout counts as a retryable provider failure.
func (s *NotificationService) sendPushBatch(ctx context.Context, tokens []string, payload notification.PushPayload) ([]notification.TokenResult, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := notification.WithTimeout(ctx, s.config.ProviderTimeout)
		defer cancel()
		results, err := s.push.Send(callCtx, tokens, payload)
		if err == nil && callCtx.Err() != nil {
			err = callCtx.Err()
		}
		return results, err
	})
	if err != nil {
		s.metrics.PushBatch("failure")
		s.logger.Warn("push batch failed", zap.Int("tokens", len(tokens)), zap.Error(err))
		var perr *models.ProviderError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &models.ProviderError{Provider: "push", Retryable: true, Err: err}
	}
	s.metrics.PushBatch("success")
	return out.([]notification.TokenResult), nil
}

// sendDirect delivers an email or sms row through its channel sender
func (s *NotificationService) sendDirect(ctx context.Context, n *models.Notification, to notification.Recipient) deliveryOutcome {
	sender, ok := s.senders[n.Channel]
	if !ok {
		return deliveryOutcome{err: notification.ErrUnsupportedChannel}
	}
	if err := sender.Validate(to); err != nil {
		return deliveryOutcome{err: err}
	}
	callCtx, cancel := notification.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()
	err := sender.Send(callCtx, n, to)
	if err == nil {
		return deliveryOutcome{}
	}
	var perr *models.ProviderError
	if errors.As(err, &perr) {
		return deliveryOutcome{err: err, retryable: perr.Retryable}
	}
	return deliveryOutcome{err: err, retryable: errors.Is(err, context.DeadlineExceeded)}
}

// finish records one delivery attempt: new delivery state plus an attempt log row
func (s *NotificationService) finish(ctx context.Context, n *models.Notification, outcome deliveryOutcome, rec *statsRecorder) {
	now := s.now()
	attempts := n.Attempts + 1
	logEntry := &models.NotificationLog{
		NotificationID: n.NotificationID,
		AttemptNumber:  attempts,
		CreatedAt:      now,
	}

	var (
		status   models.NotificationStatus
		next     sql.NullTime
		lastErr  sql.NullString
		failed   bool
		terminal bool
	)
	if outcome.err == nil {
		status = models.NotificationStatusDelivered
		if n.Channel == models.ChannelEmail || n.Channel == models.ChannelSMS {
			status = models.NotificationStatusSent
		}
	} else {
		failed = true
		status = models.NotificationStatusFailed
		lastErr = sql.NullString{String: outcome.err.Error(), Valid: true}
		logEntry.ErrorMessage = lastErr
		if outcome.retryable && attempts < n.MaxAttempts {
			next = sql.NullTime{Time: s.nextAttemptAt(n.Attempts, now), Valid: true}
		} else {
			terminal = true
		}
	}
	logEntry.Status = status

	if err := s.notifications.UpdateDeliveryState(ctx, n.NotificationID, status, attempts, next, lastErr, now); err != nil {
		s.logger.Error("failed to record delivery state", zap.String("notification_id", n.NotificationID), zap.Error(err))
	}
	if err := s.notifications.CreateNotificationLog(ctx, logEntry); err != nil {
		s.logger.Error("failed to log notification attempt", zap.String("notification_id", n.NotificationID), zap.Error(err))
	}
	n.Status = status
	n.Attempts = attempts
	n.NextAttemptAt = next
	n.LastError = lastErr

	s.metrics.NotificationOutcome(string(n.Channel), string(status))
	if failed {
		s.logger.Warn("notification delivery failed",
			zap.String("notification_id", n.NotificationID),
			zap.String("channel", string(n.Channel)),
			zap.Int("attempt", attempts),
			zap.Bool("final", terminal),
			zap.Error(outcome.err))
	}
	if rec != nil {
		rec.add(func(st *models.DeliveryStats) {
			if failed {
				st.Failed++
			} else {
				st.Delivered++
			}
		})
	}
}

// nextAttemptAt applies the backoff formula
// delay = min(initialDelay * multiplier^retryCount, maxDelay)
func (s *NotificationService) nextAttemptAt(retryCount int, now time.Time) time.Time {
	delaySeconds := s.config.InitialRetryDelay.Seconds() * math.Pow(s.config.BackoffMultiplier, float64(retryCount))
	delay := time.Duration(delaySeconds * float64(time.Second))
	if delay > s.config.MaxRetryDelay {
		delay = s.config.MaxRetryDelay
	}
	return now.Add(delay)
}

// RetryStats summarizes one retry pass
type RetryStats struct {
	Processed   int `json:"processed"`
	Delivered   int `json:"delivered"`
	Failed      int `json:"failed"`
	Rescheduled int `json:"rescheduled"`
}

// RetryDue re-attempts deferred notifications whose quiet hours ended and
// failed ones whose backoff elapsed.
func (s *NotificationService) RetryDue(ctx context.Context) (*RetryStats, error) {
	now := s.now()
	due, err := s.notifications.GetDueNotifications(ctx, now, s.config.WorkerBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load due notifications: %w", err)
	}
	rec := &statsRecorder{}
	var mu sync.Mutex
	stats := &RetryStats{Processed: len(due)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.WorkerPoolSize)
	for i := range due {
		n := &due[i]
		g.Go(func() error {
			if s.redefer(gctx, n, now) {
				mu.Lock()
				stats.Rescheduled++
				mu.Unlock()
				return nil
			}
			s.finish(gctx, n, s.redeliver(gctx, n), rec)
			return nil
		})
	}
	_ = g.Wait()

	stats.Delivered = rec.stats.Delivered
	stats.Failed = rec.stats.Failed
	if stats.Processed > 0 {
		s.logger.Info("notification retry pass completed",
			zap.Int("processed", stats.Processed),
			zap.Int("delivered", stats.Delivered),
			zap.Int("failed", stats.Failed),
			zap.Int("rescheduled", stats.Rescheduled))
	}
	return stats, nil
}

// redefer pushes a deferred row further when the recipient is still in quiet hours
func (s *NotificationService) redefer(ctx context.Context, n *models.Notification, now time.Time) bool {
	if n.Status != models.NotificationStatusPending {
		return false
	}
	pref, err := s.preferences.GetPreference(ctx, n.RecipientUserID)
	if err != nil {
		return false
	}
	deferred, until := shouldDefer(pref, n.Type, n.Channel, now)
	if !deferred {
		return false
	}
	next := sql.NullTime{Time: until, Valid: true}
	if err := s.notifications.UpdateDeliveryState(ctx, n.NotificationID, n.Status, n.Attempts, next, n.LastError, now); err != nil {
		s.logger.Error("failed to reschedule notification", zap.String("notification_id", n.NotificationID), zap.Error(err))
	}
	return true
}

func (s *NotificationService) redeliver(ctx context.Context, n *models.Notification) deliveryOutcome {
	switch n.Channel {
	case models.ChannelInApp:
		return deliveryOutcome{}
	case models.ChannelPush:
		tokensByUser, err := s.users.GetPushTokens(ctx, []string{n.RecipientUserID})
		if err != nil {
			return deliveryOutcome{err: err, retryable: true}
		}
		tokens := tokensByUser[n.RecipientUserID]
		if len(tokens) == 0 {
			return deliveryOutcome{err: notification.ErrNoPushToken}
		}
		outcome := deliveryOutcome{err: notification.ErrNoPushToken}
		for _, batch := range notification.Chunk(tokens, s.config.PushBatchSize) {
			results, err := s.sendPushBatch(ctx, batch, payloadFromRow(n))
			if err != nil {
				var perr *models.ProviderError
				outcome = deliveryOutcome{err: err, retryable: !errors.As(err, &perr) || perr.Retryable}
				continue
			}
			for _, r := range results {
				if r.Success {
					return deliveryOutcome{}
				}
				outcome = deliveryOutcome{err: &models.ProviderError{Provider: "push", Err: errors.New(r.Error)}}
			}
		}
		return outcome
	default:
		user, err := s.users.GetUserByID(ctx, n.RecipientUserID)
		if err != nil {
			return deliveryOutcome{err: err, retryable: !models.IsNotFound(err)}
		}
		return s.sendDirect(ctx, n, notification.RecipientFromUser(user))
	}
}

// ListNotifications returns a user's notifications, newest first
func (s *NotificationService) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.notifications.GetNotificationsByRecipient(ctx, userID)
}
