// internal/workers/notifications/process-due/handler.go
package processdue

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/common/events"
	"kennel-notifications/internal/common/logger"
	"kennel-notifications/internal/common/metrics"
	"kennel-notifications/internal/common/observability"
	"kennel-notifications/internal/models"
	"kennel-notifications/internal/notifications/dispatch"
	"kennel-notifications/internal/notifications/ledger"
	"kennel-notifications/internal/notifications/recipient"
	"kennel-notifications/internal/notifications/render"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	TaskType = "process-due-notifications"

	publishTimeout  = 5 * time.Second
	finalizeTimeout = 15 * time.Second
)

// errClaimLost reports that a job's claim was expired by a reconciler before
// it was dispatched. The row already carries its final state.
var errClaimLost = stderrors.New("claim lease lost")

// NotificationStore is the part of the job store a pass needs.
type NotificationStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.DueJob, error)
	Claim(ctx context.Context, id, workerID string, now time.Time) (bool, error)
	RenewClaim(ctx context.Context, id, workerID string, now time.Time) (bool, error)
	ExpireClaim(ctx context.Context, id string, olderThan time.Time, reason string) (bool, error)
	MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	FindStaleClaims(ctx context.Context, olderThan time.Time, limit int) ([]models.ScheduledNotification, error)
}

type BookingReader interface {
	GetBookingContext(ctx context.Context, bookingID string) (*models.BookingContext, error)
}

// Dependencies are the collaborators of a Handler. Bookings, Ledger,
// Publisher and Observability are optional.
type Dependencies struct {
	Store         NotificationStore
	Bookings      BookingReader
	Renderer      *render.Renderer
	Resolver      *recipient.Resolver
	Dispatcher    dispatch.Client
	Ledger        ledger.Ledger
	Publisher     events.Publisher
	Observability *observability.Observability
	Logger        logger.Logger
}

type Handler struct {
	config     *Config
	store      NotificationStore
	bookings   BookingReader
	renderer   *render.Renderer
	resolver   *recipient.Resolver
	dispatcher dispatch.Client
	ledger     ledger.Ledger
	publisher  events.Publisher
	obs        *observability.Observability
	limiter    *rate.Limiter
	logger     logger.Logger
	now        func() time.Time

	passMu sync.Mutex
}

func NewHandler(cfg *Config, deps Dependencies) (*Handler, error) {
	if deps.Store == nil || deps.Renderer == nil || deps.Resolver == nil || deps.Dispatcher == nil {
		return nil, apperrors.NewConfigInvalidError("store, renderer, resolver and dispatcher are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.NoopLedger{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	cfg.applyDefaults()

	h := &Handler{
		config:     cfg,
		store:      deps.Store,
		bookings:   deps.Bookings,
		renderer:   deps.Renderer,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		ledger:     deps.Ledger,
		publisher:  deps.Publisher,
		obs:        deps.Observability,
		logger: deps.Logger.WithFields(map[string]interface{}{
			"taskType": TaskType,
			"workerId": cfg.WorkerID,
		}),
		now: func() time.Time { return time.Now().UTC() },
	}
	if cfg.RateLimitPerSecond > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1)
	}
	return h, nil
}

// RunPass resolves stale claims, then claims and delivers every due job once.
// Passes started in the same process run one after another. Per-job failures
// are recorded on the job and never returned; only store failures that stop
// the pass are. Cancelling ctx stops the pass before the next claim.
func (h *Handler) RunPass(ctx context.Context, trigger Trigger) (Summary, error) {
	h.passMu.Lock()
	defer h.passMu.Unlock()

	metrics.PassesActive.Inc()
	defer metrics.PassesActive.Dec()

	start := time.Now()
	log := h.logger.WithFields(map[string]interface{}{
		"passId":  uuid.New().String(),
		"trigger": string(trigger),
	})

	summary, err := h.runPass(ctx, log)

	status := "ok"
	if err != nil {
		status = "error"
		log.Error("notification pass failed", map[string]interface{}{
			"error":   err,
			"summary": summary,
		})
	} else {
		log.Info("notification pass completed", map[string]interface{}{
			"processed":  summary.Processed,
			"sent":       summary.Sent,
			"failed":     summary.Failed,
			"skipped":    summary.Skipped,
			"reconciled": summary.Reconciled,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
	h.obs.RecordPass(context.WithoutCancel(ctx), string(trigger), status, time.Since(start), summary.Sent, summary.Failed, summary.Skipped)

	return summary, err
}

func (h *Handler) runPass(ctx context.Context, log logger.Logger) (Summary, error) {
	var summary Summary

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	reconciled, err := h.reconcileStaleClaims(ctx, log)
	summary.Reconciled = reconciled
	if err != nil {
		return summary, err
	}

	jobs, err := h.store.FindDue(ctx, h.now(), h.config.BatchSize)
	if err != nil {
		return summary, err
	}
	if len(jobs) == 0 {
		log.Debug("no due notifications", nil)
		return summary, nil
	}

	var (
		mu    sync.Mutex
		fatal error
		wg    sync.WaitGroup
		sem   = make(chan struct{}, h.config.Concurrency)
	)

	for _, job := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		mu.Lock()
		stop := fatal != nil
		mu.Unlock()
		if stop {
			<-sem
			break
		}

		wg.Add(1)
		go func(job models.DueJob) {
			defer wg.Done()
			defer func() { <-sem }()

			o, err := h.processJob(ctx, job, log)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal == nil {
					fatal = err
				}
				return
			}
			summary.add(o)
		}(job)
	}
	wg.Wait()

	if fatal != nil {
		return summary, fatal
	}
	if err := ctx.Err(); err != nil {
		log.Warn("notification pass interrupted", map[string]interface{}{
			"remaining": len(jobs) - summary.Processed - summary.Skipped,
		})
		return summary, err
	}
	return summary, nil
}

// processJob claims one job and, if the claim wins, drives it to SENT or
// FAILED within JobTimeout. A job whose claim was expired by a reconciler
// before dispatch is abandoned and counted as skipped. The returned error is
// set only when the claim itself could not reach the store.
func (h *Handler) processJob(ctx context.Context, job models.DueJob, log logger.Logger) (outcome, error) {
	n := job.Notification
	jobLog := log.WithFields(map[string]interface{}{
		"notificationId": n.ID,
		"tenantId":       n.TenantID,
		"templateId":     n.TemplateID,
		"channel":        string(job.Template.Channel),
	})

	claimed, err := h.store.Claim(ctx, n.ID, h.config.WorkerID, h.now())
	if err != nil {
		return outcomeSkipped, fmt.Errorf("claim %s: %w", n.ID, err)
	}
	if !claimed {
		metrics.ClaimConflicts.Inc()
		jobLog.Debug("notification claimed by another worker", nil)
		return outcomeSkipped, nil
	}

	// A claimed job always reaches a terminal state, even if the pass is
	// cancelled, but never outlives its lease.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.JobTimeout)
	defer cancel()

	result, err := h.deliver(jobCtx, job, jobLog)

	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finalCancel()

	switch {
	case stderrors.Is(err, errClaimLost):
		metrics.ClaimsLost.Inc()
		jobLog.Warn("claim expired before dispatch, notification not sent", nil)
		return outcomeSkipped, nil
	case err != nil:
		h.recordFailure(finalCtx, job, err, jobLog)
		return outcomeFailed, nil
	}

	h.recordSuccess(finalCtx, job, result.ProviderMessageID, jobLog)
	return outcomeSent, nil
}

// deliver runs render, resolve and dispatch for a claimed job. The claim is
// renewed right before the provider call; a lost claim yields errClaimLost.
func (h *Handler) deliver(ctx context.Context, job models.DueJob, log logger.Logger) (models.DispatchResult, error) {
	n := job.Notification
	tpl := job.Template
	if tpl.ID == "" {
		return models.DispatchResult{}, apperrors.NewTemplateNotFoundError(n.TemplateID)
	}
	if !tpl.Active {
		return models.DispatchResult{}, apperrors.NewTemplateInactiveError(tpl.Name)
	}

	vars, rawRecipient, err := h.dispatchContext(ctx, job, log)
	if err != nil {
		return models.DispatchResult{}, err
	}

	rendered, err := h.renderer.Render(tpl, vars)
	if err != nil {
		return models.DispatchResult{}, err
	}
	if len(rendered.Unresolved) > 0 {
		log.Warn("template rendered with unresolved placeholders", map[string]interface{}{
			"unresolved": rendered.Unresolved,
			"policy":     h.renderer.Policy().String(),
		})
	}

	addr, err := h.resolver.Resolve(tpl.Channel, rawRecipient)
	if err != nil {
		return models.DispatchResult{}, err
	}

	if entry, err := h.ledger.Lookup(ctx, n.ID); err != nil {
		log.Warn("delivery ledger lookup failed", map[string]interface{}{"error": err})
	} else if entry != nil {
		log.Info("notification already dispatched, not sending again", map[string]interface{}{
			"providerMessageId": entry.ProviderMessageID,
		})
		return models.DispatchResult{Success: true, ProviderMessageID: entry.ProviderMessageID}, nil
	}

	if h.limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, h.config.DispatchTimeout)
		err := h.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return models.DispatchResult{}, apperrors.NewDispatchTimeoutError("rate-limiter", err)
		}
	}

	if err := h.holdClaim(ctx, n.ID); err != nil {
		return models.DispatchResult{}, err
	}

	msg := dispatch.Message{
		Channel:        tpl.Channel,
		To:             addr.ForChannel(tpl.Channel),
		TemplateName:   tpl.Name,
		Language:       tpl.Language,
		Variables:      vars,
		ParameterOrder: render.Placeholders(tpl.Body),
		Subject:        rendered.Subject,
		Body:           rendered.Body,
		IdempotencyKey: n.ID,
	}

	result, err := h.send(ctx, msg)
	if err != nil {
		return result, err
	}

	// The provider accepted the message; record it even if the job ran out of time.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	entry := ledger.Entry{ProviderMessageID: result.ProviderMessageID, DispatchedAt: h.now()}
	if err := h.ledger.Record(recordCtx, n.ID, entry); err != nil {
		log.Warn("delivery ledger record failed", map[string]interface{}{"error": err})
	}
	return result, nil
}

// holdClaim renews the job's lease. It fails with errClaimLost when the row
// is no longer IN_PROGRESS under this worker, and with a dispatch timeout
// when the job ran out of time.
func (h *Handler) holdClaim(ctx context.Context, id string) error {
	renewCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	held, err := h.store.RenewClaim(renewCtx, id, h.config.WorkerID, h.now())
	if err != nil {
		return err
	}
	if !held {
		return errClaimLost
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewDispatchTimeoutError("job", err)
	}
	return nil
}

func (h *Handler) send(ctx context.Context, msg dispatch.Message) (models.DispatchResult, error) {
	dispatchCtx, cancel := context.WithTimeout(ctx, h.config.DispatchTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.dispatcher.Send(dispatchCtx, msg)
	metrics.DispatchDuration.WithLabelValues(string(msg.Channel)).Observe(time.Since(start).Seconds())

	if err != nil {
		if stderrors.Is(dispatchCtx.Err(), context.DeadlineExceeded) && apperrors.CodeOf(err) != apperrors.ErrCodeDispatchTimeout {
			err = apperrors.NewDispatchTimeoutError(string(msg.Channel), err)
		}
		return result, err
	}
	if !result.Success {
		return result, apperrors.NewProviderRejectedError(string(msg.Channel), result.Error)
	}
	return result, nil
}

// dispatchContext returns the variables and raw recipient for a job. The
// frozen snapshot always wins; booking fields only fill gaps, and the booking
// is read only when there is a gap to fill.
func (h *Handler) dispatchContext(ctx context.Context, job models.DueJob, log logger.Logger) (map[string]string, string, error) {
	n := job.Notification
	vars := make(map[string]string, len(n.Variables))
	for k, v := range n.Variables {
		vars[k] = v
	}
	rawRecipient := n.Recipient

	needsBooking := rawRecipient == ""
	for _, key := range render.Placeholders(job.Template.Subject + "\n" + job.Template.Body) {
		if _, ok := vars[key]; !ok {
			needsBooking = true
			break
		}
	}

	if needsBooking && n.BookingID != "" && h.bookings != nil {
		booking, err := h.bookings.GetBookingContext(ctx, n.BookingID)
		switch {
		case err != nil && rawRecipient == "":
			return nil, "", err
		case err != nil:
			log.Warn("booking lookup failed, rendering from snapshot only", map[string]interface{}{
				"bookingId": n.BookingID,
				"error":     err,
			})
		default:
			for k, v := range booking.Variables() {
				if _, ok := vars[k]; !ok {
					vars[k] = v
				}
			}
			if rawRecipient == "" {
				rawRecipient = booking.RecipientFor(job.Template.Channel)
			}
		}
	}

	if rawRecipient == "" {
		return nil, "", apperrors.NewInvalidAddressError("", "no recipient on job or booking")
	}
	return vars, rawRecipient, nil
}

func (h *Handler) recordSuccess(ctx context.Context, job models.DueJob, providerMessageID string, log logger.Logger) {
	n := job.Notification
	sentAt := h.now()

	if err := h.store.MarkSent(ctx, n.ID, providerMessageID, sentAt); err != nil {
		// The ledger entry lets the next pass's reconciler finish this row.
		log.Error("failed to mark notification sent", map[string]interface{}{
			"error":             err,
			"providerMessageId": providerMessageID,
		})
	}
	metrics.NotificationsSent.WithLabelValues(string(job.Template.Channel)).Inc()

	log.Info("notification sent", map[string]interface{}{
		"providerMessageId": providerMessageID,
	})

	h.publish(ctx, events.OutcomeEvent{
		Type:              events.TypeNotificationSent,
		NotificationID:    n.ID,
		TenantID:          n.TenantID,
		BookingID:         n.BookingID,
		Channel:           string(job.Template.Channel),
		ProviderMessageID: providerMessageID,
		OccurredAt:        sentAt,
	}, log)
}

func (h *Handler) recordFailure(ctx context.Context, job models.DueJob, cause error, log logger.Logger) {
	n := job.Notification
	stdErr := apperrors.Normalize(cause)
	reason := stdErr.Error()

	if err := h.store.MarkFailed(ctx, n.ID, reason); err != nil {
		log.Error("failed to mark notification failed", map[string]interface{}{
			"error":  err,
			"reason": reason,
		})
	}
	metrics.NotificationsFailed.WithLabelValues(string(job.Template.Channel), string(stdErr.Code)).Inc()

	log.Warn("notification failed", map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"category":  string(stdErr.Category()),
		"retryable": stdErr.Retryable,
		"reason":    reason,
	})

	h.publish(ctx, events.OutcomeEvent{
		Type:           events.TypeNotificationFailed,
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		BookingID:      n.BookingID,
		Channel:        string(job.Template.Channel),
		ErrorCode:      string(stdErr.Code),
		Error:          reason,
		OccurredAt:     h.now(),
	}, log)
}

func (h *Handler) publish(ctx context.Context, event events.OutcomeEvent, log logger.Logger) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := h.publisher.Publish(pubCtx, event); err != nil {
		log.Warn("failed to publish outcome event", map[string]interface{}{
			"error": err,
			"type":  event.Type,
		})
	}
}

// reconcileStaleClaims resolves IN_PROGRESS jobs whose claim lease expired.
// A ledger hit means the provider accepted the message, so the job becomes
// SENT. Without one the job becomes FAILED with CLAIM_EXPIRED; it is never
// sent again automatically. Expiry only applies while the lease is still
// stale, so a worker that renewed its claim in the meantime keeps the job.
func (h *Handler) reconcileStaleClaims(ctx context.Context, log logger.Logger) (int, error) {
	cutoff := h.now().Add(-h.config.ClaimLease)
	stale, err := h.store.FindStaleClaims(ctx, cutoff, h.config.BatchSize)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, n := range stale {
		if ctx.Err() != nil {
			break
		}
		staleLog := log.WithFields(map[string]interface{}{
			"notificationId": n.ID,
			"claimedBy":      n.ClaimedBy,
		})

		entry, err := h.ledger.Lookup(ctx, n.ID)
		if err != nil {
			staleLog.Warn("delivery ledger unavailable, leaving stale claim for next pass", map[string]interface{}{"error": err})
			continue
		}

		if entry != nil {
			if err := h.store.MarkSent(ctx, n.ID, entry.ProviderMessageID, entry.DispatchedAt); err != nil {
				staleLog.Error("failed to reconcile stale claim as sent", map[string]interface{}{"error": err})
				continue
			}
			metrics.StaleClaimsReconciled.WithLabelValues("sent").Inc()
			staleLog.Info("stale claim reconciled as sent", map[string]interface{}{
				"providerMessageId": entry.ProviderMessageID,
			})
		} else {
			reason := apperrors.FailureReason(apperrors.NewClaimExpiredError(n.ClaimedBy))
			expired, err := h.store.ExpireClaim(ctx, n.ID, cutoff, reason)
			if err != nil {
				staleLog.Error("failed to reconcile stale claim as failed", map[string]interface{}{"error": err})
				continue
			}
			if !expired {
				staleLog.Debug("stale claim renewed or finished meanwhile", nil)
				continue
			}
			metrics.StaleClaimsReconciled.WithLabelValues("failed").Inc()
			staleLog.Warn("stale claim reconciled as failed", nil)
		}
		reconciled++
	}
	return reconciled, nil
}
