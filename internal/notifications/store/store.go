// Package store persists scheduled notification jobs in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/models"

	"github.com/lib/pq"
)

// ErrInvalidTransition is returned when a status write targets a row in a
// state that does not allow it, e.g. MarkSent on a FAILED job.
var ErrInvalidTransition = stderrors.New("invalid status transition")

const notificationColumns = `
	n.id, n.tenant_id, n.template_id, COALESCE(n.booking_id, ''), n.scheduled_for,
	n.variables, COALESCE(n.recipient, ''), n.status, n.claimed_at, COALESCE(n.claimed_by, ''),
	n.attempts, n.sent_at, COALESCE(n.provider_message_id, ''), COALESCE(n.last_error, ''),
	n.created_at, n.updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindDue returns PENDING jobs with scheduled_for <= now, earliest first,
// joined with their template. A job whose template row is missing or belongs
// to another tenant comes back with an empty Template.ID.
func (s *PostgresStore) FindDue(ctx context.Context, now time.Time, limit int) ([]models.DueJob, error) {
	query := `
		SELECT ` + notificationColumns + `,
			t.id, t.tenant_id, t.name, t.channel, t.language, t.subject, t.body, t.active
		FROM scheduled_notifications n
		LEFT JOIN notification_templates t ON t.id = n.template_id AND t.tenant_id = n.tenant_id
		WHERE n.status = $1 AND n.scheduled_for <= $2
		ORDER BY n.scheduled_for ASC, n.id ASC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, models.StatusPending, now, limit)
	if err != nil {
		return nil, wrapError("find_due", err)
	}
	defer rows.Close()

	jobs := make([]models.DueJob, 0)
	for rows.Next() {
		var (
			job                                   models.DueJob
			tplID, tplTenant, tplName, tplChannel sql.NullString
			tplLanguage, tplSubject, tplBody      sql.NullString
			tplActive                             sql.NullBool
		)
		n, err := scanNotification(rows,
			&tplID, &tplTenant, &tplName, &tplChannel, &tplLanguage, &tplSubject, &tplBody, &tplActive)
		if err != nil {
			return nil, wrapError("find_due", err)
		}
		job.Notification = *n
		if tplID.Valid {
			job.Template = models.NotificationTemplate{
				ID:       tplID.String,
				TenantID: tplTenant.String,
				Name:     tplName.String,
				Channel:  models.Channel(tplChannel.String),
				Language: tplLanguage.String,
				Subject:  tplSubject.String,
				Body:     tplBody.String,
				Active:   tplActive.Bool,
			}
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("find_due", err)
	}

	return jobs, nil
}

// Claim moves a due job from PENDING to IN_PROGRESS. It reports false when
// the row was no longer PENDING, i.e. another worker claimed it first.
func (s *PostgresStore) Claim(ctx context.Context, id, workerID string, now time.Time) (bool, error) {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, claimed_at = $2, claimed_by = $3, attempts = attempts + 1, updated_at = $2
		WHERE id = $4 AND status = $5 AND scheduled_for <= $2`

	res, err := s.db.ExecContext(ctx, query, models.StatusInProgress, now, workerID, id, models.StatusPending)
	if err != nil {
		return false, wrapError("claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("claim", err)
	}
	return n == 1, nil
}

// RenewClaim refreshes claimed_at on a job workerID still holds. It reports
// false when the claim was lost, e.g. the reconciler already expired it.
func (s *PostgresStore) RenewClaim(ctx context.Context, id, workerID string, now time.Time) (bool, error) {
	query := `
		UPDATE scheduled_notifications
		SET claimed_at = $1, updated_at = $1
		WHERE id = $2 AND status = $3 AND claimed_by = $4`

	res, err := s.db.ExecContext(ctx, query, now, id, models.StatusInProgress, workerID)
	if err != nil {
		return false, wrapError("renew_claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("renew_claim", err)
	}
	return n == 1, nil
}

// ExpireClaim fails an IN_PROGRESS job whose claim is still older than
// olderThan. A claim renewed since it was found stale is left alone.
func (s *PostgresStore) ExpireClaim(ctx context.Context, id string, olderThan time.Time, reason string) (bool, error) {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4 AND claimed_at < $5`

	res, err := s.db.ExecContext(ctx, query, models.StatusFailed, reason, id, models.StatusInProgress, olderThan)
	if err != nil {
		return false, wrapError("expire_claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("expire_claim", err)
	}
	return n == 1, nil
}

// MarkSent records a successful dispatch. Calling it on a job that is
// already SENT is a no-op and leaves sent_at untouched.
func (s *PostgresStore) MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, provider_message_id = $2, sent_at = $3, last_error = NULL, updated_at = $3
		WHERE id = $4 AND status IN ($5, $6)`

	res, err := s.db.ExecContext(ctx, query,
		models.StatusSent, providerMessageID, sentAt, id, models.StatusPending, models.StatusInProgress)
	if err != nil {
		return wrapError("mark_sent", err)
	}
	return s.checkTransition(ctx, "mark_sent", res, id, models.StatusSent)
}

// MarkFailed records a terminal failure. Terminal rows are left untouched.
func (s *PostgresStore) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ($4, $5)`

	res, err := s.db.ExecContext(ctx, query,
		models.StatusFailed, reason, id, models.StatusPending, models.StatusInProgress)
	if err != nil {
		return wrapError("mark_failed", err)
	}
	return s.checkTransition(ctx, "mark_failed", res, id, models.StatusFailed)
}

// checkTransition resolves a zero-row update: the row is missing, already in
// the target state (no-op), or in a state that forbids the transition.
func (s *PostgresStore) checkTransition(ctx context.Context, op string, res sql.Result, id string, target models.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapError(op, err)
	}
	if n > 0 {
		return nil
	}

	var current models.Status
	err = s.db.QueryRowContext(ctx, `SELECT status FROM scheduled_notifications WHERE id = $1`, id).Scan(&current)
	if stderrors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError("scheduled notification", id)
	}
	if err != nil {
		return wrapError(op, err)
	}

	if current == target || (target == models.StatusFailed && current.IsTerminal()) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, current, target, id)
}

// FindStaleClaims lists IN_PROGRESS jobs claimed before olderThan.
func (s *PostgresStore) FindStaleClaims(ctx context.Context, olderThan time.Time, limit int) ([]models.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications n
		WHERE n.status = $1 AND n.claimed_at < $2
		ORDER BY n.claimed_at ASC
		LIMIT $3`

	return s.queryNotifications(ctx, "find_stale_claims", query, models.StatusInProgress, olderThan, limit)
}

// Requeue puts a FAILED job back to PENDING for an operator-driven retry.
func (s *PostgresStore) Requeue(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, claimed_at = NULL, claimed_by = NULL, last_error = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	res, err := s.db.ExecContext(ctx, query, models.StatusPending, id, models.StatusFailed)
	if err != nil {
		return false, wrapError("requeue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("requeue", err)
	}
	return n == 1, nil
}

// ListFailed returns FAILED jobs, most recently updated first.
func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]models.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications n
		WHERE n.status = $1
		ORDER BY n.updated_at DESC
		LIMIT $2`

	return s.queryNotifications(ctx, "list_failed", query, models.StatusFailed, limit)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications n
		WHERE n.id = $1`

	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("scheduled notification", id)
	}
	if err != nil {
		return nil, wrapError("get", err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrapError("ping", err)
	}
	return nil
}

func (s *PostgresStore) queryNotifications(ctx context.Context, op, query string, args ...interface{}) ([]models.ScheduledNotification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer rows.Close()

	out := make([]models.ScheduledNotification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, wrapError(op, err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row scanner, extra ...interface{}) (*models.ScheduledNotification, error) {
	var (
		n         models.ScheduledNotification
		variables []byte
		claimedAt sql.NullTime
		sentAt    sql.NullTime
	)

	dest := []interface{}{
		&n.ID, &n.TenantID, &n.TemplateID, &n.BookingID, &n.ScheduledFor,
		&variables, &n.Recipient, &n.Status, &claimedAt, &n.ClaimedBy,
		&n.Attempts, &sentAt, &n.ProviderMessageID, &n.LastError,
		&n.CreatedAt, &n.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	vars, err := decodeVariables(variables)
	if err != nil {
		return nil, fmt.Errorf("decode variables for %s: %w", n.ID, err)
	}
	n.Variables = vars
	if claimedAt.Valid {
		t := claimedAt.Time
		n.ClaimedAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	return &n, nil
}

// decodeVariables reads the JSONB snapshot. Non-string scalars are kept in
// their JSON text form; null values are dropped.
func decodeVariables(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	for k, v := range decoded {
		if string(v) == "null" {
			continue
		}
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			out[k] = str
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}

// wrapError separates connectivity failures from query failures. Postgres
// class 08 (connection), 53 (resources) and 57P (shutdown) count as the
// store being unavailable. Context errors are returned unchanged.
func wrapError(op string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53",
			pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return apperrors.NewStoreUnavailableError(err)
		}
		return apperrors.NewQueryExecutionFailedError(op, err)
	}

	var stdErr *apperrors.StandardError
	if stderrors.As(err, &stdErr) {
		return err
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return apperrors.NewQueryExecutionFailedError(op, err)
	}
	return apperrors.NewStoreUnavailableError(err)
}
