package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
	"log/slog"
)

type storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*storage, error) {
	var pool *pgxpool.Pool
	var err error

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	err = backoff.Retry(func() error {
		if pool, err = pgxpool.ConnectConfig(ctx, config); err != nil {
			slog.ErrorContext(ctx, "failed to connect to postgres database.. retrying...", "error", err)
			return err
		}

		if err = pool.Ping(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ping postgres database connection.. retrying...", "error", err)
			return err
		}

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5))

	if err != nil {
		return nil, err
	}

	return &storage{
		pool: pool,
	}, nil
}

const getApplicationDetailsQuery = `
SELECT t.application_id,
       t.application_status,
       t.email_sent,
       t.sms_sent,
       c.cand_id,
       c.candidate_first_name,
       COALESCE(c.candidate_last_name, ''),
       c.candidate_email,
       COALESCE(c.candidate_mobile, ''),
       COALESCE(c.candidate_work, ''),
       COALESCE(c.candidate_home, ''),
       c.notify_email,
       c.notify_sms,
       r.requirement_id,
       r.requirement_title,
       COALESCE(r.requirement_description, ''),
       COALESCE(r.client_name, 'N/A'),
       COALESCE(r.requirement_location, ''),
       COALESCE(r.requirement_zipcode, ''),
       r.is_remote_location,
       COALESCE(r.requirement_duration, ''),
       COALESCE(r.similarity_score, 0)
FROM job_application_tracking t
         JOIN candidates c ON c.cand_id = t.cand_id
         JOIN requirements r ON r.requirement_id = t.requirement_id
WHERE t.cand_id = $1
  AND t.requirement_id = $2
  AND NOT (t.email_sent AND t.sms_sent)
`

// GetApplicationDetails joins the candidate, the matched requirement and the
// tracking row. A missing application, or one whose both channels already went
// out, comes back as errval.ErrNotFound so the task ends as a no-op.
func (s *storage) GetApplicationDetails(ctx context.Context, candID int64, requirementID string) (*domain.Application, error) {
	app := &domain.Application{}
	cand := &app.Candidate
	req := &app.Requirement

	var location, zipcode string
	err := s.pool.QueryRow(ctx, getApplicationDetailsQuery, candID, requirementID).Scan(
		&app.ApplicationID,
		&app.Status,
		&app.EmailSent,
		&app.SMSSent,
		&cand.CandID,
		&cand.FirstName,
		&cand.LastName,
		&cand.Email,
		&cand.Mobile,
		&cand.WorkPhone,
		&cand.HomePhone,
		&cand.Preference.NotifyEmail,
		&cand.Preference.NotifySMS,
		&req.RequirementID,
		&req.Title,
		&req.Description,
		&req.ClientName,
		&location,
		&zipcode,
		&req.IsRemote,
		&req.Duration,
		&req.SimilarityScore,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errval.ErrNotFound
		}

		return nil, err
	}

	req.Zipcode = zipcode
	req.Location = buildLocation(req.IsRemote, location, zipcode)
	return app, nil
}

func (s *storage) MarkEmailSent(ctx context.Context, applicationID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_application_tracking SET email_sent = TRUE, email_sent_at = NOW() WHERE application_id = $1`,
		applicationID,
	)

	return err
}

func (s *storage) MarkSMSSent(ctx context.Context, applicationID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_application_tracking SET sms_sent = TRUE, sms_sent_at = NOW() WHERE application_id = $1`,
		applicationID,
	)

	return err
}

func (s *storage) Ping(ctx context.Context) (err error) {
	return s.pool.Ping(ctx)
}

func buildLocation(isRemote bool, location, zipcode string) string {
	if isRemote {
		return "Remote"
	}

	parts := []string{}
	if location != "" {
		parts = append(parts, location)
	}
	if zipcode != "" {
		parts = append(parts, zipcode)
	}
	if len(parts) == 0 {
		return "Location TBD"
	}

	return strings.Join(parts, ", ")
}
