package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sf7293/job-notifier/internal/domain"
	"github.com/sf7293/job-notifier/internal/errval"
)

// Dispatcher resolves a candidate's notification preference and fans the task
// out to the selected channel senders. Every selected channel is attempted
// independently: one provider falling over never aborts the other channel.
type Dispatcher struct {
	store         domain.CandidateStore
	senders       map[domain.Channel]domain.ChannelSender
	lookupTimeout time.Duration
	sendTimeout   time.Duration
}

func NewDispatcher(store domain.CandidateStore, senders []domain.ChannelSender, lookupTimeout, sendTimeout time.Duration) *Dispatcher {
	byChannel := make(map[domain.Channel]domain.ChannelSender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}

	return &Dispatcher{
		store:         store,
		senders:       byChannel,
		lookupTimeout: lookupTimeout,
		sendTimeout:   sendTimeout,
	}
}

// Dispatch runs one task execution. A nil error with zero results means a
// legitimate no-op (no application, or every channel opted out). A non-nil
// error means the lookup itself failed and the task should go through the
// retry policy.
func (d *Dispatcher) Dispatch(ctx context.Context, task *domain.Task) ([]domain.ChannelResult, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()

	app, err := d.store.GetApplicationDetails(lookupCtx, task.Event.Record.CandID, task.Event.Record.RequirementID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			slog.Info("Application not found or already fully notified, skipping",
				"task_id", task.ID, "cand_id", task.Event.Record.CandID)
			return []domain.ChannelResult{}, nil
		}

		return nil, err
	}

	channels := d.selectChannels(app)
	if len(channels) == 0 {
		slog.Info("Candidate opted out of every channel, nothing to send", "task_id", task.ID, "cand_id", app.Candidate.CandID)
		return []domain.ChannelResult{}, nil
	}

	results := make([]domain.ChannelResult, len(channels))
	var wg sync.WaitGroup
	for idx, ch := range channels {
		wg.Add(1)
		go func(idx int, ch domain.Channel) {
			defer wg.Done()
			results[idx] = d.attemptChannel(ctx, task.ID, ch, app)
		}(idx, ch)
	}
	wg.Wait()

	return results, nil
}

func (d *Dispatcher) selectChannels(app *domain.Application) []domain.Channel {
	channels := []domain.Channel{}
	if app.Candidate.Preference.NotifyEmail {
		channels = append(channels, domain.ChannelEmail)
	}
	if app.Candidate.Preference.NotifySMS {
		channels = append(channels, domain.ChannelSMS)
	}

	return channels
}

func (d *Dispatcher) attemptChannel(ctx context.Context, taskID string, ch domain.Channel, app *domain.Application) domain.ChannelResult {
	// Per-channel sent flags persist across retries, so a re-attempted task
	// does not send the same message twice over a channel that already went out
	if (ch == domain.ChannelEmail && app.EmailSent) || (ch == domain.ChannelSMS && app.SMSSent) {
		slog.Info("Channel already sent for this application, skipping", "task_id", taskID, "channel", ch)
		return domain.ChannelResult{Channel: ch, Status: domain.ChannelSkipped}
	}

	sender, ok := d.senders[ch]
	if !ok {
		return domain.ChannelResult{Channel: ch, Status: domain.ChannelFailed, Error: "no sender configured for channel"}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := sender.Send(sendCtx, app); err != nil {
		if errors.Is(err, errval.ErrUnusableRecipient) {
			// Unusable recipient (e.g. no valid phone number), retrying will
			// not help, record it as an intentional skip
			slog.Warn("Channel has no usable recipient, skipping", "task_id", taskID, "channel", ch, "error", err.Error())
			return domain.ChannelResult{Channel: ch, Status: domain.ChannelSkipped, Error: err.Error()}
		}

		slog.Error("Channel send failed", "task_id", taskID, "channel", ch, "error", err.Error())
		return domain.ChannelResult{Channel: ch, Status: domain.ChannelFailed, Error: err.Error()}
	}

	d.markSent(ctx, taskID, ch, app.ApplicationID)
	slog.Info("Channel sent successfully", "task_id", taskID, "channel", ch, "application_id", app.ApplicationID)
	return domain.ChannelResult{Channel: ch, Status: domain.ChannelSent}
}

func (d *Dispatcher) markSent(ctx context.Context, taskID string, ch domain.Channel, applicationID int64) {
	var err error
	switch ch {
	case domain.ChannelEmail:
		err = d.store.MarkEmailSent(ctx, applicationID)
	case domain.ChannelSMS:
		err = d.store.MarkSMSSent(ctx, applicationID)
	}
	if err != nil {
		// The send already happened; a failed flag update means a retried task
		// may re-send this channel (at-least-once delivery)
		slog.Error("Error occurred while marking channel as sent", "task_id", taskID, "channel", ch, "error", err.Error())
	}
}
