package carerecipient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/platform/flash"
	"github.com/hans/hans/internal/platform/metrics"
)

// DeletionOutcome is the result of one deletion attempt.
type DeletionOutcome struct {
	ID                  uuid.UUID `json:"id"`
	ProviderReferenceID string    `json:"provider_reference_id,omitempty"`
	Deleted             bool      `json:"deleted"`
	Message             string    `json:"message,omitempty"`
	Err                 error     `json:"-"`
}

func (o DeletionOutcome) label() string {
	if o.ProviderReferenceID != "" {
		return o.ProviderReferenceID
	}
	return o.ID.String()
}

// DeletionReport lists one outcome per requested id, in request order.
type DeletionReport struct {
	Outcomes []DeletionOutcome `json:"outcomes"`
}

func (r *DeletionReport) Total() int {
	return len(r.Outcomes)
}

func (r *DeletionReport) Deleted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Deleted {
			n++
		}
	}
	return n
}

func (r *DeletionReport) Failed() []DeletionOutcome {
	var failed []DeletionOutcome
	for _, o := range r.Outcomes {
		if !o.Deleted {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summary reads like "3 of 4 care recipients deleted".
func (r *DeletionReport) Summary() string {
	return fmt.Sprintf("%d of %d care recipients deleted", r.Deleted(), r.Total())
}

// Lines is the summary followed by one line per failure.
func (r *DeletionReport) Lines() []string {
	lines := []string{r.Summary()}
	for _, o := range r.Failed() {
		lines = append(lines, fmt.Sprintf("%s: %s", o.label(), o.Message))
	}
	return lines
}

func (r *DeletionReport) Messages() []flash.Message {
	level := flash.LevelSuccess
	if len(r.Failed()) > 0 {
		level = flash.LevelWarning
	}
	msgs := []flash.Message{flash.New(level, r.Summary())}
	for _, line := range r.Lines()[1:] {
		msgs = append(msgs, flash.New(flash.LevelError, line))
	}
	return msgs
}

// Deleter removes care recipients. The subscription goes first; the local
// record is only removed once the subscription service confirmed.
type Deleter struct {
	repo    Repository
	gateway SubscriptionGateway
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewDeleter(repo Repository, gateway SubscriptionGateway, logger zerolog.Logger, m *metrics.Metrics) *Deleter {
	return &Deleter{repo: repo, gateway: gateway, logger: logger, metrics: m}
}

// Delete attempts every id in turn. A failure is recorded in the report and
// never stops the remaining attempts.
func (d *Deleter) Delete(ctx context.Context, ids []uuid.UUID) *DeletionReport {
	report := &DeletionReport{Outcomes: make([]DeletionOutcome, 0, len(ids))}
	for _, id := range ids {
		o := d.deleteOne(ctx, id)
		report.Outcomes = append(report.Outcomes, o)
		if o.Deleted {
			d.metrics.ObserveDeletion(metrics.OutcomeDeleted)
			continue
		}
		d.metrics.ObserveDeletion(metrics.OutcomeFailed)
		d.logger.Warn().Err(o.Err).
			Str("care_recipient_id", id.String()).
			Str("provider_reference_id", o.ProviderReferenceID).
			Msg("care recipient not deleted")
	}
	d.logger.Info().Int("requested", report.Total()).Int("deleted", report.Deleted()).Msg("deletion finished")
	return report
}

func (d *Deleter) deleteOne(ctx context.Context, id uuid.UUID) DeletionOutcome {
	o := DeletionOutcome{ID: id}
	if err := ctx.Err(); err != nil {
		o.Err, o.Message = err, "not attempted: request cancelled"
		return o
	}

	r, err := d.repo.GetByID(ctx, id)
	if err != nil {
		o.Err = err
		if errors.Is(err, ErrNotFound) {
			o.Message = "not found"
		} else {
			o.Message = "could not be loaded"
		}
		return o
	}
	o.ProviderReferenceID = r.ProviderReferenceID

	if err := d.gateway.DeleteSubscription(ctx, r.SubscriptionID); err != nil {
		o.Err = err
		o.Message = fmt.Sprintf("%s: %s", MsgSubscriptionNotDeleted, err.Error())
		return o
	}

	if err := d.repo.Delete(ctx, id); err != nil {
		d.logger.Error().Err(err).
			Str("care_recipient_id", id.String()).
			Str("subscription_id", r.SubscriptionID.String()).
			Msg("subscription deleted but care recipient kept")
		o.Err = err
		o.Message = "subscription deleted but the record could not be removed"
		return o
	}

	o.Deleted = true
	return o
}
