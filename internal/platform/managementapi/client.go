// Package managementapi is the HTTP adapter for the subscription service that
// registers patients for hospital activity notifications. Callers only see
// two operations, create and delete, and a single error type.
package managementapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/platform/fhir"
	"github.com/hans/hans/internal/platform/metrics"
)

const (
	SubscriptionIDHeader = "X-Subscription-Id"

	nhsNumberSystem             = "https://fhir.nhs.uk/Id/nhs-number"
	verificationStatusExtension = "https://fhir.hl7.org.uk/StructureDefinition/Extension-UKCore-NHSNumberVerificationStatus"
	verificationStatusSystem    = "https://fhir.hl7.org.uk/CodeSystem/UKCore-NHSNumberVerificationStatusEngland"
	verificationTraceRequired   = "03"
)

// Config holds the connection settings for the subscription service.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// Validate fails when the configuration cannot produce a working client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("%w, got %d", ErrNegativeRetryCount, c.RetryCount)
	}
	return nil
}

// PatientDetails are the identifying fields sent when creating a subscription.
// They are held in memory for the duration of the call only.
type PatientDetails struct {
	GivenNames []string
	FamilyName string
	NHSNumber  string
	BirthDate  time.Time
}

// Client talks to the subscription service over HTTP.
type Client struct {
	http    *resty.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger used for request outcomes.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records call latency and outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a Client. Requests time out after cfg.Timeout and are
// retried up to cfg.RetryCount times. Creates are retried only when the
// service refused the connection or answered 503, since any other failure may
// have left a subscription behind. Deletes are idempotent and are also
// retried on other transport errors, 502 and 504.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(4 * wait).
		SetHeader("Content-Type", "application/fhir+json").
		SetHeader("Accept", "application/fhir+json")

	c := &Client{http: rc, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// retryCreate retries only failures where the request cannot have been
// processed.
func retryCreate(resp *resty.Response, err error) bool {
	if err != nil {
		return errors.Is(err, syscall.ECONNREFUSED)
	}
	return resp.StatusCode() == http.StatusServiceUnavailable
}

func retryDelete(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// CreateSubscription registers the patient and returns the id assigned by the
// service.
func (c *Client) CreateSubscription(ctx context.Context, p PatientDetails) (uuid.UUID, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(NewPatientResource(p)).
		AddRetryCondition(retryCreate).
		Post("/subscription")
	if err != nil {
		c.observe(opCreate, metrics.OutcomeError, start)
		return uuid.Nil, &Error{Op: opCreate, Diagnostics: "subscription service unreachable", Err: err}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		c.observe(opCreate, metrics.OutcomeError, start)
		return uuid.Nil, errorFromResponse(opCreate, resp)
	}

	raw := resp.Header().Get(SubscriptionIDHeader)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.observe(opCreate, metrics.OutcomeError, start)
		return uuid.Nil, &Error{
			Op:          opCreate,
			StatusCode:  resp.StatusCode(),
			Diagnostics: fmt.Sprintf("subscription service returned an invalid %s header", SubscriptionIDHeader),
			Err:         err,
		}
	}

	c.observe(opCreate, metrics.OutcomeSuccess, start)
	c.logger.Debug().Str("subscription_id", id.String()).Int("status", resp.StatusCode()).Msg("subscription created")
	return id, nil
}

// DeleteSubscription removes the subscription with the given id.
func (c *Client) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id.String()).
		AddRetryCondition(retryDelete).
		Delete("/subscription/{id}")
	if err != nil {
		c.observe(opDelete, metrics.OutcomeError, start)
		return &Error{Op: opDelete, Diagnostics: "subscription service unreachable", Err: err}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		c.observe(opDelete, metrics.OutcomeError, start)
		return errorFromResponse(opDelete, resp)
	}

	c.observe(opDelete, metrics.OutcomeSuccess, start)
	c.logger.Debug().Str("subscription_id", id.String()).Int("status", resp.StatusCode()).Msg("subscription deleted")
	return nil
}

func (c *Client) observe(op, outcome string, start time.Time) {
	c.metrics.ObserveGateway(op, outcome, start)
	if outcome == metrics.OutcomeError {
		c.logger.Warn().Str("operation", op).Dur("latency", time.Since(start)).Msg("subscription service call failed")
	}
}

// errorFromResponse turns a >= 400 response into an Error carrying the first
// OperationOutcome diagnostic.
func errorFromResponse(op string, resp *resty.Response) error {
	var outcome fhir.OperationOutcome
	if err := json.Unmarshal(resp.Body(), &outcome); err != nil {
		return &Error{
			Op:          op,
			StatusCode:  resp.StatusCode(),
			Diagnostics: fmt.Sprintf("subscription service returned status %d with an unreadable body", resp.StatusCode()),
			Err:         err,
		}
	}
	if outcome.ResourceType != "OperationOutcome" || len(outcome.Issue) == 0 {
		return &Error{
			Op:          op,
			StatusCode:  resp.StatusCode(),
			Diagnostics: fmt.Sprintf("subscription service returned status %d without an OperationOutcome issue", resp.StatusCode()),
		}
	}
	return &Error{Op: op, StatusCode: resp.StatusCode(), Diagnostics: outcome.FirstDiagnostics()}
}

// NewPatientResource builds the FHIR Patient body for a subscription request.
// The NHS number is flagged as "trace required" since it has not been
// verified against PDS.
func NewPatientResource(p PatientDetails) fhir.Patient {
	return fhir.Patient{
		ResourceType: "Patient",
		Identifier: []fhir.Identifier{{
			System: nhsNumberSystem,
			Value:  p.NHSNumber,
			Extension: []fhir.Extension{{
				URL: verificationStatusExtension,
				ValueCodeableConcept: &fhir.CodeableConcept{
					Coding: []fhir.Coding{{
						System:  verificationStatusSystem,
						Code:    verificationTraceRequired,
						Display: "Trace required",
					}},
				},
			}},
		}},
		Name: []fhir.HumanName{{
			Use:    "usual",
			Family: p.FamilyName,
			Given:  p.GivenNames,
		}},
		BirthDate: p.BirthDate.Format("2006-01-02"),
	}
}
