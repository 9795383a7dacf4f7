package carerecipient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/hans/hans/internal/domain/carerecipient"
	"github.com/hans/hans/internal/domain/carerecipient/mocks"
	"github.com/hans/hans/internal/platform/managementapi"
	"github.com/hans/hans/internal/platform/metrics"
)

type DeleterSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	repo    *mocks.MockRepository
	gateway *mocks.MockSubscriptionGateway
	metrics *metrics.Metrics
	deleter *carerecipient.Deleter
}

func TestDeleterSuite(t *testing.T) {
	suite.Run(t, new(DeleterSuite))
}

func (s *DeleterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.repo = mocks.NewMockRepository(s.ctrl)
	s.gateway = mocks.NewMockSubscriptionGateway(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.deleter = carerecipient.NewDeleter(s.repo, s.gateway, zerolog.Nop(), s.metrics)
}

func (s *DeleterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DeleterSuite) record(ref string) *carerecipient.CareRecipient {
	r := &carerecipient.CareRecipient{ID: uuid.New(), ProviderReferenceID: ref, SubscriptionID: uuid.New()}
	s.repo.EXPECT().GetByID(gomock.Any(), r.ID).Return(r, nil)
	return r
}

func (s *DeleterSuite) TestDelete_OneGatewayFailureKeepsOnlyThatRecord() {
	recs := []*carerecipient.CareRecipient{s.record("REF-1"), s.record("REF-2"), s.record("REF-3"), s.record("REF-4")}
	failing := recs[2]

	for _, r := range recs {
		if r == failing {
			s.gateway.EXPECT().DeleteSubscription(gomock.Any(), r.SubscriptionID).
				Return(&managementapi.Error{StatusCode: 500, Diagnostics: "upstream unavailable"}).Times(1)
			continue
		}
		s.gateway.EXPECT().DeleteSubscription(gomock.Any(), r.SubscriptionID).Return(nil).Times(1)
		s.repo.EXPECT().Delete(gomock.Any(), r.ID).Return(nil).Times(1)
	}

	ids := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	report := s.deleter.Delete(context.Background(), ids)

	s.Equal(4, report.Total())
	s.Equal(3, report.Deleted())
	s.Equal("3 of 4 care recipients deleted", report.Summary())
	s.Require().Len(report.Outcomes, 4)
	for i, o := range report.Outcomes {
		s.Equal(ids[i], o.ID, "outcomes keep request order")
	}

	failed := report.Failed()
	s.Require().Len(failed, 1)
	s.Equal("REF-3", failed[0].ProviderReferenceID)
	s.True(managementapi.IsError(failed[0].Err))
	s.Equal([]string{
		"3 of 4 care recipients deleted",
		"REF-3: could not delete the subscription: upstream unavailable",
	}, report.Lines())

	s.Equal(float64(3), testutil.ToFloat64(s.metrics.Deletions.WithLabelValues(metrics.OutcomeDeleted)))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Deletions.WithLabelValues(metrics.OutcomeFailed)))
}

func (s *DeleterSuite) TestDelete_UnknownRecordSkipsGateway() {
	id := uuid.New()
	s.repo.EXPECT().GetByID(gomock.Any(), id).Return(nil, carerecipient.ErrNotFound)

	report := s.deleter.Delete(context.Background(), []uuid.UUID{id})

	s.Equal(0, report.Deleted())
	s.ErrorIs(report.Outcomes[0].Err, carerecipient.ErrNotFound)
	s.Equal(id.String()+": not found", report.Lines()[1])
}

func (s *DeleterSuite) TestDelete_StorageFailureAfterGateway() {
	r := s.record("REF-1")
	s.gateway.EXPECT().DeleteSubscription(gomock.Any(), r.SubscriptionID).Return(nil)
	s.repo.EXPECT().Delete(gomock.Any(), r.ID).Return(errors.New("connection reset"))

	report := s.deleter.Delete(context.Background(), []uuid.UUID{r.ID})

	s.Equal(0, report.Deleted())
	s.Contains(report.Outcomes[0].Message, "subscription deleted")
}

func (s *DeleterSuite) TestDelete_AllSucceedMessages() {
	r := s.record("REF-1")
	s.gateway.EXPECT().DeleteSubscription(gomock.Any(), r.SubscriptionID).Return(nil)
	s.repo.EXPECT().Delete(gomock.Any(), r.ID).Return(nil)

	report := s.deleter.Delete(context.Background(), []uuid.UUID{r.ID})

	msgs := report.Messages()
	s.Require().Len(msgs, 1)
	s.Equal("success", msgs[0].Level)
	s.Equal("1 of 1 care recipients deleted", msgs[0].Text)
}

func (s *DeleterSuite) TestDelete_CancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := s.deleter.Delete(ctx, []uuid.UUID{uuid.New(), uuid.New()})

	s.Equal(2, report.Total())
	s.Equal(0, report.Deleted())
}
