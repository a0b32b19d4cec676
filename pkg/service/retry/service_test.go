package retry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/microgive/internal/fixtures"
	"github.com/amirasaad/microgive/internal/fixtures/mocks"
	"github.com/amirasaad/microgive/internal/fixtures/testdb"
	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/pkg/service/retry"
	"github.com/amirasaad/microgive/pkg/service/settlement"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, gw gateway.Gateway) (*retry.Service, *settlement.Service, repository.UnitOfWork) {
	t.Helper()
	uow, _ := testdb.UoW(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	settle := settlement.New(uow, nil, nil, logger)
	return retry.New(uow, gw, settle, nil, logger, 3), settle, uow
}

func failedPayment(t *testing.T, uow repository.UnitOfWork, settle *settlement.Service, contributor uuid.UUID, goal, amount int64) *payment.Payment {
	t.Helper()
	n := fixtures.Need(t, uow, uuid.New(), "rent", goal, 0)
	p := fixtures.PendingPayment(t, uow, &contributor, n, amount, "pi_"+uuid.NewString())
	changed, err := settle.Fail(context.Background(), p.ID, "Your card was declined.", "card_declined")
	require.NoError(t, err)
	require.True(t, changed)
	return p
}

func retryCount(t *testing.T, uow repository.UnitOfWork, id uuid.UUID) int {
	t.Helper()
	repo, err := uow.RetryRepository()
	require.NoError(t, err)
	n, err := repo.CountByPayment(context.Background(), id)
	require.NoError(t, err)
	return n
}

func TestRetryPayment_Scheduled(t *testing.T) {
	gw := mocks.NewGateway(t)
	svc, settle, uow := setup(t, gw)
	p := failedPayment(t, uow, settle, uuid.New(), 5000, 1000)

	gw.On("CreateIntent", mock.Anything, mock.MatchedBy(func(params *gateway.IntentParams) bool {
		return params.IdempotencyKey == "retry-"+p.ID.String()+"-1" &&
			params.Metadata[gateway.MetaRetryOf] == p.ID.String() &&
			params.Amount == 1000
	})).Return(&gateway.Intent{ID: "pi_retry", ClientSecret: "pi_retry_secret"}, nil).Once()

	res, err := svc.RetryPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, retry.OutcomeScheduled, res.Outcome)
	assert.Equal(t, 1, res.RetryNumber)
	assert.Equal(t, 2, res.RetriesRemaining)
	require.NotNil(t, res.NewPaymentID)

	payments, err := uow.PaymentRepository()
	require.NoError(t, err)
	next, err := payments.Get(context.Background(), *res.NewPaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, next.Status)
	require.NotNil(t, next.RetryOf)
	assert.Equal(t, p.ID, *next.RetryOf)
	assert.Len(t, next.Allocations, 1)

	// Settling the new payment resolves the retry row.
	_, err = settle.SettleByIntent(context.Background(), "pi_retry")
	require.NoError(t, err)
	retries, err := uow.RetryRepository()
	require.NoError(t, err)
	rows, err := retries.ListByPayments(context.Background(), []uuid.UUID{p.ID})
	require.NoError(t, err)
	require.Len(t, rows[p.ID], 1)
	assert.Equal(t, payment.RetryCompleted, rows[p.ID][0].Status)
}

func TestRetryPayment_CapExceeded(t *testing.T) {
	gw := mocks.NewGateway(t)
	svc, settle, uow := setup(t, gw)
	p := failedPayment(t, uow, settle, uuid.New(), 5000, 1000)

	gw.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, &gateway.RejectedError{Reason: "Your card was declined.", Code: "card_declined"}).Times(3)

	for i := 1; i <= 3; i++ {
		res, err := svc.RetryPayment(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, retry.OutcomeRejected, res.Outcome)
		assert.Equal(t, 3-i, res.RetriesRemaining)
	}

	_, err := svc.RetryPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, payment.ErrRetryCapExceeded)
	assert.Equal(t, 3, retryCount(t, uow, p.ID))
}

func TestRetryPayment_DirectFallback(t *testing.T) {
	svc, settle, uow := setup(t, gateway.Null{})
	p := failedPayment(t, uow, settle, uuid.New(), 5000, 1500)

	res, err := svc.RetryPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, retry.OutcomeDirect, res.Outcome)

	payments, err := uow.PaymentRepository()
	require.NoError(t, err)
	got, err := payments.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, got.Status)
	assert.Equal(t, payment.ModeDirect, got.Mode)
	assert.Equal(t, int64(1500), fixtures.Get(t, uow, p.Allocations[0].NeedID).RaisedAmount)

	retries, err := uow.RetryRepository()
	require.NoError(t, err)
	rows, err := retries.ListByPayments(context.Background(), []uuid.UUID{p.ID})
	require.NoError(t, err)
	require.Len(t, rows[p.ID], 1)
	assert.Equal(t, payment.RetryCompleted, rows[p.ID][0].Status)
}

func TestRetryPayment_TransientWritesNothing(t *testing.T) {
	gw := mocks.NewGateway(t)
	svc, settle, uow := setup(t, gw)
	p := failedPayment(t, uow, settle, uuid.New(), 5000, 1000)
	gw.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, gateway.Transient(errors.New("timeout"))).Once()

	_, err := svc.RetryPayment(context.Background(), p.ID)
	require.Error(t, err)
	assert.True(t, gateway.IsTransient(err))
	assert.Zero(t, retryCount(t, uow, p.ID))
}

func TestRetryPayment_Preconditions(t *testing.T) {
	svc, _, uow := setup(t, gateway.Null{})
	n := fixtures.Need(t, uow, uuid.New(), "rent", 5000, 0)
	pending := fixtures.PendingPayment(t, uow, nil, n, 1000, "pi_p")

	_, err := svc.RetryPayment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.RetryPayment(context.Background(), pending.ID)
	assert.ErrorIs(t, err, payment.ErrNotFailed)
}

func TestFetchFailedPayments(t *testing.T) {
	gw := mocks.NewGateway(t)
	svc, settle, uow := setup(t, gw)
	contributor := uuid.New()
	first := failedPayment(t, uow, settle, contributor, 5000, 1000)
	time.Sleep(time.Millisecond)
	failedPayment(t, uow, settle, contributor, 5000, 2000)
	failedPayment(t, uow, settle, uuid.New(), 5000, 3000)

	gw.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, &gateway.RejectedError{Reason: "declined"}).Once()
	_, err := svc.RetryPayment(context.Background(), first.ID)
	require.NoError(t, err)

	list, err := svc.FetchFailedPayments(context.Background(), contributor)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, fp := range list {
		if fp.Payment.ID == first.ID {
			assert.Len(t, fp.Retries, 1)
			assert.Equal(t, 2, fp.RetriesRemaining)
		} else {
			assert.Empty(t, fp.Retries)
			assert.Equal(t, 3, fp.RetriesRemaining)
		}
		assert.True(t, fp.CanRetry)
	}
}

func scheduleRetry(t *testing.T, gw *mocks.Gateway, svc *retry.Service, paymentID uuid.UUID, intentID string) *retry.Result {
	t.Helper()
	gw.On("CreateIntent", mock.Anything, mock.Anything).
		Return(&gateway.Intent{ID: intentID, ClientSecret: intentID + "_secret"}, nil).Once()
	res, err := svc.RetryPayment(context.Background(), paymentID)
	require.NoError(t, err)
	require.Equal(t, retry.OutcomeScheduled, res.Outcome)
	return res
}

func TestRetryPayment_SettledRetryEndsTheChain(t *testing.T) {
	gw := mocks.NewGateway(t)
	svc, settle, uow := setup(t, gw)
	contributor := uuid.New()
	p := failedPayment(t, uow, settle, contributor, 5000, 1000)
	scheduleRetry(t, gw, svc, p.ID, "pi_r1")

	_, err := svc.RetryPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, payment.ErrDuplicateInFlight)
	assert.Equal(t, 1, retryCount(t, uow, p.ID))

	_, err = settle.SettleByIntent(context.Background(), "pi_r1")
	require.NoError(t, err)

	_, err = svc.RetryPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, payment.ErrNotFailed)
	assert.Equal(t, 1, retryCount(t, uow, p.ID))
	assert.Equal(t, int64(1000), fixtures.Get(t, uow, p.Allocations[0].NeedID).RaisedAmount)

	list, err := svc.FetchFailedPayments(context.Background(), contributor)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].CanRetry)
}

func TestRetryPayment_FailedRetryCountsAgainstOriginal(t *testing.T) {
	gw := mocks.NewGateway(t)
	svc, settle, uow := setup(t, gw)
	contributor := uuid.New()
	p := failedPayment(t, uow, settle, contributor, 5000, 1000)

	last := p.ID
	for i := 1; i <= 3; i++ {
		res := scheduleRetry(t, gw, svc, last, "pi_chain_"+uuid.NewString())
		assert.Equal(t, i, res.RetryNumber)
		changed, err := settle.Fail(context.Background(), *res.NewPaymentID, "declined", "card_declined")
		require.NoError(t, err)
		require.True(t, changed)
		last = *res.NewPaymentID
	}

	_, err := svc.RetryPayment(context.Background(), last)
	assert.ErrorIs(t, err, payment.ErrRetryCapExceeded)
	assert.Equal(t, 3, retryCount(t, uow, p.ID))
	assert.Zero(t, retryCount(t, uow, last))

	list, err := svc.FetchFailedPayments(context.Background(), contributor)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].Payment.ID)
	assert.Len(t, list[0].Retries, 3)
	assert.False(t, list[0].CanRetry)
}
