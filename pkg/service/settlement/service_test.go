package settlement_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	infraeventbus "github.com/amirasaad/microgive/infra/eventbus"
	"github.com/amirasaad/microgive/internal/fixtures"
	"github.com/amirasaad/microgive/internal/fixtures/testdb"
	"github.com/amirasaad/microgive/pkg/domain/events"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/pkg/service/settlement"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*settlement.Service, repository.UnitOfWork, *infraeventbus.MemoryEventBus) {
	t.Helper()
	uow, _ := testdb.UoW(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := infraeventbus.NewWithMemory(logger)
	return settlement.New(uow, bus, nil, logger), uow, bus
}

func TestSettle_Idempotent(t *testing.T) {
	svc, uow, bus := setup(t)
	ctx := context.Background()
	contributor := uuid.New()
	n := fixtures.Need(t, uow, uuid.New(), "rent", 5000, 0)
	p := fixtures.PendingPayment(t, uow, &contributor, n, 2500, "pi_1")

	res, err := svc.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadySettled)
	require.NotNil(t, res.Receipt)
	assert.Contains(t, res.Receipt.ReceiptNumber, "MG-")

	again, err := svc.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)

	got := fixtures.Get(t, uow, n.ID)
	assert.Equal(t, int64(2500), got.RaisedAmount)
	assert.Equal(t, 1, got.ContributorCount)

	contributions, err := uow.ContributionRepository()
	require.NoError(t, err)
	list, err := contributions.ListByPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	stats, err := uow.ContributorStatsRepository()
	require.NoError(t, err)
	s, err := stats.Get(ctx, contributor)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), s.TotalGiven)
	assert.Equal(t, 1, s.ContributionsCount)

	require.Len(t, bus.Published(), 1)
	assert.Equal(t, events.EventTypeContributionReceived.String(), bus.Published()[0].Type())
}

func TestSettle_ConcurrentCallsSettleOnce(t *testing.T) {
	svc, uow, _ := setup(t)
	ctx := context.Background()
	n := fixtures.Need(t, uow, uuid.New(), "rent", 5000, 0)
	p := fixtures.PendingPayment(t, uow, nil, n, 1000, "pi_race")

	var wg sync.WaitGroup
	results := make(chan *settlement.Result, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Settle(ctx, p.ID)
			if assert.NoError(t, err) {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	settled := 0
	for r := range results {
		if !r.AlreadySettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, int64(1000), fixtures.Get(t, uow, n.ID).RaisedAmount)
}

func TestSettle_ClampsAndFlipsGoal(t *testing.T) {
	svc, uow, bus := setup(t)
	ctx := context.Background()
	n := fixtures.Need(t, uow, uuid.New(), "groceries", 1000, 800)
	p := fixtures.PendingPayment(t, uow, nil, n, 500, "pi_clamp")

	res, err := svc.Settle(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.True(t, res.Applied[0].Clamped)
	assert.True(t, res.Applied[0].ReachedGoal)
	assert.Equal(t, int64(200), res.Applied[0].Amount)

	got := fixtures.Get(t, uow, n.ID)
	assert.Equal(t, int64(1000), got.RaisedAmount)
	assert.Equal(t, need.StatusGoalMet, got.Status)

	contributions, err := uow.ContributionRepository()
	require.NoError(t, err)
	sum, err := contributions.SumByNeed(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, got.RaisedAmount-800, sum, "contributions record the applied amount")

	var types []string
	for _, e := range bus.Published() {
		types = append(types, e.Type())
	}
	assert.Contains(t, types, events.EventTypeNeedGoalMet.String())
}

func TestSettle_FullNeedRecordsNoContribution(t *testing.T) {
	svc, uow, bus := setup(t)
	ctx := context.Background()
	n := fixtures.Need(t, uow, uuid.New(), "groceries", 1000, 1000)
	before := fixtures.Get(t, uow, n.ID).ContributorCount
	p := fixtures.PendingPayment(t, uow, nil, n, 500, "pi_full")

	res, err := svc.Settle(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.True(t, res.Applied[0].Clamped)
	assert.Zero(t, res.Applied[0].Amount)
	require.NotNil(t, res.Receipt)

	got := fixtures.Get(t, uow, n.ID)
	assert.Equal(t, int64(1000), got.RaisedAmount)
	assert.Equal(t, before, got.ContributorCount)

	contributions, err := uow.ContributionRepository()
	require.NoError(t, err)
	list, err := contributions.ListByPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, e := range bus.Published() {
		assert.NotEqual(t, events.EventTypeContributionReceived.String(), e.Type())
	}
}

func TestSettleDirect_Spread(t *testing.T) {
	svc, uow, bus := setup(t)
	ctx := context.Background()
	a := fixtures.Need(t, uow, uuid.New(), "a", 1000, 500)
	b := fixtures.Need(t, uow, uuid.New(), "b", 2000, 1000)
	contributor := uuid.New()

	p := &payment.Payment{
		ContributorID: &contributor,
		Anonymous:     true,
		Allocations: []payment.Allocation{
			{NeedID: a.ID, Amount: 500},
			{NeedID: b.ID, Amount: 700},
		},
		Amount:   1200,
		Currency: "usd",
	}
	res, err := svc.SettleDirect(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, payment.ModeDirect, res.Mode)
	assert.Equal(t, "a and 1 more", res.Receipt.NeedTitle)

	assert.Equal(t, int64(1000), fixtures.Get(t, uow, a.ID).RaisedAmount)
	assert.Equal(t, int64(1700), fixtures.Get(t, uow, b.ID).RaisedAmount)

	payments, err := uow.PaymentRepository()
	require.NoError(t, err)
	stored, err := payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, stored.Status)
	assert.Equal(t, payment.ModeDirect, stored.Mode)

	// Anonymous gifts are not attributed.
	contributions, err := uow.ContributionRepository()
	require.NoError(t, err)
	list, err := contributions.ListByPayment(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].ContributorID)
	stats, err := uow.ContributorStatsRepository()
	require.NoError(t, err)
	_, err = stats.Get(ctx, contributor)
	assert.Error(t, err)

	var direct int
	for _, e := range bus.Published() {
		if e.Type() == events.EventTypeDirectModeUsed.String() {
			direct++
		}
	}
	assert.Equal(t, 1, direct)
}

func TestSettle_RollsBackOnHookError(t *testing.T) {
	svc, uow, bus := setup(t)
	ctx := context.Background()
	n := fixtures.Need(t, uow, uuid.New(), "rent", 5000, 0)
	p := fixtures.PendingPayment(t, uow, nil, n, 1000, "pi_hook")

	_, err := svc.Settle(ctx, p.ID, settlement.WithHook(
		func(context.Context, repository.UnitOfWork, *payment.Payment) error { return assert.AnError },
	))
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, int64(0), fixtures.Get(t, uow, n.ID).RaisedAmount)
	payments, err := uow.PaymentRepository()
	require.NoError(t, err)
	stored, err := payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, stored.Status)
	assert.Empty(t, bus.Published())
}

func TestSettleByIntent(t *testing.T) {
	svc, uow, _ := setup(t)
	ctx := context.Background()
	n := fixtures.Need(t, uow, uuid.New(), "rent", 5000, 0)
	fixtures.PendingPayment(t, uow, nil, n, 1000, "pi_lookup")

	res, err := svc.SettleByIntent(ctx, "pi_lookup")
	require.NoError(t, err)
	assert.False(t, res.AlreadySettled)

	_, err = svc.SettleByIntent(ctx, "pi_missing")
	assert.Error(t, err)
}

func TestFail(t *testing.T) {
	svc, uow, bus := setup(t)
	ctx := context.Background()
	n := fixtures.Need(t, uow, uuid.New(), "rent", 5000, 0)
	p := fixtures.PendingPayment(t, uow, nil, n, 1000, "pi_fail")

	changed, err := svc.Fail(ctx, p.ID, "Your card was declined.", "card_declined")
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, bus.Published(), 1)
	assert.Equal(t, events.EventTypePaymentFailed.String(), bus.Published()[0].Type())

	done := fixtures.PendingPayment(t, uow, nil, n, 1000, "pi_done")
	_, err = svc.Settle(ctx, done.ID)
	require.NoError(t, err)

	changed, err = svc.Fail(ctx, done.ID, "late", "late")
	require.NoError(t, err)
	assert.False(t, changed, "a late failure never overrides a settlement")
}
