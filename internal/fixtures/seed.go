// Package fixtures seeds ledgers for service tests.
package fixtures

import (
	"context"
	"testing"

	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Need stores a collecting need with goal and raised amounts in cents.
func Need(t testing.TB, uow repository.UnitOfWork, owner uuid.UUID, title string, goal, raised int64) *need.Need {
	t.Helper()
	n, err := need.New(owner, title, goal, 0)
	require.NoError(t, err)
	n.RaisedAmount = raised
	if raised >= goal {
		n.RaisedAmount = goal
		n.Status = need.StatusGoalMet
	}
	repo, err := uow.NeedRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), n))
	return n
}

// PendingPayment stores a pending gateway payment for a single need.
func PendingPayment(t testing.TB, uow repository.UnitOfWork, contributor *uuid.UUID, n *need.Need, amount int64, intentID string) *payment.Payment {
	t.Helper()
	p := &payment.Payment{
		ContributorID:   contributor,
		NeedID:          &n.ID,
		Allocations:     []payment.Allocation{{NeedID: n.ID, Amount: amount}},
		Amount:          amount,
		Currency:        "usd",
		GatewayIntentID: intentID,
		ClientSecret:    intentID + "_secret",
		Status:          payment.StatusPending,
		Mode:            payment.ModeGateway,
	}
	repo, err := uow.PaymentRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

// Get reloads a need.
func Get(t testing.TB, uow repository.UnitOfWork, id uuid.UUID) *need.Need {
	t.Helper()
	repo, err := uow.NeedRepository()
	require.NoError(t, err)
	n, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return n
}
