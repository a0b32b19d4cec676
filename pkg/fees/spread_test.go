package fees

import (
	"math/rand"
	"testing"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openNeed(remaining int64) need.Need {
	return need.Need{
		ID:           uuid.New(),
		GoalAmount:   remaining + 1000,
		RaisedAmount: 1000,
		Status:       need.StatusCollecting,
		CreatedAt:    time.Now(),
	}
}

func amountFor(res SpreadResult, id uuid.UUID) int64 {
	for _, a := range res.Allocations {
		if a.NeedID == id {
			return a.Amount
		}
	}
	return 0
}

func TestSpreadClosestToGoalExample(t *testing.T) {
	c := newCalc(t, "0")
	a, b, cc := openNeed(500), openNeed(1000), openNeed(4000)

	res, err := c.Spread(3000, []need.Need{cc, a, b}, ClosestToGoal)
	require.NoError(t, err)

	assert.Equal(t, int64(500), amountFor(res, a.ID))
	assert.Equal(t, int64(1000), amountFor(res, b.ID))
	assert.Equal(t, int64(1500), amountFor(res, cc.ID))
	assert.Equal(t, int64(3000), res.TotalAmount)
	assert.Equal(t, int64(0), res.Unallocated)
	assert.Equal(t, 3, res.TotalPeople)
	assert.Equal(t, 2, res.GoalsCompleted)
	assert.Equal(t, a.ID, res.Allocations[0].NeedID)
}

func TestSpreadNoEligibleNeeds(t *testing.T) {
	c := newCalc(t, "0")
	closed := openNeed(500)
	closed.Status = need.StatusGoalMet

	res, err := c.Spread(2000, []need.Need{closed}, ClosestToGoal)
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.Equal(t, int64(0), res.TotalAmount)
	assert.Equal(t, int64(2000), res.Unallocated)
}

func TestSpreadPoolExceedsAllGaps(t *testing.T) {
	c := newCalc(t, "0")
	a, b := openNeed(300), openNeed(700)

	res, err := c.Spread(5000, []need.Need{a, b}, OldestFirst)
	require.NoError(t, err)
	assert.Equal(t, int64(300), amountFor(res, a.ID))
	assert.Equal(t, int64(700), amountFor(res, b.ID))
	assert.Equal(t, int64(1000), res.TotalAmount)
	assert.Equal(t, int64(4000), res.Unallocated)
	assert.Equal(t, 2, res.GoalsCompleted)
}

func TestSpreadRemainderGoesToFirstAllocation(t *testing.T) {
	c := newCalc(t, "0")
	older := openNeed(100000)
	older.CreatedAt = time.Now().Add(-time.Hour)
	mid := openNeed(100000)
	mid.CreatedAt = time.Now().Add(-time.Minute)
	newer := openNeed(100000)

	res, err := c.Spread(1001, []need.Need{newer, mid, older}, OldestFirst)
	require.NoError(t, err)
	require.Len(t, res.Allocations, 3)
	assert.Equal(t, older.ID, res.Allocations[0].NeedID)
	assert.Equal(t, int64(335), res.Allocations[0].Amount)
	assert.Equal(t, int64(333), res.Allocations[1].Amount)
	assert.Equal(t, int64(333), res.Allocations[2].Amount)
}

func TestSpreadFeesPerAllocation(t *testing.T) {
	c := newCalc(t, "0.05")
	a, b := openNeed(1000), openNeed(1000)
	res, err := c.Spread(2000, []need.Need{a, b}, ClosestToGoal)
	require.NoError(t, err)
	assert.Equal(t, int64(100), TotalFee(res.Allocations))
}

func TestSpreadStrategies(t *testing.T) {
	lonely := openNeed(100000)
	lonely.ContributorCount = 0
	popular := openNeed(100000)
	popular.ContributorCount = 12
	popular.CreatedAt = lonely.CreatedAt.Add(-time.Hour)

	needs := []need.Need{popular, lonely}
	Order(needs, FewestContributors)
	assert.Equal(t, lonely.ID, needs[0].ID)
	Order(needs, OldestFirst)
	assert.Equal(t, popular.ID, needs[0].ID)
	Order(needs, NewestFirst)
	assert.Equal(t, lonely.ID, needs[0].ID)

	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, ClosestToGoal, s)
	_, err = ParseStrategy("random")
	assert.Error(t, err)
}

func TestSpreadSumInvariant(t *testing.T) {
	c := newCalc(t, "0.05")
	rng := rand.New(rand.NewSource(42))
	strategies := []Strategy{ClosestToGoal, OldestFirst, NewestFirst, FewestContributors}
	for i := 0; i < 500; i++ {
		n := rng.Intn(8)
		needs := make([]need.Need, 0, n)
		var gaps int64
		for j := 0; j < n; j++ {
			nd := openNeed(int64(rng.Intn(5000) + 1))
			nd.ContributorCount = rng.Intn(4)
			gaps += nd.Remaining()
			needs = append(needs, nd)
		}
		pool := int64(rng.Intn(20000) + 1)
		res, err := c.Spread(pool, needs, strategies[i%len(strategies)])
		require.NoError(t, err)

		var sum int64
		for _, a := range res.Allocations {
			sum += a.Amount
			assert.Positive(t, a.Amount)
		}
		for _, nd := range needs {
			assert.LessOrEqual(t, amountFor(res, nd.ID), nd.Remaining())
		}
		assert.Equal(t, res.TotalAmount, sum)
		assert.Equal(t, pool, res.TotalAmount+res.Unallocated)
		assert.Equal(t, min(pool, gaps), res.TotalAmount)
	}
}
