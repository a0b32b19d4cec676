package fees

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
)

// Strategy orders eligible needs before a pool is spread over them.
type Strategy string

const (
	ClosestToGoal      Strategy = "closest_to_goal"
	OldestFirst        Strategy = "oldest_first"
	NewestFirst        Strategy = "newest_first"
	FewestContributors Strategy = "fewest_contributors"
)

// ParseStrategy maps a wire value to a Strategy; empty means ClosestToGoal.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case "":
		return ClosestToGoal, nil
	case ClosestToGoal, OldestFirst, NewestFirst, FewestContributors:
		return st, nil
	default:
		return "", fmt.Errorf("unknown spread strategy %q", s)
	}
}

// SpreadResult is recorded verbatim on the payment and never recomputed.
type SpreadResult struct {
	Strategy       Strategy             `json:"strategy"`
	Allocations    []payment.Allocation `json:"allocations"`
	TotalAmount    int64                `json:"totalAmount"`
	Unallocated    int64                `json:"unallocated"`
	TotalPeople    int                  `json:"totalPeople"`
	GoalsCompleted int                  `json:"goalsCompleted"`
}

// Order sorts needs in place by strategy. Ties fall back to id so the
// result never depends on input order.
func Order(needs []need.Need, strategy Strategy) {
	byID := func(a, b need.Need) bool { return bytes.Compare(a.ID[:], b.ID[:]) < 0 }
	sort.SliceStable(needs, func(i, j int) bool {
		a, b := needs[i], needs[j]
		switch strategy {
		case OldestFirst:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case NewestFirst:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case FewestContributors:
			if a.ContributorCount != b.ContributorCount {
				return a.ContributorCount < b.ContributorCount
			}
		default:
			if a.Remaining() != b.Remaining() {
				return a.Remaining() < b.Remaining()
			}
		}
		return byID(a, b)
	})
}

// Spread water-fills pool over the open needs: every pass hands each
// unsatisfied need an equal share capped at its gap, and whatever a capped
// need could not take flows to the rest on the next pass. The sub-cent
// remainder goes to the first allocation with room. Allocations never pass a
// gap and always sum to TotalAmount; TotalAmount+Unallocated == pool.
func (c *Calculator) Spread(pool int64, needs []need.Need, strategy Strategy) (SpreadResult, error) {
	if err := c.ValidateAmount(pool); err != nil {
		return SpreadResult{}, err
	}
	if strategy == "" {
		strategy = ClosestToGoal
	}
	eligible := make([]need.Need, 0, len(needs))
	for _, n := range needs {
		if n.Open() {
			eligible = append(eligible, n)
		}
	}
	Order(eligible, strategy)

	given := make([]int64, len(eligible))
	rem := pool
	for rem > 0 {
		open := make([]int, 0, len(eligible))
		for i := range eligible {
			if given[i] < eligible[i].Remaining() {
				open = append(open, i)
			}
		}
		if len(open) == 0 {
			break
		}
		share := rem / int64(len(open))
		if share == 0 {
			for _, i := range open {
				room := eligible[i].Remaining() - given[i]
				take := min(rem, room)
				given[i] += take
				rem -= take
				if rem == 0 {
					break
				}
			}
			continue
		}
		for _, i := range open {
			take := min(share, eligible[i].Remaining()-given[i])
			given[i] += take
			rem -= take
		}
	}

	res := SpreadResult{Strategy: strategy, Allocations: []payment.Allocation{}}
	for i, n := range eligible {
		if given[i] == 0 {
			continue
		}
		res.Allocations = append(res.Allocations, payment.Allocation{
			NeedID: n.ID,
			Amount: given[i],
			Fee:    c.Fee(given[i]),
		})
		res.TotalAmount += given[i]
		if given[i] == n.Remaining() {
			res.GoalsCompleted++
		}
	}
	res.TotalPeople = len(res.Allocations)
	res.Unallocated = pool - res.TotalAmount
	return res, nil
}
