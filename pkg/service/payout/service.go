// Package payout rolls settled payments up into a recipient dashboard. It
// only reads and tolerates running alongside settlement.
package payout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
)

// DefaultRecentLimit caps RecentTransactions.
const DefaultRecentLimit = 10

// Summary totals in cents. Counts are of payments, not allocations.
type Summary struct {
	TotalGross         int64 `json:"totalGross"`
	TotalNet           int64 `json:"totalNet"`
	TotalFees          int64 `json:"totalFees"`
	DestinationCharges int   `json:"destinationCharges"`
	PlatformHeld       int   `json:"platformHeld"`
	DirectPayments     int   `json:"directPayments"`
	PaymentCount       int   `json:"paymentCount"`
}

// Month is one point of the net series.
type Month struct {
	Month string `json:"month"`
	Net   int64  `json:"net"`
}

// Transaction is the recipient's share of one payment.
type Transaction struct {
	PaymentID         uuid.UUID    `json:"paymentId"`
	NeedID            uuid.UUID    `json:"needId"`
	NeedTitle         string       `json:"needTitle"`
	Gross             int64        `json:"gross"`
	Fee               int64        `json:"fee"`
	Net               int64        `json:"net"`
	Mode              payment.Mode `json:"mode"`
	DestinationCharge bool         `json:"destinationCharge"`
	CompletedAt       time.Time    `json:"completedAt"`
}

// Dashboard is the payout view of one recipient.
type Dashboard struct {
	Account            *payment.ConnectedAccount
	Needs              []need.Need
	Summary            Summary
	MonthlyData        []Month
	RecentTransactions []Transaction
}

// Service reads payout data.
type Service struct {
	uow         repository.UnitOfWork
	recentLimit int
}

// New builds a payout service.
func New(uow repository.UnitOfWork, recentLimit int) *Service {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &Service{uow: uow, recentLimit: recentLimit}
}

// Dashboard loads the recipient's account, needs and completed payments.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	const op = "payout.Dashboard"
	accounts, err := s.uow.ConnectedAccountRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acct, err := accounts.GetByUser(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	needs, err := s.uow.NeedRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	owned, err := needs.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ids := make([]uuid.UUID, 0, len(owned))
	for _, n := range owned {
		ids = append(ids, n.ID)
	}

	payments, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	completed, err := payments.ListCompletedForNeeds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	contributions, err := s.uow.ContributionRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var credited []need.Contribution
	for _, id := range ids {
		list, err := contributions.ListByNeed(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		credited = append(credited, list...)
	}

	d := Aggregate(owned, completed, credited, s.recentLimit)
	d.Account = acct
	return d, nil
}

type creditKey struct {
	payment uuid.UUID
	need    uuid.UUID
}

// Aggregate computes the dashboard rollup. Only allocations on needs are
// counted, so a spread payment contributes just this recipient's share.
// Gross is what the contributions actually credited; an allocation clamped
// at the goal counts only its applied part, with its fee scaled to match.
func Aggregate(
	needs []need.Need,
	payments []payment.Payment,
	contributions []need.Contribution,
	recentLimit int,
) *Dashboard {
	titles := make(map[uuid.UUID]string, len(needs))
	for _, n := range needs {
		titles[n.ID] = n.Title
	}
	credited := make(map[creditKey]int64, len(contributions))
	for _, c := range contributions {
		credited[creditKey{c.PaymentID, c.NeedID}] += c.Amount
	}

	d := &Dashboard{
		Needs:              needs,
		MonthlyData:        []Month{},
		RecentTransactions: []Transaction{},
	}
	monthly := map[string]int64{}
	var txs []Transaction

	for _, p := range payments {
		if p.Status != payment.StatusCompleted {
			continue
		}
		at := p.UpdatedAt
		if p.CompletedAt != nil {
			at = *p.CompletedAt
		}
		counted := false
		for _, a := range p.Allocations {
			title, ok := titles[a.NeedID]
			if !ok {
				continue
			}
			gross := credited[creditKey{p.ID, a.NeedID}]
			if gross <= 0 {
				continue
			}
			counted = true
			fee := a.Fee
			if gross < a.Amount {
				fee = a.Fee * gross / a.Amount
			}
			net := gross - fee
			d.Summary.TotalGross += gross
			d.Summary.TotalFees += fee
			d.Summary.TotalNet += net
			monthly[at.UTC().Format("2006-01")] += net
			txs = append(txs, Transaction{
				PaymentID:         p.ID,
				NeedID:            a.NeedID,
				NeedTitle:         title,
				Gross:             gross,
				Fee:               fee,
				Net:               net,
				Mode:              p.Mode,
				DestinationCharge: p.DestinationCharge && p.Mode != payment.ModeDirect,
				CompletedAt:       at,
			})
		}
		if !counted {
			continue
		}
		d.Summary.PaymentCount++
		switch {
		case p.Mode == payment.ModeDirect:
			d.Summary.DirectPayments++
		case p.DestinationCharge:
			d.Summary.DestinationCharges++
		default:
			d.Summary.PlatformHeld++
		}
	}

	for m, net := range monthly {
		d.MonthlyData = append(d.MonthlyData, Month{Month: m, Net: net})
	}
	sort.Slice(d.MonthlyData, func(i, j int) bool { return d.MonthlyData[i].Month < d.MonthlyData[j].Month })

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CompletedAt.After(txs[j].CompletedAt) })
	if recentLimit > 0 && len(txs) > recentLimit {
		txs = txs[:recentLimit]
	}
	if txs != nil {
		d.RecentTransactions = txs
	}
	return d
}
