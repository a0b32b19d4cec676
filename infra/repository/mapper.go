package repository

import (
	"encoding/json"

	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/google/uuid"
)

func mapNeedToModel(n *need.Need) *Need {
	return &Need{
		ID:               n.ID,
		OwnerID:          n.OwnerID,
		Title:            n.Title,
		GoalAmount:       n.GoalAmount,
		RaisedAmount:     n.RaisedAmount,
		ContributorCount: n.ContributorCount,
		Status:           string(n.Status),
		Version:          n.Version,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func mapNeedToDomain(m *Need) *need.Need {
	return &need.Need{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Title:            m.Title,
		GoalAmount:       m.GoalAmount,
		RaisedAmount:     m.RaisedAmount,
		ContributorCount: m.ContributorCount,
		Status:           need.Status(m.Status),
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func mapContributionToDomain(m *Contribution) need.Contribution {
	return need.Contribution{
		ID:            m.ID,
		NeedID:        m.NeedID,
		PaymentID:     m.PaymentID,
		ContributorID: m.ContributorID,
		Amount:        m.Amount,
		Note:          m.Note,
		CreatedAt:     m.CreatedAt,
	}
}

func mapPaymentToModel(p *payment.Payment) *Payment {
	m := &Payment{
		ID:                   p.ID,
		ContributorID:        p.ContributorID,
		Anonymous:            p.Anonymous,
		NeedID:               p.NeedID,
		SpreadStrategy:       p.SpreadStrategy,
		Amount:               p.Amount,
		TipAmount:            p.TipAmount,
		FeeAmount:            p.FeeAmount,
		Currency:             p.Currency,
		Note:                 p.Note,
		ClientSecret:         p.ClientSecret,
		Status:               string(p.Status),
		Mode:                 string(p.Mode),
		DestinationCharge:    p.DestinationCharge,
		DestinationAccountID: p.DestinationAccountID,
		RetryOf:              p.RetryOf,
		FailureReason:        p.FailureReason,
		FailureCode:          p.FailureCode,
		CompletedAt:          p.CompletedAt,
		FailedAt:             p.FailedAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if p.GatewayIntentID != "" {
		id := p.GatewayIntentID
		m.GatewayIntentID = &id
	}
	for i, a := range p.Allocations {
		m.Allocations = append(m.Allocations, PaymentAllocation{
			ID:        uuid.New(),
			PaymentID: p.ID,
			NeedID:    a.NeedID,
			Position:  i,
			Amount:    a.Amount,
			Fee:       a.Fee,
		})
	}
	return m
}

func mapPaymentToDomain(m *Payment) *payment.Payment {
	p := &payment.Payment{
		ID:                   m.ID,
		ContributorID:        m.ContributorID,
		Anonymous:            m.Anonymous,
		NeedID:               m.NeedID,
		SpreadStrategy:       m.SpreadStrategy,
		Amount:               m.Amount,
		TipAmount:            m.TipAmount,
		FeeAmount:            m.FeeAmount,
		Currency:             m.Currency,
		Note:                 m.Note,
		ClientSecret:         m.ClientSecret,
		Status:               payment.Status(m.Status),
		Mode:                 payment.Mode(m.Mode),
		DestinationCharge:    m.DestinationCharge,
		DestinationAccountID: m.DestinationAccountID,
		RetryOf:              m.RetryOf,
		FailureReason:        m.FailureReason,
		FailureCode:          m.FailureCode,
		CompletedAt:          m.CompletedAt,
		FailedAt:             m.FailedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		Allocations:          make([]payment.Allocation, 0, len(m.Allocations)),
	}
	if m.GatewayIntentID != nil {
		p.GatewayIntentID = *m.GatewayIntentID
	}
	for _, a := range m.Allocations {
		p.Allocations = append(p.Allocations, payment.Allocation{NeedID: a.NeedID, Amount: a.Amount, Fee: a.Fee})
	}
	return p
}

func mapRetryToModel(r *payment.Retry) *PaymentRetry {
	return &PaymentRetry{
		ID:           r.ID,
		PaymentID:    r.PaymentID,
		RetryNumber:  r.RetryNumber,
		Status:       string(r.Status),
		NewPaymentID: r.NewPaymentID,
		ScheduledAt:  r.ScheduledAt,
		AttemptedAt:  r.AttemptedAt,
		CompletedAt:  r.CompletedAt,
		Result:       r.Result,
		Error:        r.Error,
	}
}

func mapRetryToDomain(m *PaymentRetry) payment.Retry {
	return payment.Retry{
		ID:           m.ID,
		PaymentID:    m.PaymentID,
		RetryNumber:  m.RetryNumber,
		Status:       payment.RetryStatus(m.Status),
		NewPaymentID: m.NewPaymentID,
		ScheduledAt:  m.ScheduledAt,
		AttemptedAt:  m.AttemptedAt,
		CompletedAt:  m.CompletedAt,
		Result:       m.Result,
		Error:        m.Error,
	}
}

func mapAccountToModel(a *payment.ConnectedAccount) *ConnectedAccount {
	return &ConnectedAccount{
		ID:                 a.ID,
		UserID:             a.UserID,
		GatewayAccountID:   a.GatewayAccountID,
		OnboardingComplete: a.OnboardingComplete,
		PayoutsEnabled:     a.PayoutsEnabled,
		ChargesEnabled:     a.ChargesEnabled,
		DetailsSubmitted:   a.DetailsSubmitted,
		LastWebhookAt:      a.LastWebhookAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func mapAccountToDomain(m *ConnectedAccount) *payment.ConnectedAccount {
	return &payment.ConnectedAccount{
		ID:                 m.ID,
		UserID:             m.UserID,
		GatewayAccountID:   m.GatewayAccountID,
		OnboardingComplete: m.OnboardingComplete,
		PayoutsEnabled:     m.PayoutsEnabled,
		ChargesEnabled:     m.ChargesEnabled,
		DetailsSubmitted:   m.DetailsSubmitted,
		LastWebhookAt:      m.LastWebhookAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func mapWebhookEventToDomain(m *WebhookEvent) *payment.WebhookEvent {
	return &payment.WebhookEvent{
		ID:              m.ID,
		EventID:         m.EventID,
		EventType:       m.EventType,
		Payload:         json.RawMessage(m.Payload),
		Processed:       m.Processed,
		ProcessedAt:     m.ProcessedAt,
		ProcessingError: m.ProcessingError,
		CreatedAt:       m.CreatedAt,
	}
}
