package checkout

import (
	"fmt"
	"strconv"

	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/money"
)

func intentMetadata(p *payment.Payment) map[string]string {
	meta := map[string]string{
		gateway.MetaPaymentID: p.ID.String(),
		gateway.MetaType:      p.MetadataType(),
		gateway.MetaTipAmount: strconv.FormatInt(p.TipAmount, 10),
	}
	if p.NeedID != nil {
		meta[gateway.MetaNeedID] = p.NeedID.String()
	}
	if c := p.Attribution(); c != nil {
		meta[gateway.MetaContributorID] = c.String()
	}
	if p.RetryOf != nil {
		meta[gateway.MetaRetryOf] = p.RetryOf.String()
	}
	return meta
}

// applicationFee is what the platform keeps on a destination charge.
func applicationFee(p *payment.Payment) int64 {
	if !p.DestinationCharge {
		return 0
	}
	return p.ApplicationFee()
}

func describe(p *payment.Payment) string {
	if p.IsSpread() {
		return fmt.Sprintf("Contribution of %s across %d needs", money.Format(p.Amount), len(p.Allocations))
	}
	return fmt.Sprintf("Contribution of %s", money.Format(p.Amount))
}

// IntentFor builds the gateway request for p. Retries reuse it with their
// own idempotency key.
func IntentFor(p *payment.Payment, idempotencyKey string) *gateway.IntentParams {
	return &gateway.IntentParams{
		Amount:               p.ChargeTotal(),
		Currency:             p.Currency,
		Description:          describe(p),
		Metadata:             intentMetadata(p),
		DestinationAccountID: p.DestinationAccountID,
		ApplicationFee:       applicationFee(p),
		IdempotencyKey:       idempotencyKey,
	}
}
