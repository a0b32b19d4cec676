package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClasses(t *testing.T) {
	transient := fmt.Errorf("create intent: %w", Transient(errors.New("i/o timeout")))
	assert.True(t, IsTransient(transient))
	assert.False(t, IsNotConfigured(transient))

	notConfigured := fmt.Errorf("create intent: %w", ErrNotConfigured)
	assert.True(t, IsNotConfigured(notConfigured))
	assert.False(t, IsTransient(notConfigured))

	rejected := fmt.Errorf("create intent: %w", &RejectedError{Reason: "Your card was declined.", Code: "card_declined"})
	rej, ok := AsRejected(rejected)
	require.True(t, ok)
	assert.Equal(t, "card_declined", rej.Code)
	assert.False(t, IsTransient(rejected))
	assert.False(t, IsNotConfigured(rejected))
}

func TestNullGateway(t *testing.T) {
	var g Gateway = Null{}
	_, err := g.CreateIntent(context.Background(), &IntentParams{Amount: 100})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.RetrieveIntent(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestIntentWireFormat(t *testing.T) {
	raw := `{
		"id": "pi_123",
		"client_secret": "pi_123_secret",
		"status": "requires_payment_method",
		"amount": 2800,
		"metadata": {"need_id": "n1", "tip_amount": "300"},
		"last_payment_error": {"message": "Your card was declined.", "code": "card_declined"}
	}`
	var in Intent
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	assert.Equal(t, "pi_123", in.ID)
	assert.True(t, in.Status.Failed())
	reason, code := in.FailureReason()
	assert.Equal(t, "Your card was declined.", reason)
	assert.Equal(t, "card_declined", code)
	assert.Equal(t, "300", in.Metadata[MetaTipAmount])

	var acct Account
	require.NoError(t, json.Unmarshal([]byte(`{"id":"acct_1","payouts_enabled":true,"charges_enabled":true,"details_submitted":false}`), &acct))
	assert.True(t, acct.ChargesEnabled)
	assert.False(t, acct.DetailsSubmitted)
}
