package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestChannelForAmount(t *testing.T) {
	cases := []struct {
		amount string
		want   Channel
	}{
		{"50000", ChannelRTGS},
		{"199999.99", ChannelRTGS},
		{"200000", ChannelNEFT},
		{"200000.00", ChannelNEFT},
		{"200000.01", ChannelNEFT},
	}
	for _, tc := range cases {
		t.Run(tc.amount, func(t *testing.T) {
			assert.Equal(t, tc.want, ChannelForAmount(decimal.RequireFromString(tc.amount)))
		})
	}
}

func TestCurrentStateForLegacyRows(t *testing.T) {
	voucher := "V1"
	pending := SettlementPendingApproval
	completed := "COMPLETED"

	assert.Equal(t, StateFailed, (&Transaction{State: StateFailed}).CurrentState())
	assert.Equal(t, StatePendingApproval, (&Transaction{Status: SubmissionPending}).CurrentState())
	assert.Equal(t, StatePendingApproval, (&Transaction{Status: SubmissionSuccess, PaymentStatus: &pending}).CurrentState())
	assert.Equal(t, StateSuccess, (&Transaction{Status: SubmissionSuccess, PaymentStatus: &completed}).CurrentState())
	assert.Equal(t, StateVoucherPosted, (&Transaction{PaymentStatus: &completed, VoucherNo: &voucher}).CurrentState())
	assert.Equal(t, StateFailed, (&Transaction{Status: SubmissionFailed}).CurrentState())
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateVoucherPosted.Terminal())
	assert.False(t, StateSuccess.Terminal())
	assert.False(t, StatePendingApproval.Terminal())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "नम", Truncate("नमस्ते", 2))
}
