package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckoutStatus_Transitions(t *testing.T) {
	require.True(t, CheckoutStatusPending.CanTransitionTo(CheckoutStatusProcessing))
	require.True(t, CheckoutStatusPending.CanTransitionTo(CheckoutStatusExpired))
	require.True(t, CheckoutStatusProcessing.CanTransitionTo(CheckoutStatusPaid))

	require.False(t, CheckoutStatusProcessing.CanTransitionTo(CheckoutStatusPending))
	require.False(t, CheckoutStatusProcessing.CanTransitionTo(CheckoutStatusExpired))
	require.False(t, CheckoutStatusPaid.CanTransitionTo(CheckoutStatusCancelled))
	require.False(t, CheckoutStatusExpired.CanTransitionTo(CheckoutStatusProcessing))
}

func TestSourcesOf(t *testing.T) {
	require.ElementsMatch(t, []CheckoutStatus{CheckoutStatusPending, CheckoutStatusProcessing}, SourcesOf(CheckoutStatusCancelled))
	require.ElementsMatch(t, []CheckoutStatus{CheckoutStatusProcessing}, SourcesOf(CheckoutStatusPaid))
	require.Empty(t, SourcesOf(CheckoutStatusPending))
}

func TestNormalizeMobilePaymentStatus(t *testing.T) {
	cases := map[string]MobilePaymentStatus{
		"Paid":              MobilePaymentStatusPaid,
		"Awaiting Delivery": MobilePaymentStatusPaid,
		" sent ":            MobilePaymentStatusPushed,
		"Cancelled":         MobilePaymentStatusCancelled,
		"Disputed":          MobilePaymentStatusFailed,
		"Created":           MobilePaymentStatusPending,
	}
	for raw, want := range cases {
		got, ok := NormalizeMobilePaymentStatus(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}

	got, ok := NormalizeMobilePaymentStatus("something new")
	require.False(t, ok)
	require.Equal(t, MobilePaymentStatusPending, got)
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("partly_paid")
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartlyPaid, st)

	_, err = ParseOrderStatus("shipped")
	require.Error(t, err)
}
