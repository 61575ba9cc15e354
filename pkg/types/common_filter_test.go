package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommonFilter_Validate(t *testing.T) {
	allowed := []string{"status", "payment_provider"}

	require.NoError(t, (&CommonFilter{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"PENDING"}}).Validate(allowed))

	err := (&CommonFilter{Field: "status; drop table orders", Operator: CommonFilterOperatorEq, Values: []any{"x"}}).Validate(allowed)
	require.ErrorContains(t, err, "not allowed")

	err = (&CommonFilter{Field: "status", Operator: CommonFilterOperatorEq}).Validate(allowed)
	require.ErrorContains(t, err, "no values")

	err = (&CommonFilter{Field: "status", Operator: CommonFilterOperatorRange, Values: []any{1}}).Validate(allowed)
	require.ErrorContains(t, err, "two values")
}
