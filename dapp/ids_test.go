package dapp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControls(t *testing.T) {
	controls := Controls()

	require.Equal(t, []string{
		IDFlightNumber,
		IDRequestToOracle,
		IDPaymentAmount,
		IDPayInsurance,
		IDWithdrawalCredit,
	}, controls)
	require.NotContains(t, controls, IDCredit)
	require.NotContains(t, controls, IDDisplayWrapper)
}
