// Package testutil provides the shared fixtures of the settlement tests: a
// funded house and player on an in-memory ledger, an executor with the dice
// program registered, deterministic keypairs and captured logs.
//
// Basic usage:
//
//	func TestSomething(t *testing.T) {
//	    h := testutil.NewHarness(t)
//	    bet := h.PlaceBet(dice.NewSeed(1), 50, 1_000)
//	    _, err := h.Resolve(bet, h.Sign(bet))
//	    require.NoError(t, err)
//	}
package testutil
