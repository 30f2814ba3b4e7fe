package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicesettle/internal/client"
	"dicesettle/internal/dice"
	"dicesettle/internal/events"
	"dicesettle/internal/node"
	"dicesettle/internal/test/testutil"
)

const faucet = 50 * testutil.LamportsPerSol

func newServer(t *testing.T) (*testutil.Harness, *client.Client) {
	h := testutil.NewHarness(t)
	logger, _ := testutil.NewTestLogger(t)

	n, err := node.New(h.Executor, h.Broadcaster, node.Options{
		House:          h.House.PublicKey(),
		FaucetLamports: faucet,
		Logger:         logger,
		Registerer:     h.Registry,
		Gatherer:       h.Registry,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(n.Handler())
	t.Cleanup(func() {
		n.Stop(context.Background())
		srv.Close()
	})
	return h, client.New(srv.URL, client.WithHTTPClient(srv.Client()))
}

func TestPlaceAndResolveOverHTTP(t *testing.T) {
	h, c := newServer(t)

	ctx, cancel := context.WithTimeout(h.Ctx, 5*time.Second)
	defer cancel()
	stream, err := c.Subscribe(ctx, events.KindBetResolved)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Broadcaster.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	bet, err := c.PlaceBet(h.Ctx, h.Player, h.House.PublicKey(), dice.PlaceBet{Seed: dice.NewSeed(7), Roll: 60, Amount: 1_000})
	require.NoError(t, err)
	betKey := h.BetAddress(bet)

	view, err := c.Bet(h.Ctx, betKey)
	require.NoError(t, err)
	assert.Equal(t, *bet, view.Bet)
	assert.Equal(t, betKey, view.Address)

	receipt, err := c.ResolveBet(h.Ctx, h.House, bet, h.Sign(bet))
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, events.KindBetResolved, receipt.Events[0].Kind)

	select {
	case ev := <-stream:
		assert.Equal(t, receipt.Events[0].Transaction, ev.Transaction)
		assert.Equal(t, events.KindBetResolved, ev.Kind)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	_, err = c.Bet(h.Ctx, betKey)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.ErrorIs(t, err, dice.ErrBetNotFound)

	status, err := c.Status(h.Ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.BetsResolved)
	assert.Equal(t, h.Vault.String(), status.Vault)
	assert.Equal(t, "memory", status.Backend)
	assert.Equal(t, h.Balance(h.Vault), status.VaultBalance)
}

func TestResolveErrorsCarryCodes(t *testing.T) {
	h, c := newServer(t)
	bet, err := c.PlaceBet(h.Ctx, h.Player, h.House.PublicKey(), dice.PlaceBet{Seed: dice.NewSeed(8), Roll: 50, Amount: 1_000})
	require.NoError(t, err)

	other := *bet
	other.Amount = 999
	sig := h.Sign(&other)

	// Record signs a different bet than the one being settled
	_, err = c.ResolveBet(h.Ctx, h.House, &other, sig)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, dice.ErrMessageMismatch.Code, apiErr.Response.Code)
	assert.ErrorIs(t, err, dice.ErrMessageMismatch)
	assert.NotEmpty(t, apiErr.Response.Logs)

	// Settling from another house looks for the bet in that house's vault
	_, err = c.ResolveBet(h.Ctx, h.Player, bet, h.Sign(bet))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "BetNotFound", apiErr.Response.Name)
	assert.ErrorIs(t, err, dice.ErrBetNotFound)
}

func TestFundVaultAndAirdrop(t *testing.T) {
	h, c := newServer(t)
	before := h.Balance(h.Vault)

	_, err := c.FundVault(h.Ctx, h.House, 1_000)
	require.NoError(t, err)
	assert.Equal(t, before+1_000, h.Balance(h.Vault))

	stranger := testutil.Keypair(t, "stranger").PublicKey()
	credited, err := c.Airdrop(h.Ctx, stranger)
	require.NoError(t, err)
	assert.Equal(t, uint64(faucet), credited)

	acct, err := c.Account(h.Ctx, stranger)
	require.NoError(t, err)
	assert.Equal(t, uint64(faucet), acct.Lamports)
}

func TestVersionRejected(t *testing.T) {
	h := testutil.NewHarness(t)
	logger, _ := testutil.NewTestLogger(t)
	n, err := node.New(h.Executor, h.Broadcaster, node.Options{
		House:            h.House.PublicKey(),
		MinClientVersion: "1.0.0",
		Logger:           logger,
	})
	require.NoError(t, err)
	gated := httptest.NewServer(n.Handler())
	defer gated.Close()

	c := client.New(gated.URL, client.WithVersion("0.9.0"))
	_, err = c.Status(h.Ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUpgradeRequired, apiErr.Status)
}
