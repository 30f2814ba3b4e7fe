// Package client talks to a settlement node over HTTP and assembles the
// transactions players and the house submit.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
	"dicesettle/internal/dice"
	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/node"
	"dicesettle/internal/protocol"
	"dicesettle/internal/runtime"
)

// APIError is a non-2xx response from the node
type APIError struct {
	Status   int
	Response node.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.Name != "" {
		return fmt.Sprintf("node returned %d (%s): %s", e.Status, e.Response.Name, e.Response.Error)
	}
	return fmt.Sprintf("node returned %d: %s", e.Status, e.Response.Error)
}

// Unwrap maps a dice error code back to its catalog value
func (e *APIError) Unwrap() error {
	if known, ok := dice.ErrorByCode(e.Response.Code); ok {
		return known
	}
	return nil
}

// Client is an HTTP client for a settlement node
type Client struct {
	baseURL string
	http    *http.Client
	version string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithVersion sets the protocol version announced to the node
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// New creates a client for the node at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		version: protocol.CurrentVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocol.VersionHeader, c.version)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Response); err != nil {
			apiErr.Response.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Submit sends a signed transaction and returns its receipt
func (c *Client) Submit(ctx context.Context, tx *protocol.Transaction) (*runtime.Receipt, error) {
	var receipt runtime.Receipt
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", tx, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Account reads an account
func (c *Client) Account(ctx context.Context, pk address.Pubkey) (*ledger.Account, error) {
	var acct ledger.Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+pk.String(), nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Bet reads an open bet
func (c *Client) Bet(ctx context.Context, pk address.Pubkey) (*node.BetResponse, error) {
	var bet node.BetResponse
	if err := c.do(ctx, http.MethodGet, "/v1/bets/"+pk.String(), nil, &bet); err != nil {
		return nil, err
	}
	return &bet, nil
}

// Status reads the node status
func (c *Client) Status(ctx context.Context) (*protocol.NodeStatus, error) {
	var status protocol.NodeStatus
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Airdrop asks the node faucet to credit pk
func (c *Client) Airdrop(ctx context.Context, pk address.Pubkey) (uint64, error) {
	var resp node.AirdropResponse
	if err := c.do(ctx, http.MethodPost, "/v1/airdrop", node.AirdropRequest{Address: pk}, &resp); err != nil {
		return 0, err
	}
	return resp.Lamports, nil
}

func (c *Client) sign(ctx context.Context, payer *crypto.Keypair, ixs ...protocol.Instruction) (*runtime.Receipt, error) {
	tx := protocol.NewTransaction(payer.PublicKey(), ixs...)
	if err := tx.Sign(payer); err != nil {
		return nil, err
	}
	return c.Submit(ctx, tx)
}

// FundVault deposits amount from the house into its vault
func (c *Client) FundVault(ctx context.Context, house *crypto.Keypair, amount uint64) (*runtime.Receipt, error) {
	ix, err := dice.NewInitializeInstruction(house.PublicKey(), amount)
	if err != nil {
		return nil, err
	}
	return c.sign(ctx, house, ix)
}

// PlaceBet opens a bet for player against house and returns the bet as the
// oracle will sign it.
func (c *Client) PlaceBet(ctx context.Context, player *crypto.Keypair, house address.Pubkey, args dice.PlaceBet) (*dice.Bet, error) {
	ix, err := dice.NewPlaceBetInstruction(player.PublicKey(), house, args)
	if err != nil {
		return nil, err
	}
	if _, err := c.sign(ctx, player, ix); err != nil {
		return nil, err
	}

	vault, err := dice.VaultAddress(house)
	if err != nil {
		return nil, err
	}
	derived, err := dice.BetAddress(vault.Address, args.Seed)
	if err != nil {
		return nil, err
	}
	return &dice.Bet{
		Player: player.PublicKey(),
		Seed:   args.Seed,
		Amount: args.Amount,
		Roll:   args.Roll,
		Bump:   derived.Bump,
	}, nil
}

// ResolveBet submits the settlement transaction for bet: the verification
// record of sig at position 0 followed by the settlement instruction, paid
// and signed by the house.
func (c *Client) ResolveBet(ctx context.Context, house *crypto.Keypair, bet *dice.Bet, sig []byte) (*runtime.Receipt, error) {
	ixs, err := dice.ResolveInstructions(house.PublicKey(), bet, sig)
	if err != nil {
		return nil, err
	}
	return c.sign(ctx, house, ixs...)
}

// Subscribe streams committed events of the given kinds, all kinds if none
// are given. The channel closes when ctx is done or the stream ends.
func (c *Client) Subscribe(ctx context.Context, kinds ...string) (<-chan events.Event, error) {
	u, err := url.Parse(c.baseURL + "/v1/events")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	for _, k := range kinds {
		q.Add("kind", k)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set(protocol.VersionHeader, c.version)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Response: node.ErrorResponse{Error: err.Error()}}
		}
		return nil, fmt.Errorf("dialing event stream: %w", err)
	}

	out := make(chan events.Event)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
