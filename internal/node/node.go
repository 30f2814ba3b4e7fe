// Package node serves the settlement ledger over HTTP: transaction
// submission, account and bet reads, status, metrics and a websocket stream
// of committed events.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dicesettle/internal/address"
	"dicesettle/internal/dice"
	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/protocol"
	"dicesettle/internal/runtime"
)

const maxBodySize = 1 << 20

// RequestIDHeader carries the identifier a request is logged under
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Options configures a Node
type Options struct {
	ListenAddr       string
	RequestTimeout   time.Duration
	MinClientVersion string
	// FaucetLamports enables POST /v1/airdrop when positive
	FaucetLamports uint64
	House          address.Pubkey

	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Node serves the ledger over HTTP: it accepts signed transactions, runs them
// through the executor and streams the committed events to subscribers.
type Node struct {
	mu sync.RWMutex

	// Core components
	opts       Options
	log        logrus.FieldLogger
	executor   *runtime.Executor
	store      ledger.Store
	gate       *protocol.VersionGate
	wsManager  *WSManager
	httpServer *http.Server
	handler    http.Handler
	metrics    *Metrics

	// Node state
	vault        address.Pubkey
	startTime    time.Time
	transactions atomic.Uint64
	failed       atomic.Uint64
	betsResolved atomic.Uint64
}

// New creates a node serving executor's ledger
func New(executor *runtime.Executor, broadcaster *events.Broadcaster, opts Options) (*Node, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	gate, err := protocol.NewVersionGate(opts.MinClientVersion)
	if err != nil {
		return nil, err
	}

	vault, err := dice.VaultAddress(opts.House)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault: %w", err)
	}

	metrics := NewMetrics(opts.Registerer)
	n := &Node{
		opts:      opts,
		log:       opts.Logger.WithField("component", "node"),
		executor:  executor,
		store:     executor.Store(),
		gate:      gate,
		metrics:   metrics,
		vault:     vault.Address,
		startTime: time.Now(),
	}
	n.wsManager = NewWSManager(broadcaster, n.log, metrics)
	n.handler = n.routes()

	return n, nil
}

func (n *Node) routes() http.Handler {
	mux := http.NewServeMux()
	n.handle(mux, "POST /v1/transactions", n.handleSubmit)
	n.handle(mux, "GET /v1/accounts/{address}", n.handleAccount)
	n.handle(mux, "GET /v1/bets/{address}", n.handleBet)
	n.handle(mux, "GET /v1/status", n.handleStatus)
	if n.opts.FaucetLamports > 0 {
		n.handle(mux, "POST /v1/airdrop", n.handleAirdrop)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(n.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /v1/events", n.wsManager.handleWebSocket)
	return n.requestID(n.versionGate(mux))
}

// Handler returns the HTTP handler of the node
func (n *Node) Handler() http.Handler {
	return n.handler
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (n *Node) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		fn(rec, r)
		n.metrics.Requests.WithLabelValues(pattern, strconv.Itoa(rec.code)).Inc()
		n.metrics.ResponseLatency.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// requestID tags every request with the caller's X-Request-ID or a fresh one
func (n *Node) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (n *Node) requestLog(r *http.Request) logrus.FieldLogger {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return n.log.WithField("request_id", id)
}

// versionGate rejects clients announcing a protocol version below the minimum
func (n *Node) versionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get(protocol.VersionHeader); v != "" {
			ok, err := n.gate.IsCompatible(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
				return
			}
			if !ok {
				writeJSON(w, http.StatusUpgradeRequired, ErrorResponse{
					Error: fmt.Sprintf("client version %s is below minimum %s", v, n.gate.Min()),
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves HTTP until ctx is cancelled
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	n.httpServer = &http.Server{
		Addr:              n.opts.ListenAddr,
		Handler:           n.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	server := n.httpServer
	n.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		n.log.WithField("addr", n.opts.ListenAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Monitor context for shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.Stop(shutdownCtx); err != nil {
			n.log.WithError(err).Error("Error stopping node")
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

// Stop closes event streams and shuts down the HTTP server
func (n *Node) Stop(ctx context.Context) error {
	n.wsManager.Stop()

	n.mu.RLock()
	server := n.httpServer
	n.mu.RUnlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// Status returns the current status of the node
func (n *Node) Status(ctx context.Context) protocol.NodeStatus {
	status := protocol.NodeStatus{
		House:        n.opts.House.String(),
		Vault:        n.vault.String(),
		Version:      protocol.CurrentVersion,
		StartTime:    n.startTime,
		Transactions: n.transactions.Load(),
		Failed:       n.failed.Load(),
		BetsResolved: n.betsResolved.Load(),
		Backend:      n.store.Backend(),
	}
	if acct, err := n.store.Get(ctx, n.vault); err == nil {
		status.VaultBalance = acct.Lamports
	}
	return status
}

func (n *Node) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	tx, err := protocol.DecodeTransaction(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid transaction: %v", err)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), n.opts.RequestTimeout)
	defer cancel()

	n.transactions.Add(1)
	receipt, err := n.executor.Execute(ctx, tx)
	if err != nil {
		n.failed.Add(1)
		n.requestLog(r).WithError(err).Debug("Transaction not applied")
		resp := errorResponse(err)
		if receipt != nil {
			resp.Logs = receipt.Logs
		}
		writeJSON(w, errorStatus(err), resp)
		return
	}

	for _, ev := range receipt.Events {
		if ev.Kind == events.KindBetResolved {
			n.betsResolved.Add(1)
		}
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (n *Node) handleAccount(w http.ResponseWriter, r *http.Request) {
	pk, ok := pathAddress(w, r)
	if !ok {
		return
	}
	acct, err := n.store.Get(r.Context(), pk)
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse(err))
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (n *Node) handleBet(w http.ResponseWriter, r *http.Request) {
	pk, ok := pathAddress(w, r)
	if !ok {
		return
	}
	acct, err := n.store.Get(r.Context(), pk)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		err = dice.ErrBetNotFound
	}
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse(err))
		return
	}
	bet, err := dice.DecodeBetAccount(acct)
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse(err))
		return
	}
	writeJSON(w, http.StatusOK, BetResponse{Address: pk, Lamports: acct.Lamports, Bet: *bet})
}

func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.Status(r.Context()))
}

func (n *Node) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req AirdropRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if err := runtime.Airdrop(r.Context(), n.store, req.Address, n.opts.FaucetLamports); err != nil {
		writeJSON(w, errorStatus(err), errorResponse(err))
		return
	}
	n.requestLog(r).WithFields(logrus.Fields{"address": req.Address, "lamports": n.opts.FaucetLamports}).Info("Airdrop")
	writeJSON(w, http.StatusOK, AirdropResponse{Address: req.Address, Lamports: n.opts.FaucetLamports})
}

func pathAddress(w http.ResponseWriter, r *http.Request) (address.Pubkey, bool) {
	pk, err := address.FromBase58(r.PathValue("address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid address: %v", err)})
		return address.Pubkey{}, false
	}
	return pk, true
}

func errorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error(), Name: runtime.ErrorName(err)}
	var coded runtime.CodedError
	if errors.As(err, &coded) {
		resp.Code = coded.ErrorCode()
	}
	return resp
}

func errorStatus(err error) int {
	var ixErr *runtime.InstructionError
	switch {
	case errors.As(err, &ixErr):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrBadSignature),
		errors.Is(err, protocol.ErrSignatureCount),
		errors.Is(err, protocol.ErrNoInstructions),
		errors.Is(err, protocol.ErrMessageTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, dice.ErrBetNotFound):
		return http.StatusNotFound
	case errors.Is(err, dice.ErrInvalidBetData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
