// Package rpc serves the vault system over JSON-RPC 2.0 and streams committed
// events to websocket subscribers.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stablevault/core"
	"stablevault/crypto"
	"stablevault/integrations/indexer"
	"stablevault/observability"
	"stablevault/observability/logging"
)

const (
	moduleName      = "rpc"
	tracerName      = "stablevault/rpc"
	shutdownTimeout = 10 * time.Second
)

// EventSource answers events_list queries.
type EventSource interface {
	List(ctx context.Context, filter indexer.Filter) ([]indexer.Record, error)
}

// ServerConfig configures the RPC surface.
type ServerConfig struct {
	Auth      AuthConfig
	RateLimit RateLimit
	// AllowAnonymousReads lets read-only methods run without a token. The
	// caller of such a query is the zero address.
	AllowAnonymousReads bool
	ServiceName         string
	// TracerProvider receives one span per JSON-RPC call. Nil uses the
	// global provider.
	TracerProvider trace.TracerProvider
}

type callContext struct {
	r      *http.Request
	caller crypto.Address
}

type method struct {
	write bool
	fn    func(*callContext, *RPCRequest) (interface{}, error)
}

type Server struct {
	node    *core.Node
	auth    *Authenticator
	limiter *callerLimiter
	events  EventSource
	hub     *Hub
	logger  *slog.Logger
	tracer  trace.Tracer
	cfg     ServerConfig
	methods map[string]method
}

// NewServer wires the RPC surface over node. events may be nil, in which case
// events_list reports the indexer as unavailable.
func NewServer(node *core.Node, events EventSource, hub *Hub, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	auth, err := NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vaultd"
	}
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	s := &Server{
		node:    node,
		auth:    auth,
		limiter: newCallerLimiter(cfg.RateLimit),
		events:  events,
		hub:     hub,
		logger:  logger,
		tracer:  provider.Tracer(tracerName),
		cfg:     cfg,
	}
	s.methods = s.routes()
	return s, nil
}

func (s *Server) routes() map[string]method {
	read := func(fn func(*callContext, *RPCRequest) (interface{}, error)) method { return method{fn: fn} }
	write := func(fn func(*callContext, *RPCRequest) (interface{}, error)) method { return method{write: true, fn: fn} }
	return map[string]method{
		"vault_create":      write(s.handleVaultCreate),
		"vault_deposit":     write(s.handleVaultDeposit),
		"vault_withdraw":    write(s.handleVaultWithdraw),
		"vault_destroy":     write(s.handleVaultDestroy),
		"vault_borrow":      write(s.handleVaultBorrow),
		"vault_payBack":     write(s.handleVaultPayBack),
		"vault_buyRisky":    write(s.handleVaultBuyRisky),
		"vault_transfer":    write(s.handleVaultTransfer),
		"vault_pause":       write(s.handleVaultPause),
		"vault_unpause":     write(s.handleVaultUnpause),
		"vault_details":     read(s.handleVaultDetails),
		"vault_debtCeiling": read(s.handleVaultDebtCeiling),
		"vault_ownerOf":     read(s.handleVaultOwnerOf),
		"vault_list":        read(s.handleVaultList),
		"vault_totals":      read(s.handleVaultTotals),

		"token_metadata":    read(s.handleTokenMetadata),
		"token_balanceOf":   read(s.handleTokenBalanceOf),
		"token_totalSupply": read(s.handleTokenTotalSupply),
		"token_allowance":   read(s.handleTokenAllowance),
		"token_hasRole":     read(s.handleTokenHasRole),
		"token_transfer":    write(s.handleTokenTransfer),
		"token_approve":     write(s.handleTokenApprove),
		"token_setupRole":   write(s.handleTokenSetupRole),
		"token_mint":        write(s.handleTokenMint),
		"token_burn":        write(s.handleTokenBurn),

		"oracle_getPrice":          read(s.handleOracleGetPrice),
		"oracle_setPrice":          write(s.handleOracleSetPrice),
		"measurer_getStability":    read(s.handleMeasurerGetStability),
		"measurer_setStability":    write(s.handleMeasurerSetStability),
		"controller_getParameters": read(s.handleControllerGetParameters),
		"controller_setParameters": write(s.handleControllerSetParameters),
		"controller_controlStable": write(s.handleControllerControlStable),
		"system_addresses":         read(s.handleSystemAddresses),
		"events_list":              read(s.handleEventsList),
	}
}

// Handler returns the HTTP surface: POST /rpc, GET /healthz, GET /metrics and
// the GET /ws/events stream, instrumented with otelhttp.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	r.Get("/ws/events", s.hub.ServeHTTP)
	return otelhttp.NewHandler(r, s.cfg.ServiceName)
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, err := s.node.System()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"deployed": err == nil,
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "rpc."+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
			attribute.Bool("rpc.write", m.write),
		))
	start := time.Now()
	status := s.dispatch(w, r.WithContext(ctx), req, m)
	observability.ModuleMetrics().Observe(moduleName, req.Method, status, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	span.End()
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest, m method) int {
	caller, err := s.auth.Caller(r)
	if err != nil {
		if !(errors.Is(err, errMissingToken) && !m.write && s.cfg.AllowAnonymousReads) {
			s.logger.Debug("rpc auth rejected",
				slog.String("method", req.Method),
				logging.MaskField("authorization", r.Header.Get("Authorization")),
				slog.String("reason", err.Error()))
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
			return http.StatusUnauthorized
		}
		caller = crypto.Address{}
	}

	span := trace.SpanFromContext(r.Context())
	key := clientSource(r)
	if !caller.IsZero() {
		key = caller.String()
		span.SetAttributes(attribute.String("rpc.caller", key))
	}
	if !s.limiter.allow(key) {
		observability.ModuleMetrics().RecordThrottle(moduleName, "rate_limited")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", key)
		return http.StatusTooManyRequests
	}

	result, err := m.fn(&callContext{r: r, caller: caller}, req)
	if err != nil {
		span.RecordError(err)
		rpcErr := toRPCError(err)
		if rpcErr.status >= http.StatusInternalServerError {
			s.logger.Warn("rpc call failed",
				slog.String("method", req.Method),
				slog.String("caller", caller.String()),
				slog.String("error", err.Error()))
		}
		writeError(w, rpcErr.status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return rpcErr.status
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}
