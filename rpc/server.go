package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"questchain/core"
	"questchain/indexer"
	"questchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	moduleName      = "quest"
)

var tracer = otel.Tracer("questchain/rpc")

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
	codeReplay         = -32030
	codeUnavailable    = -32050
	// Quest errors are reported as codeQuestBase - quest.Code(err).
	codeQuestBase = -32100
)

// Options configures the JSON-RPC server.
type Options struct {
	Logger             *slog.Logger
	Indexer            *indexer.Indexer
	RateLimitPerMinute int
	RateLimitBurst     int
	JWTSecret          string
	JWTIssuer          string
	SignatureTTL       time.Duration
	ReadHeaderTimeout  time.Duration
	// Now overrides the clock used for signature expiry. Used by tests.
	Now func() time.Time
}

type Server struct {
	node    *core.Node
	logger  *slog.Logger
	indexer *indexer.Indexer
	hub     *Hub
	nonces  *nonceCache
	limiter *rateLimiter
	bearer  *bearerGate
	ttl     time.Duration
	nowFn   func() time.Time
	header  time.Duration
	httpSrv *http.Server
}

func NewServer(node *core.Node, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SignatureTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	header := opts.ReadHeaderTimeout
	if header <= 0 {
		header = 5 * time.Second
	}
	s := &Server{
		node:    node,
		logger:  logger.With("component", "rpc"),
		indexer: opts.Indexer,
		hub:     NewHub(),
		nonces:  newNonceCache(),
		limiter: newRateLimiter(opts.RateLimitPerMinute, opts.RateLimitBurst),
		bearer:  newBearerGate(opts.JWTSecret, opts.JWTIssuer),
		ttl:     ttl,
		nowFn:   nowFn,
		header:  header,
	}
	node.Subscribe(s.hub)
	return s
}

// Hub exposes the websocket fan-out so callers can attach extra sources.
func (s *Server) Hub() *Hub { return s.hub }

// Router assembles the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.middleware).Post("/", s.handle)
	return r
}

// handleHealth reports liveness plus the quest counter so probes also
// exercise a state read.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	count, err := s.node.QuestCounter()
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "quests": count})
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(s.Router(), "questd-rpc"),
		ReadHeaderTimeout: s.header,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc listening", "addr", addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type ctxKey string

const requestIDKey ctxKey = "request-id"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// reply encodes a JSON-RPC response with the given HTTP status.
func reply(w http.ResponseWriter, status int, resp RPCResponse) {
	resp.JSONRPC = jsonRPCVersion
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// failure is a handler error ready to be written as a JSON-RPC error.
type failure struct {
	status int
	err    *RPCError
}

func fail(status, code int, message string, data interface{}) *failure {
	return &failure{status: status, err: &RPCError{Code: code, Message: message, Data: data}}
}

func invalidParams(format string, args ...interface{}) *failure {
	return fail(http.StatusBadRequest, codeInvalidParams, fmt.Sprintf(format, args...), nil)
}

func (f *failure) write(w http.ResponseWriter, id interface{}) {
	status := f.status
	if status <= 0 {
		status = http.StatusBadRequest
	}
	reply(w, status, RPCResponse{ID: id, Error: f.err})
}

// readRequest decodes a single JSON-RPC call from a size-capped body. The
// returned request is non-nil whenever the body parsed, so its id can be
// echoed back in the error.
func readRequest(w http.ResponseWriter, r *http.Request) (*RPCRequest, *failure) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nil, fail(http.StatusRequestEntityTooLarge, codeInvalidRequest,
			fmt.Sprintf("body larger than %d bytes", maxRequestBytes), nil)
	case err != nil:
		return nil, fail(http.StatusBadRequest, codeInvalidRequest, "unreadable body", err.Error())
	case len(bytes.TrimSpace(body)) == 0:
		return nil, fail(http.StatusBadRequest, codeInvalidRequest, "empty body", nil)
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fail(http.StatusBadRequest, codeParseError, "malformed json", err.Error())
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return &req, fail(http.StatusBadRequest, codeInvalidRequest, "jsonrpc must be "+jsonRPCVersion, req.JSONRPC)
	}
	if strings.TrimSpace(req.Method) == "" {
		return &req, fail(http.StatusBadRequest, codeInvalidRequest, "missing method", nil)
	}
	return &req, nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	req, f := readRequest(w, r)
	if f != nil {
		var id interface{}
		if req != nil {
			id = req.ID
		}
		f.write(w, id)
		return
	}

	began := time.Now()
	result, f := s.dispatch(r, req)
	code := 0
	if f != nil {
		code = f.err.Code
		s.logger.Debug("rpc call failed", "method", req.Method, "code", code, "requestId", requestIDFrom(r.Context()))
		f.write(w, req.ID)
	} else {
		reply(w, http.StatusOK, RPCResponse{ID: req.ID, Result: result})
	}
	observability.ModuleMetrics().Observe(moduleName, req.Method, code, time.Since(began))
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) (result interface{}, f *failure) {
	ctx, span := tracer.Start(r.Context(), req.Method, trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	defer func() {
		if f != nil {
			span.SetStatus(codes.Error, f.err.Message)
			span.SetAttributes(attribute.Int("rpc.code", f.err.Code))
		}
		span.End()
	}()
	r = r.WithContext(ctx)

	var params json.RawMessage
	if len(req.Params) > 0 {
		params = req.Params[0]
	}
	if handler, ok := mutatingHandlers[req.Method]; ok {
		if f = s.bearer.check(r); f != nil {
			observability.ModuleMetrics().RecordThrottle(moduleName, "bearer")
			return nil, f
		}
		return s.handleSigned(req.Method, params, handler)
	}
	if handler, ok := readHandlers[req.Method]; ok {
		return handler(s, r, params)
	}
	return nil, fail(http.StatusNotFound, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
}
