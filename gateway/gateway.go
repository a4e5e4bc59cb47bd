package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
	"github.com/pampang/federation/federation/graph"
	"github.com/pampang/federation/federation/planner"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	RequestIDHeader  = "X-Request-Id"
	RegistrationPath = "/schema/registration"

	tracerName = "github.com/pampang/federation/gateway"
)

// Gateway serves query plans over HTTP and accepts schema registrations.
type Gateway struct {
	endpoint            string
	autoFragmentization bool
	logger              *zap.Logger
	tracer              trace.Tracer

	// mu serializes registrations; readers only load store.
	mu    sync.Mutex
	store atomic.Pointer[schemaStore]
}

var _ http.Handler = (*Gateway)(nil)

// NewGateway loads every configured subgraph schema, from its schema files or
// from the service itself, and composes the initial supergraph.
func NewGateway(ctx context.Context, settings GatewayOption, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{Timeout: settings.Timeout()}
	if settings.Opentelemetry.TracingSetting.Enable {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	order := make([]string, len(settings.Services))
	sdls := make([]string, len(settings.Services))
	hosts := make(map[string]string, len(settings.Services))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, s := range settings.Services {
		order[i] = s.Name
		hosts[s.Name] = s.Host

		eg.Go(func() error {
			sdl, err := loadSDL(egCtx, s, httpClient, settings.Retry)
			if err != nil {
				return fmt.Errorf("service %q: %w", s.Name, err)
			}
			sdls[i] = sdl
			logger.Debug("subgraph schema loaded", zap.String("subgraph", s.Name), zap.Int("bytes", len(sdl)))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	store := &schemaStore{
		order: order,
		sdls:  make(map[string]string, len(order)),
		hosts: hosts,
	}
	for i, name := range order {
		store.sdls[name] = sdls[i]
	}

	engine, err := buildEngine(store.order, store.sdls, store.hosts, logger)
	if err != nil {
		return nil, err
	}
	store.engine = engine

	g := &Gateway{
		endpoint:            settings.Endpoint,
		autoFragmentization: settings.Planning.AutoFragmentization,
		logger:              logger,
		tracer:              otel.Tracer(tracerName),
	}
	if g.endpoint == "" {
		g.endpoint = defaultEndpoint
	}
	g.store.Store(store)

	return g, nil
}

func loadSDL(ctx context.Context, s GatewayService, httpClient *http.Client, retry RetryOption) (string, error) {
	if len(s.SchemaFiles) == 0 {
		return fetchSDL(ctx, s.Host, httpClient, retry)
	}

	var schema []byte
	for _, f := range s.SchemaFiles {
		src, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		schema = append(schema, src...)
		schema = append(schema, '\n')
	}
	return string(schema), nil
}

// SuperGraph returns the supergraph currently used for planning.
func (g *Gateway) SuperGraph() *graph.SuperGraph {
	return g.store.Load().engine.superGraph
}

// Planner returns the planner currently in use.
func (g *Gateway) Planner() *planner.Planner {
	return g.store.Load().engine.planner
}

// ParseError lists the syntax errors of a client query.
type ParseError struct {
	Messages []string
}

func (e *ParseError) Error() string {
	return "failed to parse query: " + strings.Join(e.Messages, "; ")
}

// ParseQuery parses client query text into a document the planner accepts.
func ParseQuery(query string) (*ast.Document, error) {
	p := parser.New(lexer.New(query))
	doc := p.ParseDocument()
	if errs := p.Errors(); len(errs) > 0 {
		perr := &ParseError{Messages: make([]string, 0, len(errs))}
		for _, e := range errs {
			perr.Messages = append(perr.Messages, fmt.Sprint(e))
		}
		return nil, perr
	}
	return doc, nil
}

type planRequest struct {
	Query               string `json:"query"`
	AutoFragmentization *bool  `json:"autoFragmentization,omitempty"`
}

type registrationRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
	SDL  string `json:"sdl"`
}

type errorExtensions struct {
	Code string `json:"code"`
}

type responseError struct {
	Message    string          `json:"message"`
	Extensions errorExtensions `json:"extensions"`
}

type errorResponse struct {
	Errors []responseError `json:"errors"`
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	logger := g.logger.With(zap.String("request_id", requestID))

	switch r.URL.Path {
	case g.endpoint:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.servePlan(w, r, logger)
	case RegistrationPath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.serveRegistration(w, r, logger)
	default:
		http.NotFound(w, r)
	}
}

func (g *Gateway) servePlan(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	_, span := g.tracer.Start(r.Context(), "plan", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	start := time.Now()

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, responseError{Message: "invalid request body: " + err.Error(), Extensions: errorExtensions{Code: "BAD_REQUEST"}})
		return
	}

	doc, err := ParseQuery(req.Query)
	if err != nil {
		var perr *ParseError
		errors.As(err, &perr)
		out := make([]responseError, 0, len(perr.Messages))
		for _, msg := range perr.Messages {
			out = append(out, responseError{Message: msg, Extensions: errorExtensions{Code: "GRAPHQL_PARSE_FAILED"}})
		}
		span.SetStatus(codes.Error, "parse failed")
		writeErrors(w, http.StatusOK, out...)
		return
	}

	opts := planner.QueryPlanningOptions{AutoFragmentization: g.autoFragmentization}
	if req.AutoFragmentization != nil {
		opts.AutoFragmentization = *req.AutoFragmentization
	}

	plan, err := g.Planner().Plan(doc, opts)
	if err != nil {
		var pe *planner.PlanningError
		if !errors.As(err, &pe) {
			pe = &planner.PlanningError{Message: err.Error()}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, pe.Code())
		logger.Info("query planning failed", zap.String("code", pe.Code()), zap.String("error", pe.Message))
		writeErrors(w, http.StatusOK, responseError{Message: pe.Message, Extensions: errorExtensions{Code: pe.Code()}})
		return
	}

	body, err := json.Marshal(plan)
	if err != nil {
		logger.Error("failed to encode query plan", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	fetches := len(plan.Fetches())
	span.SetAttributes(
		attribute.Int("fedplan.fetches", fetches),
		attribute.Bool("fedplan.auto_fragmentization", opts.AutoFragmentization),
	)
	logger.Debug("query planned", zap.Int("fetches", fetches), zap.Duration("duration", time.Since(start)))

	w.Header().Set("Content-Type", "application/json")
	w.Write(body) //nolint:errcheck
}

func (g *Gateway) serveRegistration(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, responseError{Message: "invalid request body: " + err.Error(), Extensions: errorExtensions{Code: "BAD_REQUEST"}})
		return
	}
	if req.Name == "" || req.SDL == "" {
		writeErrors(w, http.StatusBadRequest, responseError{Message: "name and sdl are required", Extensions: errorExtensions{Code: "BAD_REQUEST"}})
		return
	}

	if err := g.Register(req.Name, req.Host, req.SDL); err != nil {
		var out []responseError
		for _, ce := range graph.CompositionErrors(err) {
			out = append(out, responseError{Message: ce.Message, Extensions: errorExtensions{Code: "COMPOSITION_FAILED"}})
		}
		logger.Warn("schema registration rejected", zap.String("subgraph", req.Name), zap.Error(err))
		writeErrors(w, http.StatusUnprocessableEntity, out...)
		return
	}

	logger.Info("schema registered", zap.String("subgraph", req.Name), zap.String("host", req.Host))
	w.WriteHeader(http.StatusNoContent)
}

// Register adds or replaces a subgraph and swaps in the recomposed supergraph.
// On failure the current supergraph stays in place.
func (g *Gateway) Register(name, host, sdl string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.store.Load().withService(name, host, sdl)
	engine, err := buildEngine(next.order, next.sdls, next.hosts, g.logger)
	if err != nil {
		return err
	}
	next.engine = engine
	g.store.Store(next)

	return nil
}

func writeErrors(w http.ResponseWriter, status int, errs ...responseError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&errorResponse{Errors: errs}) //nolint:errcheck
}
