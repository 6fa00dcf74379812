// Package server exposes the paid content-exchange HTTP surface: gated
// download and upload routes behind the 402 handshake, plus free discovery
// endpoints over the dataset index.
package server

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/metrics"
	"github.com/vitwit/databox/registry"
	"github.com/vitwit/databox/storage"
	"github.com/vitwit/databox/types"
	"github.com/vitwit/databox/verify"
)

// Server wires the storage gateway, payment gate, and dataset registry into
// an http.Handler.
type Server struct {
	gateway  *storage.Gateway
	gate     *Gate
	registry registry.Registry
	index    registry.Index
	price    types.PriceSpec
	log      logger.Logger
	metrics  metrics.Recorder
	validate *validator.Validate
	httpc    *http.Client
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry enables best-effort on-chain registration of uploads.
func WithRegistry(reg registry.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithIndex replaces the in-memory discovery index.
func WithIndex(idx registry.Index) Option {
	return func(s *Server) { s.index = idx }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Server) { s.log = log }
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Server) { s.metrics = rec }
}

// WithHTTPClient sets the client used to fetch url-based uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpc = c }
}

// New builds a server whose paid routes are priced by the given spec. A
// dataset registered with its own price overrides the default on download.
func New(gateway *storage.Gateway, verifier verify.Verifier, price types.PriceSpec, opts ...Option) *Server {
	s := &Server{
		gateway:  gateway,
		index:    registry.NewMemoryIndex(),
		price:    price,
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		validate: validator.New(),
		httpc:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gate = NewGate(verifier, s.log, s.metrics)
	return s
}

// Router builds the route table. Download and upload are payment-gated;
// hello and the discovery endpoints are free.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/hello", s.handleHello).Methods(http.MethodGet)
	r.HandleFunc("/discover_all", s.handleDiscoverAll).Methods(http.MethodGet)
	r.HandleFunc("/discover_query", s.handleDiscoverQuery).Methods(http.MethodGet)

	download := s.gate.Require(s.downloadPrice)
	r.Handle("/download", download(http.HandlerFunc(s.handleDownload))).Methods(http.MethodGet)
	r.Handle("/download/{handle}", download(http.HandlerFunc(s.handleDownload))).Methods(http.MethodGet)

	upload := s.gate.Require(FixedPrice(s.price))
	r.Handle("/upload", upload(http.HandlerFunc(s.handleUpload))).Methods(http.MethodPost)

	return r
}

// downloadPrice quotes the dataset's own price and payee when the requested
// handle is in the index, the route default otherwise.
func (s *Server) downloadPrice(r *http.Request) types.PriceSpec {
	handle := requestHandle(r)
	if handle == "" {
		return s.price
	}

	datasets, err := s.index.Datasets(r.Context())
	if err != nil {
		return s.price
	}
	for _, ds := range datasets {
		if ds.Handle == handle && ds.Price != "" {
			spec := s.price
			spec.Amount = ds.Price
			return spec
		}
	}
	return s.price
}

func requestHandle(r *http.Request) string {
	if handle := mux.Vars(r)["handle"]; handle != "" {
		return handle
	}
	if id := r.URL.Query().Get("id"); id != "" {
		return id
	}
	return r.URL.Query().Get("handle")
}
