package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/registry"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signer"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server exposes digest construction, recovery and verification over HTTP.

Digest endpoints (pure, no state):
  POST /v1/hash             keccak256 of hex data or text
  POST /v1/digest/personal  EIP-191 personal message digest and preimage
  POST /v1/digest/typed     EIP-712 digest with its domain separator, struct hash and encoded type
  POST /v1/recover          signer address and public key of a digest signature

Verification endpoints:
  POST /v1/verify/personal
  POST /v1/verify/typed
    - Recover the signer and compare it with the expected address
    - A valid signature is recorded in the replay registry under its canonical form;
      presenting it again (or its malleated twin) reports replayed=true
  GET  /v1/verifications?signer=0x...     records of one signer, oldest first
  GET  /v1/verifications?signature=0x...  the record of one signature in any encoding

Signing endpoints (only when a signer is configured):
  POST /v1/sign/personal
  POST /v1/sign/typed
  GET  /v1/address

Operational:
  GET /healthz   registry health
  GET /metrics   Prometheus metrics

Every /v1 request gets an X-Request-Id and passes the token bucket rate limiter.
Malformed input is a 400, a signer failure a 502 and a registry failure a 500.
*/

const maxBodyBytes = 1 << 20

// Server handles HTTP requests for the verification service
type Server struct {
	registry   registry.IVerificationRegistry
	signer     signer.ISigner
	logger     *zap.Logger
	metrics    *Metrics
	validate   *validator.Validate
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer creates a new server instance. s may be nil, in which case the signing
// endpoints are not registered.
func NewServer(cfg *config.ServerConfig, reg registry.IVerificationRegistry, s signer.ISigner, logger *zap.Logger) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("verification registry is required")
	}

	validate := validator.New()
	if err := validate.RegisterValidation("hex0x", func(fl validator.FieldLevel) bool {
		_, err := codec.HexToBytes(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register hex validation: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &Server{
		registry: reg,
		signer:   s,
		logger:   logger,
		metrics:  NewMetrics(promRegistry),
		validate: validate,
	}
	if cfg.RateLimit > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	api := http.NewServeMux()
	api.HandleFunc("/v1/hash", srv.handleHash)
	api.HandleFunc("/v1/digest/personal", srv.handlePersonalDigest)
	api.HandleFunc("/v1/digest/typed", srv.handleTypedDigest)
	api.HandleFunc("/v1/recover", srv.handleRecover)
	api.HandleFunc("/v1/verify/personal", srv.handleVerifyPersonal)
	api.HandleFunc("/v1/verify/typed", srv.handleVerifyTyped)
	api.HandleFunc("/v1/verifications", srv.handleVerifications)
	if s != nil {
		api.HandleFunc("/v1/sign/personal", srv.handleSignPersonal)
		api.HandleFunc("/v1/sign/typed", srv.handleSignTyped)
		api.HandleFunc("/v1/address", srv.handleAddress)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", srv.rateLimit(api))
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 10 * time.Second
	}
	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.requestId(srv.instrument(mux)),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
	}

	return srv, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server",
			"address", s.httpServer.Addr,
			"signing_enabled", s.signer != nil,
		)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
