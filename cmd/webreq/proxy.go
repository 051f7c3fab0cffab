package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/webreq/pkg/client"
	"github.com/Sternrassler/webreq/pkg/logging"
	"github.com/Sternrassler/webreq/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func newProxyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Forward /proxy/* to an upstream through the shared rate limiter",
		Long: `proxy serves:

  GET  /health    liveness check
  GET  /metrics   Prometheus metrics
  ANY  /proxy/*   forwarded to <upstream-scheme>://<upstream-host>/*

Forwarded requests keep their method, query, headers and body and take
one admission each from the limiter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Proxy
			if cfg.UpstreamHost == "" {
				return errors.New("--upstream-host is required")
			}

			p := &proxy{
				client:  a.client,
				scheme:  cfg.UpstreamScheme,
				host:    cfg.UpstreamHost,
				timeout: cfg.RequestTimeout,
				logger:  logging.NewLogger(logging.ComponentProxy),
			}

			server := &http.Server{
				Addr:         cfg.Listen,
				Handler:      newRouter(p),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: writeTimeout(cfg.RequestTimeout),
				IdleTimeout:  120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, server, cfg.ShutdownTimeout, p.logger)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "listen address")
	flags.String("upstream-scheme", "https", "upstream URL scheme")
	flags.String("upstream-host", "", "upstream host, optionally with port (required)")
	flags.Duration("request-timeout", 30*time.Second, "timeout for one forwarded request, including the wait for admission")

	bindFlags(a.v, flags.Lookup, map[string]string{
		"proxy.listen":          "listen",
		"proxy.upstream_scheme": "upstream-scheme",
		"proxy.upstream_host":   "upstream-host",
		"proxy.request_timeout": "request-timeout",
	})

	return cmd
}

// writeTimeout leaves room to copy the response after the upstream call.
// A zero request timeout disables both.
func writeTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return 0
	}
	return requestTimeout + 5*time.Second
}

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting proxy server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("proxy server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down proxy server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// proxy forwards requests to one upstream through the client.
type proxy struct {
	client  *client.Client
	scheme  string
	host    string
	timeout time.Duration
	logger  zerolog.Logger
}

func newRouter(p *proxy) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.HandleFunc("/proxy/*", p.forward)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (p *proxy) forward(w http.ResponseWriter, r *http.Request) {
	logger := p.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	coords := client.Coordinates{
		Scheme:  p.scheme,
		Host:    p.host,
		Path:    "/" + chi.URLParam(r, "*"),
		Method:  r.Method,
		Query:   r.URL.Query(),
		Headers: forwardHeaders(r.Header),
	}

	body, err := requestBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Invoke(ctx, coords, body)
	if err != nil {
		status := errorStatus(err)
		logger.Warn().Err(err).Int("status", status).Str("path", coords.Path).Msg("Forwarding failed")
		http.Error(w, fmt.Sprintf("upstream request failed: %v", err), status)
		return
	}
	defer resp.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Warn().Err(err).Msg("Failed to copy upstream body")
	}
}

// requestBody picks the body variant from the incoming Content-Type. JSON
// is validated and re-encoded; anything else passes through with its
// original media type.
func requestBody(r *http.Request) (client.Body, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if !json.Valid(data) {
			return nil, errors.New("request body is not valid JSON")
		}
		return client.JSONBody{Value: json.RawMessage(data)}, nil
	}
	return client.RawBody{Data: data, ContentType: r.Header.Get("Content-Type")}, nil
}

func forwardHeaders(in http.Header) http.Header {
	out := in.Clone()
	for _, h := range hopHeaders {
		out.Del(h)
	}
	out.Del("Content-Length")
	out.Del("Content-Type")
	out.Del("X-Forwarded-For")
	out.Del("X-Real-Ip")
	return out
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrUnsupportedMethod):
		return http.StatusMethodNotAllowed
	case errors.Is(err, client.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
