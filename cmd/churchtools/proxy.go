package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/churchtools-client/pkg/client"
	"github.com/Sternrassler/churchtools-client/pkg/metrics"
)

const (
	proxyRequestTimeout = 30 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func newProxyCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve ChurchTools GET endpoints with all pages merged",
		Long: `Starts an HTTP server that forwards GET /api/... requests to ChurchTools
and answers with the complete, de-paginated data:

  GET /api/groups        -> {"data":[...every group...],"meta":{"count":N}}
  GET /health            -> liveness
  GET /ready             -> Redis connectivity (when configured)
  GET /metrics           -> Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, rdb, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll(c, rdb)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           newProxyMux(c, rdb, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), srv, a.logger)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	return cmd
}

func newProxyMux(c *client.Client, rdb *redis.Client, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(rdb))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/", apiProxyHandler(c, logger))
	return mux
}

// serve runs srv until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting ChurchTools proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type proxyResponse struct {
	Data any       `json:"data"`
	Meta proxyMeta `json:"meta"`
}

type proxyMeta struct {
	Count int `json:"count"`
}

func apiProxyHandler(c *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONError(w, http.StatusMethodNotAllowed, "only GET is proxied")
			return
		}

		// The proxy always returns every page.
		params := r.URL.Query()
		params.Del("page")

		ctx, cancel := context.WithTimeout(r.Context(), proxyRequestTimeout)
		defer cancel()

		result, err := c.Fetch(ctx, r.URL.Path, params)
		if err != nil {
			status := proxyStatus(err)
			logger.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Proxy request failed")
			writeJSONError(w, status, err.Error())
			return
		}

		logger.Debug().Str("path", r.URL.Path).Int("count", result.Len()).Msg("Proxied")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(proxyResponse{Data: result, Meta: proxyMeta{Count: result.Len()}}); err != nil {
			logger.Error().Err(err).Msg("Failed to write response")
		}
	}
}

// proxyStatus maps a client error to the status returned to proxy callers.
// ChurchTools 4xx answers are passed through.
func proxyStatus(err error) int {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"message": strings.TrimSpace(msg),
	})
}
