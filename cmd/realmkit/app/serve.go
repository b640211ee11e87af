// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/realmkit/pkg/auth"
	"github.com/stacklok/realmkit/pkg/keycloak"
	"github.com/stacklok/realmkit/pkg/logger"
	"github.com/stacklok/realmkit/pkg/networking"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the realmkit HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("address", ":8080", "Listen address")
	flags.String("audience", "account", "Expected audience of end-user tokens")
	flags.String("admin-role", "realm-admin", "Role required for the admin endpoints")
	flags.Bool("jwks", false, "Resolve verification keys from the realm's JWKS endpoint instead of the realm descriptor")
	if err := viper.BindPFlags(flags); err != nil {
		logger.Fatalf("Failed to bind flags: %v", err)
	}

	return cmd
}

func runServe(ctx context.Context) error {
	client, err := keycloak.New(clientConfig())
	if err != nil {
		return fmt.Errorf("failed to create Keycloak client: %w", err)
	}

	resolver, err := newKeyResolver(ctx, client)
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(resolver)

	srv := &apiServer{
		client:   client,
		resolver: resolver,
		userGuard: auth.NewGuard(verifier, auth.GuardConfig{
			Audience: viper.GetString("audience"),
			ClientID: client.Config().ClientID,
		}),
		adminGuard: auth.NewGuard(verifier, auth.GuardConfig{
			Audience:      viper.GetString("audience"),
			ClientID:      client.Config().ClientID,
			RequiredRoles: []string{viper.GetString("admin-role")},
		}),
	}

	httpServer := &http.Server{
		Addr:              viper.GetString("address"),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("listening", "address", httpServer.Addr, "realm", client.Config().Realm)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newKeyResolver(ctx context.Context, client *keycloak.Client) (auth.KeyResolver, error) {
	if viper.GetBool("jwks") {
		doc, err := client.OpenIDConfiguration(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to discover JWKS endpoint: %w", err)
		}
		return auth.NewJWKSKeyResolver(ctx, doc.JWKSURI, nil)
	}
	return auth.NewRealmKeyResolver(client.RealmURL(), nil)
}

// apiServer holds the serve command's dependencies.
type apiServer struct {
	client     *keycloak.Client
	resolver   auth.KeyResolver
	userGuard  *auth.Guard
	adminGuard *auth.Guard
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/login-uri", s.handleLoginURI)
		r.With(s.userGuard.Middleware).Get("/me", s.handleMe)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminGuard.Middleware)
		r.Get("/realm/session-policy", s.handleGetSessionPolicy)
		r.Put("/realm/session-policy", s.handlePutSessionPolicy)
		r.Post("/users/{id}/unlock", s.handleUnlockUser)
		r.Post("/keys/refresh", s.handleRefreshKeys)
	})

	return r
}

func (s *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	grant, err := s.client.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeLoginError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	grant, err := s.client.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, keycloak.ErrInvalidCredentials) {
			http.Error(w, "refresh token rejected", http.StatusUnauthorized)
			return
		}
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *apiServer) handleLoginURI(w http.ResponseWriter, r *http.Request) {
	uri, err := s.client.LoginURI(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"login_uri": uri})
}

func (s *apiServer) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "no identity in context", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

type sessionPolicy struct {
	MaxConcurrentSessions int `json:"max_concurrent_sessions"`
	SessionMaxLifespan    int `json:"session_max_lifespan,omitempty"`
	SessionIdleTimeout    int `json:"session_idle_timeout,omitempty"`
}

func (s *apiServer) handleGetSessionPolicy(w http.ResponseWriter, r *http.Request) {
	settings, err := s.client.GetRealmSettings(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	limit, err := s.client.GetMaxConcurrentSessions(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPolicy{
		MaxConcurrentSessions: limit,
		SessionMaxLifespan:    settings.SSOSessionMaxLifespan,
		SessionIdleTimeout:    settings.SSOSessionIdleTimeout,
	})
}

func (s *apiServer) handlePutSessionPolicy(w http.ResponseWriter, r *http.Request) {
	var policy sessionPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.client.SetMaxConcurrentSessions(r.Context(), policy.MaxConcurrentSessions); err != nil {
		writeUpstreamError(w, err)
		return
	}
	if policy.SessionMaxLifespan > 0 {
		if err := s.client.SetSessionLifespans(r.Context(), policy.SessionMaxLifespan, policy.SessionIdleTimeout); err != nil {
			writeUpstreamError(w, err)
			return
		}
	}
	s.handleGetSessionPolicy(w, r)
}

// handleRefreshKeys drops cached verification keys after a realm key
// rotation. JWKS-backed resolvers refresh themselves, so this is a no-op
// there.
func (s *apiServer) handleRefreshKeys(w http.ResponseWriter, _ *http.Request) {
	if invalidator, ok := s.resolver.(interface{ Invalidate() }); ok {
		invalidator.Invalidate()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := s.client.ClearLoginFailures(r.Context(), userID); err != nil {
		if errors.Is(err, keycloak.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeLoginError maps the login error taxonomy onto HTTP statuses. Each
// policy failure gets its own status so clients can react without parsing
// messages.
func writeLoginError(w http.ResponseWriter, err error) {
	var mandatory *keycloak.MandatoryActionError
	var configErr *keycloak.ConfigError

	switch {
	case errors.Is(err, keycloak.ErrUserNotFound),
		errors.Is(err, keycloak.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, keycloak.ErrAccountLocked):
		http.Error(w, err.Error(), http.StatusLocked)
	case errors.Is(err, keycloak.ErrAccountExpired):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, keycloak.ErrSessionLimitReached):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &mandatory):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":           "action_required",
			"required_action": mandatory.Name,
		})
	case errors.As(err, &configErr):
		logger.Errorw("login failed due to configuration", "error", err)
		http.Error(w, "server configuration error", http.StatusInternalServerError)
	default:
		writeUpstreamError(w, err)
	}
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	logger.Errorw("upstream request failed", "error", err)
	if networking.IsHTTPError(err, 0) {
		http.Error(w, "identity provider error", http.StatusBadGateway)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to encode response", "error", err)
	}
}
