// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes Prometheus metrics for token validation and the
// login flow.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token validation results.
const (
	ResultOK        = "ok"
	ResultExpired   = "expired"
	ResultInvalid   = "invalid"
	ResultForbidden = "forbidden"
)

// Login outcomes.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLockout            = "lockout"
	OutcomeExpiredAccount     = "expired_account"
	OutcomeSessionLimit       = "session_limit"
	OutcomeMandatoryAction    = "mandatory_action"
	OutcomeUpstreamError      = "upstream_error"
)

var (
	// TokenValidations counts bearer-token validations by result.
	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realmkit",
		Name:      "token_validations_total",
		Help:      "Bearer token validations performed by the authorization guard.",
	}, []string{"result"})

	// LoginAttempts counts password-grant login attempts by outcome.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realmkit",
		Name:      "login_attempts_total",
		Help:      "Password-grant login attempts by outcome.",
	}, []string{"outcome"})

	// AdminTokenRefreshes counts service-account token (re)acquisitions.
	AdminTokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "realmkit",
		Name:      "admin_token_refreshes_total",
		Help:      "Client-credentials grants performed to refresh the admin token.",
	})
)
