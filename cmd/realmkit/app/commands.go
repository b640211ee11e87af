// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the realmkit command-line
// application.
package app

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/realmkit/pkg/keycloak"
	"github.com/stacklok/realmkit/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "realmkit",
	DisableAutoGenTag: true,
	Short:             "realmkit is a Keycloak adapter with local token verification and login policy",
	Long: `realmkit fronts a Keycloak realm: it verifies realm-issued tokens locally,
enforces login policy (lockout, account expiration, concurrent sessions) before
forwarding credentials, and exposes the realm's user, role, group and session
administration over a small HTTP API.

All identity state stays in Keycloak; realmkit itself is stateless.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the realmkit CLI.
func NewRootCmd() *cobra.Command {
	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug mode")
	flags.String("server-url", "", "Keycloak server base URL (e.g. https://auth.example.com)")
	flags.String("realm", "", "Keycloak realm name")
	flags.String("client-id", "", "OIDC client ID for end-user grants")
	flags.String("client-secret", "", "OIDC client secret for end-user grants")
	flags.String("admin-client-id", "admin-cli", "Service-account client ID for the admin API")
	flags.String("admin-client-secret", "", "Service-account client secret for the admin API")
	flags.String("callback-uri", "", "Redirect URI for the authorization-code flow")
	flags.Duration("timeout", 10*time.Second, "Timeout for requests to Keycloak")
	flags.String("ca-bundle", "", "Path to a CA bundle for the Keycloak server's TLS certificate")

	// Every flag is also settable via REALMKIT_* environment variables,
	// e.g. REALMKIT_CLIENT_SECRET.
	viper.SetEnvPrefix("realmkit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		logger.Fatalf("Failed to bind flags: %v", err)
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// clientConfig assembles the gateway configuration from flags and environment.
func clientConfig() keycloak.Config {
	return keycloak.Config{
		ServerURL:         viper.GetString("server-url"),
		Realm:             viper.GetString("realm"),
		ClientID:          viper.GetString("client-id"),
		ClientSecret:      viper.GetString("client-secret"),
		AdminClientID:     viper.GetString("admin-client-id"),
		AdminClientSecret: viper.GetString("admin-client-secret"),
		CallbackURI:       viper.GetString("callback-uri"),
		Timeout:           viper.GetDuration("timeout"),
		CACertPath:        viper.GetString("ca-bundle"),
	}
}
