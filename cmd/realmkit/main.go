// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the realmkit command-line application.
package main

import (
	"os"

	"github.com/stacklok/realmkit/cmd/realmkit/app"
	"github.com/stacklok/realmkit/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
