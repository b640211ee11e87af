// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyPreview bounds how much of a response body is kept in an HTTPError.
const maxBodyPreview = 4096

// HTTPError represents an unexpected HTTP response. It preserves the remote
// status code and a preview of the response body so callers can classify the
// failure without re-reading the response.
type HTTPError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is a bounded preview of the response body.
	Body string

	// URL is the requested URL.
	URL string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Body)
}

// NewHTTPError creates a new HTTP error from a response, consuming (a bounded
// amount of) its body. The caller remains responsible for closing the body.
func NewHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyPreview))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		URL:        resp.Request.URL.String(),
	}
}

// IsHTTPError checks if an error is an HTTPError with the specified status code.
// If statusCode is 0, it matches any HTTPError.
func IsHTTPError(err error, statusCode int) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return statusCode == 0 || httpErr.StatusCode == statusCode
}
