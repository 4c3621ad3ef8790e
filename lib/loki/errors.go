// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loki

import "fmt"

// APIError is a non-2xx response from Loki.
type APIError struct {
	// StatusCode is the HTTP response status.
	StatusCode int

	// Body is the start of the response body. Loki answers push
	// failures with a plain-text reason such as "entry out of order".
	Body string
}

func (err *APIError) Error() string {
	if err.Body == "" {
		return fmt.Sprintf("loki: HTTP %d", err.StatusCode)
	}
	return fmt.Sprintf("loki: HTTP %d: %s", err.StatusCode, err.Body)
}
