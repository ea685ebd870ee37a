// Package classify maps raw send failures to a temporary/permanent decision
// that drives retry-vs-abandon, plus an admin-alert flag for conditions that
// need operator action regardless of retry eligibility.
package classify

import (
	"fmt"
	"strconv"
	"strings"
)

// Error kinds produced by the provider client and the orchestrator.
const (
	KindTimeout          = "timeout"
	KindConnection       = "connection_error"
	KindSSL              = "ssl_error"
	KindCircuitOpen      = "circuit_open"
	KindMissingContact   = "missing_contact"
	KindConfig           = "config_error"
	KindAuth             = "auth_error"
	KindBadRequest       = "bad_request"
	KindNotFound         = "not_found"
	KindInstanceInactive = "instance_inactive"
	KindProvider         = "provider_error"
)

// HTTPKind returns the error kind for a non-200 HTTP status.
func HTTPKind(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// Classification is the outcome of classifying a send failure.
type Classification struct {
	Temporary      bool   `json:"temporary"`
	ShouldRetry    bool   `json:"should_retry"`
	AlertAdmin     bool   `json:"alert_admin"`
	Recommendation string `json:"recommendation"`
}

var permanentKinds = map[string]bool{
	KindConfig:           true,
	KindAuth:             true,
	KindBadRequest:       true,
	KindNotFound:         true,
	KindInstanceInactive: true,
	KindMissingContact:   true,
}

var temporaryKinds = map[string]bool{
	KindTimeout:     true,
	KindConnection:  true,
	KindSSL:         true,
	KindCircuitOpen: true,
}

var permanentHTTP = map[int]bool{
	400: true, 401: true, 403: true, 404: true, 405: true, 410: true,
}

var temporaryHTTP = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// Keywords in provider error messages that indicate no retry can succeed.
var permanentKeywords = []string{
	"unauthorized",
	"forbidden",
	"invalid phone",
	"invalid number",
	"token expired",
	"subscription expired",
	"suspended",
	"not found",
	"bad request",
}

// Keywords that require operator action even when the failure is retryable.
var operatorKeywords = []string{
	"subscription",
	"token expired",
	"unauthorized",
	"forbidden",
	"suspended",
}

// Classify maps a raw error to a retry decision. httpStatus may be zero when
// the failure never reached an HTTP response.
func Classify(kind, message string, httpStatus int) Classification {
	temporary := classifyTemporary(kind, message, httpStatus)

	c := Classification{
		Temporary:   temporary,
		ShouldRetry: temporary,
	}

	if temporary {
		c.Recommendation = "transient failure, retry scheduled"
	} else {
		c.AlertAdmin = true
		c.Recommendation = "permanent failure, operator review required"
	}

	// Operator-action scan is independent of the retry decision: an expired
	// subscription is retryable in theory but needs a human either way.
	lower := strings.ToLower(message)
	for _, kw := range operatorKeywords {
		if strings.Contains(lower, kw) {
			c.AlertAdmin = true
			c.Recommendation = "credentials or subscription issue, check provider account"
			break
		}
	}

	return c
}

func classifyTemporary(kind, message string, httpStatus int) bool {
	if permanentKinds[kind] {
		return false
	}
	if temporaryKinds[kind] {
		return true
	}

	if status := httpStatusOf(kind, httpStatus); status != 0 {
		if permanentHTTP[status] {
			return false
		}
		if temporaryHTTP[status] {
			return true
		}
	}

	lower := strings.ToLower(message)
	for _, kw := range permanentKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}

	// Precautionary default: prefer retrying over silently dropping.
	return true
}

func httpStatusOf(kind string, httpStatus int) int {
	if httpStatus != 0 {
		return httpStatus
	}
	if rest, ok := strings.CutPrefix(kind, "http_"); ok {
		if status, err := strconv.Atoi(rest); err == nil {
			return status
		}
	}
	return 0
}
