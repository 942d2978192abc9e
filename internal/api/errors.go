/**
 * Remote API error mapping
 *
 * Parses the remote service's error envelope and classifies it into the
 * shared error taxonomy. Two response kinds are special: a 409 copy conflict
 * carries the id of the file already occupying the slot, and
 * "user_already_collaborator" means the grant step already happened;
 * callers treat both as success.
 *
 * Author: box-fixer team
 */

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
)

// Remote error codes with dedicated handling.
const (
	codeAlreadyCollaborator = "user_already_collaborator"
	codeItemNameInUse       = "item_name_in_use"
	codeRateLimitExceeded   = "rate_limit_exceeded"
)

// APIError is a structured error response from the remote service.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RequestID  string
	ConflictID string // id of the existing item on a 409 copy conflict
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

// errorEnvelope mirrors the remote error body.
type errorEnvelope struct {
	Type        string `json:"type"`
	Status      int    `json:"status"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestID   string `json:"request_id"`
	ContextInfo struct {
		Conflicts json.RawMessage `json:"conflicts"`
	} `json:"context_info"`
}

// conflictItem is the minimal shape of a conflict entry.
type conflictItem struct {
	ID string `json:"id"`
}

// parseAPIError builds an *errors.Error wrapping an *APIError from a non-2xx
// response body. The body may be empty or non-JSON; classification then
// falls back to the HTTP status alone.
func parseAPIError(op string, resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(body) > 0 {
		var envelope errorEnvelope
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
			apiErr.RequestID = envelope.RequestID
			apiErr.ConflictID = extractConflictID(envelope.ContextInfo.Conflicts)
		}
	}

	return errors.New(classify(apiErr), op, apiErr).WithCode(resp.StatusCode)
}

// extractConflictID handles both shapes the remote uses: a single conflict
// object (file copy) and an array of conflict items (folder create).
func extractConflictID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single conflictItem
	if json.Unmarshal(raw, &single) == nil && single.ID != "" {
		return single.ID
	}

	var many []conflictItem
	if json.Unmarshal(raw, &many) == nil && len(many) > 0 {
		return many[0].ID
	}

	return ""
}

// classify maps a remote error onto the shared taxonomy.
func classify(e *APIError) errors.Type {
	switch e.Code {
	case codeAlreadyCollaborator, codeItemNameInUse:
		return errors.TypeConflict
	case codeRateLimitExceeded:
		return errors.TypeRateLimit
	}

	switch {
	case e.Status == http.StatusConflict:
		return errors.TypeConflict
	case e.Status == http.StatusTooManyRequests:
		return errors.TypeRateLimit
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return errors.TypePermission
	case e.Status == http.StatusNotFound:
		return errors.TypeNotFound
	case e.Status >= 500:
		return errors.TypeServer
	default:
		return errors.TypeUnknown
	}
}

// ConflictID returns the existing item's id when err is an idempotent
// conflict carrying one, and "" otherwise.
func ConflictID(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ConflictID
	}
	return ""
}

// IsAlreadyCollaborator reports whether err is the grant-step idempotent
// outcome.
func IsAlreadyCollaborator(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeAlreadyCollaborator
	}
	return false
}
