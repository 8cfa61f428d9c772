package remote

import (
	"encoding/json"
	stdliberrors "errors"
	"net/http"
	"time"

	terrors "github.com/odvcencio/tern/pkg/errors"
)

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	response := struct {
		Error       string   `json:"error"`
		Status      int      `json:"status"`
		Code        string   `json:"code,omitempty"`
		Message     string   `json:"message"`
		Remediation []string `json:"remediation,omitempty"`
		Retryable   bool     `json:"retryable,omitempty"`
		Timestamp   string   `json:"timestamp"`
	}{
		Status:    status,
		Message:   http.StatusText(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var coded *terrors.Error
	if stdliberrors.As(err, &coded) {
		response.Code = string(coded.Code)
		if coded.UserMessage != "" {
			response.Message = coded.UserMessage
		} else if coded.Message != "" {
			response.Message = coded.Message
		}
		if len(coded.Remediation) > 0 {
			response.Remediation = append([]string{}, coded.Remediation...)
		}
		response.Retryable = coded.Retryable
	} else if err != nil {
		response.Message = err.Error()
	}

	if len(response.Remediation) == 0 {
		response.Remediation = defaultRemediation(status)
	}

	response.Error = response.Message
	_ = json.NewEncoder(w).Encode(response)
}

// defaultRemediation provides remediation steps for common statuses.
func defaultRemediation(status int) []string {
	switch status {
	case http.StatusUnauthorized:
		return []string{
			"Pass the remote token via 'Authorization: Bearer <token>'.",
			"Check remote.token in ~/.tern/config.yaml or TERN_REMOTE_TOKEN.",
		}
	case http.StatusTooManyRequests:
		return []string{
			"Slow down steering requests.",
			"Wait a moment for the rate limiter to reset.",
		}
	case http.StatusServiceUnavailable:
		return []string{
			"Ensure the shell session is still running.",
			"Retry once the shell finishes starting up.",
		}
	default:
		return nil
	}
}
