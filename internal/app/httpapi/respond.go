package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/driveline/platform/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy to its stable status code and envelope.
// Conflicts get the compact {success:false, conflict:true} shape editors key
// off; everything else carries kind and message so clients can distinguish
// "try again" from "fix your input".
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	status := apperr.HTTPStatus(ae.Kind)

	switch ae.Kind {
	case apperr.KindConflict:
		writeJSON(w, status, map[string]interface{}{
			"success":  false,
			"conflict": true,
		})
	case apperr.KindRateLimited:
		if retry, ok := ae.Details["retry_after_seconds"].(int); ok && retry > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
		}
		writeJSON(w, status, map[string]interface{}{
			"success": false,
			"kind":    string(ae.Kind),
			"error":   ae.Message,
			"details": ae.Details,
		})
	default:
		body := map[string]interface{}{
			"success":   false,
			"kind":      string(ae.Kind),
			"error":     ae.Message,
			"retryable": ae.Retryable(),
		}
		if len(ae.Details) > 0 {
			body["details"] = ae.Details
		}
		writeJSON(w, status, body)
	}
}
