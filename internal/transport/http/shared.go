// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and shape responses; no business logic lives here.
package httptransport

import (
	"encoding/json"
	"net/http"

	dErrors "ballotbox/pkg/domainerrors"
)

// writeJSON centralizes response encoding.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates domain errors into the JSON error envelope. Unknown
// errors become opaque 500s so nothing internal leaks.
func writeError(w http.ResponseWriter, err error) {
	de, ok := err.(*dErrors.Error)
	if !ok {
		de = dErrors.New(dErrors.CodeInternal, "internal server error")
	}
	writeJSON(w, dErrors.ToHTTPStatus(de.Code), map[string]string{
		"error":   string(de.Code),
		"message": de.Message,
	})
}
