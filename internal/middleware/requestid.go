package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID assigns each request an id (or keeps the caller's) and echoes
// it in the response. Error envelopes read it back from the header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
