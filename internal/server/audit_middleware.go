package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// ActorHeader names the operator making the request.
const ActorHeader = "X-Actor"

func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		entry := AuditLogEntry{
			Timestamp: started.UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Handler:   "unknown",
			Actor:     r.Header.Get(ActorHeader),
		}
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			entry.Handler = route.GetName()
		}
		if entry.Actor == "" {
			if username, _, ok := r.BasicAuth(); ok {
				entry.Actor = username
			}
		}

		vars := mux.Vars(r)
		entry.UnitID = vars["unitID"]
		entry.ProductID = vars["productID"]
		entry.SyncMode = vars["mode"]

		wrw := newResponseWriterWrapper(w)

		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.GetStatusCode()
		entry.Duration = time.Since(started)
		if body := wrw.GetBody(); len(body) > 0 {
			var resp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(body, &resp); err == nil {
				entry.Error = resp.Error
			}
		}

		s.AuditManager.LogEntry(r.Context(), entry)
	})
}
