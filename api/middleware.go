package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"showplan/services/users"
)

// ProfileMiddleware creates middleware that verifies the {userID} route
// variable names a registered profile. Requests for unknown profiles get a
// 404 so callers can't probe schedule or queue data for deleted users.
func ProfileMiddleware(usersSvc *users.Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Always allow OPTIONS for CORS
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			vars := mux.Vars(r)
			userID := vars["userID"]
			if userID == "" || !usersSvc.Exists(userID) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"error": "profile not found"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
