package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/vetclinic-ai-platform/internal/http/middleware"
)

// requireClinicAccess rejects staff tokens scoped to a different clinic than
// the {clinicID} in the path.
func requireClinicAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID := chi.URLParam(r, "clinicID")
		if clinicID == "" {
			http.Error(w, "missing clinic id", http.StatusBadRequest)
			return
		}
		if !httpmiddleware.CanAccessClinic(r.Context(), clinicID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
