package server

import (
	"net/http"

	"github.com/jrsteele09/go-client-portal/identity"
)

// DashboardHandler returns the authenticated subject's view of the
// portal landing page.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := r.Context().Value(ContextKeyIdentity).(*identity.Identity)
		if !ok {
			writeJSONError(w, "unauthorized", "No identity in request context", http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"subject": ident.ID,
			"email":   ident.Email,
			"name":    ident.Name,
			"kind":    ident.Kind,
		})
	}
}

// ProfileHandler returns the subject's profile
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := r.Context().Value(ContextKeyIdentity).(*identity.Identity)
		if !ok {
			writeJSONError(w, "unauthorized", "No identity in request context", http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"subject": ident.ID,
			"email":   ident.Email,
			"name":    ident.Name,
			"roles":   ident.Roles,
		})
	}
}

// Document, payment and quotation CRUD belong to external
// collaborators; the routes are registered behind the gate so the
// protection surface is complete.

func (s *Server) DocumentsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Documents: Not yet implemented", http.StatusNotImplemented)
	}
}

func (s *Server) PaymentsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Payments: Not yet implemented", http.StatusNotImplemented)
	}
}

func (s *Server) QuotationsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Quotations: Not yet implemented", http.StatusNotImplemented)
	}
}
