package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
)

// autologinIssueResponse is the operator-facing issuance result.
// TokenStored is false when the durable store rejected the insert and
// the link was built in degraded mode.
type autologinIssueResponse struct {
	URL         string `json:"url"`
	TokenStored bool   `json:"tokenStored"`
}

// AutologinIssueHandler mints a one-time login link for a subject.
// The route is behind the auth gate and RequireOperator; this handler
// only re-checks the target's eligibility through the issuer. Storage
// failure never fails the operator action.
func (s *Server) AutologinIssueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := r.PathValue("subjectID")
		if subjectID == "" {
			writeJSONError(w, "invalid_request", "subjectID is required", http.StatusBadRequest)
			return
		}

		issued, err := s.issuer.Issue(r.Context(), subjectID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrPolicyViolation) {
				writeJSONError(w, "policy_violation", "Subject is not eligible for autologin", http.StatusBadRequest)
				return
			}
			log.Error().Err(err).Str("subject_id", subjectID).Msg("autologin issuance failed")
			writeJSONError(w, "server_error", "Failed to issue autologin link", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, autologinIssueResponse{
			URL:         issued.URL,
			TokenStored: issued.Persisted,
		})
	}
}
