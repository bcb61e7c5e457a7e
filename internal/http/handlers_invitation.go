package http

import (
	"net/http"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

type inviteRequest struct {
	ToUserID string `json:"toUserId"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	var inv core.Invitation
	err := s.withRetry(r.Context(), "invite", func() error {
		var err error
		inv, err = s.coord.Invite(r.Context(), who, req.ToUserID)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, inv)
	return nil
}

func (s *Server) handlePendingInvitations(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	invs, err := s.coord.PendingInvitations(r.Context(), who)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(invs))
	return nil
}

func (s *Server) handleSentInvitations(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	invs, err := s.coord.SentInvitations(r.Context(), who)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(invs))
	return nil
}

// handleAccept moves the caller into the inviter's family and returns it.
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	id := r.PathValue("id")

	var f core.Family
	err := s.withRetry(r.Context(), "accept_invitation", func() error {
		var err error
		f, err = s.coord.Accept(r.Context(), who, id)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, f)
	return nil
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	id := r.PathValue("id")
	err := s.withRetry(r.Context(), "reject_invitation", func() error {
		return s.coord.Reject(r.Context(), who, id)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
