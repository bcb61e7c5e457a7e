package http

import (
	"net/http"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	var profile core.UserProfile
	err := s.withRetry(r.Context(), "register", func() error {
		var err error
		profile, err = s.coord.RegisterUser(r.Context(), who)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, profile)
	return nil
}

func (s *Server) handleGetFamily(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	var f core.Family
	err := s.withRetry(r.Context(), "get_family", func() error {
		var err error
		f, err = s.families.GetFamily(r.Context(), who)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, f)
	return nil
}

func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	members, err := s.coord.GetFamilyMembers(r.Context(), who, parseIDs(r.URL.Query().Get("ids")))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(members))
	return nil
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	var upd family.MemberUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		return err
	}
	memberID := r.PathValue("id")

	var f core.Family
	err := s.withRetry(r.Context(), "update_member", func() error {
		var err error
		f, err = s.coord.UpdateMember(r.Context(), who, memberID, upd)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, f)
	return nil
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	memberID := r.PathValue("id")

	var f core.Family
	err := s.withRetry(r.Context(), "remove_member", func() error {
		var err error
		f, err = s.coord.RemoveMember(r.Context(), who, memberID)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, f)
	return nil
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	users, err := s.coord.SearchUsers(r.Context(), who, sanitizeInput(r.URL.Query().Get("q")))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(users))
	return nil
}

type eventView struct {
	Event        string    `json:"event"`
	FamilyIDs    []string  `json:"familyIds"`
	ActorID      string    `json:"actorId,omitempty"`
	InvitationID string    `json:"invitationId,omitempty"`
	At           time.Time `json:"at"`
}

// handleListEvents returns the membership audit trail of the caller's family,
// newest first. Backends without an event log return an empty list.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	limit, err := parseLimit(r.URL.Query(), defaultEventLimit, maxEventLimit)
	if err != nil {
		return err
	}
	f, err := s.families.GetFamily(r.Context(), who)
	if err != nil {
		return err
	}

	out := []eventView{}
	if s.events != nil {
		changes, err := s.events.ListEvents(r.Context(), f.ID, limit)
		if err != nil {
			return err
		}
		for _, c := range changes {
			out = append(out, eventView{
				Event:        c.Event,
				FamilyIDs:    c.FamilyIDs,
				ActorID:      c.ActorID,
				InvitationID: c.InvitationID,
				At:           c.At,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// nonNil renders empty results as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
