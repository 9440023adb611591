package api

import (
	"net/http"

	"github.com/Proton-105/guildbank/internal/domain"
	"github.com/Proton-105/guildbank/internal/ledger"
	"github.com/Proton-105/guildbank/internal/membership"
)

type addRoleBody struct {
	RoleID      string           `json:"role_id"`
	Name        string           `json:"name"`
	Mentionable bool             `json:"mentionable"`
	Members     []domain.UserRef `json:"members"`
}

type roleResponse struct {
	ID          int64                   `json:"id"`
	Guild       string                  `json:"guild"`
	RoleID      string                  `json:"role_id"`
	Name        string                  `json:"name"`
	Mentionable domain.MentionableState `json:"mentionable"`
}

func (s *server) addRole(w http.ResponseWriter, r *http.Request) {
	var body addRoleBody
	if !s.decode(w, r, &body) {
		return
	}

	role, err := s.membership.AddUserRole(r.Context(), membership.AddRoleRequest{
		RoleID:      body.RoleID,
		Guild:       r.PathValue("guild"),
		Name:        body.Name,
		Mentionable: domain.MentionableFromFlag(body.Mentionable),
		Members:     body.Members,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, roleResponse{
		ID:          role.ID,
		Guild:       role.Guild,
		RoleID:      role.ExternalRoleID,
		Name:        role.DisplayName,
		Mentionable: role.Mentionable,
	})
}

type updateMembersBody struct {
	Previous    []domain.UserRef `json:"previous"`
	Current     []domain.UserRef `json:"current"`
	Mentionable bool             `json:"mentionable"`
}

func (s *server) updateRoleMembers(w http.ResponseWriter, r *http.Request) {
	var body updateMembersBody
	if !s.decode(w, r, &body) {
		return
	}

	result, err := s.membership.UpdateUserRoles(r.Context(), membership.UpdateRoleRequest{
		Guild:       r.PathValue("guild"),
		RoleID:      r.PathValue("role"),
		Previous:    body.Previous,
		Current:     body.Current,
		Mentionable: domain.MentionableFromFlag(body.Mentionable),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type mentionableBody struct {
	State domain.MentionableState `json:"state"`
}

func (s *server) setRoleMentionable(w http.ResponseWriter, r *http.Request) {
	var body mentionableBody
	if !s.decode(w, r, &body) {
		return
	}

	roleID := r.PathValue("role")
	if err := s.membership.SetRoleMentionable(r.Context(), roleID, body.State); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"role_id": roleID, "state": string(body.State)})
}

func (s *server) userRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.membership.GetUserRoles(r.Context(), r.PathValue("user"), r.PathValue("guild"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"roles": nonNil(roles)})
}

func (s *server) currencies(w http.ResponseWriter, r *http.Request) {
	emojis, err := s.ledger.GetAllCurrenciesForGuild(r.Context(), r.PathValue("guild"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"currencies": nonNil(emojis)})
}

func (s *server) balances(w http.ResponseWriter, r *http.Request) {
	req := ledger.GetBalancesRequest{
		Guild: r.PathValue("guild"),
		Emoji: r.URL.Query().Get("emoji"),
	}
	if user := r.URL.Query().Get("user"); user != "" {
		req.User = &domain.UserRef{ExternalID: user, DisplayName: user}
	}

	lines, err := s.ledger.GetBalances(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if lines == nil {
		lines = []domain.BalanceLine{}
	}

	writeJSON(w, http.StatusOK, map[string][]domain.BalanceLine{"balances": lines})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
