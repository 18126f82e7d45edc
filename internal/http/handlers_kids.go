package http

import (
	"net/http"
	"time"

	"piggybank/internal/core"
)

type kidJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toKidJSON(k core.Kid) kidJSON {
	return kidJSON{
		ID:        k.ID,
		Name:      k.Name,
		Age:       k.Age,
		CreatedAt: k.CreatedAt,
		UpdatedAt: k.UpdatedAt,
	}
}

type kidRequest struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func (s *Server) handleCreateKid(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req kidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	kid, err := s.kids.CreateKid(r.Context(), gid, req.Name, req.Age, actor(r, gid))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toKidJSON(kid))
}

func (s *Server) handleListKids(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	kids, err := s.kids.ListKids(r.Context(), gid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]kidJSON, 0, len(kids))
	for _, k := range kids {
		out = append(out, toKidJSON(k))
	}
	writeJSON(w, http.StatusOK, struct {
		Kids []kidJSON `json:"kids"`
	}{out})
}

func (s *Server) handleKidDetails(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	details, err := s.queries.KidDetails(r.Context(), gid, kid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recent := make([]entryJSON, 0, len(details.Recent))
	for _, e := range details.Recent {
		recent = append(recent, toEntryJSON(e))
	}
	writeJSON(w, http.StatusOK, struct {
		Kid     kidJSON     `json:"kid"`
		Buckets amountsJSON `json:"buckets"`
		Total   string      `json:"total"`
		Recent  []entryJSON `json:"recent"`
	}{toKidJSON(details.Kid), toAmountsJSON(details.Amounts), details.Total.StringFixed(2), recent})
}

func (s *Server) handleUpdateKid(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req kidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := s.kids.UpdateKid(r.Context(), gid, kid, req.Name, req.Age, actor(r, gid))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toKidJSON(updated))
}

func (s *Server) handleDeleteKid(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.kids.DeleteKid(r.Context(), gid, kid, actor(r, gid)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
