package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/oskar-77/OskarTrackSystem33/internal/db"
	"github.com/oskar-77/OskarTrackSystem33/internal/httputil"
	"github.com/oskar-77/OskarTrackSystem33/internal/zones"
)

func zoneID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, httputil.WithStatus(http.StatusBadRequest, fmt.Errorf("invalid zone id %q", r.PathValue("id")))
	}
	return id, nil
}

// listZones returns every zone, or only active ones with ?active=true.
func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	zs, err := s.db.ListZones(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, zs)
}

func (s *Server) createZone(w http.ResponseWriter, r *http.Request) {
	var z zones.Zone
	if err := httputil.DecodeJSON(w, r, &z); err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.CreateZone(r.Context(), &z); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ReloadZones(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, z)
}

func (s *Server) getZone(w http.ResponseWriter, r *http.Request) {
	id, err := zoneID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	z, err := s.db.GetZone(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, z)
}

// patchZone toggles a zone's active flag: {"active": false}.
func (s *Server) patchZone(w http.ResponseWriter, r *http.Request) {
	id, err := zoneID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Active == nil {
		httputil.BadRequest(w, "missing active flag")
		return
	}
	if err := s.db.SetZoneActive(r.Context(), id, *body.Active); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ReloadZones(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	z, err := s.db.GetZone(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, z)
}

func (s *Server) deleteZone(w http.ResponseWriter, r *http.Request) {
	id, err := zoneID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.DeleteZone(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ReloadZones(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SeedZones creates the zones described in a JSON zone document, skipping
// ids that already exist, and reloads the index. It returns the number of
// zones created.
func (s *Server) SeedZones(ctx context.Context, data []byte) (int, error) {
	zs, err := zones.ParseZones(data)
	if err != nil {
		return 0, err
	}
	created := 0
	for i := range zs {
		if zs[i].ID != 0 {
			_, err := s.db.GetZone(ctx, zs[i].ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, db.ErrNotFound) {
				return created, err
			}
		}
		if err := s.db.CreateZone(ctx, &zs[i]); err != nil {
			return created, err
		}
		created++
	}
	return created, s.ReloadZones(ctx)
}
