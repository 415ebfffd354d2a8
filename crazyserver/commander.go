package crazyserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mikehamer/crazypilot/control"
	"github.com/mikehamer/crazypilot/pairing"
)

func (s *Server) commanderInitRoute(r *mux.Router) {
	r.HandleFunc("/scheme", s.schemeIndexHandler).Methods("GET")
	r.HandleFunc("/scheme", s.schemeSetAllHandler).Methods("PUT")
	r.HandleFunc("/pairs/{id}/scheme", s.schemeSetHandler).Methods("PUT")
}

type schemeRequest struct {
	Scheme *control.Scheme `json:"scheme"`
}

type schemeResponse struct {
	Scheme control.Scheme `json:"scheme"`
}

// decodeScheme rejects unknown and unsupported schemes alike.
func decodeScheme(w http.ResponseWriter, r *http.Request) (control.Scheme, bool) {
	var req schemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Scheme == nil {
		respondError(w, http.StatusBadRequest, "Bad request! Expected {\"scheme\": name}")
		return 0, false
	}
	if !req.Scheme.Supported() {
		respondError(w, http.StatusBadRequest, control.ErrorUnsupportedScheme.Error())
		return 0, false
	}
	return *req.Scheme, true
}

func (s *Server) schemeIndexHandler(w http.ResponseWriter, r *http.Request) {
	var resp schemeResponse
	if err := s.onLoop(r, func() { resp.Scheme = s.registry.Scheme() }); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// schemeSetAllHandler changes the scheme of every pair and of future pairs.
func (s *Server) schemeSetAllHandler(w http.ResponseWriter, r *http.Request) {
	scheme, ok := decodeScheme(w, r)
	if !ok {
		return
	}

	var setErr error
	if err := s.onLoop(r, func() { setErr = s.registry.SetScheme(scheme) }); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if setErr != nil {
		respondError(w, http.StatusBadRequest, setErr.Error())
		return
	}
	respondJSON(w, http.StatusOK, schemeResponse{scheme})
}

func (s *Server) schemeSetHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	scheme, ok := decodeScheme(w, r)
	if !ok {
		return
	}

	var found bool
	var setErr error
	err := s.onLoop(r, func() {
		var p *pairing.Pair
		if p, found = s.registry.ByID(id); found {
			setErr = p.Delegate.SetScheme(scheme)
		}
	})
	switch {
	case err != nil:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case !found:
		respondError(w, http.StatusNotFound, pairing.ErrorPairNotFound.Error())
	case setErr != nil:
		respondError(w, http.StatusBadRequest, setErr.Error())
	default:
		respondJSON(w, http.StatusOK, schemeResponse{scheme})
	}
}
