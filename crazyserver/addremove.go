package crazyserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mikehamer/crazypilot/control"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/gamepad"
	"github.com/mikehamer/crazypilot/pairing"
)

func (s *Server) routes(staticPath string) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/copters", s.coptersIndexHandler).Methods("GET")
	r.HandleFunc("/controllers", s.controllersIndexHandler).Methods("GET")
	r.HandleFunc("/pairs", s.pairsIndexHandler).Methods("GET")
	r.HandleFunc("/pairs/{id}", s.pairHandler).Methods("GET")
	r.HandleFunc("/pairs/{id}", s.pairRemoveHandler).Methods("DELETE")
	r.HandleFunc("/discovery", s.discoveryIndexHandler).Methods("GET")
	r.HandleFunc("/discovery/copters", s.discoveryStartHandler).Methods("POST")
	r.HandleFunc("/discovery/copters", s.discoveryStopHandler).Methods("DELETE")
	s.commanderInitRoute(r)
	s.socketsInitRoute(r)

	if len(staticPath) > 0 {
		r.PathPrefix("/static").Handler(http.StripPrefix("/static", http.FileServer(http.Dir(staticPath))))
		r.Handle("/", http.FileServer(http.Dir(staticPath)))
		r.Handle("/favicon.ico", http.FileServer(http.Dir(staticPath)))
	}
	return r
}

type copterView struct {
	URI        string             `json:"uri"`
	State      string             `json:"state"`
	Pair       string             `json:"pair,omitempty"`
	Stabilizer *copter.Stabilizer `json:"stabilizer,omitempty"`
}

type controllerView struct {
	Key        string             `json:"key"`
	Descriptor gamepad.Descriptor `json:"descriptor"`
	Pair       string             `json:"pair,omitempty"`
}

type pairView struct {
	ID         string           `json:"id"`
	Controller string           `json:"controller"`
	Copter     string           `json:"copter"`
	State      string           `json:"state"`
	Scheme     control.Scheme   `json:"scheme"`
	Created    time.Time        `json:"created"`
	Frames     uint64           `json:"frames"`
	Setpoint   control.Setpoint `json:"setpoint"`
}

// views must be built on the loop

func (s *Server) copterView(c *copter.Copter) copterView {
	v := copterView{URI: c.Key(), State: c.State().String()}
	if p, ok := s.registry.ByCopter(c.Key()); ok {
		v.Pair = p.ID.String()
	}
	if stabilizer, ok := c.Stabilizer(); ok {
		v.Stabilizer = &stabilizer
	}
	return v
}

func (s *Server) pairView(p *pairing.Pair) pairView {
	setpoint, frames := p.Delegate.Last()
	return pairView{
		ID:         p.ID.String(),
		Controller: p.Controller.Key(),
		Copter:     p.Copter.Key(),
		State:      p.Copter.State().String(),
		Scheme:     p.Delegate.Scheme(),
		Created:    p.Created,
		Frames:     frames,
		Setpoint:   setpoint,
	}
}

func (s *Server) coptersIndexHandler(w http.ResponseWriter, r *http.Request) {
	views := []copterView{}
	err := s.onLoop(r, func() {
		for _, c := range s.copters.Known() {
			views = append(views, s.copterView(c))
		}
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) controllersIndexHandler(w http.ResponseWriter, r *http.Request) {
	views := []controllerView{}
	err := s.onLoop(r, func() {
		for _, controller := range s.controllers.Known() {
			v := controllerView{Key: controller.Key(), Descriptor: controller.Descriptor()}
			if p, ok := s.registry.ByController(controller.Key()); ok {
				v.Pair = p.ID.String()
			}
			views = append(views, v)
		}
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) pairsIndexHandler(w http.ResponseWriter, r *http.Request) {
	views := []pairView{}
	err := s.onLoop(r, func() {
		for _, p := range s.registry.Pairs() {
			views = append(views, s.pairView(p))
		}
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) pairHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var view pairView
	var found bool
	err := s.onLoop(r, func() {
		var p *pairing.Pair
		if p, found = s.registry.ByID(id); found {
			view = s.pairView(p)
		}
	})
	switch {
	case err != nil:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case !found:
		respondError(w, http.StatusNotFound, pairing.ErrorPairNotFound.Error())
	default:
		respondJSON(w, http.StatusOK, view)
	}
}

func (s *Server) pairRemoveHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var unpairErr error
	err := s.onLoop(r, func() {
		_, unpairErr = s.coordinator.Unpair(id)
	})
	switch {
	case err != nil:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case unpairErr != nil:
		respondError(w, http.StatusNotFound, unpairErr.Error())
	default:
		respondJSON(w, http.StatusOK, struct{}{})
	}
}

type discoveryResponse struct {
	Copters     bool `json:"copters"`
	Controllers bool `json:"controllers"`
}

func (s *Server) discoveryIndexHandler(w http.ResponseWriter, r *http.Request) {
	var resp discoveryResponse
	err := s.onLoop(r, func() {
		resp = discoveryResponse{s.copters.Scanning(), s.controllers.Running()}
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) discoveryStartHandler(w http.ResponseWriter, r *http.Request) {
	s.copters.Start()
	respondJSON(w, http.StatusAccepted, struct{}{})
}

func (s *Server) discoveryStopHandler(w http.ResponseWriter, r *http.Request) {
	s.copters.Stop()
	respondJSON(w, http.StatusAccepted, struct{}{})
}
