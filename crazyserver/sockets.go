package crazyserver

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/copter"
	"golang.org/x/time/rate"
)

const (
	socketBuffer = 32
	writeTimeout = time.Second
)

type outMessage struct {
	Source  string             `json:"source"`
	Channel copter.Channel     `json:"channel"`
	Data    map[string]float64 `json:"data"`
	Time    time.Time          `json:"time"`
}

type socket struct {
	name string
	conn *websocket.Conn
	out  chan outMessage

	// one limiter per source and channel; guarded by the hub lock
	limiters map[string]*rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}
}

func (sk *socket) close() {
	sk.closeOnce.Do(func() {
		close(sk.closed)
		sk.conn.Close()
	})
}

// hub fans telemetry out to every connected websocket, throttling each
// telemetry stream to a fixed rate per socket.
type hub struct {
	logger hclog.Logger

	lock    sync.Mutex
	sockets map[string]*socket
	limit   rate.Limit
	nextID  uint
	closed  bool
}

type socketIndexResp struct {
	Sockets []string `json:"sockets"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func newHub(perSecond float64, logger hclog.Logger) *hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &hub{
		logger:  logger,
		sockets: make(map[string]*socket),
		limit:   toLimit(perSecond),
	}
}

// toLimit maps a non-positive rate to no throttling.
func toLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func (s *Server) socketsInitRoute(r *mux.Router) {
	r.HandleFunc("/sockets", s.sockets.indexHandler).Methods("GET")
	r.HandleFunc("/telemetry", s.sockets.websocketHandler).Methods("GET")
}

func (h *hub) names() []string {
	h.lock.Lock()
	defer h.lock.Unlock()

	names := make([]string, 0, len(h.sockets))
	for name := range h.sockets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *hub) indexHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, socketIndexResp{h.names()})
}

// SetRate changes the per stream rate of every socket.
func (h *hub) SetRate(perSecond float64) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.limit = toLimit(perSecond)
	for _, sk := range h.sockets {
		for _, limiter := range sk.limiters {
			limiter.SetLimit(h.limit)
		}
	}
}

// Publish queues t on every socket whose stream is under its rate. Sockets
// that fall behind lose messages instead of blocking the copter.
func (h *hub) Publish(t copter.Telemetry) {
	msg := outMessage{
		Source:  t.Copter.Key(),
		Channel: t.Channel,
		Data:    t.Data,
		Time:    t.Time,
	}
	stream := msg.Source + "/" + string(msg.Channel)

	h.lock.Lock()
	defer h.lock.Unlock()

	for _, sk := range h.sockets {
		limiter, ok := sk.limiters[stream]
		if !ok {
			limiter = rate.NewLimiter(h.limit, 1)
			sk.limiters[stream] = limiter
		}
		if !limiter.Allow() {
			continue
		}

		select {
		case sk.out <- msg:
		default:
			h.logger.Trace("socket behind, dropping telemetry", "socket", sk.name)
		}
	}
}

func (h *hub) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.lock.Lock()
	if h.closed {
		h.lock.Unlock()
		conn.Close()
		return
	}
	sk := &socket{
		name:     fmt.Sprintf("websocket%d", h.nextID),
		conn:     conn,
		out:      make(chan outMessage, socketBuffer),
		limiters: make(map[string]*rate.Limiter),
		closed:   make(chan struct{}),
	}
	h.nextID++
	h.sockets[sk.name] = sk
	h.lock.Unlock()

	h.logger.Info("websocket connected", "socket", sk.name, "remote", r.RemoteAddr)

	go h.writeThread(sk)
	go h.readThread(sk)
}

func (h *hub) remove(sk *socket) {
	h.lock.Lock()
	if h.sockets[sk.name] == sk {
		delete(h.sockets, sk.name)
	}
	h.lock.Unlock()

	sk.close()
}

func (h *hub) writeThread(sk *socket) {
	defer h.remove(sk)

	for {
		select {
		case <-sk.closed:
			return
		case msg := <-sk.out:
			sk.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sk.conn.WriteJSON(msg); err != nil {
				h.logger.Info("websocket write failed, disconnecting", "socket", sk.name, "error", err)
				return
			}
		}
	}
}

// readThread only notices the peer going away; incoming messages are
// discarded.
func (h *hub) readThread(sk *socket) {
	defer h.remove(sk)

	for {
		if _, _, err := sk.conn.ReadMessage(); err != nil {
			h.logger.Info("websocket disconnected", "socket", sk.name)
			return
		}
	}
}

func (h *hub) Close() {
	h.lock.Lock()
	h.closed = true
	sockets := make([]*socket, 0, len(h.sockets))
	for _, sk := range h.sockets {
		sockets = append(sockets, sk)
	}
	h.sockets = make(map[string]*socket)
	h.lock.Unlock()

	for _, sk := range sockets {
		sk.close()
	}
}
