package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"roadsim.ai/internal/observerproto"
	"roadsim.ai/internal/sim/engine"
)

type session struct {
	sub  observerproto.SubscribeMsg
	out  chan []byte
	seen uint64
}

// Server fans engine ticks out to observer websockets. Publish runs on the
// engine goroutine; everything else only sees the cached bootstrap and the
// per-session queues.
type Server struct {
	runID      string
	tickRateHz int
	control    chan<- engine.Request
	log        *slog.Logger

	// AllowRemote disables the loopback-only guard.
	AllowRemote bool
	// OnCount, if set, receives the session count after every join and leave.
	// It is called with the session lock held.
	OnCount func(n int)
	// StartOptions and StartFilter are what a "start" request runs with
	// before the client's overrides are applied.
	StartOptions engine.Options
	StartFilter  *engine.Filter

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
	boot     observerproto.BootstrapResponse
	dropped  atomic.Uint64
}

func NewServer(runID string, tickRateHz int, control chan<- engine.Request, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runID:      runID,
		tickRateHz: tickRateHz,
		control:    control,
		log:        logger,
		sessions:   map[string]*session{},

		StartOptions: engine.DefaultOptions(),
		boot: observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           runID,
			TickRateHz:      tickRateHz,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Publish encodes the engine state after tick and queues it to every session
// that wants it. Full session queues drop the message.
func (s *Server) Publish(tick uint64, e *engine.Engine) {
	c := e.Counts()
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Generation:      e.Generation(),
		Tick:            tick,
		Time:            e.Time(),
		Virgin:          c.Virgin,
		Disease:         c.Disease,
		Immune:          c.Immune,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.boot.Generation = msg.Generation
	s.boot.Tick = tick
	s.boot.Options = e.Options()
	if g := e.Graph(); g != nil {
		s.boot.Graph = &observerproto.GraphInfo{
			Vertices: len(g.Vertices),
			Edges:    len(g.Edges),
			Center:   [2]float64{g.Center.X, g.Center.Y},
			Min:      [2]float64{g.Min.X, g.Min.Y},
			Max:      [2]float64{g.Max.X, g.Max.Y},
		}
	}
	if len(s.sessions) == 0 {
		return
	}

	var (
		agents  []engine.AgentView
		bare    []byte
		encoded = map[int][]byte{}
	)
	for _, sess := range s.sessions {
		sess.seen++
		if every := uint64(sess.sub.Every); every > 1 && sess.seen%every != 1 {
			continue
		}
		var b []byte
		if !sess.sub.Agents {
			if bare == nil {
				bare, _ = json.Marshal(msg)
			}
			b = bare
		} else {
			if agents == nil {
				agents = e.Agents()
			}
			limit := len(agents)
			if sess.sub.MaxAgents > 0 && sess.sub.MaxAgents < limit {
				limit = sess.sub.MaxAgents
			}
			b = encoded[limit]
			if b == nil {
				m := msg
				m.Agents = agents[:limit]
				b, _ = json.Marshal(m)
				encoded[limit] = b
			}
		}
		select {
		case sess.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

// Sessions returns the number of subscribed observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Dropped returns how many TICK messages were dropped on full session queues.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		resp := s.boot
		s.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// ControlHandler forwards start/stop/pause requests to the engine loop and
// answers with the resulting generation.
func (s *Server) ControlHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if s.control == nil {
			http.Error(rw, "control disabled", http.StatusServiceUnavailable)
			return
		}
		var msg observerproto.ControlMsg
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<20)).Decode(&msg); err != nil {
			http.Error(rw, "bad json", http.StatusBadRequest)
			return
		}
		req, err := controlRequest(msg, s.StartOptions, s.StartFilter)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		req.Reply = make(chan uint64, 1)

		select {
		case s.control <- req:
		case <-time.After(2 * time.Second):
			http.Error(rw, "engine busy", http.StatusServiceUnavailable)
			return
		}
		select {
		case gen := <-req.Reply:
			s.log.Info("observer control", "action", msg.Action, "generation", gen)
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(observerproto.ControlResponse{Generation: gen})
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			http.Error(rw, "engine timeout", http.StatusGatewayTimeout)
		}
	}
}

// controlRequest maps msg to an engine request. A start request copies base
// and decodes the client's options over the copy, so omitted keys and the
// step durations keep their configured values.
func controlRequest(msg observerproto.ControlMsg, base engine.Options, baseFilter *engine.Filter) (engine.Request, error) {
	if msg.Type != "" && msg.Type != observerproto.TypeControl {
		return engine.Request{}, fmt.Errorf("unexpected type %q", msg.Type)
	}
	switch strings.ToLower(msg.Action) {
	case "start":
		opts := base
		if len(msg.Options) > 0 && string(msg.Options) != "null" {
			if err := json.Unmarshal(msg.Options, &opts); err != nil {
				return engine.Request{}, fmt.Errorf("options: %w", err)
			}
		}
		filter := baseFilter
		if msg.Filter != nil {
			filter = msg.Filter
		}
		return engine.Request{Kind: engine.ReqStart, Options: opts, Filter: filter}, nil
	case "stop":
		return engine.Request{Kind: engine.ReqStop}, nil
	case "pause":
		return engine.Request{Kind: engine.ReqPause, Paused: true}, nil
	case "resume":
		return engine.Request{Kind: engine.ReqPause, Paused: false}, nil
	default:
		return engine.Request{}, fmt.Errorf("unknown action %q", msg.Action)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 32)
		s.join(sid, sub, out)
		defer s.leave(sid)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := decodeSubscribe(msg); ok {
				s.resubscribe(sid, sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) join(sid string, sub observerproto.SubscribeMsg, out chan []byte) {
	s.mu.Lock()
	s.sessions[sid] = &session{sub: sub, out: out}
	if s.OnCount != nil {
		s.OnCount(len(s.sessions))
	}
	s.mu.Unlock()
	s.log.Debug("observer joined", "session", sid, "agents", sub.Agents, "every", sub.Every)
}

func (s *Server) leave(sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	if s.OnCount != nil {
		s.OnCount(len(s.sessions))
	}
	s.mu.Unlock()
	s.log.Debug("observer left", "session", sid)
}

func (s *Server) resubscribe(sid string, sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sid]; ok {
		sess.sub = sub
		sess.seen = 0
	}
}

func decodeSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.Every <= 0 {
		sub.Every = 1
	}
	if sub.Every > 1000 {
		sub.Every = 1000
	}
	if sub.MaxAgents < 0 {
		sub.MaxAgents = 0
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
