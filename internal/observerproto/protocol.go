package observerproto

import (
	"encoding/json"

	"roadsim.ai/internal/sim/engine"
)

// Version is the observer protocol version.
const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
	TypeControl   = "CONTROL"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Agents selects whether TICK messages carry agent positions.
	Agents bool `json:"agents"`
	// Every sends one TICK per Every engine ticks (0 or 1: every tick).
	Every int `json:"every,omitempty"`
	// MaxAgents caps the number of agents per TICK (0: no cap).
	MaxAgents int `json:"max_agents,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	RunID           string         `json:"run_id"`
	Generation      uint64         `json:"generation"`
	Tick            uint64         `json:"tick"`
	TickRateHz      int            `json:"tick_rate_hz"`
	Options         engine.Options `json:"options"`
	Graph           *GraphInfo     `json:"graph,omitempty"`
}

// GraphInfo describes the loaded graph in map space.
type GraphInfo struct {
	Vertices int        `json:"vertices"`
	Edges    int        `json:"edges"`
	Center   [2]float64 `json:"center"`
	Min      [2]float64 `json:"min"`
	Max      [2]float64 `json:"max"`
}

// Server -> Client. Sent after engine ticks, subject to the subscription's Every.
type TickMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Generation      uint64  `json:"generation"`
	Tick            uint64  `json:"tick"`
	Time            float64 `json:"time"`

	Virgin  int `json:"virgin"`
	Disease int `json:"disease"`
	Immune  int `json:"immune"`

	Agents []engine.AgentView `json:"agents,omitempty"`
}

// Client -> Server over POST /observer/control.
//
// Options is a partial engine.Options object; keys it leaves out keep the
// server's configured values.
type ControlMsg struct {
	Type    string          `json:"type"`
	Action  string          `json:"action"` // start | stop | pause | resume
	Options json.RawMessage `json:"options,omitempty"`
	Filter  *engine.Filter  `json:"filter,omitempty"`
}

type ControlResponse struct {
	Generation uint64 `json:"generation"`
}
