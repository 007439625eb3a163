package engine

import (
	"roadsim.ai/internal/geo"
	"roadsim.ai/internal/spatial"
)

// spread infects every Virgin agent that has a Disease agent within range.
// The range grows by a slack of twice the distance an agent can walk since
// the previous check, except for agents that cannot have moved.
func (e *Engine) spread(now float64) {
	sick := make([]int, 0, len(e.agents))
	for i := range e.agents {
		if e.agents[i].State == Disease {
			sick = append(sick, i)
		}
	}
	if len(sick) == 0 {
		return
	}
	kd := spatial.NewKD(len(sick), spatial.DefaultNodeSize, func(i int) (float64, float64) {
		p := e.agents[sick[i]].Coords
		return p.X, p.Y
	})

	base := geo.MetersToUnits(e.opts.DiseaseRange)
	moving := e.opts.HumanSpeed * (now - e.lastSpread) * 2
	for i := range e.agents {
		a := &e.agents[i]
		if a.State != Virgin {
			continue
		}
		r := base
		if !a.Stopped && !a.atHome(now) {
			r += moving
		}
		if len(kd.Within(a.Coords.X, a.Coords.Y, r)) > 0 {
			a.State = Disease
			a.DiseaseStart = now
		}
	}
}
