package availability

import (
	"context"
	"time"
)

// Provider binds an Engine to a fixed lookahead and renders the results as
// customer-facing text.
type Provider struct {
	engine   *Engine
	schedule WeeklySchedule
	days     int
}

func NewProvider(engine *Engine, schedule WeeklySchedule, days int) *Provider {
	return &Provider{engine: engine, schedule: schedule, days: days}
}

// Message computes availability and formats it. requiresHuman is true when
// only the generic weekly hours could be offered.
func (p *Provider) Message(ctx context.Context, weekday *time.Weekday) (string, bool) {
	av := p.engine.Next(ctx, p.days, weekday)
	return FormatMessage(av, p.schedule), av.RequiresHuman
}
