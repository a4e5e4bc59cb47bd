package planner

import "go.uber.org/zap"

// QueryPlanningOptions changes how operation text is rendered. It never
// changes the shape of the plan.
type QueryPlanningOptions struct {
	// AutoFragmentization rewrites nested selections as shared named fragments.
	AutoFragmentization bool `json:"autoFragmentization" yaml:"auto_fragmentization"`
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}
