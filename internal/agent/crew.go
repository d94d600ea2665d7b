package agent

import "context"

// Crew types recorded on events.
const (
	CrewPlanning = "planning"
	CrewReport   = "report"
	CrewSlide    = "slide"
	CrewText     = "text"
	CrewSummary  = "summary"
	CrewFeedback = "feedback"
	CrewFlow     = "crew"
)

// CrewContext identifies the work item and crew a unit runs for.
type CrewContext struct {
	CrewType   string
	TodoID     string
	ProcInstID string
}

type crewKey struct{}

// WithCrew returns ctx carrying cc.
func WithCrew(ctx context.Context, cc CrewContext) context.Context {
	return context.WithValue(ctx, crewKey{}, cc)
}

// WithCrewType returns ctx with only the crew type replaced.
func WithCrewType(ctx context.Context, crewType string) context.Context {
	cc := CrewFrom(ctx)
	cc.CrewType = crewType
	return WithCrew(ctx, cc)
}

// CrewFrom returns the crew context of ctx. CrewType defaults to "unknown".
func CrewFrom(ctx context.Context) CrewContext {
	cc, _ := ctx.Value(crewKey{}).(CrewContext)
	if cc.CrewType == "" {
		cc.CrewType = "unknown"
	}
	return cc
}
