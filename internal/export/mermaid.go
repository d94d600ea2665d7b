package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/formcrew/internal/orchestrator"
)

// GeneratePlanMermaid produces a Mermaid graph TD diagram of an execution
// plan. Each phase is a subgraph; dependencies become arrows from the report
// to the form that consumes it.
func GeneratePlanMermaid(plan *orchestrator.ExecutionPlan) string {
	nodeIDs := make(map[string]string)
	getID := func(key string) string {
		if id, ok := nodeIDs[key]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", len(nodeIDs))
		nodeIDs[key] = id
		return id
	}

	phases := []struct {
		id, label string
		phase     orchestrator.PlanPhase
	}{
		{"reports", "GENERATE_REPORTS", plan.Report},
		{"slides", "GENERATE_SLIDES", plan.Slide},
		{"texts", "GENERATE_TEXTS", plan.Text},
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, p := range phases {
		if len(p.phase.Forms) == 0 {
			continue
		}
		label := p.label
		if p.phase.Strategy != "" {
			label += " (" + p.phase.Strategy + ")"
		}
		sb.WriteString(fmt.Sprintf("  subgraph %s[\"%s\"]\n", p.id, label))
		for _, f := range p.phase.Forms {
			if f.Key == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", getID(f.Key), escape(f.Key)))
		}
		sb.WriteString("  end\n")
	}

	for _, p := range phases[1:] {
		for _, f := range p.phase.Forms {
			if f.Key == "" {
				continue
			}
			for _, dep := range f.Dependencies {
				if _, known := nodeIDs[dep]; !known {
					sb.WriteString(fmt.Sprintf("  %s[\"%s (missing)\"]\n", getID(dep), escape(dep)))
				}
				sb.WriteString(fmt.Sprintf("  %s --> %s\n", getID(dep), getID(f.Key)))
			}
		}
	}
	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
