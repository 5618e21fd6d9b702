package planner

import (
	"errors"
	"regexp"
	"strings"

	"github.com/antoniostano/taskmill/internal/tasks"
)

var listMarkerRe = regexp.MustCompile(`^(?:\d+[.)]\s*|[-*]\s+|(?i:step)\s+\d+[:.]\s*)`)

// ParseTextPlan converts an unstructured text plan from the planning
// collaborator into the structured step contract. One step per non-empty
// line; common list markers are stripped. An input yielding no steps is an
// error rather than a silent empty plan.
func ParseTextPlan(raw string) ([]tasks.StepSpec, error) {
	var out []tasks.StepSpec
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		kind := ClassifyAction(line)
		out = append(out, tasks.StepSpec{
			Description: capitalizeFirst(line),
			ActionKind:  kind,
			Group:       kind,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("text plan contains no steps")
	}
	return out, nil
}
