package planner

import (
	"context"
	"regexp"
	"strings"

	"github.com/antoniostano/taskmill/internal/tasks"
)

var (
	connectiveSplitRe = regexp.MustCompile(`(?i)\b(?:and then|then|after that|next|finally)\b|[.;\n]+`)
	spaceRe           = regexp.MustCompile(`\s+`)
)

// HeuristicPlanner produces a deterministic local plan when no external
// planning collaborator is configured. It splits the request on sequencing
// connectives and tags each fragment with an action kind.
type HeuristicPlanner struct{}

func NewHeuristicPlanner() *HeuristicPlanner { return &HeuristicPlanner{} }

func (p *HeuristicPlanner) Plan(ctx context.Context, req Request) ([]tasks.StepSpec, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fragments := splitRequestFragments(req.Request)
	if len(fragments) == 0 {
		base := strings.TrimSpace(req.Request)
		if base == "" {
			base = "Execute task"
		}
		fragments = []string{base}
	}

	out := make([]tasks.StepSpec, 0, len(fragments))
	for _, fragment := range fragments {
		kind := ClassifyAction(fragment)
		out = append(out, tasks.StepSpec{
			Description: fragment,
			ActionKind:  kind,
			Group:       kind,
		})
	}
	return out, nil
}

func splitRequestFragments(request string) []string {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil
	}
	parts := connectiveSplitRe.Split(request, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = spaceRe.ReplaceAllString(p, " ")
		p = strings.Trim(p, " ,:-")
		if p == "" {
			continue
		}
		out = append(out, capitalizeFirst(p))
	}
	return out
}

// ClassifyAction maps a step description onto a coarse action kind. The
// engine never interprets the kind; it only rides along to the executor
// and doubles as the chunker's grouping hint.
func ClassifyAction(description string) string {
	d := strings.ToLower(description)
	switch {
	case containsAny(d, "test", "verify", "validate"):
		return "run_tests"
	case containsAny(d, "review", "analyze", "inspect", "read", "check", "understand"):
		return "analyze"
	case containsAny(d, "run", "execute", "build", "install", "deploy"):
		return "run_command"
	default:
		return "edit_file"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - ('a' - 'A')
	}
	return string(r)
}
