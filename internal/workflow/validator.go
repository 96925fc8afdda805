package workflow

import (
	"fmt"
	"strings"
)

// WarningPrefix marks validation problems that do not block execution.
const WarningPrefix = "warning: "

// Validate checks a workflow definition for graph-level problems without
// raising. It returns a deterministic list of problem strings; the workflow
// is executable iff the list contains no blocking (non-warning) entries.
//
// Problems reported:
//   - missing workflow id or name (possible for builder-made definitions)
//   - empty step id or action
//   - duplicate step ids
//   - depends_on references to non-existent steps
//   - dependency cycles, naming the step ids involved
//   - zero triggers (warning only; manual invocation still works)
func Validate(w *Workflow) []string {
	if w == nil {
		return []string{"workflow is nil"}
	}

	var problems []string

	if w.ID == "" {
		problems = append(problems, "workflow id is required")
	}
	if w.Name == "" {
		problems = append(problems, "workflow name is required")
	}
	if len(w.Steps) == 0 {
		problems = append(problems, "workflow must contain at least one step")
	}

	ids := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("step %q has no id", s.DisplayName()))
			continue
		}
		if ids[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		ids[s.ID] = true
		if s.Action == "" {
			problems = append(problems, fmt.Sprintf("step %q has no action", s.ID))
		}
	}

	for _, s := range w.Steps {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				problems = append(problems, fmt.Sprintf("step %q depends on non-existent step %q", s.ID, dep))
			}
		}
	}

	if cycle := DetectCycle(w); len(cycle) > 0 {
		problems = append(problems, fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	if len(w.Triggers) == 0 {
		problems = append(problems, WarningPrefix+"workflow declares no triggers")
	}

	return problems
}

// BlockingProblems filters out warning-level entries from a Validate result.
func BlockingProblems(problems []string) []string {
	var blocking []string
	for _, p := range problems {
		if !strings.HasPrefix(p, WarningPrefix) {
			blocking = append(blocking, p)
		}
	}
	return blocking
}

// DetectCycle runs a depth-first traversal over the dependency graph, with
// edges pointing from each step to the steps it depends on. A back-edge to
// a step currently on the traversal stack signals a cycle. The returned
// slice is the cycle path, ending on the step that closes it, or nil when
// the graph is acyclic.
//
// Validation is a precondition for execution, so this runs once at
// parse/validate time; the executor never checks for cycles at run time.
func DetectCycle(w *Workflow) []string {
	const (
		white = iota // unvisited
		gray         // on the traversal stack
		black        // fully explored
	)

	color := make(map[string]int, len(w.Steps))
	parent := make(map[string]string, len(w.Steps))

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray

		step := w.GetStep(id)
		if step != nil {
			for _, dep := range step.DependsOn {
				if w.GetStep(dep) == nil {
					// Dangling reference, reported separately by Validate.
					continue
				}
				switch color[dep] {
				case white:
					parent[dep] = id
					if cycle := visit(dep); cycle != nil {
						return cycle
					}
				case gray:
					// Reconstruct the path from dep back to the closing edge.
					cycle := []string{dep}
					for cur := id; cur != dep; cur = parent[cur] {
						cycle = append([]string{cur}, cycle...)
					}
					return append([]string{dep}, cycle...)
				}
			}
		}

		color[id] = black
		return nil
	}

	for _, s := range w.Steps {
		if s.ID == "" {
			continue
		}
		if color[s.ID] == white {
			if cycle := visit(s.ID); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}
