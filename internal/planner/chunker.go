package planner

import "github.com/antoniostano/taskmill/internal/tasks"

const DefaultMaxStepsPerChunk = 5

// SplitChunks groups an ordered plan into bounded chunks. A run of
// consecutive steps sharing a non-empty group hint is never split across a
// chunk boundary unless the run itself exceeds the bound; otherwise chunks
// fill up to the bound in plan order. Splitting is deterministic and done
// once per task at planning time.
func SplitChunks(steps []tasks.StepSpec, maxPerChunk int) [][]tasks.StepSpec {
	if maxPerChunk <= 0 {
		maxPerChunk = DefaultMaxStepsPerChunk
	}
	if len(steps) == 0 {
		return nil
	}

	var runs [][]tasks.StepSpec
	for i := 0; i < len(steps); {
		j := i + 1
		if g := steps[i].Group; g != "" {
			for j < len(steps) && steps[j].Group == g {
				j++
			}
		}
		runs = append(runs, steps[i:j])
		i = j
	}

	var chunks [][]tasks.StepSpec
	var current []tasks.StepSpec
	for _, run := range runs {
		if len(run) > maxPerChunk {
			// The group itself exceeds the bound, so it may be cut.
			if len(current) > 0 {
				chunks = append(chunks, current)
				current = nil
			}
			for len(run) > maxPerChunk {
				chunks = append(chunks, run[:maxPerChunk])
				run = run[maxPerChunk:]
			}
			current = append(current, run...)
			continue
		}
		if len(current)+len(run) > maxPerChunk {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, run...)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
