// Package stageplan decides which production stage of a component may run next.
//
// Everything here is a pure function over stages that were already loaded;
// nothing touches storage.
package stageplan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// ErrInvalidPlan reports a stage plan that cannot be executed sequentially.
var ErrInvalidPlan = errors.New("invalid stage plan")

// Sorted returns a copy of stages ordered by stage number.
func Sorted(stages []store.Stage) []store.Stage {
	out := make([]store.Stage, len(stages))
	copy(out, stages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StageNum < out[j].StageNum })
	return out
}

// Resolve returns the single stage that is currently actionable, or nil.
//
// The candidate is the first unfinished stage numbered above the highest
// finished one. It is actionable only if every lower-numbered stage is
// finished: [1 done, 2 open, 3 open] yields 2, while [1 open, 2 done] yields
// nil because stage 1 was left behind. No stages, or all finished, yields nil.
func Resolve(stages []store.Stage) *store.Stage {
	ordered := Sorted(stages)

	start := 0
	for i := range ordered {
		if ordered[i].Complete() {
			start = i + 1
		}
	}
	if start >= len(ordered) {
		return nil
	}
	candidate := ordered[start]
	if len(Blocking(ordered, candidate.StageNum)) > 0 {
		return nil
	}
	return &candidate
}

// Blocking returns the unfinished stages numbered below stageNum.
func Blocking(stages []store.Stage, stageNum int) []store.Stage {
	var blockers []store.Stage
	for _, stage := range Sorted(stages) {
		if stage.StageNum >= stageNum {
			break
		}
		if !stage.Complete() {
			blockers = append(blockers, stage)
		}
	}
	return blockers
}

// Progress counts finished stages out of the total.
func Progress(stages []store.Stage) (finished, total int) {
	for _, stage := range stages {
		if stage.Complete() {
			finished++
		}
	}
	return finished, len(stages)
}

// IsComplete reports whether every stage is finished. A component without
// stages is complete.
func IsComplete(stages []store.Stage) bool {
	finished, total := Progress(stages)
	return finished == total
}

// ValidatePlan rejects stage numbers that are not positive or that repeat
// within one component.
func ValidatePlan(stageNums []int) error {
	seen := make(map[int]struct{}, len(stageNums))
	for _, num := range stageNums {
		if num <= 0 {
			return fmt.Errorf("%w: stage number %d must be positive", ErrInvalidPlan, num)
		}
		if _, dup := seen[num]; dup {
			return fmt.Errorf("%w: duplicate stage number %d", ErrInvalidPlan, num)
		}
		seen[num] = struct{}{}
	}
	return nil
}
