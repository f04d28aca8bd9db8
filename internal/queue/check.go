package queue

import (
	"fmt"
	"sort"

	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// ValidateOrder checks that proposed is a permutation of current.
func ValidateOrder(current, proposed []int64) error {
	if len(current) != len(proposed) {
		return fmt.Errorf("%w: queue has %d tasks, reorder lists %d", ErrQueueMismatch, len(current), len(proposed))
	}
	members := make(map[int64]bool, len(current))
	for _, id := range current {
		members[id] = false
	}
	for _, id := range proposed {
		seen, ok := members[id]
		if !ok {
			return fmt.Errorf("%w: task %d is not in progress", ErrQueueMismatch, id)
		}
		if seen {
			return fmt.Errorf("%w: task %d listed twice", ErrQueueMismatch, id)
		}
		members[id] = true
	}
	return nil
}

// IsDense reports whether entries, in the order given, hold positions 0..N-1.
func IsDense(entries []store.QueueEntry) bool {
	for i, entry := range entries {
		if entry.Position == nil || *entry.Position != i {
			return false
		}
	}
	return true
}

// Report summarizes the queue's health.
type Report struct {
	Size       int
	Dense      bool
	Unset      []int64
	Duplicates []int
	Gaps       []int
}

// Inspect describes how entries deviate from the dense sequence.
func Inspect(entries []store.QueueEntry) Report {
	report := Report{Size: len(entries), Dense: IsDense(entries)}
	counts := make(map[int]int, len(entries))
	for _, entry := range entries {
		if entry.Position == nil {
			report.Unset = append(report.Unset, entry.TaskID)
			continue
		}
		counts[*entry.Position]++
	}
	for pos := 0; pos < len(entries); pos++ {
		switch n := counts[pos]; {
		case n == 0:
			report.Gaps = append(report.Gaps, pos)
		case n > 1:
			report.Duplicates = append(report.Duplicates, pos)
		}
	}
	for pos, n := range counts {
		if pos >= len(entries) && n > 1 {
			report.Duplicates = append(report.Duplicates, pos)
		}
	}
	sort.Ints(report.Duplicates)
	return report
}
