package breakpoint

import "github.com/avodev/dbgcore/internal/watchexpr"

// ShouldStop evaluates bp's condition (if any) against ctx and reports
// whether the stop should actually be surfaced to the user, mirroring
// handle_breakpoints' condition check: an empty condition always stops, a
// condition that fails to evaluate counts as a hit (so the user sees the
// error rather than silently continuing), and bp.Hits is incremented
// regardless of the outcome.
func ShouldStop(bp *Breakpoint, ctx watchexpr.Context) (bool, error) {
	bp.Hits++
	if bp.Condition == "" {
		return true, nil
	}
	ev := watchexpr.NewEvaluator(ctx)
	hit, err := ev.EvalCondition(bp.Condition)
	if err != nil {
		return true, err
	}
	return hit, nil
}
