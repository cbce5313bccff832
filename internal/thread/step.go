package thread

import (
	"github.com/avodev/dbgcore/internal/dbgerr"
	"github.com/avodev/dbgcore/internal/regset"
	"github.com/avodev/dbgcore/internal/step"
)

// BeginStep arms plan for tid and puts the controller in SteppingState,
// mirroring continue_stepping's setup half: locs names the addresses the
// step planner wants watched (a line's exit points, a cursor target), each
// installed as a temporary Ref{StepID: ...} location via Breakpoints so a
// trap there is recognized without being confused for a user breakpoint.
func (c *Controller) BeginStep(tid int, plan *step.Plan, locs []uint64) error {
	if c.TargetState != SuspendedState {
		return dbgerr.New(dbgerr.Usage, "not suspended, can't step")
	}
	t, ok := c.Threads[tid]
	if !ok {
		return dbgerr.New(dbgerr.ProcessState, "no such thread: %d", tid)
	}

	c.nextStepID++
	c.stepID = c.nextStepID
	c.stepLocs = c.stepLocs[:0]
	plan.TID = tid
	c.Step = plan

	if c.Breakpoints != nil {
		for _, addr := range locs {
			if _, err := c.Breakpoints.AddStepLocation(c.stepID, addr, false, tid); err != nil {
				c.endStep(tid)
				return err
			}
			c.stepLocs = append(c.stepLocs, addr)
		}
	}

	t.SingleStepping = plan.SingleSteps
	if plan.SingleSteps {
		if err := c.prepareSingleStep(t); err != nil {
			c.endStep(tid)
			return err
		}
	}

	c.TargetState = SteppingState
	if plan.KeepOtherThreadsSuspended {
		return c.resumeThread(t)
	}
	return c.resumeThreadsIfNeeded()
}

// CheckStep evaluates the in-flight step plan against t's current
// registers, mirroring handle_step_stop: if complete, the step's temporary
// locations are torn down and a StopStep reason is left for the caller (via
// handleTrapStop, which runs first on the same trap); otherwise the thread
// is kept advancing toward completion.
//
// CFA is approximated by the live stack pointer rather than a real
// CFI-driven unwind, since this module's front end only resolves address
// breakpoints and never loads a binary's unwind table; the approximation
// preserves the invariant every completion test relies on (CFA grows when
// a frame returns, shrinks when a call is entered).
func (c *Controller) CheckStep(t *Thread) (complete bool, err error) {
	if c.Step == nil || t.TID != c.Step.TID {
		return false, nil
	}
	regs, err := c.Kernel.GetRegs(t.TID)
	if err != nil {
		return false, err
	}
	pc, _, _ := regs.GetInt(regset.Rip)
	cfa, _, _ := regs.GetInt(regset.Rsp)

	if !c.Step.Complete(pc, cfa) {
		if c.Step.SingleSteps {
			if err := c.prepareSingleStep(t); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	c.endStep(t.TID)
	return true, nil
}

// CancelStep drops any in-flight step and its temporary locations,
// mirroring suspend()'s "cancels any active step".
func (c *Controller) CancelStep(tid int) {
	if c.Step == nil {
		return
	}
	c.endStep(tid)
}

func (c *Controller) endStep(tid int) {
	if c.Breakpoints != nil && c.stepID != 0 {
		c.Breakpoints.RemoveStepLocation(c.stepID, tid)
	}
	c.stepLocs = nil
	c.stepID = 0
	c.Step = nil
	if t, ok := c.Threads[tid]; ok {
		t.SingleStepping = false
	}
}

// prepareSingleStep ensures t can be single-stepped from its current
// program counter without immediately re-executing a planted 0xcc: if an
// active software location covers pc, it is promoted to a hardware slot
// (restricted to this thread only when every ref on it is a step ref) and
// IgnoreNextHWBreakpointHitAddr is set so the duplicate hit is resumed
// silently, matching the "swap to hardware before single-stepping from a
// trapped address" rule. The location stays hardware afterwards: nothing
// demotes it back to a software trap.
func (c *Controller) prepareSingleStep(t *Thread) error {
	if c.Breakpoints == nil {
		return nil
	}
	regs, err := c.Kernel.GetRegs(t.TID)
	if err != nil {
		return err
	}
	pc, _, _ := regs.GetInt(regset.Rip)
	loc, found := c.Breakpoints.AtAddr(pc)
	if !found || loc.Hardware || !loc.Active {
		return nil
	}
	if err := c.Breakpoints.PromoteToHardware(loc, t.TID); err != nil {
		// Out of hardware slots: the caller's existing restore/step/rewrite
		// dance around the trap byte still works, just without this
		// shortcut.
		return nil
	}
	addr := loc.Addr
	t.IgnoreNextHWBreakpointHitAddr = &addr
	return nil
}

// NoteBreakpointAdded records that a just-installed location sits at tid's
// current program counter: the very next trap there is a known duplicate
// of the install, not a fresh user-visible hit, matching the second
// IgnoreNextHWBreakpointHitAddr source (the first is prepareSingleStep's
// hardware promotion).
func (c *Controller) NoteBreakpointAdded(tid int, addr uint64) {
	t, ok := c.Threads[tid]
	if !ok {
		return
	}
	regs, err := c.Kernel.GetRegs(tid)
	if err != nil {
		return
	}
	pc, _, _ := regs.GetInt(regset.Rip)
	if pc == addr {
		t.IgnoreNextHWBreakpointHitAddr = &addr
	}
}
