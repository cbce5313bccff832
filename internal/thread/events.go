package thread

import (
	"context"
	"time"

	"github.com/avodev/dbgcore/internal/regset"
)

// sigtrap is unix.SIGTRAP's value, duplicated here (rather than importing
// x/sys/unix into a package that otherwise only depends on the Kernel
// interface) so tests can construct WaitResult without a ptrace import.
const sigtrap = 5

// PTRACE_EVENT_* codes, duplicated from internal/ptrace for the same
// reason as sigtrap.
const (
	eventClone = 3
	eventExec  = 4
	eventExit  = 6
	eventStop  = 128
)

// Fatal signal numbers (SIGILL, SIGABRT, SIGFPE, SIGSEGV): a stop for one
// of these gets a Signal stop reason and suspends every thread, rather
// than just setting the pending-signal slot like an ordinary delivered
// signal does.
const (
	sigill  = 4
	sigabrt = 6
	sigfpe  = 8
	sigsegv = 11
)

func isFatalSignal(sig int) bool {
	switch sig {
	case sigill, sigabrt, sigfpe, sigsegv:
		return true
	default:
		return false
	}
}

// ProcessEvents drains pending trace notifications for up to a soft time
// budget (the budget parameter; 250ms when it is <= 0), updating
// per-thread bookkeeping and StopReasons for every event it sees, mirroring
// process_events' own budgeted wait loop. It never blocks in the kernel:
// each iteration polls with TryWait and stops as soon as nothing is ready.
//
// more is true if the budget ran out while events might still be pending
// (the caller must call again before waiting on anything else, e.g. UI
// input); dropCaches is true if something happened that invalidates
// address-to-symbol caches (currently: an exec). Callers read the outcome
// of this call from Threads' StopReasons/Exiting fields and from ExitCode/
// KilledBySignal, not from a return value.
func (c *Controller) ProcessEvents(ctx context.Context, budget time.Duration) (more bool, dropCaches bool, err error) {
	if budget <= 0 {
		budget = 250 * time.Millisecond
	}
	deadline := time.Now().Add(budget)

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return true, dropCaches, nil
		}
		if (iteration+1)&1023 == 1023 && time.Now().After(deadline) {
			return true, dropCaches, nil
		}

		tid, res, ok, err := c.nextRawEvent()
		if err != nil {
			return false, dropCaches, err
		}
		if !ok {
			return false, dropCaches, nil
		}

		changedCaches, err := c.handleWaitResult(tid, res)
		if err != nil {
			return false, dropCaches, err
		}
		dropCaches = dropCaches || changedCaches
	}
}

// nextRawEvent returns the next wait status to process, preferring a
// buffered event for an already-known thread over a fresh kernel
// notification, and buffering (rather than guessing at) a fresh
// notification for a tid this controller has never seen and that isn't
// itself a clone event, mirroring pending_wait_events' retry-next-iteration
// policy. If the kernel has nothing left to report and a buffered event for
// a still-unknown tid remains, it is registered lazily rather than held
// forever: by the time wait() ever reported that tid, the kernel had
// already created it.
func (c *Controller) nextRawEvent() (tid int, res WaitResult, ok bool, err error) {
	for i, p := range c.pending {
		if _, known := c.Threads[p.tid]; known {
			c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
			return p.tid, p.res, true, nil
		}
	}

	tid, res, ok, err = c.Kernel.TryWait()
	if err != nil {
		return 0, WaitResult{}, false, err
	}
	if !ok {
		if len(c.pending) > 0 {
			p := c.pending[0]
			c.pending = c.pending[1:]
			c.ensureThread(p.tid)
			return p.tid, p.res, true, nil
		}
		return 0, WaitResult{}, false, nil
	}

	if _, known := c.Threads[tid]; !known && res.TraceEvent != eventClone {
		c.pending = append(c.pending, pendingEvent{tid, res})
		return c.nextRawEvent()
	}
	return tid, res, true, nil
}

func (c *Controller) ensureThread(tid int) *Thread {
	if t, ok := c.Threads[tid]; ok {
		return t
	}
	t := newThread(c.nextThreadIdx, tid, Suspended)
	c.nextThreadIdx++
	c.Threads[tid] = t
	return t
}

// handleWaitResult updates bookkeeping for one decoded wait status,
// mirroring one case of process_events' big match on WaitStatus. It
// returns whether this event should invalidate address-to-symbol caches.
func (c *Controller) handleWaitResult(tid int, res WaitResult) (dropCaches bool, err error) {
	t := c.ensureThread(tid)

	switch {
	case res.Exited:
		return false, c.threadWentAway(t, &res.ExitCode, nil)
	case res.Signaled:
		return false, c.threadWentAway(t, nil, &res.TermSignal)
	case res.Stopped:
		return c.handleStop(t, res)
	default:
		return false, nil
	}
}

// threadWentAway removes t, mirroring process_events dropping a thread once
// wait4 reports it exited or was killed by a signal; if it was the leading
// thread, the whole debuggee is considered gone.
func (c *Controller) threadWentAway(t *Thread, exitCode, termSignal *int) error {
	t.Exiting = true
	delete(c.Threads, t.TID)
	if t.TID == c.PID {
		c.ExitCode = exitCode
		c.KilledBySignal = termSignal
		c.TargetState = ExitingState
		c.Step = nil
	}
	if len(c.Threads) == 0 {
		c.TargetState = NoProcess
	}
	return nil
}

// handleStop dispatches a PTRACE-stopped wait status: PTRACE_EVENT_* stops,
// the ambiguous bare SIGTRAP, and a plain signal-delivery stop each get
// their own branch below.
func (c *Controller) handleStop(t *Thread, res WaitResult) (dropCaches bool, err error) {
	t.State = Suspended

	switch {
	case res.TraceEvent == eventClone:
		if res.NewChildTID != 0 {
			c.ensureThread(res.NewChildTID).State = Running
		}
		return false, nil

	case res.TraceEvent == eventExec:
		if c.TargetState == Starting {
			c.TargetState = SuspendedState
		}
		if c.Breakpoints != nil {
			if err := c.Breakpoints.SyncLocations(t.TID, c.HardwareWanted); err != nil {
				return true, err
			}
		}
		if c.Step != nil {
			t.StopReasons = append(t.StopReasons, StopReason{Kind: StopStep})
		}
		return true, nil

	case res.TraceEvent == eventExit:
		t.Exiting = true
		for _, other := range c.Threads {
			if !other.Exiting {
				return false, nil
			}
		}
		c.TargetState = ExitingState
		c.Step = nil
		return false, nil

	case res.TraceEvent == eventStop:
		if t.WaitingForInitialStop {
			t.WaitingForInitialStop = false
			if c.Breakpoints != nil {
				if err := c.Breakpoints.ReassertHardware(t.TID); err != nil {
					return false, err
				}
			}
			return false, nil
		}
		// Spurious group-stop on a thread that wasn't waiting for one: just
		// resume from it, no user-visible stop.
		t.SentInterrupt = false
		if c.TargetState == RunningState || c.TargetState == SteppingState {
			return false, c.resumeThread(t)
		}
		return false, nil

	case res.TraceEvent == 0 && res.StopSignal == sigtrap:
		return false, c.handleTrapStop(t)

	default:
		sig := res.StopSignal
		t.PendingSignal = &sig
		if !isFatalSignal(sig) {
			if c.TargetState == RunningState || c.TargetState == SteppingState {
				return false, c.resumeThread(t)
			}
			return false, nil
		}
		t.StopReasons = append(t.StopReasons, StopReason{Kind: StopSignal, Signal: sig})
		c.TargetState = SuspendedState
		c.Step = nil
		_, err := c.interruptAllRunningThreads()
		return false, err
	}
}

// handleTrapStop diagnoses a SIGTRAP with no PTRACE_EVENT_* code by
// elimination and records the appropriate StopReason, or silently resumes
// the thread if diagnosis found a known-spurious hardware hit.
func (c *Controller) handleTrapStop(t *Thread) error {
	diag, err := c.diagnoseTrap(t)
	if err != nil {
		return err
	}

	switch diag.kind {
	case trapStep:
		t.StopReasons = append(t.StopReasons, StopReason{Kind: StopStep})
		return nil

	case trapHardware:
		if diag.spurious {
			if c.TargetState == RunningState || c.TargetState == SteppingState {
				return c.resumeThread(t)
			}
			return nil
		}
		t.StopReasons = append(t.StopReasons, c.breakpointStopReason(diag.hitAddr))
		return nil

	case trapSoftware:
		t.StopReasons = append(t.StopReasons, c.breakpointStopReason(diag.hitAddr))
		return nil

	default:
		return nil
	}
}

// breakpointStopReason builds the StopReason for a breakpoint hit at addr,
// naming the first user breakpoint the location is a ref for, if any.
func (c *Controller) breakpointStopReason(addr uint64) StopReason {
	reason := StopReason{Kind: StopBreakpoint}
	if c.Breakpoints == nil {
		return reason
	}
	loc, found := c.Breakpoints.AtAddr(addr)
	if !found {
		return reason
	}
	for _, ref := range loc.Refs {
		if ref.StepID == 0 {
			reason.BreakpointID = int(ref.BreakpointID)
			return reason
		}
	}
	return reason
}

// trapKind names which of the three possible causes an ambiguous SIGTRAP
// turned out to be.
type trapKind int

const (
	trapStep trapKind = iota
	trapHardware
	trapSoftware
)

// trapDiagnosis is the outcome of diagnoseTrap.
type trapDiagnosis struct {
	kind     trapKind
	hitAddr  uint64
	spurious bool
}

// diagnoseTrap resolves an ambiguous SIGTRAP (no PTRACE_EVENT_* code) by
// elimination, matching handle_breakpoint_trap: first the thread's own
// single-stepping flag, then the hardware debug-status register (DR6),
// then (by default) a software trap byte one behind the reported PC.
func (c *Controller) diagnoseTrap(t *Thread) (trapDiagnosis, error) {
	if t.SingleStepping {
		return trapDiagnosis{kind: trapStep}, nil
	}

	dr6, err := c.Kernel.PeekDebugReg(t.TID, 6)
	if err != nil {
		return trapDiagnosis{}, err
	}
	if dr6&0xf != 0 {
		if err := c.Kernel.SetDebugReg(t.TID, 6, dr6&^uint64(0xf)); err != nil {
			return trapDiagnosis{}, err
		}
		if c.Breakpoints != nil {
			if err := c.Breakpoints.ReassertHardware(t.TID); err != nil {
				return trapDiagnosis{}, err
			}
		}
		regs, err := c.Kernel.GetRegs(t.TID)
		if err != nil {
			return trapDiagnosis{}, err
		}
		pc, _, _ := regs.GetInt(regset.Rip)
		diag := trapDiagnosis{kind: trapHardware, hitAddr: pc}
		if t.IgnoreNextHWBreakpointHitAddr != nil && *t.IgnoreNextHWBreakpointHitAddr == pc {
			diag.spurious = true
			t.IgnoreNextHWBreakpointHitAddr = nil
		}
		return diag, nil
	}

	regs, err := c.Kernel.GetRegs(t.TID)
	if err != nil {
		return trapDiagnosis{}, err
	}
	pc, _, _ := regs.GetInt(regset.Rip)
	addr := pc - 1
	if err := c.Kernel.SetPC(t.TID, addr); err != nil {
		return trapDiagnosis{}, err
	}
	return trapDiagnosis{kind: trapSoftware, hitAddr: addr}, nil
}

// HighestPriorityStop scans every thread with a pending stop reason and
// returns the one the UI should focus, ranking by StopReasonKind.Priority
// (signal > exception > step > breakpoint) and breaking ties by tid,
// mirroring "the UI selects the one with the highest-priority reason".
func (c *Controller) HighestPriorityStop() (tid int, reason StopReason, ok bool) {
	best := -1
	for id, t := range c.Threads {
		for _, r := range t.StopReasons {
			if !ok || r.Kind.Priority() > best || (r.Kind.Priority() == best && id < tid) {
				tid, reason, ok, best = id, r, true, r.Kind.Priority()
			}
		}
	}
	return tid, reason, ok
}
