package thread

import (
	"github.com/avodev/dbgcore/internal/breakpoint"
	"github.com/avodev/dbgcore/internal/dbgerr"
	"github.com/avodev/dbgcore/internal/step"
)

// Controller owns one debuggee's threads and drives its event loop,
// mirroring the subset of Debugger that is not symbol bookkeeping (that
// lives in internal/symbols and is handed in by the caller). It owns the
// breakpoint manager directly, since diagnosing a trap and arming a step
// both need to install and look up Locations.
type Controller struct {
	Kernel Kernel

	PID         int
	TargetState TargetState

	nextThreadIdx int
	Threads       map[int]*Thread

	// Attached is true when this process was attached to rather than
	// started, mirroring RunMode::Attach; Kill refuses to murder an
	// attached process, matching murder()'s guard.
	Attached bool

	// Breakpoints is consulted by trap diagnosis (identifying which
	// location a trap belongs to) and by the step planner (installing its
	// own temporary locations). Nil is valid: traps are then always
	// diagnosed as software/hardware without location lookup, and stepping
	// falls back to plain single-instruction stepping.
	Breakpoints *breakpoint.Manager
	// HardwareWanted is consulted whenever the controller itself triggers a
	// Breakpoints.SyncLocations (currently, just after PTRACE_EVENT_EXEC);
	// set by the caller to whatever policy it uses elsewhere.
	HardwareWanted func(*breakpoint.Breakpoint) bool

	// Step is the in-flight step plan, if any, owned by BeginStep/CheckStep.
	Step       *step.Plan
	stepID     int
	stepLocs   []uint64
	nextStepID int

	// ExitCode and KilledBySignal record how the debuggee's leading thread
	// last went away; exactly one is non-nil once an actual wait4 exit/signal
	// for the leading thread has been processed (as opposed to the
	// PTRACE_EVENT_EXIT stop, which only marks threads Exiting). TargetState
	// is then ExitingState, or NoProcess if no thread remains.
	ExitCode       *int
	KilledBySignal *int

	// pending buffers wait events for a tid this controller does not yet
	// know about (a race between a clone's child reporting and its
	// parent's PTRACE_EVENT_CLONE stop being processed), retried on a
	// later call once the tid is known, mirroring pending_wait_events.
	pending []pendingEvent
}

type pendingEvent struct {
	tid int
	res WaitResult
}

// NewController builds a Controller bound to kernel, with no process yet.
func NewController(kernel Kernel) *Controller {
	return &Controller{Kernel: kernel, Threads: make(map[int]*Thread), nextThreadIdx: 1, TargetState: NoProcess}
}

// StartChild launches path/args, mirroring start_child: the child is
// created already traced and stopped, with TargetState set to Starting
// until the caller observes the post-exec SIGTRAP and calls Resume.
func (c *Controller) StartChild(path string, args []string, dir string) error {
	if c.TargetState != NoProcess {
		return dbgerr.New(dbgerr.Usage, "already debugging, can't start")
	}
	pid, err := c.Kernel.StartChild(path, args, dir)
	if err != nil {
		return err
	}
	c.PID = pid
	c.Attached = false
	c.TargetState = Starting
	c.Threads = map[int]*Thread{pid: newThread(c.nextThreadIdx, pid, Running)}
	c.nextThreadIdx++
	return nil
}

// Attach seizes every thread of an already-running pid, mirroring attach's
// PTRACE_SEIZE loop over /proc/<pid>/task, repeated until a round finds no
// new threads (a thread may be spawned between listing and seizing its
// parent).
func (c *Controller) Attach(pid int) error {
	if c.TargetState != NoProcess {
		return dbgerr.New(dbgerr.Usage, "already debugging, can't attach")
	}
	c.PID = pid
	c.Attached = true
	c.TargetState = RunningState
	c.Threads = make(map[int]*Thread)

	seen := make(map[int]bool)
	for round := 0; ; round++ {
		tids, err := c.Kernel.ListThreads(pid)
		if err != nil {
			return err
		}
		foundNew := false
		for _, tid := range tids {
			if seen[tid] {
				continue
			}
			seen[tid] = true
			foundNew = true
			if err := c.Kernel.Seize(tid); err != nil {
				return err
			}
			th := newThread(c.nextThreadIdx, tid, Running)
			c.nextThreadIdx++
			th.AttachedLate = round > 0
			c.Threads[tid] = th
		}
		if !foundNew {
			break
		}
	}
	return nil
}

// Kill sends the debuggee SIGKILL, mirroring murder(); refuses on an
// attached process the same way the source does.
func (c *Controller) Kill() error {
	if c.Attached {
		return dbgerr.New(dbgerr.Usage, "not killing attached process")
	}
	if c.TargetState == NoProcess || c.TargetState == ExitingState {
		return dbgerr.New(dbgerr.Usage, "no process")
	}
	return c.Kernel.Kill(c.PID)
}
