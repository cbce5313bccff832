package thread

import "github.com/avodev/dbgcore/internal/dbgerr"

// Resume continues every suspended thread, mirroring resume(): a thread
// flagged SingleStepping gets PTRACE_SINGLESTEP instead of PTRACE_CONT, so
// a step armed by BeginStep takes effect without a second call telling it
// to.
func (c *Controller) Resume() error {
	if c.TargetState != SuspendedState {
		return dbgerr.New(dbgerr.Usage, "not suspended, can't resume")
	}
	for _, t := range c.Threads {
		if t.State != Suspended {
			continue
		}
		if err := c.resumeThread(t); err != nil {
			return err
		}
	}
	c.TargetState = RunningState
	return nil
}

// Suspend requests every running thread stop via PTRACE_INTERRUPT,
// mirroring suspend(); the actual group-stop arrives later through
// ProcessEvents. Also drops any in-flight step, matching suspend()'s
// "cancels any active step".
func (c *Controller) Suspend() error {
	if c.TargetState != RunningState && c.TargetState != SteppingState {
		return dbgerr.New(dbgerr.Usage, "not running, can't suspend")
	}
	if c.Step != nil {
		c.CancelStep(c.Step.TID)
	}
	if _, err := c.interruptAllRunningThreads(); err != nil {
		return err
	}
	c.TargetState = SuspendedState
	return nil
}

// resumeThread continues a single thread, the shared tail of Resume (every
// suspended thread) and of the handleStop/BeginStep paths that only need
// to get one thread moving again without touching TargetState.
func (c *Controller) resumeThread(t *Thread) error {
	var err error
	if t.SingleStepping {
		err = c.Kernel.SingleStep(t.TID)
	} else {
		sig := 0
		if t.PendingSignal != nil {
			sig = *t.PendingSignal
			t.PendingSignal = nil
		}
		err = c.Kernel.Cont(t.TID, sig)
	}
	if err != nil {
		return err
	}
	t.State = Running
	return nil
}

// resumeThreadsIfNeeded resumes every suspended thread when the controller
// still wants things moving (RunningState/SteppingState), used after an
// event that suspended a thread behind the caller's back (e.g. a step
// plan's own temporary location installs) without leaving the rest of the
// process stuck.
func (c *Controller) resumeThreadsIfNeeded() error {
	if c.TargetState != RunningState && c.TargetState != SteppingState {
		return nil
	}
	for _, t := range c.Threads {
		if t.State != Suspended {
			continue
		}
		if err := c.resumeThread(t); err != nil {
			return err
		}
	}
	return nil
}

// interruptAllRunningThreads sends PTRACE_INTERRUPT to every thread this
// controller believes is running, mirroring
// ptrace_interrupt_all_running_threads.
func (c *Controller) interruptAllRunningThreads() (int, error) {
	n := 0
	for _, t := range c.Threads {
		if t.State != Running {
			continue
		}
		if err := c.Kernel.Interrupt(t.TID); err != nil {
			return n, err
		}
		t.SentInterrupt = true
		n++
	}
	return n, nil
}
