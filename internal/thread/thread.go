// Package thread owns the set of traced threads for one debuggee, the
// event loop that drives them, and starting or attaching to the process
// in the first place.
//
// Grounded on debugger.rs's Thread/ThreadState/StopReason and its
// process_events/resume/suspend/ptrace_interrupt_all_running_threads
// methods, and on delve's proc/threads.go Thread/threadResume for the
// per-thread resume state machine. Process lifecycle (start/attach) is
// grounded on gvisor-ligolo's subprocess_linux.go fork/SIGSTOP handshake
// and debugger.rs's attach PTRACE_SEIZE loop.
package thread

// State is what ptrace currently believes about a thread, mirroring
// ThreadState.
type State int

const (
	Running State = iota
	Suspended
)

func (s State) String() string {
	if s == Suspended {
		return "suspended"
	}
	return "running"
}

// TargetState is what the Controller wants every thread doing, mirroring
// ProcessState. A thread that stops for a reason unrelated to this (e.g. a
// delivered signal) gets resumed immediately if TargetState says Running.
type TargetState int

const (
	NoProcess TargetState = iota
	Starting
	ExitingState
	RunningState
	SuspendedState
	SteppingState
)

// StopReason says why a thread is currently stopped, for UI/stop-event
// prioritization; it does not affect debugger-core control flow.
type StopReason struct {
	Kind         StopReasonKind
	BreakpointID int // valid when Kind == StopBreakpoint
	Signal       int // signal number, valid when Kind == StopSignal
}

type StopReasonKind int

const (
	StopBreakpoint StopReasonKind = iota
	StopStep
	StopSignal
	StopException
)

// Priority orders simultaneous stop reasons across threads: the UI focuses
// the thread with the highest-priority reason, matching StopReason::priority.
func (r StopReasonKind) Priority() int {
	switch r {
	case StopBreakpoint:
		return 0
	case StopStep:
		return 1
	case StopException:
		return 2
	case StopSignal:
		return 3
	default:
		return 3
	}
}

// Thread is one traced kernel thread, mirroring debugger.rs's Thread.
type Thread struct {
	Idx   int
	TID   int
	State State

	StopReasons []StopReason
	StopCount   int
	// SubframeToSelect names which unwound subframe the UI should focus
	// after this stop completed. Nothing in this module assigns it;
	// step.Plan.SelectFrame computes such an index without storing it here.
	SubframeToSelect *int

	// SingleStepping is true while this thread is being resumed with
	// PTRACE_SINGLESTEP instead of PTRACE_CONT; see threadResume and the
	// source's comment on spurious SIGTRAPs after a SINGLESTEP/CONT/SINGLESTEP
	// sequence. Kept set across possibly-spurious traps until a real one
	// arrives, so CONT is never issued in between.
	SingleStepping bool

	// IgnoreNextHWBreakpointHitAddr, if non-nil, names an address whose
	// next hardware-breakpoint hit on this thread is a known duplicate
	// (software breakpoint converted to hardware, or a just-added
	// breakpoint's uninteresting first hit) and should be silently resumed.
	IgnoreNextHWBreakpointHitAddr *uint64

	WaitingForInitialStop bool
	SentInterrupt         bool
	PendingSignal         *int
	AttachedLate          bool
	Exiting               bool
}

func newThread(idx, tid int, state State) *Thread {
	return &Thread{Idx: idx, TID: tid, State: state, WaitingForInitialStop: true}
}
