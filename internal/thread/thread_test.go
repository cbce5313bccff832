package thread_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avodev/dbgcore/internal/regset"
	"github.com/avodev/dbgcore/internal/thread"
)

// fakeKernel is a minimal in-memory thread.Kernel, recording calls instead
// of touching the real kernel.
type fakeKernel struct {
	startedPID int
	listed     []int
	seized     []int
	conts      []int
	steps      []int
	interrupts []int
	killed     []int

	waits []thread.WaitResult
	tids  []int

	dr6     uint64
	pcSets  []uint64
	regs    map[int]regset.Set
	regsErr error
}

func (f *fakeKernel) StartChild(path string, args []string, dir string) (int, error) {
	f.startedPID = 4242
	return f.startedPID, nil
}
func (f *fakeKernel) Seize(tid int) error                { f.seized = append(f.seized, tid); return nil }
func (f *fakeKernel) ListThreads(pid int) ([]int, error) { return f.listed, nil }
func (f *fakeKernel) Cont(tid int, sig int) error        { f.conts = append(f.conts, tid); return nil }
func (f *fakeKernel) SingleStep(tid int) error           { f.steps = append(f.steps, tid); return nil }
func (f *fakeKernel) Interrupt(tid int) error            { f.interrupts = append(f.interrupts, tid); return nil }
func (f *fakeKernel) Kill(pid int) error                 { f.killed = append(f.killed, pid); return nil }

func (f *fakeKernel) TryWait() (int, thread.WaitResult, bool, error) {
	if len(f.tids) == 0 {
		return 0, thread.WaitResult{}, false, nil
	}
	tid, res := f.tids[0], f.waits[0]
	f.tids, f.waits = f.tids[1:], f.waits[1:]
	return tid, res, true, nil
}

func (f *fakeKernel) GetRegs(tid int) (regset.Set, error) {
	if f.regsErr != nil {
		return regset.Set{}, f.regsErr
	}
	if f.regs != nil {
		if s, ok := f.regs[tid]; ok {
			return s, nil
		}
	}
	var s regset.Set
	s.SetInt(regset.Rip, 0x1000, false)
	s.SetInt(regset.Rsp, 0x7000, false)
	return s, nil
}

func (f *fakeKernel) SetPC(tid int, pc uint64) error {
	f.pcSets = append(f.pcSets, pc)
	return nil
}

func (f *fakeKernel) PeekDebugReg(tid int, reg int) (uint64, error) {
	if reg == 6 {
		return f.dr6, nil
	}
	return 0, nil
}

func (f *fakeKernel) SetDebugReg(tid int, reg int, value uint64) error {
	if reg == 6 {
		f.dr6 = value
	}
	return nil
}

func TestStartChildRegistersOneThread(t *testing.T) {
	k := &fakeKernel{}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	assert.Equal(t, 4242, c.PID)
	assert.Equal(t, thread.Starting, c.TargetState)
	assert.False(t, c.Attached)
	require.Len(t, c.Threads, 1)
}

func TestStartChildTwiceErrors(t *testing.T) {
	k := &fakeKernel{}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	assert.Error(t, c.StartChild("/bin/true", nil, ""))
}

func TestAttachSeizesEveryDiscoveredThread(t *testing.T) {
	k := &fakeKernel{listed: []int{100, 101}}
	c := thread.NewController(k)
	require.NoError(t, c.Attach(100))
	assert.Equal(t, thread.RunningState, c.TargetState)
	assert.True(t, c.Attached)
	assert.ElementsMatch(t, []int{100, 101}, k.seized)
	assert.Len(t, c.Threads, 2)
}

func TestKillRefusesOnAttachedProcess(t *testing.T) {
	k := &fakeKernel{listed: []int{100}}
	c := thread.NewController(k)
	require.NoError(t, c.Attach(100))
	assert.Error(t, c.Kill())
	assert.Empty(t, k.killed)
}

func TestKillSendsSignalOnStartedProcess(t *testing.T) {
	k := &fakeKernel{}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	require.NoError(t, c.Kill())
	assert.Equal(t, []int{4242}, k.killed)
}

func TestSuspendInterruptsRunningThreads(t *testing.T) {
	k := &fakeKernel{}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	c.TargetState = thread.RunningState
	require.NoError(t, c.Suspend())
	assert.Equal(t, thread.SuspendedState, c.TargetState)
	assert.Equal(t, []int{4242}, k.interrupts)
}

func TestSuspendWhenNotRunningErrors(t *testing.T) {
	k := &fakeKernel{}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	assert.Error(t, c.Suspend())
}

func TestResumeContinuesSuspendedThreads(t *testing.T) {
	k := &fakeKernel{}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	c.Threads[4242].State = thread.Suspended
	c.TargetState = thread.SuspendedState
	require.NoError(t, c.Resume())
	assert.Equal(t, thread.RunningState, c.TargetState)
	assert.Equal(t, []int{4242}, k.conts)
	assert.Equal(t, thread.Running, c.Threads[4242].State)
}

func TestResumeSingleStepsThreadsFlaggedForIt(t *testing.T) {
	k := &fakeKernel{}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	c.Threads[4242].State = thread.Suspended
	c.Threads[4242].SingleStepping = true
	c.TargetState = thread.SuspendedState
	require.NoError(t, c.Resume())
	assert.Equal(t, []int{4242}, k.steps)
	assert.Empty(t, k.conts)
}

func TestProcessEventsRegistersExitAndDropsThread(t *testing.T) {
	k := &fakeKernel{tids: []int{4242}, waits: []thread.WaitResult{{Exited: true, ExitCode: 0}}}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	_, _, err := c.ProcessEvents(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, c.ExitCode)
	assert.Equal(t, 0, *c.ExitCode)
	assert.Equal(t, thread.NoProcess, c.TargetState)
	assert.Empty(t, c.Threads)
}

func TestProcessEventsMarksThreadSuspendedOnStop(t *testing.T) {
	k := &fakeKernel{tids: []int{4242}, waits: []thread.WaitResult{{Stopped: true, StopSignal: 5}}}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	_, _, err := c.ProcessEvents(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, thread.Suspended, c.Threads[4242].State)
	require.Len(t, c.Threads[4242].StopReasons, 1)
	assert.Equal(t, thread.StopBreakpoint, c.Threads[4242].StopReasons[0].Kind)
}

func TestProcessEventsLazilyRegistersUnknownClonedThread(t *testing.T) {
	k := &fakeKernel{tids: []int{9000}, waits: []thread.WaitResult{{Stopped: true, StopSignal: 5}}}
	c := thread.NewController(k)
	require.NoError(t, c.StartChild("/bin/true", nil, ""))
	_, _, err := c.ProcessEvents(context.Background(), time.Second)
	require.NoError(t, err)
	require.Contains(t, c.Threads, 9000)
}
