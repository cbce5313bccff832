// Package dbgcore is the interactive front end over the core packages:
// starting or attaching to a tracee, planting address breakpoints,
// stepping, and printing register/memory-backed watch expressions from a
// REPL loop, grounded on cmd/cpu's interactive debug session.
package dbgcore

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/avodev/dbgcore/internal/breakpoint"
	"github.com/avodev/dbgcore/internal/config"
	"github.com/avodev/dbgcore/internal/memsrc"
	"github.com/avodev/dbgcore/internal/ptrace"
	"github.com/avodev/dbgcore/internal/step"
	"github.com/avodev/dbgcore/internal/thread"
	"github.com/avodev/dbgcore/internal/watchexpr"
)

// Settings and Logger are populated by cmd's initConfig before DebugCmd
// runs.
var (
	Settings config.Settings
	Logger   *slog.Logger
)

var (
	colorAddr       = color.New(color.FgCyan)
	colorReg        = color.New(color.FgGreen)
	colorValue      = color.New(color.FgWhite, color.Bold)
	colorPrompt     = color.New(color.FgBlue, color.Bold)
	colorError      = color.New(color.FgRed, color.Bold)
	colorSuccess    = color.New(color.FgGreen)
	colorWarning    = color.New(color.FgYellow)
	colorBreakpoint = color.New(color.FgRed, color.Bold)
	colorPC         = color.New(color.FgGreen, color.Bold)
)

// DebugCmd starts or attaches to a target and drives it from a REPL.
var DebugCmd = &cobra.Command{
	Use:   "debug <program> [args...]",
	Short: "Start a program under ptrace and drive it from an interactive session",
	Long: `debug launches <program> stopped at its first instruction and drops into
an interactive session with commands for stepping, planting address
breakpoints, and printing registers/memory through watch expressions.

Without debug information this session only supports address breakpoints
(break 0x<addr>), not source-line or function breakpoints.

Available commands:
  run, r              - let the program run until exit or a breakpoint
  continue, c          - same as run
  step, s [n]          - single-step n instructions (default 1)
  break, b <addr>      - set a breakpoint at a raw hex address
  delete, d <id>       - remove a breakpoint by id
  list, l              - list breakpoints
  print, p <expr>      - evaluate a watch expression against live state
  info, i              - show all general-purpose registers
  memory, m <addr> [n] - dump n bytes (default 32) of memory at addr
  quit, q              - kill (if started) or detach and exit`,
	Args: cobra.MinimumNArgs(1),
	Run:  runDebug,
}

var attachPID int

func init() {
	DebugCmd.Flags().IntVar(&attachPID, "attach", 0, "attach to an already-running pid instead of starting <program>")
}

// session holds everything the REPL needs between commands, mirroring
// debugSession but scoped to a ptrace-driven native process instead of the
// toy-CPU interpreter.
type session struct {
	ctl     *thread.Controller
	bp      *breakpoint.Manager
	running bool
	lastCmd string
	curTID  int
}

func runDebug(cmd *cobra.Command, args []string) {
	ctl := thread.NewController(ptrace.Kernel{})
	bp := breakpoint.NewManager(nil, ptrace.HardwareRegisters{})

	var err error
	if attachPID != 0 {
		err = ctl.Attach(attachPID)
	} else {
		err = ctl.StartChild(args[0], args[1:], "")
	}
	if err != nil {
		colorError.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	bp.Memory = ptrace.BreakpointMemory{PID: ctl.PID}
	ctl.Breakpoints = bp
	ctl.HardwareWanted = func(*breakpoint.Breakpoint) bool { return false }

	s := &session{ctl: ctl, bp: bp, running: true, curTID: ctl.PID}

	if Logger != nil {
		Logger.Info("tracee started", "pid", ctl.PID)
	}

	ctx := context.Background()
	if attachPID == 0 {
		// Wait for the post-exec stop before handing control to the user;
		// the controller itself moves TargetState out of Starting once it
		// sees PTRACE_EVENT_EXEC.
		for ctl.TargetState == thread.Starting {
			if _, _, err := ctl.ProcessEvents(ctx, 0); err != nil {
				colorError.Fprintf(os.Stderr, "initial wait: %v\n", err)
				os.Exit(1)
			}
		}
	} else {
		// A seized thread keeps running until interrupted; request a
		// group-stop and wait for it, mirroring suspend()'s use after
		// attach.
		if err := ctl.Suspend(); err != nil {
			colorError.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		for anyRunning(ctl) {
			if _, _, err := ctl.ProcessEvents(ctx, 0); err != nil {
				colorError.Fprintf(os.Stderr, "initial wait: %v\n", err)
				os.Exit(1)
			}
		}
	}

	colorSuccess.Printf("Stopped, pid %d. Type 'help' for commands.\n", ctl.PID)

	reader := bufio.NewReader(os.Stdin)
	for s.running {
		colorPrompt.Print("(dbgcore) ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			line = s.lastCmd
		}
		if line != "" {
			s.lastCmd = line
			s.execute(line)
		}
	}
}

func (s *session) execute(line string) {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "run", "r", "continue", "c":
		s.cmdContinue()
	case "step", "s":
		s.cmdStep(args)
	case "break", "b":
		s.cmdBreak(args)
	case "delete", "d":
		s.cmdDelete(args)
	case "list", "l":
		s.cmdList()
	case "print", "p":
		s.cmdPrint(args)
	case "info", "i":
		s.cmdInfo()
	case "memory", "m":
		s.cmdMemory(args)
	case "help", "h", "?":
		s.cmdHelp()
	case "quit", "q", "exit":
		s.cmdQuit()
	default:
		colorError.Printf("unknown command: %s (try 'help')\n", cmd)
	}
}

// resolve re-resolves and re-syncs every breakpoint against the emptyRegistry,
// which always reports back the address breakpoints unchanged (they never
// consult the registry) and an error for anything else.
func (s *session) resolve() {
	reg := emptyRegistry{}
	for _, b := range s.bp.All() {
		breakpoint.Resolve(reg, b)
	}
	if err := s.bp.SyncLocations(s.curTID, func(*breakpoint.Breakpoint) bool { return false }); err != nil {
		colorError.Printf("sync breakpoints: %v\n", err)
	}
}

func (s *session) cmdBreak(args []string) {
	if len(args) != 1 {
		colorError.Println("usage: break <hex-addr>")
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		colorError.Printf("%v\n", err)
		return
	}
	id := s.bp.Add(breakpoint.Breakpoint{
		On:      breakpoint.On{Kind: breakpoint.OnAddress, Address: breakpoint.AddressSpec{Addr: addr}},
		Enabled: true,
	})
	s.resolve()
	s.ctl.NoteBreakpointAdded(s.curTID, addr)
	colorSuccess.Printf("breakpoint %d at %s\n", id, colorAddr.Sprintf("%#x", addr))
}

func (s *session) cmdDelete(args []string) {
	if len(args) != 1 {
		colorError.Println("usage: delete <id>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		colorError.Printf("bad id: %v\n", err)
		return
	}
	s.bp.Remove(breakpoint.ID(n))
	s.resolve()
	colorSuccess.Printf("deleted breakpoint %d\n", n)
}

func (s *session) cmdList() {
	all := s.bp.All()
	if len(all) == 0 {
		fmt.Println("no breakpoints")
		return
	}
	for _, b := range all {
		status := "enabled"
		if !b.Enabled {
			status = "disabled"
		}
		addr := uint64(0)
		if len(b.Addrs) > 0 {
			addr = b.Addrs[0].Addr
		}
		colorBreakpoint.Printf("#%d", b.ID)
		fmt.Printf(" %s at %s (hits: %d)\n", status, colorAddr.Sprintf("%#x", addr), b.Hits)
	}
}

// cmdContinue resumes every thread and blocks until the next stop the REPL
// should surface to the user: a breakpoint hit with a truthy (or absent)
// condition, or process exit.
func (s *session) cmdContinue() {
	if err := s.ctl.Resume(); err != nil {
		colorError.Printf("%v\n", err)
		return
	}
	ctx := context.Background()
	for {
		if _, _, err := s.ctl.ProcessEvents(ctx, 0); err != nil {
			colorError.Printf("%v\n", err)
			return
		}
		if s.ctl.ExitCode != nil {
			colorWarning.Printf("process exited, code %d\n", *s.ctl.ExitCode)
			return
		}
		if s.ctl.KilledBySignal != nil {
			colorWarning.Printf("process killed by signal %d\n", *s.ctl.KilledBySignal)
			return
		}
		if s.ctl.TargetState == thread.NoProcess {
			return
		}

		tid, reason, ok := s.ctl.HighestPriorityStop()
		if !ok {
			continue
		}
		if reason.Kind == thread.StopBreakpoint && reason.BreakpointID != 0 {
			if b, found := s.bp.Get(breakpoint.ID(reason.BreakpointID)); found {
				hit, condErr := breakpoint.ShouldStop(b, s.exprContext(tid))
				if condErr != nil {
					colorWarning.Printf("breakpoint %d condition error: %v\n", b.ID, condErr)
				}
				if !hit {
					s.clearStop(tid)
					if err := s.ctl.Resume(); err != nil {
						colorError.Printf("%v\n", err)
						return
					}
					continue
				}
			}
		}
		s.curTID = tid
		s.clearStop(tid)
		s.ctl.TargetState = thread.SuspendedState
		s.showStop(tid)
		return
	}
}

// clearStop drops tid's accumulated stop reasons once the REPL has reported
// (or dismissed) them, so the next HighestPriorityStop call doesn't
// re-surface the same stop.
func (s *session) clearStop(tid int) {
	if t, ok := s.ctl.Threads[tid]; ok {
		t.StopReasons = nil
	}
}

// cmdStep single-steps the current thread n instructions, one
// instruction-granularity step.Plan at a time; without debug information
// this session has no line ranges to step over or out of, so every step is
// an Into by raw instruction count.
func (s *session) cmdStep(args []string) {
	n := 1
	if len(args) == 1 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	ctx := context.Background()
	for i := 0; i < n; i++ {
		plan := &step.Plan{InternalKind: step.Into, ByInstructions: true, SingleSteps: true}
		if err := s.ctl.BeginStep(s.curTID, plan, nil); err != nil {
			colorError.Printf("%v\n", err)
			return
		}
		for {
			if _, _, err := s.ctl.ProcessEvents(ctx, 0); err != nil {
				colorError.Printf("%v\n", err)
				return
			}
			if s.ctl.ExitCode != nil {
				colorWarning.Printf("process exited, code %d\n", *s.ctl.ExitCode)
				return
			}
			t, ok := s.ctl.Threads[s.curTID]
			if !ok {
				break
			}
			s.clearStop(s.curTID)
			complete, err := s.ctl.CheckStep(t)
			if err != nil {
				colorError.Printf("%v\n", err)
				return
			}
			if complete {
				break
			}
		}
		s.ctl.TargetState = thread.SuspendedState
	}
	s.showStop(s.curTID)
}

func (s *session) cmdPrint(args []string) {
	if len(args) == 0 {
		colorError.Println("usage: print <expr>")
		return
	}
	expr := strings.Join(args, " ")
	ctx := s.exprContext(s.curTID)
	ev := watchexpr.NewEvaluator(ctx)
	v, mod, err := ev.Eval(expr)
	if err != nil {
		colorError.Printf("%v\n", err)
		return
	}
	colorValue.Println(watchexpr.Format(v, mod))
}

func (s *session) cmdInfo() {
	regs, err := ptrace.GetRegs(s.curTID)
	if err != nil {
		colorError.Printf("%v\n", err)
		return
	}
	for name, v := range map[string]uint64{
		"rax": regs.Rax, "rbx": regs.Rbx, "rcx": regs.Rcx, "rdx": regs.Rdx,
		"rsi": regs.Rsi, "rdi": regs.Rdi, "rbp": regs.Rbp, "rsp": regs.Rsp,
		"r8": regs.R8, "r9": regs.R9, "r10": regs.R10, "r11": regs.R11,
		"r12": regs.R12, "r13": regs.R13, "r14": regs.R14, "r15": regs.R15,
		"rip": regs.Rip, "eflags": regs.Eflags,
	} {
		colorReg.Printf("%-8s", name)
		fmt.Printf("= %s\n", colorValue.Sprintf("%#016x", v))
	}
}

func (s *session) cmdMemory(args []string) {
	if len(args) == 0 {
		colorError.Println("usage: memory <addr> [n]")
		return
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		colorError.Printf("%v\n", err)
		return
	}
	n := 32
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[1]); err == nil {
			n = v
		}
	}
	buf := make([]byte, n)
	reader := memsrc.New(s.ctl.PID, ptrace.ProcessMemory{})
	if err := reader.Read(addr, buf); err != nil {
		colorError.Printf("%v\n", err)
		return
	}
	for i := 0; i < len(buf); i += 16 {
		end := i + 16
		if end > len(buf) {
			end = len(buf)
		}
		colorAddr.Printf("%#016x  ", addr+uint64(i))
		for _, b := range buf[i:end] {
			fmt.Printf("%02x ", b)
		}
		fmt.Println()
	}
}

func (s *session) cmdHelp() {
	fmt.Println(DebugCmd.Long)
}

func (s *session) cmdQuit() {
	if s.ctl.TargetState != thread.NoProcess && s.ctl.TargetState != thread.ExitingState {
		if err := s.ctl.Kill(); err != nil {
			if err := ptrace.Detach(s.curTID); err != nil {
				colorWarning.Printf("detach failed: %v\n", err)
			}
		}
	}
	s.running = false
	colorSuccess.Println("exiting")
}

func (s *session) showStop(tid int) {
	regs, err := ptrace.GetRegs(tid)
	if err != nil {
		return
	}
	colorPC.Printf("thread %d stopped at ", tid)
	fmt.Println(colorAddr.Sprintf("%#x", regs.Rip))
}

func (s *session) exprContext(tid int) *registerContext {
	regs, err := ptrace.GetRegs(tid)
	if err != nil {
		return &registerContext{mem: memsrc.Invalid()}
	}
	return &registerContext{
		regs: ptrace.ToRegSet(&regs),
		mem:  memsrc.New(s.ctl.PID, ptrace.ProcessMemory{}),
	}
}

func anyRunning(ctl *thread.Controller) bool {
	for _, t := range ctl.Threads {
		if t.State == thread.Running {
			return true
		}
	}
	return false
}

func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}
