package breakpoint

import (
	"golang.org/x/exp/slices"

	"github.com/avodev/dbgcore/internal/dbgerr"
)

// Ref names which breakpoint (or internal stepping mechanism) a Location
// serves, mirroring BreakpointRef's Step/Id split: a location can be
// shared between a user breakpoint and a temporary single-step breakpoint.
type Ref struct {
	StepID           int // > 0 for a step-planner temporary breakpoint
	BreakpointID     ID  // valid when StepID == 0
	SubfunctionLevel uint16
}

// Location is one poked-in-memory or debug-register breakpoint site,
// possibly shared by several Breakpoints/step refs that happen to resolve
// to the same address. Mirrors BreakpointLocation.
type Location struct {
	Addr         uint64
	OriginalByte byte
	Hardware     bool
	Active       bool
	Refs         []Ref
	Err          error
}

func (l *Location) empty() bool { return len(l.Refs) == 0 }

const hardwareSlots = 4

// HardwareSlot is one of the four debug-register breakpoint slots a
// thread's DR0-DR3 provide.
type HardwareSlot struct {
	Active bool
	// ThreadSpecific is the tid this slot only applies to, or 0 for "every
	// thread", mirroring HardwareBreakpoint.thread_specific.
	ThreadSpecific int
	Addr           uint64
}

// WordAccess is the kernel capability a Manager needs to install software
// breakpoints: read the containing word, and overwrite it through the
// tracer (PTRACE_POKETEXT on Linux). Grounded on memsrc.WordAccess so both
// packages can be backed by the same internal/ptrace implementation.
type WordAccess interface {
	ReadWord(addr uint64) (uint64, error)
	WriteWord(addr uint64, word uint64) error
}

// DebugRegisters is the kernel capability needed to install hardware
// breakpoints: writing DR0-DR3/DR7 for a given thread.
type DebugRegisters interface {
	SetHardwareBreakpoints(tid int, slots [hardwareSlots]HardwareSlot) error
}

const trapByte = 0xcc

// Manager owns the sorted location list and hardware slot table,
// translating Breakpoint address lists into installed/removed locations.
// Grounded on debugger.rs's breakpoint_locations/hardware_breakpoints
// fields and add/activate/deactivate_breakpoint_location.
type Manager struct {
	Memory    WordAccess
	DebugRegs DebugRegisters

	locations   []*Location
	hardware    [hardwareSlots]HardwareSlot
	breakpoints map[ID]*Breakpoint
	nextID      ID
}

func NewManager(memory WordAccess, debugRegs DebugRegisters) *Manager {
	return &Manager{Memory: memory, DebugRegs: debugRegs, breakpoints: make(map[ID]*Breakpoint)}
}

// Add registers bp, assigning it an ID, and returns the assigned ID.
// Callers still need to call Resolve and Sync to install locations.
func (m *Manager) Add(bp Breakpoint) ID {
	m.nextID++
	bp.ID = m.nextID
	m.breakpoints[bp.ID] = &bp
	return bp.ID
}

func (m *Manager) Get(id ID) (*Breakpoint, bool) {
	bp, ok := m.breakpoints[id]
	return bp, ok
}

func (m *Manager) All() []*Breakpoint {
	ids := make([]ID, 0, len(m.breakpoints))
	for id := range m.breakpoints {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*Breakpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.breakpoints[id])
	}
	return out
}

// Remove deletes bp and its locations. Locations left with no remaining
// refs are marked for removal the next Sync.
func (m *Manager) Remove(id ID) {
	if _, ok := m.breakpoints[id]; !ok {
		return
	}
	for _, loc := range m.locations {
		loc.Refs = removeBreakpointRef(loc.Refs, id)
	}
	delete(m.breakpoints, id)
}

func removeBreakpointRef(refs []Ref, id ID) []Ref {
	out := refs[:0]
	for _, r := range refs {
		if r.StepID == 0 && r.BreakpointID == id {
			continue
		}
		out = append(out, r)
	}
	return out
}

// locationAddrCmp orders Locations by address for the sorted-slice
// binary searches addLocation and AtAddr both need.
func locationAddrCmp(loc *Location, addr uint64) int {
	switch {
	case loc.Addr < addr:
		return -1
	case loc.Addr > addr:
		return 1
	default:
		return 0
	}
}

// addLocation inserts ref at addr into the sorted location list, merging
// into an existing entry if one already covers addr, mirroring
// add_breakpoint_location's partition_point + insert.
func (m *Manager) addLocation(ref Ref, addr uint64, hardware bool) *Location {
	idx, found := slices.BinarySearchFunc(m.locations, addr, locationAddrCmp)
	if found {
		m.locations[idx].Refs = append(m.locations[idx].Refs, ref)
		return m.locations[idx]
	}
	loc := &Location{Addr: addr, Hardware: hardware, Refs: []Ref{ref}}
	m.locations = slices.Insert(m.locations, idx, loc)
	return loc
}

// AddStepLocation installs a temporary location for the step planner at
// addr, tagged with stepID rather than a user BreakpointID, and activates
// it immediately. Unlike a user breakpoint's locations, it survives
// SyncLocations until RemoveStepLocation drops it: the step planner does
// not get to wait for the next user-triggered sync to arm its own markers.
func (m *Manager) AddStepLocation(stepID int, addr uint64, hardware bool, suspendedTID int) (*Location, error) {
	loc := m.addLocation(Ref{StepID: stepID}, addr, hardware)
	if loc.Active {
		return loc, nil
	}
	if err := m.activate(loc, suspendedTID); err != nil {
		loc.Err = err
		return loc, err
	}
	return loc, nil
}

// RemoveStepLocation deactivates and drops every ref tagged with stepID,
// the step planner's counterpart to Remove for its own temporary locations.
func (m *Manager) RemoveStepLocation(stepID int, suspendedTID int) error {
	kept := m.locations[:0]
	var firstErr error
	for _, loc := range m.locations {
		out := loc.Refs[:0]
		for _, r := range loc.Refs {
			if r.StepID != stepID {
				out = append(out, r)
			}
		}
		loc.Refs = out
		if loc.empty() {
			if loc.Active {
				if err := m.deactivate(loc, suspendedTID); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			continue
		}
		kept = append(kept, loc)
	}
	m.locations = kept
	return firstErr
}

// PromoteToHardware swaps loc from a software trap byte to a hardware
// slot in place, used to free a thread to single-step through the real
// instruction at loc's address without first removing and later
// reinstalling the trap byte. Returns an error (most commonly
// ErrOutOfHardwareBreakpoints) if no slot is free; loc is left as it was.
func (m *Manager) PromoteToHardware(loc *Location, suspendedTID int) error {
	if loc.Hardware {
		return nil
	}
	if err := m.deactivate(loc, suspendedTID); err != nil {
		return err
	}
	loc.Hardware = true
	if err := m.activate(loc, suspendedTID); err != nil {
		loc.Hardware = false
		if reErr := m.activate(loc, suspendedTID); reErr != nil {
			loc.Err = reErr
		}
		return err
	}
	return nil
}

// DemoteToSoftware reverses PromoteToHardware.
func (m *Manager) DemoteToSoftware(loc *Location, suspendedTID int) error {
	if !loc.Hardware {
		return nil
	}
	if err := m.deactivate(loc, suspendedTID); err != nil {
		return err
	}
	loc.Hardware = false
	return m.activate(loc, suspendedTID)
}

// ReassertHardware reprograms tid's debug registers from the current
// hardware slot table without changing which locations are active,
// used after the kernel reports a fresh DR6 hit (the kernel does not
// restore DR0-DR3 on its own) and after a thread's initial attach stop.
func (m *Manager) ReassertHardware(tid int) error {
	if m.DebugRegs == nil {
		return nil
	}
	return m.DebugRegs.SetHardwareBreakpoints(tid, m.hardware)
}

// SyncLocations rebuilds the location list from every enabled, resolved
// breakpoint's hits, then activates/deactivates locations to match,
// mirroring handle_breakpoints' locations-then-activation pass. suspendedTID
// names a currently-suspended thread, required for PTRACE_POKETEXT.
func (m *Manager) SyncLocations(suspendedTID int, hardwareWanted func(bp *Breakpoint) bool) error {
	// Locations owned entirely by step-planner refs are not recomputed from
	// Breakpoint.Addrs below; pull them aside so the rebuild doesn't wipe
	// them, then merge them back in once the user-breakpoint locations are
	// rebuilt.
	var stepLocs []*Location
	for _, loc := range m.locations {
		if len(loc.Refs) == 0 {
			continue
		}
		onlySteps := true
		for _, r := range loc.Refs {
			if r.StepID == 0 {
				onlySteps = false
				break
			}
		}
		if onlySteps {
			stepLocs = append(stepLocs, loc)
		}
	}

	old := slices.Clone(m.locations)
	m.locations = m.locations[:0]
	for _, bp := range m.All() {
		if !bp.Enabled || bp.ResolveErr != nil {
			continue
		}
		hw := hardwareWanted != nil && hardwareWanted(bp)
		for _, hit := range bp.Addrs {
			m.addLocation(Ref{BreakpointID: bp.ID, SubfunctionLevel: hit.Level}, hit.Addr, hw)
		}
		bp.Active = true
	}

	for _, sl := range stepLocs {
		if existing, found := m.AtAddr(sl.Addr); found && existing != sl {
			existing.Refs = append(existing.Refs, sl.Refs...)
			continue
		}
		idx, found := slices.BinarySearchFunc(m.locations, sl.Addr, locationAddrCmp)
		if !found {
			m.locations = slices.Insert(m.locations, idx, sl)
		}
	}

	// Deactivate locations no longer referenced before activating new ones,
	// so hardware slots free up before being requested again.
	for _, o := range old {
		if !o.Active {
			continue
		}
		if loc, found := m.AtAddr(o.Addr); found {
			if loc != o {
				loc.Active, loc.Hardware, loc.OriginalByte = true, o.Hardware, o.OriginalByte
			}
			continue
		}
		if err := m.deactivate(o, suspendedTID); err != nil {
			o.Err = err
		}
	}
	for _, loc := range m.locations {
		if loc.empty() && loc.Active {
			if err := m.deactivate(loc, suspendedTID); err != nil {
				loc.Err = err
			}
		}
	}
	kept := m.locations[:0]
	for _, loc := range m.locations {
		if !loc.empty() {
			kept = append(kept, loc)
		}
	}
	m.locations = kept

	for _, loc := range m.locations {
		if loc.Active {
			continue
		}
		if err := m.activate(loc, suspendedTID); err != nil {
			loc.Err = err
		} else {
			loc.Err = nil
		}
	}
	return nil
}

// activate installs loc, picking a free hardware slot or poking 0xcc,
// mirroring activate_breakpoint_location.
func (m *Manager) activate(loc *Location, suspendedTID int) error {
	if loc.Active {
		return nil
	}
	if loc.Hardware {
		slotIdx := -1
		for i, s := range m.hardware {
			if !s.Active {
				slotIdx = i
				break
			}
		}
		if slotIdx == -1 {
			return dbgerr.New(dbgerr.OutOfHardwareBreakpoints, "all %d hardware breakpoint slots are in use", hardwareSlots)
		}
		threadSpecific := 0
		allThreads := false
		for _, r := range loc.Refs {
			if r.StepID == 0 {
				allThreads = true
			}
		}
		if !allThreads && len(loc.Refs) > 0 {
			threadSpecific = suspendedTID
		}
		m.hardware[slotIdx] = HardwareSlot{Active: true, ThreadSpecific: threadSpecific, Addr: loc.Addr}
		if m.DebugRegs != nil {
			if err := m.DebugRegs.SetHardwareBreakpoints(suspendedTID, m.hardware); err != nil {
				m.hardware[slotIdx] = HardwareSlot{}
				return err
			}
		}
		loc.Active = true
		return nil
	}

	aligned := loc.Addr &^ 7
	word, err := m.Memory.ReadWord(aligned)
	if err != nil {
		return err
	}
	shift := (loc.Addr - aligned) * 8
	loc.OriginalByte = byte(word >> shift)
	word = (word &^ (0xff << shift)) | (uint64(trapByte) << shift)
	if err := m.Memory.WriteWord(aligned, word); err != nil {
		return err
	}
	loc.Active = true
	return nil
}

// deactivate removes loc's installed trap/debug-register, mirroring
// deactivate_breakpoint_location.
func (m *Manager) deactivate(loc *Location, suspendedTID int) error {
	if !loc.Active {
		return nil
	}
	if loc.Hardware {
		for i := range m.hardware {
			if m.hardware[i].Addr == loc.Addr && m.hardware[i].Active {
				m.hardware[i] = HardwareSlot{}
			}
		}
		if m.DebugRegs != nil {
			if err := m.DebugRegs.SetHardwareBreakpoints(suspendedTID, m.hardware); err != nil {
				return err
			}
		}
		loc.Active = false
		return nil
	}

	aligned := loc.Addr &^ 7
	word, err := m.Memory.ReadWord(aligned)
	if err != nil {
		return err
	}
	shift := (loc.Addr - aligned) * 8
	word = (word &^ (0xff << shift)) | (uint64(loc.OriginalByte) << shift)
	if err := m.Memory.WriteWord(aligned, word); err != nil {
		return err
	}
	loc.Active = false
	return nil
}

// Locations returns the current sorted location list, for inspection/tests.
func (m *Manager) Locations() []*Location { return m.locations }

// AtAddr finds the active location (if any) covering addr, the lookup a
// SIGTRAP handler uses to identify which breakpoint(s) fired.
func (m *Manager) AtAddr(addr uint64) (*Location, bool) {
	idx, found := slices.BinarySearchFunc(m.locations, addr, locationAddrCmp)
	if !found {
		return nil, false
	}
	return m.locations[idx], true
}
