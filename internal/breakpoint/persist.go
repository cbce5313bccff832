package breakpoint

import "gopkg.in/yaml.v3"

// record is the on-disk shape of a Breakpoint: only the user's intent
// survives a save/restore round trip (addresses, hit counts, and active
// state are recomputed from scratch), mirroring save_state/load_state's
// choice to persist BreakpointOn + condition text only.
type record struct {
	Kind            string `yaml:"kind"`
	Path            string `yaml:"path,omitempty"`
	Line            int    `yaml:"line,omitempty"`
	FunctionName    string `yaml:"function,omitempty"`
	Offset          uint64 `yaml:"offset,omitempty"`
	Addr            uint64 `yaml:"addr,omitempty"`
	PointOfInterest string `yaml:"point_of_interest,omitempty"`
	Condition       string `yaml:"condition,omitempty"`
	Enabled         bool   `yaml:"enabled"`
}

func toRecord(bp *Breakpoint) record {
	r := record{Condition: bp.Condition, Enabled: bp.Enabled}
	switch bp.On.Kind {
	case OnLine:
		r.Kind = "line"
		r.Path = bp.On.Line.Path
		r.Line = bp.On.Line.Line
	case OnAddress:
		r.Kind = "address"
		r.FunctionName = bp.On.Address.FunctionName
		r.Offset = bp.On.Address.Offset
		r.Addr = bp.On.Address.Addr
	case OnPointOfInterest:
		r.Kind = "point_of_interest"
		r.PointOfInterest = bp.On.PointOfInterest
	}
	return r
}

func fromRecord(r record) Breakpoint {
	bp := Breakpoint{Condition: r.Condition, Enabled: r.Enabled}
	switch r.Kind {
	case "line":
		bp.On = On{Kind: OnLine, Line: LineSpec{Path: r.Path, Line: r.Line}}
	case "address":
		bp.On = On{Kind: OnAddress, Address: AddressSpec{FunctionName: r.FunctionName, Offset: r.Offset, Addr: r.Addr}}
	case "point_of_interest":
		bp.On = On{Kind: OnPointOfInterest, PointOfInterest: r.PointOfInterest}
	}
	return bp
}

// SaveState serializes every breakpoint in the manager that a user created
// (InitialExec and other internal-only kinds are never added through Add,
// so nothing needs excluding here, unlike the source's save_state which
// walks a pool shared with internal bookkeeping).
func (m *Manager) SaveState() ([]byte, error) {
	records := make([]record, 0, len(m.breakpoints))
	for _, bp := range m.All() {
		records = append(records, toRecord(bp))
	}
	return yaml.Marshal(records)
}

// LoadState replaces the manager's breakpoint set with what data encodes.
// Callers must still Resolve and SyncLocations afterward to recompute
// addresses against the now-current symbol tables.
func (m *Manager) LoadState(data []byte) error {
	var records []record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return err
	}
	m.breakpoints = make(map[ID]*Breakpoint)
	m.locations = nil
	m.nextID = 0
	for _, r := range records {
		m.Add(fromRecord(r))
	}
	return nil
}
