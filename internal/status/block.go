// Package status publishes per-cycle harness status to Modbus holding registers.
package status

// Status block layout. Offsets are relative to the configured base address.
const (
	// SlotsPerBlock is the fixed number of registers in a status block.
	SlotsPerBlock = 10

	SlotHealth         = 0
	SlotCycleHi        = 1
	SlotCycleLo        = 2
	SlotUpdatesHi      = 3
	SlotUpdatesLo      = 4
	SlotMismatches     = 5
	SlotLengthWarnings = 6
	SlotLastIndex      = 7
	SlotLastRTTMs      = 8
	SlotLastMismatches = 9
)

// Health codes written to SlotHealth.
const (
	HealthUnknown  uint16 = 0
	HealthOK       uint16 = 1
	HealthMismatch uint16 = 2
	HealthError    uint16 = 3
)

// Snapshot is the state delivered after each cycle.
type Snapshot struct {
	Health         uint16
	Cycle          uint32
	Updates        uint32
	Mismatches     uint16 // cumulative device mismatches, saturating
	LengthWarnings uint16 // cumulative, saturating
	LastIndex      uint16
	LastRTTMs      uint16 // saturating
	LastMismatches uint16 // device mismatches in the last cycle
}

// Encode converts a Snapshot into a full status block.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerBlock)

	regs[SlotHealth] = s.Health
	regs[SlotCycleHi] = uint16(s.Cycle >> 16)
	regs[SlotCycleLo] = uint16(s.Cycle)
	regs[SlotUpdatesHi] = uint16(s.Updates >> 16)
	regs[SlotUpdatesLo] = uint16(s.Updates)
	regs[SlotMismatches] = s.Mismatches
	regs[SlotLengthWarnings] = s.LengthWarnings
	regs[SlotLastIndex] = s.LastIndex
	regs[SlotLastRTTMs] = s.LastRTTMs
	regs[SlotLastMismatches] = s.LastMismatches

	return regs
}

func saturate16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
