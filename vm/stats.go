package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so a history encodes deterministically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// StatsReport is a snapshot of the heap and the collector's pass history.
type StatsReport struct {
	Alive     int     `cbor:"1,keyasint"`
	Symbols   int     `cbor:"2,keyasint"`
	Epoch     uint64  `cbor:"3,keyasint"`
	Threshold int64   `cbor:"4,keyasint"`
	Allocator string  `cbor:"5,keyasint"`
	Passes    []Stats `cbor:"6,keyasint"`
}

// Report captures the current heap and collector state.
func Report() *StatsReport {
	return &StatsReport{
		Alive:     AliveCount(),
		Symbols:   symbols.Len(),
		Epoch:     collector.Epoch(),
		Threshold: collector.Threshold(),
		Allocator: registry.mode().String(),
		Passes:    collector.History(),
	}
}

// MarshalStats serializes a report to CBOR bytes.
func MarshalStats(r *StatsReport) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalStats deserializes a report from CBOR bytes.
func UnmarshalStats(data []byte) (*StatsReport, error) {
	var r StatsReport
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("vm: unmarshal stats: %w", err)
	}
	return &r, nil
}
