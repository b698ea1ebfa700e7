package registry

import (
	"context"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"invokeledger/native/common"
)

// DefaultAddress is the identity a registry reports for assets nobody controls.
var DefaultAddress = func() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("invokeledger/registry"))[12:])
	return out
}()

type occurrenceKey struct {
	asset uint64
	seq   uint64
}

// Memory is an in-process implementation of the occurrence oracle, controller
// registry and solvency oracle. It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	self        [20]byte
	occurrences map[occurrenceKey]common.Occurrence
	results     map[occurrenceKey]common.Result
	controllers map[uint64][20]byte
	delinquent  map[uint64]bool
}

var (
	_ common.OccurrenceOracle   = (*Memory)(nil)
	_ common.ControllerRegistry = (*Memory)(nil)
	_ common.SolvencyOracle     = (*Memory)(nil)
)

// NewMemory returns an empty registry that reports DefaultAddress as the
// controller of unclaimed assets.
func NewMemory() *Memory {
	return NewMemoryWithAddress(DefaultAddress)
}

// NewMemoryWithAddress returns an empty registry using self as its own address.
func NewMemoryWithAddress(self [20]byte) *Memory {
	return &Memory{
		self:        self,
		occurrences: make(map[occurrenceKey]common.Occurrence),
		results:     make(map[occurrenceKey]common.Result),
		controllers: make(map[uint64][20]byte),
		delinquent:  make(map[uint64]bool),
	}
}

// RecordOccurrence stores the action performed at (assetID, seq).
func (m *Memory) RecordOccurrence(assetID, seq uint64, occ common.Occurrence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occurrences[occurrenceKey{assetID, seq}] = occ
}

// RecordResult stores the result produced at (assetID, seq).
func (m *Memory) RecordResult(assetID, seq uint64, res common.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[occurrenceKey{assetID, seq}] = res
}

// SetController assigns the controller of an asset. Passing the registry's own
// address releases the asset.
func (m *Memory) SetController(assetID uint64, controller [20]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if controller == m.self {
		delete(m.controllers, assetID)
		return
	}
	m.controllers[assetID] = controller
}

// SetSolvent marks whether the asset's controller is current on its holding cost.
func (m *Memory) SetSolvent(assetID uint64, solvent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if solvent {
		delete(m.delinquent, assetID)
		return
	}
	m.delinquent[assetID] = true
}

// Occurrence implements common.OccurrenceOracle.
func (m *Memory) Occurrence(_ context.Context, assetID, seq uint64) (common.Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.occurrences[occurrenceKey{assetID, seq}], nil
}

// Result implements common.OccurrenceOracle.
func (m *Memory) Result(_ context.Context, assetID, seq uint64) (common.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.results[occurrenceKey{assetID, seq}], nil
}

// ControllerOf implements common.ControllerRegistry.
func (m *Memory) ControllerOf(_ context.Context, assetID uint64) ([20]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if controller, ok := m.controllers[assetID]; ok {
		return controller, nil
	}
	return m.self, nil
}

// RegistryAddress implements common.ControllerRegistry.
func (m *Memory) RegistryAddress() [20]byte { return m.self }

// IsSolvent implements common.SolvencyOracle. Assets are solvent unless marked
// otherwise.
func (m *Memory) IsSolvent(_ context.Context, assetID uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.delinquent[assetID], nil
}
