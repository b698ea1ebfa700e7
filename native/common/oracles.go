package common

import (
	"context"
	"math/big"
)

// Occurrence is an action recorded against an asset. A zero fingerprint means
// the action has not been performed.
type Occurrence struct {
	Actor       [20]byte
	Fingerprint [32]byte
	Timestamp   int64
}

// Performed reports whether the occurrence has been recorded.
func (o Occurrence) Performed() bool {
	return o.Fingerprint != [32]byte{}
}

// Result is the output produced by an occurrence. A zero timestamp means no
// result has been recorded yet.
type Result struct {
	Fingerprint [32]byte
	Timestamp   int64
}

// Recorded reports whether a result exists.
func (r Result) Recorded() bool {
	return r.Timestamp != 0 || r.Fingerprint != [32]byte{}
}

// OccurrenceOracle answers whether an action happened on an asset and what it
// produced, keyed by asset id and sequence number.
type OccurrenceOracle interface {
	Occurrence(ctx context.Context, assetID, seq uint64) (Occurrence, error)
	Result(ctx context.Context, assetID, seq uint64) (Result, error)
}

// ControllerRegistry maps an asset to its current controlling party. Assets
// nobody has claimed report the registry's own address as controller.
type ControllerRegistry interface {
	ControllerOf(ctx context.Context, assetID uint64) ([20]byte, error)
	RegistryAddress() [20]byte
}

// SolvencyOracle reports whether an asset's controller is current on its
// periodic holding cost.
type SolvencyOracle interface {
	IsSolvent(ctx context.Context, assetID uint64) (bool, error)
}

// Transferer moves value between accounts. Implementations may hand control to
// code owned by the recipient before returning, so callers must finish every
// state mutation before invoking Transfer.
type Transferer interface {
	Transfer(ctx context.Context, from, to [20]byte, amount *big.Int) error
}

// Receiver is implemented by accounts that run code when value arrives.
type Receiver interface {
	OnReceive(ctx context.Context, from [20]byte, amount *big.Int) error
}
