package registry

import (
	"context"
	"errors"
	"testing"

	"invokeledger/native/common"
)

func TestMemoryKeeperGate(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	gate := common.KeeperGate{Registry: reg, Solvency: reg}
	keeper := [20]byte{0x01}
	stranger := [20]byte{0x02}

	if _, err := gate.SolventKeeper(ctx, 9); !errors.Is(err, common.ErrNotOwnedBySolventKeeper) {
		t.Fatalf("unclaimed asset should have no solvent keeper: %v", err)
	}
	if err := gate.RequireKeeper(ctx, 9, reg.RegistryAddress()); !errors.Is(err, common.ErrNotKeeper) {
		t.Fatalf("registry address must never act as keeper: %v", err)
	}

	reg.SetController(9, keeper)
	if err := gate.RequireKeeper(ctx, 9, keeper); err != nil {
		t.Fatalf("keeper rejected: %v", err)
	}
	if err := gate.RequireKeeper(ctx, 9, stranger); !errors.Is(err, common.ErrNotKeeper) {
		t.Fatalf("stranger accepted: %v", err)
	}
	got, err := gate.SolventKeeper(ctx, 9)
	if err != nil || got != keeper {
		t.Fatalf("unexpected solvent keeper %x: %v", got, err)
	}

	reg.SetSolvent(9, false)
	if err := gate.RequireKeeper(ctx, 9, keeper); !errors.Is(err, common.ErrNotKeeper) {
		t.Fatalf("delinquent keeper accepted: %v", err)
	}
	if _, err := gate.SolventKeeper(ctx, 9); !errors.Is(err, common.ErrNotOwnedBySolventKeeper) {
		t.Fatalf("delinquent keeper reported solvent: %v", err)
	}

	reg.SetSolvent(9, true)
	reg.SetController(9, reg.RegistryAddress())
	if _, err := gate.SolventKeeper(ctx, 9); !errors.Is(err, common.ErrNotOwnedBySolventKeeper) {
		t.Fatalf("released asset should be unclaimed: %v", err)
	}
}

func TestMemoryOccurrences(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	occ, err := reg.Occurrence(ctx, 1, 3)
	if err != nil || occ.Performed() {
		t.Fatalf("expected unperformed occurrence, got %+v (%v)", occ, err)
	}
	reg.RecordOccurrence(1, 3, common.Occurrence{Actor: [20]byte{0x0A}, Fingerprint: [32]byte{0x01}, Timestamp: 10})
	occ, _ = reg.Occurrence(ctx, 1, 3)
	if !occ.Performed() || occ.Actor != ([20]byte{0x0A}) {
		t.Fatalf("unexpected occurrence %+v", occ)
	}
	res, _ := reg.Result(ctx, 1, 3)
	if res.Recorded() {
		t.Fatalf("result should not be recorded yet")
	}
	reg.RecordResult(1, 3, common.Result{Fingerprint: [32]byte{0x02}, Timestamp: 11})
	res, _ = reg.Result(ctx, 1, 3)
	if !res.Recorded() {
		t.Fatalf("result should be recorded")
	}
}
