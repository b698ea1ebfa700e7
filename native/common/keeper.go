package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotKeeper is returned when the caller is not the asset's current,
	// solvent controller.
	ErrNotKeeper = errors.New("not keeper")
	// ErrNotOwnedBySolventKeeper is returned when an asset is unclaimed or its
	// controller is delinquent.
	ErrNotOwnedBySolventKeeper = errors.New("not owned by solvent keeper")
	errKeeperGateNotConfigured = errors.New("keeper gate: registry or solvency oracle not configured")
)

// KeeperGate combines the controller registry and solvency oracle checks shared
// by every controller-gated operation.
type KeeperGate struct {
	Registry ControllerRegistry
	Solvency SolvencyOracle
}

func (g KeeperGate) configured() error {
	if g.Registry == nil || g.Solvency == nil {
		return errKeeperGateNotConfigured
	}
	return nil
}

// RequireKeeper returns ErrNotKeeper unless caller currently controls the
// asset and is solvent.
func (g KeeperGate) RequireKeeper(ctx context.Context, assetID uint64, caller [20]byte) error {
	if err := g.configured(); err != nil {
		return err
	}
	controller, err := g.Registry.ControllerOf(ctx, assetID)
	if err != nil {
		return fmt.Errorf("controller of asset %d: %w", assetID, err)
	}
	if controller != caller || controller == g.Registry.RegistryAddress() {
		return ErrNotKeeper
	}
	solvent, err := g.Solvency.IsSolvent(ctx, assetID)
	if err != nil {
		return fmt.Errorf("solvency of asset %d: %w", assetID, err)
	}
	if !solvent {
		return ErrNotKeeper
	}
	return nil
}

// SolventKeeper returns the asset's current controller, failing with
// ErrNotOwnedBySolventKeeper when the asset is unclaimed or delinquent.
func (g KeeperGate) SolventKeeper(ctx context.Context, assetID uint64) ([20]byte, error) {
	if err := g.configured(); err != nil {
		return [20]byte{}, err
	}
	controller, err := g.Registry.ControllerOf(ctx, assetID)
	if err != nil {
		return [20]byte{}, fmt.Errorf("controller of asset %d: %w", assetID, err)
	}
	if controller == g.Registry.RegistryAddress() {
		return [20]byte{}, ErrNotOwnedBySolventKeeper
	}
	solvent, err := g.Solvency.IsSolvent(ctx, assetID)
	if err != nil {
		return [20]byte{}, fmt.Errorf("solvency of asset %d: %w", assetID, err)
	}
	if !solvent {
		return [20]byte{}, ErrNotOwnedBySolventKeeper
	}
	return controller, nil
}
