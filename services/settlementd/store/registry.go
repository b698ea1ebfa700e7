package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"invokeledger/native/common"
	"invokeledger/native/registry"
	"invokeledger/services/settlementd/models"
)

// Registry is a gorm-backed occurrence oracle, controller registry and
// solvency oracle.
type Registry struct {
	db   *gorm.DB
	self [20]byte
}

var (
	_ common.OccurrenceOracle   = (*Registry)(nil)
	_ common.ControllerRegistry = (*Registry)(nil)
	_ common.SolvencyOracle     = (*Registry)(nil)
)

// NewRegistry returns a registry reporting registry.DefaultAddress for
// unclaimed assets.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db, self: registry.DefaultAddress}
}

func formatAddress(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}

func parseAddress(raw string) ([20]byte, error) {
	if !ethcommon.IsHexAddress(raw) {
		return [20]byte{}, fmt.Errorf("store: invalid address %q", raw)
	}
	return ethcommon.HexToAddress(raw), nil
}

func formatHash(h [32]byte) string {
	return ethcommon.Hash(h).Hex()
}

func parseHash(raw string) [32]byte {
	return ethcommon.HexToHash(strings.TrimSpace(raw))
}

// RecordOccurrence stores or replaces the occurrence at (assetID, seq).
func (r *Registry) RecordOccurrence(ctx context.Context, assetID, seq uint64, occ common.Occurrence) error {
	if seq == 0 {
		return fmt.Errorf("store: sequence 0 is reserved")
	}
	row := models.Occurrence{
		ID:          uuid.New(),
		AssetID:     assetID,
		Sequence:    seq,
		Actor:       formatAddress(occ.Actor),
		Fingerprint: formatHash(occ.Fingerprint),
		Timestamp:   occ.Timestamp,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}, {Name: "sequence"}},
		DoUpdates: clause.AssignmentColumns([]string{"actor", "fingerprint", "timestamp"}),
	}).Create(&row).Error
}

// RecordResult stores or replaces the result of occurrence (assetID, seq).
func (r *Registry) RecordResult(ctx context.Context, assetID, seq uint64, res common.Result) error {
	row := models.Result{
		ID:          uuid.New(),
		AssetID:     assetID,
		Sequence:    seq,
		Fingerprint: formatHash(res.Fingerprint),
		Timestamp:   res.Timestamp,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}, {Name: "sequence"}},
		DoUpdates: clause.AssignmentColumns([]string{"fingerprint", "timestamp"}),
	}).Create(&row).Error
}

// SetController assigns the asset to controller. Assigning the registry's own
// address releases the asset.
func (r *Registry) SetController(ctx context.Context, assetID uint64, controller [20]byte, solvent bool) error {
	db := r.db.WithContext(ctx)
	if controller == r.self {
		return db.Delete(&models.Controller{}, "asset_id = ?", assetID).Error
	}
	row := models.Controller{AssetID: assetID, Address: formatAddress(controller), Solvent: solvent}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "solvent", "updated_at"}),
	}).Create(&row).Error
}

// SetSolvent updates the solvency flag of a controlled asset.
func (r *Registry) SetSolvent(ctx context.Context, assetID uint64, solvent bool) error {
	res := r.db.WithContext(ctx).Model(&models.Controller{}).
		Where("asset_id = ?", assetID).
		Update("solvent", solvent)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: asset %d has no controller", assetID)
	}
	return nil
}

func (r *Registry) Occurrence(ctx context.Context, assetID, seq uint64) (common.Occurrence, error) {
	var row models.Occurrence
	err := r.db.WithContext(ctx).First(&row, "asset_id = ? AND sequence = ?", assetID, seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Occurrence{}, nil
	}
	if err != nil {
		return common.Occurrence{}, err
	}
	actor, err := parseAddress(row.Actor)
	if err != nil {
		return common.Occurrence{}, err
	}
	return common.Occurrence{Actor: actor, Fingerprint: parseHash(row.Fingerprint), Timestamp: row.Timestamp}, nil
}

func (r *Registry) Result(ctx context.Context, assetID, seq uint64) (common.Result, error) {
	var row models.Result
	err := r.db.WithContext(ctx).First(&row, "asset_id = ? AND sequence = ?", assetID, seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Result{}, nil
	}
	if err != nil {
		return common.Result{}, err
	}
	return common.Result{Fingerprint: parseHash(row.Fingerprint), Timestamp: row.Timestamp}, nil
}

func (r *Registry) ControllerOf(ctx context.Context, assetID uint64) ([20]byte, error) {
	var row models.Controller
	err := r.db.WithContext(ctx).First(&row, "asset_id = ?", assetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.self, nil
	}
	if err != nil {
		return [20]byte{}, err
	}
	return parseAddress(row.Address)
}

func (r *Registry) RegistryAddress() [20]byte { return r.self }

func (r *Registry) IsSolvent(ctx context.Context, assetID uint64) (bool, error) {
	var row models.Controller
	err := r.db.WithContext(ctx).First(&row, "asset_id = ?", assetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return row.Solvent, nil
}
