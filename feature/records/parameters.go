package records

import (
	"context"
	"errors"
	"fmt"

	"record-sync/core/reconcile"
	"record-sync/core/utils"
	"record-sync/feature/records/models"

	"gorm.io/gorm"
)

// Parameter names read from the parameters table.
const (
	ParamServerNumber   = "server_number"
	ParamBandProcessing = "is_band_processing"
)

// PriorityParam returns the name of the node-wide source order for kind.
func PriorityParam(kind reconcile.Kind) string {
	return fmt.Sprintf("server_order_%s_records_import", kind)
}

// ProcessingParam returns the name of the capability flag for kind.
func ProcessingParam(kind reconcile.Kind) string {
	return fmt.Sprintf("is_%s_processing", kind)
}

// Parameters reads node settings from the local parameters table.
type Parameters struct {
	db *gorm.DB
	// serverID overrides server_number when positive.
	serverID int
}

var _ reconcile.NodeSettings = (*Parameters)(nil)

// NewParameters creates node settings on db. A positive serverID takes precedence
// over the server_number parameter.
func NewParameters(db *gorm.DB, serverID int) *Parameters {
	return &Parameters{db: db, serverID: serverID}
}

// Get returns the raw value of name and whether it is set.
func (p *Parameters) Get(ctx context.Context, name string) (string, bool, error) {
	var row models.Parameter
	err := p.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read parameter %s: %w", name, err)
	}
	return row.Value, true, nil
}

func (p *Parameters) LocalServerID(ctx context.Context) (reconcile.SourceID, error) {
	if p.serverID > 0 {
		return reconcile.SourceID(p.serverID), nil
	}
	val, ok, err := p.Get(ctx, ParamServerNumber)
	if err != nil {
		return 0, err
	}
	id := utils.ToInt(val)
	if !ok || id <= 0 {
		return 0, fmt.Errorf("%w: parameter %s is not a server id: %q", reconcile.ErrConfiguration, ParamServerNumber, val)
	}
	return reconcile.SourceID(id), nil
}

func (p *Parameters) SourcePriority(ctx context.Context, kind reconcile.Kind) ([]reconcile.SourceID, error) {
	name := PriorityParam(kind)
	val, _, err := p.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	ids, err := utils.ParseIDList(val)
	if err != nil {
		return nil, fmt.Errorf("%w: parameter %s: %v", reconcile.ErrConfiguration, name, err)
	}
	order := make([]reconcile.SourceID, len(ids))
	for i, id := range ids {
		order[i] = reconcile.SourceID(id)
	}
	return order, nil
}

// ProcessingEnabled checks is_{kind}_processing. Video nodes may instead be flagged
// with is_band_processing.
func (p *Parameters) ProcessingEnabled(ctx context.Context, kind reconcile.Kind) (bool, error) {
	names := []string{ProcessingParam(kind)}
	if kind == reconcile.KindVideo {
		names = append(names, ParamBandProcessing)
	}
	for _, name := range names {
		val, _, err := p.Get(ctx, name)
		if err != nil {
			return false, err
		}
		if utils.ToBool(val) {
			return true, nil
		}
	}
	return false, nil
}
