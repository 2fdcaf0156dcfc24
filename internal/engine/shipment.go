package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"clearline/internal/config"
	"clearline/internal/domain"
)

// InferShipmentType returns EXPORT when any system tag mentions export,
// IMPORT otherwise. Matching is case-insensitive substring.
func InferShipmentType(systems []string) string {
	for _, s := range systems {
		if strings.Contains(strings.ToLower(s), "export") {
			return domain.ShipmentExport
		}
	}
	return domain.ShipmentImport
}

// createShipmentTx creates the shipment row and its fixed tracking stages.
// The first stage starts immediately; the rest wait. Stage ordering is the
// enum declaration order regardless of shipment type.
func (e Engine) createShipmentTx(ctx context.Context, tx *sql.Tx, p domain.Project, cfg *config.Config) (domain.Shipment, int, error) {
	now := e.now().UTC().Format(time.RFC3339)
	shipment := domain.Shipment{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte("shipment-id:"+p.ID)).String(),
		ProjectID:      p.ID,
		TrackingNumber: GenerateTrackingNumber(p.ID, e.now()),
		TrackingSlug:   GenerateTrackingSlug(p.ID),
		ShipmentNumber: GenerateShipmentNumber(p.ID, e.now()),
		Type:           InferShipmentType(p.Systems),
		Status:         domain.StatusPending,
		ArrivalDate:    p.StartDate,
		CreatedAt:      now,
	}
	// The customer ships the goods on EXPORT and receives them on IMPORT.
	if shipment.Type == domain.ShipmentExport {
		shipment.Consignor = p.CustomerName
	} else {
		shipment.Consignee = p.CustomerName
	}
	if err := e.Repo.InsertShipmentTx(ctx, tx, shipment); err != nil {
		return shipment, 0, err
	}

	etas := CalculateStageETAs(p.StartDate, cfg.Stages.LeadTimes)
	stages := make([]domain.TrackingStage, 0, len(domain.TrackingStageTypes))
	for i, stageType := range domain.TrackingStageTypes {
		st := domain.TrackingStage{
			ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte("stage:"+shipment.ID+":"+stageType)).String(),
			ShipmentID: shipment.ID,
			StageType:  stageType,
			Seq:        i,
			Status:     domain.StatusPending,
		}
		if i == 0 {
			st.Status = domain.StatusInProgress
			started := now
			st.StartedAt = &started
		}
		if eta, ok := etas[stageType]; ok {
			st.EstimatedStart = eta.Start
			st.EstimatedCompletion = eta.Completion
		}
		switch stageType {
		case "CUSTOMS_PAYMENT", "PORT_FEES":
			st.PaymentRequired = true
		}
		stages = append(stages, st)
	}
	if err := e.Repo.InsertTrackingStagesTx(ctx, tx, stages); err != nil {
		return shipment, 0, err
	}
	return shipment, len(stages), nil
}
