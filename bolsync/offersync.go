package bolsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/oakerp/bolsync/utils"
)

const (
	offerExportPollInterval = 10 * time.Second
	offerExportPollLimit    = 30
)

type OfferSyncResult struct {
	RowsSeen int `json:"rows_seen"`
	Mapped   int `json:"mapped"`
	Unmapped int `json:"unmapped"`
}

// SyncOffers runs the CSV offer export flow: request the export, poll the
// process status until it finishes, download the report and upsert offer
// mappings from its rows.
func (s *Service) SyncOffers(ctx context.Context, instance *models.Instance) (*OfferSyncResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	book, err := models.CreateLogBook(ctx, instance.ID, models.LogOperationImport, "offer_sync")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = book.DeleteIfEmpty(ctx)
	}()

	processStatusId, err := gateway.RequestOfferExport(ctx)
	if err != nil {
		return nil, err
	}

	entityId, err := s.waitForProcess(ctx, gateway, processStatusId)
	if err != nil {
		_ = book.AddLine(ctx, "offer export did not finish: "+err.Error(), true, "", 0)
		return nil, err
	}

	rows, err := gateway.GetOfferExport(ctx, entityId)
	if err != nil {
		if errors.Is(err, bolapi.ErrMalformedOfferReport) {
			_ = book.AddLine(ctx, err.Error(), true, "", 0)
		}
		return nil, err
	}

	db := config.GetDB()
	result := &OfferSyncResult{}
	var unmapped []string
	tx := db.WithContext(ctx).Begin()
	for _, row := range rows {
		result.RowsSeen++
		mapping := &models.OfferMapping{
			InstanceId:       instance.ID,
			OfferId:          row.OfferId,
			EAN:              row.EAN,
			ReferenceCode:    row.ReferenceCode,
			ConditionName:    row.ConditionName,
			FulfilmentType:   row.FulfilmentType,
			BundlePrice:      row.BundlePrice,
			StockAmount:      row.StockAmount,
			OnHoldByRetailer: &row.OnHoldByRetailer,
			MutationDateTime: row.MutationDateTime,
		}
		if err := models.UpsertOfferMapping(tx, mapping); err != nil {
			tx.Rollback()
			return result, err
		}
		if mapping.ProductId != 0 {
			result.Mapped++
		} else {
			result.Unmapped++
			unmapped = append(unmapped, fmt.Sprintf("offer %s (ean=%s ref=%s) has no matching product", row.OfferId, row.EAN, row.ReferenceCode))
		}
	}
	if err := tx.Commit().Error; err != nil {
		return result, err
	}
	_ = utils.RemoveRedisList[models.OfferMapping](instance.ID)

	// log lines go through the shared handle, so only after the commit
	for _, message := range unmapped {
		if err := book.AddLine(ctx, message, true, "", 0); err != nil {
			return result, err
		}
	}

	_ = models.TouchInstanceSyncTime(ctx, instance.ID, "last_offer_sync_at")
	return result, nil
}

func (s *Service) waitForProcess(ctx context.Context, gateway Gateway, processStatusId string) (string, error) {
	for attempt := 0; attempt < offerExportPollLimit; attempt++ {
		status, err := gateway.GetProcessStatus(ctx, processStatusId)
		if err != nil {
			return "", err
		}
		switch status.Status {
		case bolapi.ProcessStatusSuccess:
			if status.EntityId == "" {
				return "", errors.New("process finished without entityId")
			}
			return status.EntityId, nil
		case bolapi.ProcessStatusFailure, bolapi.ProcessStatusTimeout:
			return "", fmt.Errorf("offer export process %s ended with %s: %s", processStatusId, status.Status, status.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(offerExportPollInterval):
		}
	}
	return "", fmt.Errorf("offer export process %s still pending after %d polls", processStatusId, offerExportPollLimit)
}
