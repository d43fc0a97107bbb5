package bolsync

import (
	"context"
	"fmt"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
)

type InventoryResult struct {
	ItemsSeen int `json:"items_seen"`
	Updated   int `json:"updated"`
	Unknown   int `json:"unknown"`
}

// ImportFBBInventory walks the paginated warehouse inventory and updates the
// internal FBB stock snapshot for every EAN it can resolve.
func (s *Service) ImportFBBInventory(ctx context.Context, instance *models.Instance) (*InventoryResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	book, err := models.CreateLogBook(ctx, instance.ID, models.LogOperationImport, "fbb_inventory")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = book.DeleteIfEmpty(ctx)
	}()

	result := &InventoryResult{}
	for page := 1; ; page++ {
		items, err := gateway.GetInventory(ctx, page)
		if err != nil {
			if bolapi.IsTransport(err) {
				config.LogError(s.logger, "bolsync", "ImportFBBInventory", "transport failure, aborting run", instance.ID, err)
				return result, nil
			}
			return result, err
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			result.ItemsSeen++
			mapping, err := models.FindMappingByEAN(ctx, instance.ID, item.EAN)
			if err != nil || mapping.ProductId == 0 {
				result.Unknown++
				_ = book.AddLine(ctx, fmt.Sprintf("inventory ean %s has no mapped product", item.EAN), true, "", 0)
				continue
			}
			if err := models.UpdateProductFBBStock(ctx, mapping.ProductId, item.RegularStock, item.GradedStock); err != nil {
				return result, err
			}
			result.Updated++
		}
	}

	_ = models.TouchInstanceSyncTime(ctx, instance.ID, "last_inventory_import_at")
	return result, nil
}
