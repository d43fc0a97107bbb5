package bolsync

import (
	"context"
	"fmt"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/oakerp/bolsync/utils"
)

type ExportResult struct {
	Exported int `json:"exported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// clampExportStock bounds the published quantity by the instance's export
// cap: a fixed ceiling or a percentage of on-hand stock.
func clampExportStock(instance *models.Instance, onHand int) int {
	if onHand < 0 {
		return 0
	}
	switch instance.StockExportType {
	case models.StockExportTypePercentage:
		if instance.StockExportValue <= 0 {
			return onHand
		}
		return onHand * instance.StockExportValue / 100
	default:
		if instance.StockExportValue > 0 && onHand > instance.StockExportValue {
			return instance.StockExportValue
		}
		return onHand
	}
}

// ExportStock publishes clamped stock levels for every mapped offer.
func (s *Service) ExportStock(ctx context.Context, instance *models.Instance) (*ExportResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	book, err := models.CreateLogBook(ctx, instance.ID, models.LogOperationExport, "stock")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = book.DeleteIfEmpty(ctx)
	}()

	mappings, err := models.ListMappedOffers(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{}
	for _, mapping := range mappings {
		product, err := models.GetProduct(ctx, mapping.ProductId)
		if err != nil {
			result.Skipped++
			continue
		}
		amount := clampExportStock(instance, product.OnHand)
		if err := gateway.UpdateOfferStock(ctx, mapping.OfferId, amount); err != nil {
			result.Failed++
			if bolapi.IsNotFound(err) {
				_ = book.AddLine(ctx, fmt.Sprintf("offer %s no longer exists, stock not exported", mapping.OfferId), false, "", 0)
				continue
			}
			if bolapi.IsTransport(err) {
				config.LogError(s.logger, "bolsync", "ExportStock", "transport failure, aborting run", instance.ID, err)
				return result, nil
			}
			_ = book.AddLine(ctx, fmt.Sprintf("offer %s stock export rejected: %v", mapping.OfferId, err), true, "", 0)
			continue
		}
		result.Exported++
	}
	return result, nil
}

// ExportPrices publishes the pricelist value, rounded to two decimals, for
// every mapped offer.
func (s *Service) ExportPrices(ctx context.Context, instance *models.Instance) (*ExportResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	book, err := models.CreateLogBook(ctx, instance.ID, models.LogOperationExport, "price")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = book.DeleteIfEmpty(ctx)
	}()

	mappings, err := models.ListMappedOffers(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{}
	for _, mapping := range mappings {
		product, err := models.GetProduct(ctx, mapping.ProductId)
		if err != nil {
			result.Skipped++
			continue
		}
		price, err := models.ProductExportPrice(ctx, instance.PricelistId, product)
		if err != nil {
			return result, err
		}
		if price.IsZero() {
			result.Skipped++
			_ = book.AddLine(ctx, fmt.Sprintf("offer %s has no price, skipped", mapping.OfferId), false, "", 0)
			continue
		}
		if err := gateway.UpdateOfferPrice(ctx, mapping.OfferId, price.Round(2)); err != nil {
			result.Failed++
			if bolapi.IsNotFound(err) {
				_ = book.AddLine(ctx, fmt.Sprintf("offer %s no longer exists, price not exported", mapping.OfferId), false, "", 0)
				continue
			}
			if bolapi.IsTransport(err) {
				config.LogError(s.logger, "bolsync", "ExportPrices", "transport failure, aborting run", instance.ID, err)
				return result, nil
			}
			_ = book.AddLine(ctx, fmt.Sprintf("offer %s price export rejected: %v", mapping.OfferId, err), true, "", 0)
			continue
		}
		result.Exported++
	}
	return result, nil
}

// UpdateOrderStatus confirms delivered pickings back to the marketplace.
// Pickings without a tracking reference are skipped with a log line; a 202
// answer marks the order updated.
func (s *Service) UpdateOrderStatus(ctx context.Context, instance *models.Instance) (*ExportResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	book, err := models.CreateLogBook(ctx, instance.ID, models.LogOperationExport, "order_status")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = book.DeleteIfEmpty(ctx)
	}()

	pickings, err := models.ListDeliveredPickingsToExport(ctx, instance.ID, 0)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{}
	for _, picking := range pickings {
		if picking.TrackingReference == "" {
			result.Skipped++
			_ = book.AddLine(ctx, fmt.Sprintf("picking %d has no tracking reference, shipment not confirmed", picking.ID), false, "", 0)
			continue
		}

		order, err := fetchOrderForPicking(ctx, instance.ID, picking)
		if err != nil {
			result.Skipped++
			continue
		}

		request := bolapi.ShipmentRequest{
			Transport: bolapi.TransportDetails{
				TransporterCode: picking.TransporterCode,
				TrackAndTrace:   picking.TrackingReference,
			},
		}
		for _, soLine := range order.Lines {
			if soLine.ExternalOrderItemId == "" {
				continue
			}
			request.OrderItems = append(request.OrderItems, bolapi.ShipmentRequestItem{OrderItemId: soLine.ExternalOrderItemId})
		}
		if len(request.OrderItems) == 0 {
			result.Skipped++
			continue
		}

		status, err := gateway.CreateShipment(ctx, request)
		if err != nil {
			result.Failed++
			if bolapi.IsNotFound(err) {
				_ = book.AddLine(ctx, fmt.Sprintf("order %s no longer exists, shipment not confirmed", order.ExternalOrderId), false, order.ExternalOrderId, 0)
				continue
			}
			if bolapi.IsTransport(err) {
				config.LogError(s.logger, "bolsync", "UpdateOrderStatus", "transport failure, aborting run", instance.ID, err)
				return result, nil
			}
			_ = book.AddLine(ctx, fmt.Sprintf("order %s shipment confirmation rejected: %v", order.ExternalOrderId, err), true, order.ExternalOrderId, 0)
			continue
		}
		if status == 202 {
			if err := models.MarkOrderStatusUpdated(ctx, order.ID); err != nil {
				return result, err
			}
			if err := models.MarkPickingExported(ctx, picking.ID); err != nil {
				return result, err
			}
			result.Exported++
		}
	}
	return result, nil
}

func fetchOrderForPicking(ctx context.Context, instanceId int, picking *models.Picking) (*models.SalesOrder, error) {
	return utils.FetchModel[models.SalesOrder](ctx, instanceId, picking.SalesOrderId, "Lines")
}
