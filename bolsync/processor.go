package bolsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/oakerp/bolsync/utils"
	"github.com/shopspring/decimal"
)

// commitEvery bounds how many records are handled before the rewritten line
// payload is persisted, so a crash mid-line loses at most one chunk of work.
const commitEvery = 10

// MappingError marks an order item that could not be resolved to an internal
// product. The whole order is rolled back and the record stays in the line
// payload for the next pass.
type MappingError struct {
	OrderItemId string
	OfferId     string
	EAN         string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no product mapping for order item %s (offer=%s ean=%s)", e.OrderItemId, e.OfferId, e.EAN)
}

// ProcessQueues walks processable queues oldest pending work first and
// processes their draft lines until the time budget runs out.
func (s *Service) ProcessQueues(ctx context.Context, instance *models.Instance, budget time.Duration) error {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(budget)

	book, err := models.CreateLogBook(ctx, instance.ID, models.LogOperationImport, "order_queue")
	if err != nil {
		return err
	}
	defer func() {
		_ = book.DeleteIfEmpty(ctx)
	}()

	for _, queueType := range []string{models.QueueTypeUnshipped, models.QueueTypeShipped} {
		queueIds, err := models.FindProcessableQueueIds(ctx, instance.ID, queueType)
		if err != nil {
			return err
		}
		for _, queueId := range queueIds {
			if budget > 0 && time.Now().After(deadline) {
				return nil
			}
			if err := s.processQueue(ctx, gateway, instance, queueId, queueType, book); err != nil {
				config.LogError(s.logger, "bolsync", "ProcessQueues", "queue processing failed", queueId, err)
			}
		}
	}
	return nil
}

// ProcessQueue processes one queue directly, used by the retry endpoint and
// the pubsub trigger.
func (s *Service) ProcessQueue(ctx context.Context, instance *models.Instance, queueId int) error {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return err
	}
	queue, err := models.GetOrderQueue(ctx, queueId)
	if err != nil {
		return err
	}

	book, err := models.CreateLogBook(ctx, instance.ID, models.LogOperationImport, "order_queue")
	if err != nil {
		return err
	}
	defer func() {
		_ = book.DeleteIfEmpty(ctx)
	}()

	return s.processQueue(ctx, gateway, instance, queueId, queue.QueueType, book)
}

func (s *Service) processQueue(ctx context.Context, gateway Gateway, instance *models.Instance, queueId int, queueType string, book *models.LogBook) error {
	db := config.GetDB()

	passCount, err := models.IncrementQueueProcessCount(db.WithContext(ctx), queueId)
	if err != nil {
		return err
	}

	lines, err := models.GetDraftQueueLines(ctx, queueId)
	if err != nil {
		return err
	}

	for _, line := range lines {
		switch queueType {
		case models.QueueTypeShipped:
			err = s.processShipmentLine(ctx, gateway, instance, line, book)
		default:
			err = s.processOrderLine(ctx, gateway, instance, line, book)
		}
		if err != nil {
			config.LogError(s.logger, "bolsync", "processQueue", "line processing aborted", line.ID, err)
			break
		}
	}

	// Escalate when automatic passes are exhausted and work remains.
	if passCount > models.MaxQueueProcessCount {
		remaining, err := models.GetDraftQueueLines(ctx, queueId)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			if err := models.MarkQueueActionRequired(db.WithContext(ctx), queueId); err != nil {
				return err
			}
			if err := s.notifier.Escalate(ctx, instance, queueId, len(remaining)); err != nil {
				config.LogError(s.logger, "bolsync", "processQueue", "escalation failed", queueId, err)
			}
		}
	}

	_, err = models.RollupQueueState(db.WithContext(ctx), queueId)
	return err
}

// processOrderLine works through one queue line's payload. Records are
// removed from the payload as they succeed or are dropped for good; records
// that still need work (unmapped products, transient failures) survive in
// the payload. The line only completes when the payload is empty, and a
// non-empty payload never marks the line failed.
func (s *Service) processOrderLine(ctx context.Context, gateway Gateway, instance *models.Instance, line *models.OrderQueueLine, book *models.LogBook) error {
	db := config.GetDB()

	var records []bolapi.ReducedOrder
	if err := json.Unmarshal(line.Payload, &records); err != nil {
		// unreadable payload is terminal; cancel the line with a log
		_ = book.AddLine(ctx, "queue line payload is not valid JSON: "+err.Error(), true, line.ExternalOrderId, line.ID)
		line.State = models.QueueLineStateCancel
		line.Attempts++
		return models.UpdateQueueLine(db.WithContext(ctx), line)
	}

	survivors := records[:0]
	handled := 0

	persist := func() error {
		// unprocessed tail records always stay in the payload
		remaining := append([]bolapi.ReducedOrder{}, survivors...)
		remaining = append(remaining, records[handled:]...)
		payload, err := json.Marshal(remaining)
		if err != nil {
			return err
		}
		line.Payload = payload
		if len(remaining) == 0 {
			line.State = models.QueueLineStateDone
		}
		return models.UpdateQueueLine(db.WithContext(ctx), line)
	}

	for i, record := range records {
		handled = i
		keep, err := s.processOrderRecord(ctx, gateway, instance, record, book, line.ID)
		if err != nil {
			// transient failure: this and all following records stay queued
			config.LogError(s.logger, "bolsync", "processOrderLine", "record processing failed, will retry", record.OrderId, err)
			break
		}
		if keep {
			survivors = append(survivors, record)
		}
		handled = i + 1

		if handled%commitEvery == 0 {
			if err := persist(); err != nil {
				return err
			}
		}
	}

	line.Attempts++
	return persist()
}

// processOrderRecord imports one marketplace order. The returned keep flag
// is true when the record must stay in the payload for another pass.
func (s *Service) processOrderRecord(ctx context.Context, gateway Gateway, instance *models.Instance, record bolapi.ReducedOrder, book *models.LogBook, queueLineId int) (bool, error) {
	orderDate, err := parseOrderDateTime(record.OrderPlacedDateTime)
	if err != nil {
		_ = book.AddLine(ctx, fmt.Sprintf("order %s has unparseable orderPlacedDateTime %q, dropped", record.OrderId, record.OrderPlacedDateTime), true, record.OrderId, queueLineId)
		return false, nil
	}

	// orders placed before the configured cutoff are never imported
	if instance.OrderCutoffDate != nil && orderDate.Before(*instance.OrderCutoffDate) {
		_ = book.AddLine(ctx, fmt.Sprintf("order %s placed %s is before the cutoff date, dropped", record.OrderId, orderDate.Format(time.RFC3339)), false, record.OrderId, queueLineId)
		return false, nil
	}

	method := recordFulfilmentMethod(record)
	exists, err := models.SalesOrderExists(ctx, instance.ID, method, record.OrderId)
	if err != nil {
		return true, err
	}
	if exists {
		return false, nil
	}

	order, err := gateway.GetOrder(ctx, record.OrderId)
	if err != nil {
		if bolapi.IsNotFound(err) {
			// fetch misses are treated as transient; the record stays in the
			// payload and is retried on the next pass
			_ = book.AddLine(ctx, fmt.Sprintf("order %s could not be fetched, left for the next pass", record.OrderId), true, record.OrderId, queueLineId)
			return true, nil
		}
		return true, err
	}
	if len(order.OrderItems) > 0 {
		method = orderFulfilmentMethod(order)
	}

	keep, err := s.createSalesOrder(ctx, instance, order, method, book, queueLineId)
	if err != nil {
		return true, err
	}
	return keep, nil
}

// createSalesOrder writes the internal record inside one transaction. A
// mapping miss rolls the whole order back and retains the record.
func (s *Service) createSalesOrder(ctx context.Context, instance *models.Instance, order *bolapi.Order, method string, book *models.LogBook, queueLineId int) (bool, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	partner, err := models.FindOrCreatePartner(tx, partnerFromOrder(order))
	if err != nil {
		tx.Rollback()
		return true, err
	}

	orderDate, _ := parseOrderDateTime(order.OrderPlacedDateTime)
	salesOrder := &models.SalesOrder{
		InstanceId:       instance.ID,
		FulfilmentMethod: method,
		ExternalOrderId:  order.OrderId,
		PartnerId:        partner.ID,
		OrderDate:        orderDate,
	}
	if err := models.CreateSalesOrder(tx, salesOrder); err != nil {
		tx.Rollback()
		if models.IsDuplicateKeyErr(err) {
			// a concurrent pass imported it first
			return false, nil
		}
		return true, err
	}

	boundMapping := false
	for _, item := range order.OrderItems {
		if item.Cancelled {
			continue
		}
		mapping, err := models.FindOfferMapping(tx, instance.ID, item.Offer.OfferId, item.Offer.Reference, item.Product.EAN)
		productId := 0
		if err == nil && mapping.ProductId != 0 {
			productId = mapping.ProductId
		} else {
			if !*instance.AutoCreateProduct {
				tx.Rollback()
				mappingErr := &MappingError{OrderItemId: item.OrderItemId, OfferId: item.Offer.OfferId, EAN: item.Product.EAN}
				_ = book.AddLine(ctx, fmt.Sprintf("order %s: %s", order.OrderId, mappingErr.Error()), true, order.OrderId, queueLineId)
				return true, nil
			}
			product, err := models.CreateProductFromOffer(tx, item.Product.Title, item.Offer.Reference, item.Product.EAN, item.UnitPrice)
			if err != nil {
				tx.Rollback()
				return true, err
			}
			productId = product.ID
			if mapping != nil {
				if err := models.SetOfferMappingProduct(tx, mapping.ID, productId); err != nil {
					tx.Rollback()
					return true, err
				}
				boundMapping = true
			}
		}

		soLine := &models.SalesOrderLine{
			SalesOrderId:        salesOrder.ID,
			InstanceId:          instance.ID,
			ProductId:           productId,
			ExternalOrderItemId: item.OrderItemId,
			OfferId:             item.Offer.OfferId,
			EAN:                 item.Product.EAN,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			Commission:          item.Commission,
		}
		if d := item.Fulfilment.LatestDeliveryDate; d != "" {
			if t, err := time.Parse("2006-01-02", d); err == nil {
				utc := t.UTC()
				soLine.LatestDeliveryDate = &utc
			}
		}
		if err := models.AddSalesOrderLine(tx, soLine); err != nil {
			tx.Rollback()
			return true, err
		}
		salesOrder.AmountTotal = salesOrder.AmountTotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if err := tx.Model(&models.SalesOrder{}).Where("id = ?", salesOrder.ID).
		Update("amount_total", salesOrder.AmountTotal).Error; err != nil {
		tx.Rollback()
		return true, err
	}
	if err := tx.Commit().Error; err != nil {
		return true, err
	}
	if boundMapping {
		_ = utils.RemoveRedisList[models.OfferMapping](instance.ID)
	}
	return false, nil
}

// processShipmentLine imports already-shipped orders from a shipment page.
// Created records go straight to shipped state.
func (s *Service) processShipmentLine(ctx context.Context, gateway Gateway, instance *models.Instance, line *models.OrderQueueLine, book *models.LogBook) error {
	db := config.GetDB()

	var shipments []bolapi.Shipment
	if err := json.Unmarshal(line.Payload, &shipments); err != nil {
		_ = book.AddLine(ctx, "queue line payload is not valid JSON: "+err.Error(), true, line.ExternalOrderId, line.ID)
		line.State = models.QueueLineStateCancel
		line.Attempts++
		return models.UpdateQueueLine(db.WithContext(ctx), line)
	}

	survivors := shipments[:0]
	for _, shipment := range shipments {
		record := bolapi.ReducedOrder{
			OrderId:             shipment.Order.OrderId,
			OrderPlacedDateTime: shipment.Order.OrderPlacedDateTime,
		}
		keep, err := s.processOrderRecord(ctx, gateway, instance, record, book, line.ID)
		if err != nil {
			survivors = append(survivors, shipment)
			config.LogError(s.logger, "bolsync", "processShipmentLine", "shipment processing failed, will retry", shipment.Order.OrderId, err)
			continue
		}
		if keep {
			survivors = append(survivors, shipment)
			continue
		}
		// shipment orders arrive already fulfilled
		if so, err := models.GetSalesOrderByExternalId(ctx, instance.ID, shipment.Order.OrderId); err == nil && so.State == models.SalesOrderStateConfirmed {
			_ = models.MarkOrderStatusUpdated(ctx, so.ID)
		}
	}

	payload, err := json.Marshal(append([]bolapi.Shipment{}, survivors...))
	if err != nil {
		return err
	}
	line.Payload = payload
	if len(survivors) == 0 {
		line.State = models.QueueLineStateDone
	}
	line.Attempts++
	return models.UpdateQueueLine(db.WithContext(ctx), line)
}

func parseOrderDateTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported datetime %q", value)
}

func recordFulfilmentMethod(record bolapi.ReducedOrder) string {
	for _, item := range record.OrderItems {
		if item.FulfilmentMethod != "" {
			return strings.ToUpper(item.FulfilmentMethod)
		}
	}
	return models.FulfilmentByFBR
}

func orderFulfilmentMethod(order *bolapi.Order) string {
	for _, item := range order.OrderItems {
		if item.Fulfilment.Method != "" {
			return strings.ToUpper(item.Fulfilment.Method)
		}
	}
	return models.FulfilmentByFBR
}

func partnerFromOrder(order *bolapi.Order) *models.Partner {
	details := order.ShipmentDetails
	name := strings.TrimSpace(details.FirstName + " " + details.Surname)
	house := details.HouseNumber
	if details.HouseNumberExtension != "" {
		house = house + " " + details.HouseNumberExtension
	}
	return &models.Partner{
		Name:        name,
		Email:       details.Email,
		Phone:       details.DeliveryPhoneNumber,
		Street:      details.StreetName,
		HouseNumber: house,
		ZipCode:     details.ZipCode,
		City:        details.City,
		CountryCode: details.CountryCode,
	}
}
