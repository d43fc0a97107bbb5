package bolsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/oakerp/bolsync/utils"
	"gorm.io/gorm"
)

const (
	// ordersPerQueue caps how many order lines one queue header owns before
	// the importer commits it and opens the next.
	ordersPerQueue = 10
	// shipmentsPerQueue is the same cap for shipped order import.
	shipmentsPerQueue = 11
)

type ImportResult struct {
	QueueIds     []int `json:"queue_ids"`
	RecordCount  int   `json:"record_count"`
	SkippedCount int   `json:"skipped_count"`
	// LastPage is the page the run stopped at. For shipped imports it is
	// persisted as the resume cursor.
	LastPage int `json:"last_page"`
}

// ImportOrders pulls open orders page by page and stores them as queue
// lines, rolling to a fresh committed queue header every ordersPerQueue
// lines. Orders already sitting in a draft line are skipped.
func (s *Service) ImportOrders(ctx context.Context, instance *models.Instance) (*ImportResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	result := &ImportResult{}

	for _, method := range instance.FulfilmentMethods() {
		var queue *models.OrderQueue
		var tx *gorm.DB

		commit := func() error {
			if tx == nil {
				return nil
			}
			if err := models.DeleteQueueIfEmpty(tx, queue.ID); err != nil {
				tx.Rollback()
				return err
			}
			if err := tx.Commit().Error; err != nil {
				return err
			}
			queue, tx = nil, nil
			return nil
		}

		for page := 1; ; page++ {
			orders, err := gateway.GetOrders(ctx, page, method)
			if err != nil {
				if tx != nil {
					_ = commit()
				}
				if bolapi.IsTransport(err) {
					config.LogError(s.logger, "bolsync", "ImportOrders", "transport failure, resuming next run", instance.ID, err)
					return result, nil
				}
				return result, err
			}
			if len(orders) == 0 {
				break
			}
			result.LastPage = page

			for _, order := range orders {
				pending, err := hasPendingQueueLine(ctx, instance.ID, order.OrderId)
				if err != nil {
					_ = commit()
					return result, err
				}
				if pending {
					result.SkippedCount++
					continue
				}

				if tx == nil {
					tx = db.WithContext(ctx).Begin()
					queue, err = models.CreateOrderQueue(tx, instance.ID, models.QueueTypeUnshipped)
					if err != nil {
						tx.Rollback()
						return result, err
					}
					result.QueueIds = append(result.QueueIds, queue.ID)
				}

				payload, err := json.Marshal([]bolapi.ReducedOrder{order})
				if err != nil {
					tx.Rollback()
					return result, err
				}
				if _, err := models.AddOrderQueueLine(tx, queue, order.OrderId, payload); err != nil {
					tx.Rollback()
					return result, err
				}
				result.RecordCount++

				if queue.RecordCount >= ordersPerQueue {
					if err := commit(); err != nil {
						return result, err
					}
				}
			}
		}
		if err := commit(); err != nil {
			return result, err
		}
	}

	_ = models.TouchInstanceSyncTime(ctx, instance.ID, "last_order_import_at")
	return result, nil
}

// ImportOrdersByIds fetches specific orders and enqueues them into a fresh
// queue, used for manual backfills.
func (s *Service) ImportOrdersByIds(ctx context.Context, instance *models.Instance, orderIds []string) (*ImportResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	orders, err := gateway.GetOrdersByIds(ctx, utils.UniqueSlice(orderIds))
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	result := &ImportResult{}
	if len(orders) == 0 {
		return result, nil
	}

	tx := db.WithContext(ctx).Begin()
	queue, err := models.CreateOrderQueue(tx, instance.ID, models.QueueTypeUnshipped)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, order := range orders {
		reduced := bolapi.ReducedOrder{
			OrderId:             order.OrderId,
			OrderPlacedDateTime: order.OrderPlacedDateTime,
		}
		payload, err := json.Marshal([]bolapi.ReducedOrder{reduced})
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if _, err := models.AddOrderQueueLine(tx, queue, order.OrderId, payload); err != nil {
			tx.Rollback()
			return nil, err
		}
		result.RecordCount++
	}
	if err := models.DeleteQueueIfEmpty(tx, queue.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	result.QueueIds = append(result.QueueIds, queue.ID)
	return result, nil
}

// ImportShippedOrders resumes the shipment listing from the instance's
// persisted page cursor and stops when the time budget runs out, persisting
// the cursor so the next run picks up where this one yielded.
func (s *Service) ImportShippedOrders(ctx context.Context, instance *models.Instance, budget time.Duration) (*ImportResult, error) {
	gateway, err := s.newGateway(instance)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	deadline := time.Now().Add(budget)
	result := &ImportResult{}

	for _, method := range instance.FulfilmentMethods() {
		page := instance.ShippedCursor(method)
		if page < 1 {
			page = 1
		}

		var queue *models.OrderQueue
		var tx *gorm.DB

		commit := func() error {
			if tx == nil {
				return nil
			}
			if err := models.DeleteQueueIfEmpty(tx, queue.ID); err != nil {
				tx.Rollback()
				return err
			}
			if err := tx.Commit().Error; err != nil {
				return err
			}
			queue, tx = nil, nil
			return nil
		}

		for {
			if budget > 0 && time.Now().After(deadline) {
				// out of time: persist the cursor and yield
				if err := commit(); err != nil {
					return result, err
				}
				if err := models.UpdateShippedCursor(ctx, instance.ID, method, page); err != nil {
					return result, err
				}
				return result, nil
			}

			shipments, err := gateway.GetShipments(ctx, page, method)
			if err != nil {
				_ = commit()
				_ = models.UpdateShippedCursor(ctx, instance.ID, method, page)
				if bolapi.IsTransport(err) {
					config.LogError(s.logger, "bolsync", "ImportShippedOrders", "transport failure, resuming next run", instance.ID, err)
					return result, nil
				}
				return result, err
			}
			if len(shipments) == 0 {
				// listing exhausted: keep the reached page so earlier pages
				// are never re-crawled
				if err := commit(); err != nil {
					return result, err
				}
				if err := models.UpdateShippedCursor(ctx, instance.ID, method, page); err != nil {
					return result, err
				}
				break
			}
			result.LastPage = page

			for _, shipment := range shipments {
				pending, err := hasPendingQueueLine(ctx, instance.ID, shipment.Order.OrderId)
				if err != nil {
					_ = commit()
					return result, err
				}
				if pending {
					result.SkippedCount++
					continue
				}

				if tx == nil {
					tx = db.WithContext(ctx).Begin()
					queue, err = models.CreateOrderQueue(tx, instance.ID, models.QueueTypeShipped)
					if err != nil {
						tx.Rollback()
						return result, err
					}
					result.QueueIds = append(result.QueueIds, queue.ID)
				}

				payload, err := json.Marshal([]bolapi.Shipment{shipment})
				if err != nil {
					tx.Rollback()
					return result, err
				}
				if _, err := models.AddOrderQueueLine(tx, queue, shipment.Order.OrderId, payload); err != nil {
					tx.Rollback()
					return result, err
				}
				result.RecordCount++

				if queue.RecordCount >= shipmentsPerQueue {
					if err := commit(); err != nil {
						return result, err
					}
				}
			}

			page++
			// close the open queue before touching the instance row; the
			// cursor write must not run while a store transaction is open
			if err := commit(); err != nil {
				return result, err
			}
			if err := models.UpdateShippedCursor(ctx, instance.ID, method, page); err != nil {
				return result, err
			}
		}
	}

	_ = models.TouchInstanceSyncTime(ctx, instance.ID, "last_shipped_import_at")
	return result, nil
}

// hasPendingQueueLine checks whether an external order already sits in a
// draft queue line, so pages that overlap a previous import do not enqueue
// the same order twice.
func hasPendingQueueLine(ctx context.Context, instanceId int, externalOrderId string) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&models.OrderQueueLine{}).
		Where("instance_id = ? AND external_order_id = ? AND state = ?",
			instanceId, externalOrderId, models.QueueLineStateDraft).
		Count(&count).Error
	return count > 0, err
}
