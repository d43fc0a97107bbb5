package bolsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
)

func reducedOrders(n int, offset int) []bolapi.ReducedOrder {
	out := make([]bolapi.ReducedOrder, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, bolapi.ReducedOrder{
			OrderId:             fmt.Sprintf("10439465%02d", offset+i),
			OrderPlacedDateTime: "2026-03-01T12:00:00+01:00",
		})
	}
	return out
}

func TestImportOrdersChunksIntoQueues(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})

	gateway := newFakeGateway()
	gateway.orderPages = [][]bolapi.ReducedOrder{reducedOrders(12, 0)}

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportOrders(ctx, instance)
	if err != nil {
		t.Fatalf("ImportOrders: %v", err)
	}
	if result.RecordCount != 12 {
		t.Fatalf("record count = %d, want 12", result.RecordCount)
	}
	if len(result.QueueIds) != 2 {
		t.Fatalf("got %d queues, want 2", len(result.QueueIds))
	}

	first, err := models.GetOrderQueue(ctx, result.QueueIds[0])
	if err != nil {
		t.Fatalf("GetOrderQueue: %v", err)
	}
	if first.RecordCount != 10 || len(first.Lines) != 10 {
		t.Fatalf("first queue has %d/%d lines, want 10", first.RecordCount, len(first.Lines))
	}
	if first.QueueType != models.QueueTypeUnshipped {
		t.Fatalf("queue type = %s, want unshipped", first.QueueType)
	}

	second, _ := models.GetOrderQueue(ctx, result.QueueIds[1])
	if second.RecordCount != 2 {
		t.Fatalf("second queue has %d lines, want 2", second.RecordCount)
	}

	got, _ := models.GetInstance(ctx, instance.ID)
	if got.LastOrderImportAt == nil {
		t.Fatal("last_order_import_at not touched")
	}
}

func TestImportOrdersSkipsOrdersAlreadyQueued(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})

	queued := reducedOrders(1, 0)[0]
	seedQueue(t, instance.ID, models.QueueTypeUnshipped, queued.OrderId,
		marshalRecords(t, []bolapi.ReducedOrder{queued}))

	gateway := newFakeGateway()
	gateway.orderPages = [][]bolapi.ReducedOrder{reducedOrders(2, 0)}

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportOrders(ctx, instance)
	if err != nil {
		t.Fatalf("ImportOrders: %v", err)
	}
	if result.SkippedCount != 1 || result.RecordCount != 1 {
		t.Fatalf("skipped=%d recorded=%d, want 1/1", result.SkippedCount, result.RecordCount)
	}

	db := config.GetDB()
	var count int64
	if err := db.Model(&models.OrderQueueLine{}).
		Where("instance_id = ? AND external_order_id = ?", instance.ID, queued.OrderId).
		Count(&count).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if count != 1 {
		t.Fatalf("order enqueued twice: %d lines", count)
	}
}

func TestImportOrdersTransportFailureYieldsWithoutError(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})

	gateway := newFakeGateway()
	gateway.orderPages = [][]bolapi.ReducedOrder{reducedOrders(3, 0)}
	gateway.ordersErr = &bolapi.TransportError{Err: errors.New("connection reset")}
	gateway.ordersErrPage = 2

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportOrders(ctx, instance)
	if err != nil {
		t.Fatalf("ImportOrders: %v", err)
	}
	// page one's work is committed before yielding
	if result.RecordCount != 3 || len(result.QueueIds) != 1 {
		t.Fatalf("result = %+v, want 3 records in 1 queue", result)
	}
	queue, err := models.GetOrderQueue(ctx, result.QueueIds[0])
	if err != nil {
		t.Fatalf("queue not committed: %v", err)
	}
	if len(queue.Lines) != 3 {
		t.Fatalf("queue has %d lines, want 3", len(queue.Lines))
	}
}

func TestImportOrdersByIds(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})

	gateway := newFakeGateway()
	gateway.orders["1043946570"] = testOrder("1043946570", "of-1", "SKU-100", "8712345678901")

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportOrdersByIds(ctx, instance, []string{"1043946570", "gone"})
	if err != nil {
		t.Fatalf("ImportOrdersByIds: %v", err)
	}
	if result.RecordCount != 1 || len(result.QueueIds) != 1 {
		t.Fatalf("result = %+v, want 1 record in 1 queue", result)
	}
}

func TestImportShippedOrdersPersistsCursorOnBudgetExhaustion(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})
	if err := models.UpdateShippedCursor(ctx, instance.ID, models.FulfilmentByFBR, 4); err != nil {
		t.Fatalf("UpdateShippedCursor: %v", err)
	}
	instance, _ = models.GetInstance(ctx, instance.ID)

	gateway := newFakeGateway()

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportShippedOrders(ctx, instance, time.Nanosecond)
	if err != nil {
		t.Fatalf("ImportShippedOrders: %v", err)
	}
	if result.RecordCount != 0 {
		t.Fatalf("record count = %d, want 0", result.RecordCount)
	}

	got, _ := models.GetInstance(ctx, instance.ID)
	if got.ShippedCursorFBR != 4 {
		t.Fatalf("cursor = %d, want 4 preserved for the next run", got.ShippedCursorFBR)
	}
}

func TestImportShippedOrdersKeepsCursorWhenListingDrained(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})
	if err := models.UpdateShippedCursor(ctx, instance.ID, models.FulfilmentByFBR, 4); err != nil {
		t.Fatalf("UpdateShippedCursor: %v", err)
	}
	instance, _ = models.GetInstance(ctx, instance.ID)

	// nothing left to list from page 4 onward
	gateway := newFakeGateway()

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportShippedOrders(ctx, instance, 0)
	if err != nil {
		t.Fatalf("ImportShippedOrders: %v", err)
	}
	if result.RecordCount != 0 {
		t.Fatalf("record count = %d, want 0", result.RecordCount)
	}

	got, _ := models.GetInstance(ctx, instance.ID)
	if got.ShippedCursorFBR != 4 {
		t.Fatalf("cursor = %d, want 4 so earlier pages are not re-crawled", got.ShippedCursorFBR)
	}
}

func TestImportShippedOrdersAdvancesCursorPastImportedPages(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})

	gateway := newFakeGateway()
	gateway.shipmentPages = [][]bolapi.Shipment{{
		{ShipmentId: "914587", Order: bolapi.ShipmentOrder{OrderId: "1043946570", OrderPlacedDateTime: "2026-03-01T12:00:00+01:00"}},
		{ShipmentId: "914588", Order: bolapi.ShipmentOrder{OrderId: "1043946571", OrderPlacedDateTime: "2026-03-01T12:05:00+01:00"}},
	}}

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportShippedOrders(ctx, instance, 0)
	if err != nil {
		t.Fatalf("ImportShippedOrders: %v", err)
	}
	if result.RecordCount != 2 || len(result.QueueIds) != 1 {
		t.Fatalf("result = %+v, want 2 records in 1 queue", result)
	}

	queue, err := models.GetOrderQueue(ctx, result.QueueIds[0])
	if err != nil {
		t.Fatalf("GetOrderQueue: %v", err)
	}
	if queue.QueueType != models.QueueTypeShipped {
		t.Fatalf("queue type = %s, want shipped", queue.QueueType)
	}

	got, _ := models.GetInstance(ctx, instance.ID)
	if got.ShippedCursorFBR != 2 {
		t.Fatalf("cursor = %d, want 2 past the imported page", got.ShippedCursorFBR)
	}
	if got.LastShippedImportAt == nil {
		t.Fatal("last_shipped_import_at not touched")
	}
}
