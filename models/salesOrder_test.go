package models

import (
	"context"
	"testing"
	"time"
)

func TestCreateSalesOrderDuplicateKeyIsDetected(t *testing.T) {
	db := setupTestDB(t)

	order := &SalesOrder{
		InstanceId:       1,
		FulfilmentMethod: FulfilmentByFBR,
		ExternalOrderId:  "1043946570",
		PartnerId:        1,
		OrderDate:        time.Now().UTC(),
	}
	if err := CreateSalesOrder(db, order); err != nil {
		t.Fatalf("CreateSalesOrder: %v", err)
	}
	if order.State != SalesOrderStateConfirmed {
		t.Fatalf("state = %s, want confirmed", order.State)
	}

	dup := &SalesOrder{
		InstanceId:       1,
		FulfilmentMethod: FulfilmentByFBR,
		ExternalOrderId:  "1043946570",
		PartnerId:        2,
		OrderDate:        time.Now().UTC(),
	}
	err := CreateSalesOrder(db, dup)
	if err == nil {
		t.Fatal("duplicate external order accepted")
	}
	if !IsDuplicateKeyErr(err) {
		t.Fatalf("IsDuplicateKeyErr(%v) = false", err)
	}

	// the same order id under the other fulfilment method is a distinct record
	fbb := &SalesOrder{
		InstanceId:       1,
		FulfilmentMethod: FulfilmentByFBB,
		ExternalOrderId:  "1043946570",
		PartnerId:        1,
		OrderDate:        time.Now().UTC(),
	}
	if err := CreateSalesOrder(db, fbb); err != nil {
		t.Fatalf("CreateSalesOrder FBB: %v", err)
	}
}

func TestIsDuplicateKeyErrIgnoresOtherErrors(t *testing.T) {
	if IsDuplicateKeyErr(nil) {
		t.Fatal("nil reported as duplicate")
	}
	if IsDuplicateKeyErr(context.Canceled) {
		t.Fatal("unrelated error reported as duplicate")
	}
}

func TestListOrdersAwaitingStatusExport(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	pending := &SalesOrder{InstanceId: 1, FulfilmentMethod: FulfilmentByFBR, ExternalOrderId: "a", PartnerId: 1, OrderDate: time.Now().UTC()}
	exported := &SalesOrder{InstanceId: 1, FulfilmentMethod: FulfilmentByFBR, ExternalOrderId: "b", PartnerId: 1, OrderDate: time.Now().UTC()}
	foreign := &SalesOrder{InstanceId: 2, FulfilmentMethod: FulfilmentByFBR, ExternalOrderId: "c", PartnerId: 1, OrderDate: time.Now().UTC()}
	for _, o := range []*SalesOrder{pending, exported, foreign} {
		if err := CreateSalesOrder(db, o); err != nil {
			t.Fatalf("CreateSalesOrder: %v", err)
		}
	}
	if err := MarkOrderStatusUpdated(ctx, exported.ID); err != nil {
		t.Fatalf("MarkOrderStatusUpdated: %v", err)
	}

	orders, err := ListOrdersAwaitingStatusExport(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListOrdersAwaitingStatusExport: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != pending.ID {
		t.Fatalf("orders = %+v, want only the pending one", orders)
	}

	got, err := GetSalesOrderByExternalId(ctx, 1, "b")
	if err != nil {
		t.Fatalf("GetSalesOrderByExternalId: %v", err)
	}
	if got.State != SalesOrderStateShipped || got.StatusUpdatedAt == nil {
		t.Fatalf("exported order not marked shipped: %+v", got)
	}
}
