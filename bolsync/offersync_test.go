package bolsync

import (
	"context"
	"testing"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/shopspring/decimal"
)

func TestSyncOffersUpsertsMappings(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})

	db := config.GetDB()
	product := &models.Product{Name: "Kettle", SKU: "SKU-100", EAN: "8712345678901"}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	gateway := newFakeGateway()
	gateway.report = []bolapi.OfferReportRow{
		{
			OfferId:       "of-1",
			EAN:           "8712345678901",
			ReferenceCode: "SKU-100",
			BundlePrice:   decimal.RequireFromString("24.99"),
			StockAmount:   7,
		},
		{
			OfferId:       "of-ghost",
			EAN:           "0000000000000",
			ReferenceCode: "SKU-GHOST",
		},
	}

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.SyncOffers(ctx, instance)
	if err != nil {
		t.Fatalf("SyncOffers: %v", err)
	}
	if result.RowsSeen != 2 || result.Mapped != 1 || result.Unmapped != 1 {
		t.Fatalf("result = %+v, want 2 rows, 1 mapped, 1 unmapped", result)
	}

	mapping, err := models.FindOfferMapping(db, instance.ID, "of-1", "", "")
	if err != nil {
		t.Fatalf("mapping not stored: %v", err)
	}
	if mapping.ProductId != product.ID || mapping.StockAmount != 7 {
		t.Fatalf("mapping = %+v, want bound to product %d with stock 7", mapping, product.ID)
	}

	// the unmapped row is recorded with a mismatch log line
	var bookRow models.LogBook
	if err := db.Where("instance_id = ? AND module = ?", instance.ID, "offer_sync").First(&bookRow).Error; err != nil {
		t.Fatalf("log book missing: %v", err)
	}
	book, err := models.GetLogBook(ctx, bookRow.ID)
	if err != nil {
		t.Fatalf("GetLogBook: %v", err)
	}
	if len(book.Lines) != 1 || book.Lines[0].Mismatch == nil || !*book.Lines[0].Mismatch {
		t.Fatalf("log lines = %+v, want one mismatch", book.Lines)
	}

	got, _ := models.GetInstance(ctx, instance.ID)
	if got.LastOfferSyncAt == nil {
		t.Fatal("last_offer_sync_at not touched")
	}
}

func TestSyncOffersPropagatesMalformedReport(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{})

	gateway := newFakeGateway()
	gateway.reportErr = bolapi.ErrMalformedOfferReport

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	if _, err := service.SyncOffers(ctx, instance); err == nil {
		t.Fatal("malformed report accepted")
	}

	db := config.GetDB()
	var count int64
	if err := db.Model(&models.OfferMapping{}).Count(&count).Error; err != nil {
		t.Fatalf("count mappings: %v", err)
	}
	if count != 0 {
		t.Fatalf("mappings written from a malformed report: %d", count)
	}
}

func TestImportFBBInventoryUpdatesStock(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	instance := createTestInstance(t, models.NewInstance{FulfilmentBy: models.FulfilmentByFBB})
	product := seedMappedProduct(t, instance.ID, "of-1", "SKU-100", "8712345678901")

	gateway := newFakeGateway()
	gateway.inventory = [][]bolapi.InventoryItem{{
		{EAN: "8712345678901", RegularStock: 4, GradedStock: 2},
		{EAN: "9999999999999", RegularStock: 1},
	}}

	service := NewServiceWith(gateway.factory, &recordingNotifier{})
	result, err := service.ImportFBBInventory(ctx, instance)
	if err != nil {
		t.Fatalf("ImportFBBInventory: %v", err)
	}
	if result.ItemsSeen != 2 || result.Updated != 1 || result.Unknown != 1 {
		t.Fatalf("result = %+v, want 2 seen, 1 updated, 1 unknown", result)
	}

	got, err := models.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.FBBStock != 6 {
		t.Fatalf("fbb stock = %d, want regular plus graded 6", got.FBBStock)
	}
}
