package bolsync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "bolsync.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	config.SetDB(db)
	models.MigrateTable()
}

func createTestInstance(t *testing.T, input models.NewInstance) *models.Instance {
	t.Helper()
	if input.Name == "" {
		input.Name = "bol test shop"
	}
	if input.ClientId == "" {
		input.ClientId = "client-a"
	}
	if input.ClientSecret == "" {
		input.ClientSecret = "secret-a"
	}
	instance, err := models.CreateInstance(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	return instance
}

// fakeGateway satisfies Gateway with programmable responses.
type fakeGateway struct {
	orders        map[string]*bolapi.Order
	orderErrs     map[string]error
	orderPages    [][]bolapi.ReducedOrder
	ordersErr     error
	ordersErrPage int
	shipmentPages [][]bolapi.Shipment
	inventory     [][]bolapi.InventoryItem
	report        []bolapi.OfferReportRow
	reportErr     error

	stockUpdates map[string]int
	priceUpdates map[string]decimal.Decimal
	stockErr     error
	priceErr     error
	shipments    []bolapi.ShipmentRequest
	shipmentStatus int
	shipmentErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		orders:         map[string]*bolapi.Order{},
		orderErrs:      map[string]error{},
		stockUpdates:   map[string]int{},
		priceUpdates:   map[string]decimal.Decimal{},
		shipmentStatus: 202,
	}
}

func (g *fakeGateway) factory(*models.Instance) (Gateway, error) { return g, nil }

func (g *fakeGateway) Token(context.Context) (string, error) { return "Bearer fake", nil }

func (g *fakeGateway) GetOrders(_ context.Context, page int, _ string) ([]bolapi.ReducedOrder, error) {
	if g.ordersErr != nil && page == g.ordersErrPage {
		return nil, g.ordersErr
	}
	if page < 1 || page > len(g.orderPages) {
		return nil, nil
	}
	return g.orderPages[page-1], nil
}

func (g *fakeGateway) GetOrder(_ context.Context, orderId string) (*bolapi.Order, error) {
	if err, ok := g.orderErrs[orderId]; ok {
		return nil, err
	}
	order, ok := g.orders[orderId]
	if !ok {
		return nil, &bolapi.NotFoundError{Path: "/orders/" + orderId}
	}
	return order, nil
}

func (g *fakeGateway) GetOrdersByIds(ctx context.Context, orderIds []string) ([]*bolapi.Order, error) {
	var out []*bolapi.Order
	for _, id := range orderIds {
		order, err := g.GetOrder(ctx, id)
		if err != nil {
			if bolapi.IsNotFound(err) {
				continue
			}
			return out, err
		}
		out = append(out, order)
	}
	return out, nil
}

func (g *fakeGateway) GetShipments(_ context.Context, page int, _ string) ([]bolapi.Shipment, error) {
	if page < 1 || page > len(g.shipmentPages) {
		return nil, nil
	}
	return g.shipmentPages[page-1], nil
}

func (g *fakeGateway) UpdateOfferStock(_ context.Context, offerId string, amount int) error {
	if g.stockErr != nil {
		return g.stockErr
	}
	g.stockUpdates[offerId] = amount
	return nil
}

func (g *fakeGateway) UpdateOfferPrice(_ context.Context, offerId string, price decimal.Decimal) error {
	if g.priceErr != nil {
		return g.priceErr
	}
	g.priceUpdates[offerId] = price
	return nil
}

func (g *fakeGateway) CreateShipment(_ context.Context, request bolapi.ShipmentRequest) (int, error) {
	if g.shipmentErr != nil {
		return 0, g.shipmentErr
	}
	g.shipments = append(g.shipments, request)
	return g.shipmentStatus, nil
}

func (g *fakeGateway) RequestOfferExport(context.Context) (string, error) { return "ps-1", nil }

func (g *fakeGateway) GetProcessStatus(_ context.Context, processStatusId string) (*bolapi.ProcessStatus, error) {
	return &bolapi.ProcessStatus{
		ProcessStatusId: json.Number(processStatusId),
		Status:          bolapi.ProcessStatusSuccess,
		EntityId:        "export-1",
	}, nil
}

func (g *fakeGateway) GetOfferExport(context.Context, string) ([]bolapi.OfferReportRow, error) {
	if g.reportErr != nil {
		return nil, g.reportErr
	}
	return g.report, nil
}

func (g *fakeGateway) GetInventory(_ context.Context, page int) ([]bolapi.InventoryItem, error) {
	if page < 1 || page > len(g.inventory) {
		return nil, nil
	}
	return g.inventory[page-1], nil
}

// recordingNotifier captures escalations instead of writing activity tasks.
type recordingNotifier struct {
	calls []int
}

func (n *recordingNotifier) Escalate(_ context.Context, _ *models.Instance, queueId int, _ int) error {
	n.calls = append(n.calls, queueId)
	return nil
}

func marshalRecords(t *testing.T, records []bolapi.ReducedOrder) []byte {
	t.Helper()
	payload, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func seedQueue(t *testing.T, instanceId int, queueType string, externalOrderId string, payload []byte) *models.OrderQueue {
	t.Helper()
	db := config.GetDB()
	queue, err := models.CreateOrderQueue(db, instanceId, queueType)
	if err != nil {
		t.Fatalf("CreateOrderQueue: %v", err)
	}
	if _, err := models.AddOrderQueueLine(db, queue, externalOrderId, payload); err != nil {
		t.Fatalf("AddOrderQueueLine: %v", err)
	}
	return queue
}

func seedMappedProduct(t *testing.T, instanceId int, offerId string, sku string, ean string) *models.Product {
	t.Helper()
	db := config.GetDB()
	product := &models.Product{Name: "Product " + sku, SKU: sku, EAN: ean, OnHand: 10}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	mapping := &models.OfferMapping{
		InstanceId:    instanceId,
		OfferId:       offerId,
		EAN:           ean,
		ReferenceCode: sku,
		ProductId:     product.ID,
	}
	if err := db.Create(mapping).Error; err != nil {
		t.Fatalf("create mapping: %v", err)
	}
	return product
}

func testOrder(orderId string, offerId string, sku string, ean string) *bolapi.Order {
	return &bolapi.Order{
		OrderId:             orderId,
		OrderPlacedDateTime: "2026-03-01T12:00:00+01:00",
		ShipmentDetails: bolapi.ShipmentDetails{
			FirstName:   "Jip",
			Surname:     "de Vries",
			StreetName:  "Dorpsstraat",
			HouseNumber: "12",
			ZipCode:     "1234AB",
			City:        "Utrecht",
			CountryCode: "NL",
			Email:       "jip@example.com",
		},
		OrderItems: []bolapi.OrderItem{
			{
				OrderItemId: orderId + "-1",
				Fulfilment:  bolapi.Fulfilment{Method: "FBR", LatestDeliveryDate: "2026-03-04"},
				Offer:       bolapi.OrderItemOffer{OfferId: offerId, Reference: sku},
				Product:     bolapi.OrderItemProduct{EAN: ean, Title: "Product " + sku},
				Quantity:    2,
				UnitPrice:   decimal.RequireFromString("14.95"),
				Commission:  decimal.RequireFromString("2.10"),
			},
		},
	}
}

func reducedFromOrder(order *bolapi.Order) bolapi.ReducedOrder {
	record := bolapi.ReducedOrder{
		OrderId:             order.OrderId,
		OrderPlacedDateTime: order.OrderPlacedDateTime,
	}
	for _, item := range order.OrderItems {
		record.OrderItems = append(record.OrderItems, bolapi.ReducedOrderItem{
			OrderItemId:      item.OrderItemId,
			EAN:              item.Product.EAN,
			FulfilmentMethod: item.Fulfilment.Method,
			Quantity:         item.Quantity,
		})
	}
	return record
}
