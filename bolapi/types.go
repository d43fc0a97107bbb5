package bolapi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Reduced order as returned by the paginated orders listing.
type ReducedOrder struct {
	OrderId              string             `json:"orderId"`
	OrderPlacedDateTime  string             `json:"orderPlacedDateTime"`
	OrderItems           []ReducedOrderItem `json:"orderItems"`
}

type ReducedOrderItem struct {
	OrderItemId       string `json:"orderItemId"`
	EAN               string `json:"ean"`
	FulfilmentMethod  string `json:"fulfilmentMethod"`
	FulfilmentStatus  string `json:"fulfilmentStatus"`
	Quantity          int    `json:"quantity"`
	QuantityShipped   int    `json:"quantityShipped"`
	QuantityCancelled int    `json:"quantityCancelled"`
	CancellationRequest bool `json:"cancellationRequest"`
}

type ordersResponse struct {
	Orders []ReducedOrder `json:"orders"`
}

// Order is the full single-order payload.
type Order struct {
	OrderId             string          `json:"orderId"`
	OrderPlacedDateTime string          `json:"orderPlacedDateTime"`
	ShipmentDetails     ShipmentDetails `json:"shipmentDetails"`
	BillingDetails      ShipmentDetails `json:"billingDetails"`
	OrderItems          []OrderItem     `json:"orderItems"`
}

type ShipmentDetails struct {
	FirstName       string `json:"firstName"`
	Surname         string `json:"surname"`
	StreetName      string `json:"streetName"`
	HouseNumber     string `json:"houseNumber"`
	HouseNumberExtension string `json:"houseNumberExtension"`
	ZipCode         string `json:"zipCode"`
	City            string `json:"city"`
	CountryCode     string `json:"countryCode"`
	Email           string `json:"email"`
	DeliveryPhoneNumber string `json:"deliveryPhoneNumber"`
	Language        string `json:"language"`
}

type OrderItem struct {
	OrderItemId  string          `json:"orderItemId"`
	Fulfilment   Fulfilment      `json:"fulfilment"`
	Offer        OrderItemOffer  `json:"offer"`
	Product      OrderItemProduct `json:"product"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Commission   decimal.Decimal `json:"commission"`
	Cancelled    bool            `json:"cancellationRequest"`
}

type Fulfilment struct {
	Method             string `json:"method"`
	LatestDeliveryDate string `json:"latestDeliveryDate"`
	ExactDeliveryDate  string `json:"exactDeliveryDate"`
}

type OrderItemOffer struct {
	OfferId   string `json:"offerId"`
	Reference string `json:"reference"`
}

type OrderItemProduct struct {
	EAN   string `json:"ean"`
	Title string `json:"title"`
}

// Shipment as returned by the paginated shipments listing.
type Shipment struct {
	ShipmentId       json.Number    `json:"shipmentId"`
	ShipmentDateTime string         `json:"shipmentDateTime"`
	ShipmentReference string        `json:"shipmentReference"`
	Order            ShipmentOrder  `json:"order"`
	ShipmentItems    []ShipmentItem `json:"shipmentItems"`
}

type ShipmentOrder struct {
	OrderId             string `json:"orderId"`
	OrderPlacedDateTime string `json:"orderPlacedDateTime"`
}

type ShipmentItem struct {
	OrderItemId string `json:"orderItemId"`
	EAN         string `json:"ean"`
	Quantity    int    `json:"quantity"`
}

type shipmentsResponse struct {
	Shipments []Shipment `json:"shipments"`
}

// ShipmentRequest confirms an internal delivery back to the marketplace.
type ShipmentRequest struct {
	OrderItems []ShipmentRequestItem `json:"orderItems"`
	Transport  TransportDetails      `json:"transport"`
}

type ShipmentRequestItem struct {
	OrderItemId string `json:"orderItemId"`
}

type TransportDetails struct {
	TransporterCode string `json:"transporterCode"`
	TrackAndTrace   string `json:"trackAndTrace"`
}

type ProcessStatus struct {
	ProcessStatusId json.Number `json:"processStatusId"`
	EventType       string      `json:"eventType"`
	Status          string      `json:"status"`
	ErrorMessage    string      `json:"errorMessage"`
	Links           []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	EntityId string `json:"entityId"`
}

const (
	ProcessStatusPending = "PENDING"
	ProcessStatusSuccess = "SUCCESS"
	ProcessStatusFailure = "FAILURE"
	ProcessStatusTimeout = "TIMEOUT"
)

type InventoryItem struct {
	EAN          string `json:"ean"`
	BSKU         string `json:"bsku"`
	Title        string `json:"title"`
	RegularStock int    `json:"regularStock"`
	GradedStock  int    `json:"gradedStock"`
}

type inventoryResponse struct {
	Inventory []InventoryItem `json:"inventory"`
}

// OfferReportRow is one parsed line of the offer CSV export.
type OfferReportRow struct {
	OfferId          string
	EAN              string
	ConditionName    string
	BundlePrice      decimal.Decimal
	StockAmount      int
	OnHoldByRetailer bool
	FulfilmentType   string
	MutationDateTime *time.Time
	ReferenceCode    string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}
