package bolsync

import (
	"context"
	"time"

	"github.com/oakerp/bolsync/bolapi"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Gateway is the slice of the marketplace API the sync pipeline uses.
// *bolapi.Client implements it; tests substitute a fake.
type Gateway interface {
	Token(ctx context.Context) (string, error)
	GetOrders(ctx context.Context, page int, fulfilmentMethod string) ([]bolapi.ReducedOrder, error)
	GetOrder(ctx context.Context, orderId string) (*bolapi.Order, error)
	GetOrdersByIds(ctx context.Context, orderIds []string) ([]*bolapi.Order, error)
	GetShipments(ctx context.Context, page int, fulfilmentMethod string) ([]bolapi.Shipment, error)
	UpdateOfferStock(ctx context.Context, offerId string, amount int) error
	UpdateOfferPrice(ctx context.Context, offerId string, price decimal.Decimal) error
	CreateShipment(ctx context.Context, request bolapi.ShipmentRequest) (int, error)
	RequestOfferExport(ctx context.Context) (string, error)
	GetProcessStatus(ctx context.Context, processStatusId string) (*bolapi.ProcessStatus, error)
	GetOfferExport(ctx context.Context, entityId string) ([]bolapi.OfferReportRow, error)
	GetInventory(ctx context.Context, page int) ([]bolapi.InventoryItem, error)
}

// GatewayFactory builds a gateway bound to one instance's credentials.
type GatewayFactory func(instance *models.Instance) (Gateway, error)

func defaultGatewayFactory(instance *models.Instance) (Gateway, error) {
	instanceId := instance.ID
	var expiresAt time.Time
	if instance.TokenExpiresAt != nil {
		expiresAt = *instance.TokenExpiresAt
	}
	return bolapi.NewClient(bolapi.Config{
		ClientId:       instance.ClientId,
		ClientSecret:   instance.ClientSecret,
		Token:          instance.Token,
		TokenExpiresAt: expiresAt,
		PersistToken: func(ctx context.Context, token string, tokenExpiresAt time.Time) error {
			return models.UpdateInstanceToken(ctx, instanceId, token, tokenExpiresAt)
		},
	})
}

// Service owns the import, processing and export pipelines for all
// instances.
type Service struct {
	newGateway GatewayFactory
	notifier   EscalationNotifier
	logger     *logrus.Logger
}

func NewService() *Service {
	return &Service{
		newGateway: defaultGatewayFactory,
		notifier:   &activityTaskNotifier{},
		logger:     config.GetLogger(),
	}
}

// NewServiceWith wires explicit collaborators. Used by tests.
func NewServiceWith(factory GatewayFactory, notifier EscalationNotifier) *Service {
	if notifier == nil {
		notifier = &activityTaskNotifier{}
	}
	return &Service{
		newGateway: factory,
		notifier:   notifier,
		logger:     config.GetLogger(),
	}
}
