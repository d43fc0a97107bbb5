package bolsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/oakerp/bolsync/utils"
)

type QueuePubSubPayload struct {
	InstanceId    int    `json:"instance_id"`
	QueueId       int    `json:"queue_id"`
	CorrelationId string `json:"correlation_id"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func queueTopicName() string {
	name := strings.TrimSpace(os.Getenv("BOL_QUEUE_TOPIC"))
	if name == "" {
		name = "bol-order-queue"
	}
	return name
}

// EnsureQueueTopology provisions the queue topic and its subscription for
// environments without pre-created Pub/Sub infrastructure.
func EnsureQueueTopology(ctx context.Context) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topicName := queueTopicName()
	topic, err := config.CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return err
	}
	_, err = config.CreateSubscriptionIfNotExists(client, topicName+"-sub", topic)
	return err
}

// PublishQueueProcessing asks a worker to process one queue out of band.
func PublishQueueProcessing(ctx context.Context, instanceId int, queueId int) error {
	payload := QueuePubSubPayload{
		InstanceId:    instanceId,
		QueueId:       queueId,
		CorrelationId: models.CorrelationIdFromContextOrNew(ctx),
	}
	return config.PublishJSON(queueTopicName(), payload)
}

// PubSubPushHandler accepts queue-processing push messages. Malformed or
// incomplete envelopes are acked so the subscription never retries poisoned
// messages.
func (s *Service) PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_BOL_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload QueuePubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.InstanceId == 0 || payload.QueueId == 0 {
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if payload.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, payload.CorrelationId)
		}
		if err := utils.ValidateResourceId[models.OrderQueue](ctx, payload.InstanceId, payload.QueueId); err != nil {
			c.Status(204)
			return
		}
		instance, err := models.GetInstance(ctx, payload.InstanceId)
		if err != nil {
			c.Status(204)
			return
		}
		_ = s.ProcessQueue(ctx, instance, payload.QueueId)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
