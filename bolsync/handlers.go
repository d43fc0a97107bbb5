package bolsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oakerp/bolsync/models"
	"github.com/oakerp/bolsync/utils"
)

// RegisterRoutes mounts the connector's admin surface.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	bol := r.Group("/bol")

	bol.POST("/instances", s.ConnectHandler())
	bol.GET("/instances/:id/status", s.StatusHandler())
	bol.POST("/instances/:id/import-orders", s.ImportOrdersHandler())
	bol.POST("/instances/:id/import-shipped", s.ImportShippedHandler())
	bol.POST("/instances/:id/import-by-ids", s.ImportByIdsHandler())
	bol.POST("/instances/:id/sync-offers", s.SyncOffersHandler())
	bol.POST("/instances/:id/import-fbb-inventory", s.ImportFBBInventoryHandler())
	bol.POST("/instances/:id/export-stock", s.ExportStockHandler())
	bol.POST("/instances/:id/export-prices", s.ExportPricesHandler())
	bol.POST("/instances/:id/update-order-status", s.UpdateOrderStatusHandler())
	bol.POST("/queues/process", s.PubSubPushHandler())
	bol.GET("/queues", s.ListQueuesHandler())
	bol.GET("/queues/:id", s.QueueDetailHandler())
	bol.POST("/queues/:id/retry", s.RetryQueueHandler())
	bol.GET("/logbooks/:id", s.LogBookHandler())
}

func instanceFromPath(c *gin.Context) (*models.Instance, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return nil, false
	}
	instance, err := models.GetInstance(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	c.Request = c.Request.WithContext(utils.SetInstanceIdInContext(c.Request.Context(), instance.ID))
	return instance, true
}

// ConnectHandler creates an instance and validates its credentials by
// fetching a token before marking it connected.
func (s *Service) ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewInstance
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}

		ctx := c.Request.Context()
		instance, err := models.CreateInstance(ctx, req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		gateway, err := s.newGateway(instance)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if _, err := gateway.Token(ctx); err != nil {
			_ = models.SetInstanceState(ctx, instance.ID, models.InstanceStateError)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "credential check failed: " + err.Error()})
			return
		}
		if err := models.SetInstanceState(ctx, instance.ID, models.InstanceStateConnected); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		instance.State = models.InstanceStateConnected
		c.JSON(http.StatusCreated, instance)
	}
}

func (s *Service) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		queues, err := models.ListOrderQueues(c.Request.Context(), instance.ID, "", 20)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"instance":      instance,
			"recent_queues": queues,
		})
	}
}

func (s *Service) ImportOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		result, err := s.ImportOrders(c.Request.Context(), instance)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) ImportShippedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		result, err := s.ImportShippedOrders(c.Request.Context(), instance, ShippedImportBudget(SchedulerInterval()))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type importByIdsRequest struct {
	OrderIds []string `json:"order_ids" binding:"required"`
}

func (s *Service) ImportByIdsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		var req importByIdsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		var ids []string
		for _, id := range req.OrderIds {
			if strings.TrimSpace(id) != "" {
				ids = append(ids, strings.TrimSpace(id))
			}
		}
		if len(ids) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order_ids is empty"})
			return
		}
		result, err := s.ImportOrdersByIds(c.Request.Context(), instance, ids)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) SyncOffersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		result, err := s.SyncOffers(c.Request.Context(), instance)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) ImportFBBInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		result, err := s.ImportFBBInventory(c.Request.Context(), instance)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) ExportStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		result, err := s.ExportStock(c.Request.Context(), instance)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) ExportPricesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		result, err := s.ExportPrices(c.Request.Context(), instance)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) UpdateOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instance, ok := instanceFromPath(c)
		if !ok {
			return
		}
		result, err := s.UpdateOrderStatus(c.Request.Context(), instance)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) ListQueuesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instanceId, _ := strconv.Atoi(c.Query("instance_id"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		queues, err := models.ListOrderQueues(c.Request.Context(), instanceId, c.Query("state"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"queues": queues})
	}
}

func (s *Service) QueueDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid queue id"})
			return
		}
		queue, err := models.GetOrderQueue(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "queue not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, queue)
	}
}

// RetryQueueHandler puts failed lines back to draft and republishes the
// queue for processing.
func (s *Service) RetryQueueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid queue id"})
			return
		}
		ctx := c.Request.Context()
		queue, err := models.GetOrderQueue(ctx, id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "queue not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		reset, err := models.ResetFailedQueueLines(ctx, queue.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := PublishQueueProcessing(ctx, queue.InstanceId, queue.ID); err != nil {
			// processing still happens on the next scheduler tick
			c.JSON(http.StatusOK, gin.H{"reset_lines": reset, "published": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reset_lines": reset, "published": true})
	}
}

func (s *Service) LogBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log book id"})
			return
		}
		book, err := models.GetLogBook(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "log book not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, book)
	}
}
