package models

import (
	"context"
	"time"

	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/utils"
	"gorm.io/gorm"
)

// OrderQueue is a batch header owning raw order payloads pulled from the
// marketplace. Lines are processed out of band; the header state is rolled
// up from its line states after every pass.
type OrderQueue struct {
	ID               int              `gorm:"primary_key" json:"id"`
	InstanceId       int              `gorm:"index;not null" json:"instance_id"`
	QueueType        string           `gorm:"size:20;not null" json:"queue_type"`
	State            string           `gorm:"size:20;not null;default:'draft'" json:"state"`
	RecordCount      int              `gorm:"default:0" json:"record_count"`
	ProcessCount     int              `gorm:"default:0" json:"process_count"`
	IsActionRequired *bool            `gorm:"not null;default:false" json:"is_action_required"`
	Lines            []*OrderQueueLine `gorm:"foreignKey:QueueId" json:"lines,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderQueueLine struct {
	ID              int        `gorm:"primary_key" json:"id"`
	QueueId         int        `gorm:"index;not null" json:"queue_id"`
	InstanceId      int        `gorm:"index;not null" json:"instance_id"`
	ExternalOrderId string     `gorm:"size:128" json:"external_order_id"`
	Payload         []byte     `gorm:"type:json" json:"payload"`
	State           string     `gorm:"size:20;not null;default:'draft'" json:"state"`
	Attempts        int        `gorm:"default:0" json:"attempts"`
	LastProcessedAt *time.Time `json:"last_processed_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MaxQueueProcessCount is the number of passes a queue may take before it
// is escalated to the responsible user.
const MaxQueueProcessCount = 3

func CreateOrderQueue(tx *gorm.DB, instanceId int, queueType string) (*OrderQueue, error) {
	queue := OrderQueue{
		InstanceId:       instanceId,
		QueueType:        queueType,
		State:            QueueStateDraft,
		IsActionRequired: utils.NewFalse(),
	}
	if err := tx.Create(&queue).Error; err != nil {
		return nil, err
	}
	return &queue, nil
}

func AddOrderQueueLine(tx *gorm.DB, queue *OrderQueue, externalOrderId string, payload []byte) (*OrderQueueLine, error) {
	line := OrderQueueLine{
		QueueId:         queue.ID,
		InstanceId:      queue.InstanceId,
		ExternalOrderId: externalOrderId,
		Payload:         payload,
		State:           QueueLineStateDraft,
	}
	if err := tx.Create(&line).Error; err != nil {
		return nil, err
	}
	queue.RecordCount++
	return &line, tx.Model(&OrderQueue{}).Where("id = ?", queue.ID).
		Update("record_count", queue.RecordCount).Error
}

// DeleteQueueIfEmpty removes a header that ended up with no lines, which
// happens when a page import produced only duplicates.
func DeleteQueueIfEmpty(tx *gorm.DB, queueId int) error {
	var count int64
	if err := tx.Model(&OrderQueueLine{}).Where("queue_id = ?", queueId).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Delete(&OrderQueue{}, queueId).Error
}

func GetOrderQueue(ctx context.Context, id int) (*OrderQueue, error) {
	return utils.FetchSingleModel[OrderQueue](ctx, id, "Lines")
}

func ListOrderQueues(ctx context.Context, instanceId int, state string, limit int) ([]*OrderQueue, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Order("id DESC")
	if instanceId != 0 {
		dbCtx = dbCtx.Where("instance_id = ?", instanceId)
	}
	if state != "" {
		dbCtx = dbCtx.Where("state = ?", state)
	}
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	var queues []*OrderQueue
	err := dbCtx.Find(&queues).Error
	return queues, err
}

// FindProcessableQueueIds returns queues that still have draft lines and are
// not parked for manual action, oldest pending work first.
func FindProcessableQueueIds(ctx context.Context, instanceId int, queueType string) ([]int, error) {
	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).
		Model(&OrderQueueLine{}).
		Select("order_queue_lines.queue_id").
		Joins("JOIN order_queues ON order_queues.id = order_queue_lines.queue_id").
		Where("order_queue_lines.state = ?", QueueLineStateDraft).
		Where("order_queues.is_action_required = ?", false).
		Where("order_queues.instance_id = ?", instanceId).
		Where("order_queues.queue_type = ?", queueType).
		Group("order_queue_lines.queue_id").
		Order("MIN(order_queue_lines.created_at)").
		Pluck("order_queue_lines.queue_id", &ids).Error
	return ids, err
}

func GetDraftQueueLines(ctx context.Context, queueId int) ([]*OrderQueueLine, error) {
	db := config.GetDB()
	var lines []*OrderQueueLine
	err := db.WithContext(ctx).
		Where("queue_id = ? AND state = ?", queueId, QueueLineStateDraft).
		Order("id").
		Find(&lines).Error
	return lines, err
}

func UpdateQueueLine(tx *gorm.DB, line *OrderQueueLine) error {
	now := time.Now().UTC()
	line.LastProcessedAt = &now
	return tx.Model(&OrderQueueLine{}).Where("id = ?", line.ID).
		Updates(map[string]interface{}{
			"payload":           line.Payload,
			"state":             line.State,
			"attempts":          line.Attempts,
			"last_processed_at": line.LastProcessedAt,
		}).Error
}

// IncrementQueueProcessCount bumps the pass counter and reports whether the
// queue has exhausted its automatic attempts.
func IncrementQueueProcessCount(tx *gorm.DB, queueId int) (int, error) {
	if err := tx.Model(&OrderQueue{}).Where("id = ?", queueId).
		UpdateColumn("process_count", gorm.Expr("process_count + 1")).Error; err != nil {
		return 0, err
	}
	var queue OrderQueue
	if err := tx.Select("process_count").First(&queue, queueId).Error; err != nil {
		return 0, err
	}
	return queue.ProcessCount, nil
}

func MarkQueueActionRequired(tx *gorm.DB, queueId int) error {
	return tx.Model(&OrderQueue{}).Where("id = ?", queueId).
		Update("is_action_required", true).Error
}

// RollupQueueState recomputes the header state from its lines: all terminal
// and none failed means done, some progress means partial, no progress with
// failures means failed.
func RollupQueueState(tx *gorm.DB, queueId int) (string, error) {
	type stateCount struct {
		State string
		N     int64
	}
	var counts []stateCount
	err := tx.Model(&OrderQueueLine{}).
		Select("state, COUNT(*) AS n").
		Where("queue_id = ?", queueId).
		Group("state").
		Scan(&counts).Error
	if err != nil {
		return "", err
	}

	var draft, failed, done, cancel int64
	for _, c := range counts {
		switch c.State {
		case QueueLineStateDraft:
			draft = c.N
		case QueueLineStateFailed:
			failed = c.N
		case QueueLineStateDone:
			done = c.N
		case QueueLineStateCancel:
			cancel = c.N
		}
	}

	state := QueueStateDraft
	switch {
	case draft == 0 && failed == 0 && (done > 0 || cancel > 0):
		state = QueueStateDone
	case draft == 0 && failed > 0 && done == 0 && cancel == 0:
		state = QueueStateFailed
	case done > 0 || cancel > 0 || failed > 0:
		state = QueueStatePartial
	}

	return state, tx.Model(&OrderQueue{}).Where("id = ?", queueId).
		Update("state", state).Error
}

// ResetFailedQueueLines puts failed lines back to draft and clears the manual
// action flag so the queue is picked up again.
func ResetFailedQueueLines(ctx context.Context, queueId int) (int64, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&OrderQueueLine{}).
		Where("queue_id = ? AND state = ?", queueId, QueueLineStateFailed).
		Update("state", QueueLineStateDraft)
	if res.Error != nil {
		return 0, res.Error
	}
	err := db.WithContext(ctx).Model(&OrderQueue{}).Where("id = ?", queueId).
		Updates(map[string]interface{}{
			"is_action_required": false,
			"process_count":      0,
			"state":              QueueStateDraft,
		}).Error
	return res.RowsAffected, err
}
