package models

import (
	"context"
	"time"

	"github.com/oakerp/bolsync/config"
)

// ActivityTask is a to-do assigned to a user when automated processing gives
// up on a queue. One task per queue, user and note type; repeated escalation
// of the same queue does not stack duplicates.
type ActivityTask struct {
	ID         int        `gorm:"primary_key" json:"id"`
	InstanceId int        `gorm:"index;not null" json:"instance_id"`
	QueueId    int        `gorm:"index;not null" json:"queue_id"`
	UserId     int        `gorm:"index;not null" json:"user_id"`
	NoteType   string     `gorm:"size:50;not null" json:"note_type"`
	Note       string     `gorm:"type:text" json:"note"`
	DueAt      *time.Time `json:"due_at"`
	DoneAt     *time.Time `json:"done_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateEscalationTask records a manual-action task, skipping when an open
// task for the same queue, user and note type already exists.
func CreateEscalationTask(ctx context.Context, instanceId int, queueId int, userId int, noteType string, note string) (*ActivityTask, error) {
	db := config.GetDB()

	var count int64
	err := db.WithContext(ctx).Model(&ActivityTask{}).
		Where("queue_id = ? AND user_id = ? AND note_type = ? AND done_at IS NULL",
			queueId, userId, noteType).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}

	due := time.Now().UTC().Add(24 * time.Hour)
	task := ActivityTask{
		InstanceId: instanceId,
		QueueId:    queueId,
		UserId:     userId,
		NoteType:   noteType,
		Note:       note,
		DueAt:      &due,
	}
	if err := db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func ListOpenActivityTasks(ctx context.Context, userId int) ([]*ActivityTask, error) {
	db := config.GetDB()
	var tasks []*ActivityTask
	err := db.WithContext(ctx).
		Where("user_id = ? AND done_at IS NULL", userId).
		Order("due_at").
		Find(&tasks).Error
	return tasks, err
}
