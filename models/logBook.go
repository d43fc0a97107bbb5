package models

import (
	"context"
	"time"

	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/utils"
)

const (
	LogOperationImport = "import"
	LogOperationExport = "export"
)

// LogBook groups the log lines of one operation run. Books that end a run
// with no lines are deleted instead of kept.
type LogBook struct {
	ID         int        `gorm:"primary_key" json:"id"`
	InstanceId int        `gorm:"index;not null" json:"instance_id"`
	Operation  string     `gorm:"size:20;not null" json:"operation"`
	Module     string     `gorm:"size:50;not null" json:"module"`
	Lines      []*LogLine `gorm:"foreignKey:LogBookId" json:"lines,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type LogLine struct {
	ID              int       `gorm:"primary_key" json:"id"`
	LogBookId       int       `gorm:"index;not null" json:"log_book_id"`
	InstanceId      int       `gorm:"index;not null" json:"instance_id"`
	Message         string    `gorm:"type:text" json:"message"`
	Mismatch        *bool     `gorm:"not null;default:false" json:"mismatch"`
	ExternalOrderId string    `gorm:"size:128" json:"external_order_id"`
	QueueLineId     int       `gorm:"index" json:"queue_line_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateLogBook(ctx context.Context, instanceId int, operation string, module string) (*LogBook, error) {
	db := config.GetDB()
	book := LogBook{
		InstanceId: instanceId,
		Operation:  operation,
		Module:     module,
	}
	if err := db.WithContext(ctx).Create(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (b *LogBook) AddLine(ctx context.Context, message string, mismatch bool, externalOrderId string, queueLineId int) error {
	db := config.GetDB()
	line := LogLine{
		LogBookId:       b.ID,
		InstanceId:      b.InstanceId,
		Message:         message,
		Mismatch:        &mismatch,
		ExternalOrderId: externalOrderId,
		QueueLineId:     queueLineId,
	}
	return db.WithContext(ctx).Create(&line).Error
}

// DeleteIfEmpty drops the book when the run produced no log lines.
func (b *LogBook) DeleteIfEmpty(ctx context.Context) error {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&LogLine{}).Where("log_book_id = ?", b.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.WithContext(ctx).Delete(&LogBook{}, b.ID).Error
}

func GetLogBook(ctx context.Context, id int) (*LogBook, error) {
	return utils.FetchSingleModel[LogBook](ctx, id, "Lines")
}
