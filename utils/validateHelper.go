package utils

import (
	"context"
	"errors"
	"reflect"

	"github.com/oakerp/bolsync/config"
)

// check if id exists, scoped to instance_id when given, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, instanceId int, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, instanceId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](ctx context.Context, instanceId int, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, instanceId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, instanceId, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// count records, using WHERE instance_id = ? AND $condition
// instance_id can be zero for cross-instance lookups
func ResourceCountWhere[T any](ctx context.Context, instanceId int, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if instanceId != 0 {
		dbCtx.Where("instance_id = ?", instanceId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
