package utils

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/oakerp/bolsync/config"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// convert gin binding errors into field:message map for API responses
func ProcessValidationErrors(err error) map[string]string {
	errs := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldErr := range validationErrors {
			errs[fieldErr.Field()] = fieldErr.Tag()
		}
	} else {
		errs["error"] = err.Error()
	}
	return errs
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool)
	result := []T{}

	for _, val := range slice {
		if _, ok := seen[val]; !ok {
			seen[val] = true
			result = append(result, val)
		}
	}
	return result
}

// InstanceLock obtains a short redis lock scoped to one marketplace instance.
// The returned release func is a no-op when the lock client is unavailable.
func InstanceLock(ctx context.Context, instanceId int, lockType string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", instanceId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("%s:%d", lockType, instanceId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for instance", instanceId, err)
		return nil, errors.New("could not obtain lock for instance")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for instance", instanceId, err)
		return nil, err
	}
	return func() {
		_ = lock.Release(ctx)
	}, nil
}
