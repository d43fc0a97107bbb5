package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/oakerp/bolsync/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

/* generic functions */

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

/* Redis */

// check if model has expiration date
func typeHasExpiration(typeName string) bool {
	expirableTypes := map[string]bool{
		"OfferMapping": true,
	}
	return expirableTypes[typeName]
}

// store object list keyed by instance
func StoreRedisList[T any](obj any, instanceId int) error {
	var key string
	typeName := GetTypeName[T]()
	if instanceId == 0 {
		key = typeName + "List"
	} else {
		key = typeName + "List:" + fmt.Sprint(instanceId)
	}

	var duration time.Duration
	if typeHasExpiration(typeName) {
		duration = GetCacheLifespan()
	}
	return config.SetRedisObject(key, &obj, duration)
}

// retrieve a list.
// instanceId can be zero
func RetrieveRedisList[T any](instanceId int) ([]*T, error) {
	var key string
	if instanceId == 0 {
		key = GetTypeName[T]() + "List"
	} else {
		key = GetTypeName[T]() + "List:" + fmt.Sprint(instanceId)
	}

	var result []*T
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

// clear list, TypeList:$instance_id
func RemoveRedisList[T any](instanceId int) error {
	var key string = GetTypeName[T]() + "List:" + fmt.Sprint(instanceId)
	return config.RemoveRedisKey(key)
}
