package models

import (
	"log"

	"github.com/oakerp/bolsync/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Instance{}, &InstanceUser{},
		&OrderQueue{}, &OrderQueueLine{},
		&SalesOrder{}, &SalesOrderLine{},
		&Partner{}, &Picking{},
		&Product{}, &PricelistItem{},
		&OfferMapping{},
		&LogBook{}, &LogLine{},
		&ActivityTask{},
	)
	if err != nil {
		log.Fatalf("failed to migrate tables: %v", err)
	}
}
