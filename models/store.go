// Package models holds the dispensary domain types and their stored
// operations against the remote mysql store. Operations hang off an
// explicitly constructed Store instance, never package globals.
package models

import (
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ydt710/my-pos/cache"
)

type Store struct {
	DB     *gorm.DB
	Locker *redislock.Client
	Cache  *cache.Cache
	Log    *logrus.Logger
}

func NewStore(db *gorm.DB, locker *redislock.Client, c *cache.Cache, log *logrus.Logger) *Store {
	return &Store{DB: db, Locker: locker, Cache: c, Log: log}
}

// MigrateTable creates/updates every table this module owns.
func (s *Store) MigrateTable() error {
	return s.DB.AutoMigrate(
		&Product{},
		&BulkPrice{},
		&Customer{},
		&CustomPrice{},
		&StockLocation{},
		&StockLevel{},
		&StockMovement{},
		&StockDiscrepancy{},
		&StoreSettings{},
		&Order{},
		&OrderItem{},
		&CreditLedgerEntry{},
	)
}
