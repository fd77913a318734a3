package database

import (
	"fmt"
	"log"
	"time"

	"brickvest/internal/config"
	"brickvest/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL opens the MySQL connection and migrates the schema.
// TranslateError is on so duplicate-key violations surface as
// gorm.ErrDuplicatedKey; the ledger dedupe contract depends on it.
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("connect mysql: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("get sql.DB: %v", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(
		&model.Wallet{},
		&model.WalletTransaction{},
		&model.ReferralCode{},
		&model.Referral{},
		&model.AutoReinvestPlan{},
		&model.RentalPayout{},
		&model.ReinvestAllocation{},
		&model.OutboxMessage{},
	)
	if err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	DB = db
	log.Println("mysql connected")
	return db
}
