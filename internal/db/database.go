package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolbroker/internal/config"
	"toolbroker/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Service is the row store backing codes, credentials, subscribers and session locks.
type Service interface {
	CreateAuthCode(ctx context.Context, code *model.AuthCode) error
	ConsumeAuthCode(ctx context.Context, code string, service model.Service, now time.Time) (bool, error)
	GetAuthCode(ctx context.Context, code string) (*model.AuthCode, error)
	PurgeAuthCodes(ctx context.Context, expiredBefore time.Time) (int64, error)

	CreateCredential(ctx context.Context, cred *model.Credential) error
	ListCredentials(ctx context.Context) ([]model.Credential, error)
	GetCredential(ctx context.Context, id uint) (*model.Credential, error)
	UpdateCredential(ctx context.Context, cred *model.Credential) error
	DeleteCredential(ctx context.Context, id uint) error
	FindCredential(ctx context.Context, service model.Service, planTier string) (*model.Credential, error)

	CreateSubscriber(ctx context.Context, sub *model.Subscriber) error
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)
	GetSubscriber(ctx context.Context, id uint) (*model.Subscriber, error)
	UpdateSubscriber(ctx context.Context, sub *model.Subscriber) error
	DeleteSubscriber(ctx context.Context, id uint) error
	FindSubscriberByKey(ctx context.Context, key string) (*model.Subscriber, error)

	CreateSessionLock(ctx context.Context, lock *model.SessionLock) error
	LatestSessionLock(ctx context.Context, resourceID string) (*model.SessionLock, error)
	PurgeSessionLocks(ctx context.Context, endedBefore time.Time) (int64, error)

	GetDB() *gorm.DB
}

type gormService struct {
	db *gorm.DB
}

// NewService opens the configured database and migrates the schema.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// One connection keeps ":memory:" databases coherent and serializes writers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(&model.AuthCode{}, &model.Credential{}, &model.Subscriber{}, &model.SessionLock{})
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	if ddl := codeColumnDDL(cfg.Type); ddl != "" {
		if err := db.Exec(ddl).Error; err != nil {
			return nil, fmt.Errorf("failed to make auth code column case-sensitive: %w", err)
		}
	}

	return &gormService{db: db}, nil
}

// codeColumnDDL returns the statement that makes auth code comparisons byte-exact on dialects
// whose default collation folds case. sqlite and postgres already compare exactly.
func codeColumnDDL(dialect string) string {
	if dialect == "mysql" {
		return "ALTER TABLE auth_codes MODIFY code VARCHAR(64) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL"
	}
	return ""
}

func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
