package app

import (
	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/packflow/config"
	"github.com/talkincode/packflow/internal/fulfillment"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// FulfillmentProvider provides the workflow execution service
type FulfillmentProvider interface {
	Fulfillment() *fulfillment.Service
}

// EventProvider provides the workflow event bus
type EventProvider interface {
	Bus() EventBus.Bus
}

// JobProvider lists and triggers background jobs
type JobProvider interface {
	Jobs() []JobInfo
	RunJobNow(name string) error
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SchedulerProvider
	FulfillmentProvider
	EventProvider
	JobProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
}
