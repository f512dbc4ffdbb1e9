package app

import (
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/packflow/config"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/fulfillment"
	"github.com/talkincode/packflow/pkg/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig   *config.AppConfig
	gormDB      *gorm.DB
	sched       *cron.Cron
	bus         EventBus.Bus
	pool        *ants.Pool
	fulfillment *fulfillment.Service
	notifier    *Notifier
	jobs        []job
}

// Ensure Application implements all interfaces
var (
	_ DBProvider          = (*Application)(nil)
	_ ConfigProvider      = (*Application)(nil)
	_ SchedulerProvider   = (*Application)(nil)
	_ FulfillmentProvider = (*Application)(nil)
	_ EventProvider       = (*Application)(nil)
	_ JobProvider         = (*Application)(nil)
	_ AppContext          = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Fulfillment() *fulfillment.Service {
	return a.fulfillment
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	initLogger(cfg)

	// Initialize metrics with workdir convention
	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	// wait for database initialization to complete
	go func() {
		time.Sleep(3 * time.Second)
		a.checkSuper()
		a.checkProducts()
	}()

	a.InitServices()
	a.initJob()
}

// initLogger installs the global zap logger. With file output enabled, JSON
// records go to a rotated file and a console copy goes to stdout.
func initLogger(cfg *config.AppConfig) {
	lc := cfg.Logger
	level := zap.NewAtomicLevelAt(zap.DebugLevel)
	if lc.Mode == "production" {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stdout),
		level,
	)
	if !lc.FileEnable || lc.Filename == "" {
		zap.ReplaceGlobals(zap.New(console, zap.AddCaller()))
		return
	}

	rotated := &lumberjack.Logger{
		Filename:   lc.Filename,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		LocalTime:  true,
	}
	file := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotated),
		level,
	)
	zap.ReplaceGlobals(zap.New(zapcore.NewTee(file, console), zap.AddCaller()))
}

// InitServices wires the event bus, its worker pool, notifications and the
// fulfillment service on top of the current database handle.
func (a *Application) InitServices() {
	workers := a.appConfig.Workflow.EventWorkers
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		zap.L().Error("event handler panic", zap.String("namespace", "events"), zap.Any("panic", p))
	}))
	if err != nil {
		zap.S().Errorf("init event pool error %s", err.Error())
	}
	a.pool = pool
	a.bus = EventBus.New()
	a.notifier = NewNotifier(a.appConfig.Mail)
	a.fulfillment = fulfillment.NewService(fulfillment.NewGormRepository(a.gormDB), a.bus)
	a.subscribeEvents()
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.pool != nil {
		a.pool.Release()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
