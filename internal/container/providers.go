package container

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/crane-billing/internal/application/dispatcher"
	"github.com/garyjia/crane-billing/internal/application/port"
	"github.com/garyjia/crane-billing/internal/application/service"
	"github.com/garyjia/crane-billing/internal/domain/entity"
	"github.com/garyjia/crane-billing/internal/domain/event"
	"github.com/garyjia/crane-billing/internal/infrastructure/export"
	"github.com/garyjia/crane-billing/internal/infrastructure/persistence/repository"
	"github.com/garyjia/crane-billing/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/crane-billing/internal/infrastructure/storage"
	httpapi "github.com/garyjia/crane-billing/internal/interfaces/http"
	"github.com/garyjia/crane-billing/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage port.FileStorage
	Folders     *storage.MeasurementFolders
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Measurements: repository.NewMeasurementRepository(db.DB, logger),
		LineItems:    repository.NewLineItemRepositories(db.DB, logger),
		Budgets:      repository.NewBudgetRepository(db.DB, logger),
		Sites:        repository.NewSiteRepository(db.DB, logger),
		Documents:    repository.NewDocumentRepository(db.DB, logger),
	}, nil
}

// ProvideStorage creates document file storage and the per-measurement folder manager.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := os.MkdirAll(cfg.DocumentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}

	return &StorageBundle{
		FileStorage: storage.NewLocalFileStorage(cfg.DocumentDir, cfg.MaxUploadBytes, logger),
		Folders:     storage.NewMeasurementFolders(cfg.DocumentDir, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos                *RepositoryBundle
	TxManager            port.TransactionManager
	Publisher            service.EventPublisher
	FileStorage          port.FileStorage
	AuditHistorySize     int
	AuditMaxMeasurements int
	Logger               *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if deps.FileStorage == nil {
		return nil, fmt.Errorf("file storage is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos.forServices()

	return &ServiceBundle{
		Measurements: service.NewMeasurementService(repos, deps.TxManager, deps.Publisher, serviceLogger),
		Generator:    service.NewGeneratorService(repos, deps.TxManager, deps.Publisher, serviceLogger),
		Documents:    service.NewDocumentService(repos, deps.FileStorage, deps.TxManager, deps.Publisher, serviceLogger),
		Reports: service.NewReportService(
			deps.Repos.Budgets,
			deps.Repos.Measurements,
			export.NewXLSXReportRenderer(deps.Logger),
			serviceLogger,
		),
		Audit: service.NewAuditService(serviceLogger, deps.AuditHistorySize, deps.AuditMaxMeasurements),
	}, nil
}

// SubscriberDeps holds the event consumers registered on the dispatcher.
type SubscriberDeps struct {
	Dispatcher dispatcher.Dispatcher
	Audit      service.AuditService
	Folders    *storage.MeasurementFolders
}

// ProvideSubscribers registers the post-commit event handlers.
func ProvideSubscribers(deps *SubscriberDeps) error {
	if deps == nil || deps.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}

	if deps.Audit != nil {
		deps.Dispatcher.SubscribeAll("audit_trail", deps.Audit.Handle)
	}
	if deps.Folders != nil {
		deps.Dispatcher.Subscribe(event.TypeMeasurementDeleted, "document_cleanup", deps.Folders.OnMeasurementDeleted)
	}
	return nil
}

// ProvideHTTPServer creates the HTTP API over the application services.
func ProvideHTTPServer(cfg *Config, services *ServiceBundle, health httpapi.HealthFunc, logger *zap.Logger) (*httpapi.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serverCfg := httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}

	return httpapi.NewServer(serverCfg, httpapi.Services{
		Measurements: services.Measurements,
		Generator:    services.Generator,
		Documents:    services.Documents,
		Reports:      services.Reports,
		Audit:        services.Audit,
		Health:       health,
	}, &zapLoggerAdapter{logger: logger}), nil
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Measurements port.MeasurementRepository
	LineItems    map[entity.Category]port.LineItemRepository
	Budgets      port.BudgetRepository
	Sites        port.SiteRepository
	Documents    port.DocumentRepository
}

func (r *RepositoryBundle) forServices() service.Repositories {
	return service.Repositories{
		Measurements: r.Measurements,
		LineItems:    r.LineItems,
		Budgets:      r.Budgets,
		Sites:        r.Sites,
		Documents:    r.Documents,
	}
}
