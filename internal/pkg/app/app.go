package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/advisor"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/config"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/credentials"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/database"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/forest"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/livecontext"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/model"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//App holds everything a command line or HTTP front end needs
type App struct {
	Service     *advisor.Service
	Credentials *credentials.Store
	Tokens      *credentials.Issuer
	Locator     livecontext.Locator

	closers []func() error
}

//Close releases connections opened by Build
func (a *App) Close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			log.Warnf("Failed to close resource: %s", err.Error())
		}
	}
}

//Build wires the configured stores, providers and service. publisher may be nil.
func Build(cfg *config.Config, publisher advisor.Publisher) (*App, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create data directory %s: %w", cfg.Storage.DataDir, err)
	}

	a := &App{}

	resolver := account.NewResolver(cfg.Storage.DataDir)
	locks := account.NewLocks()

	logs, err := newShiftStore(cfg, resolver, locks)
	if err != nil {
		return nil, err
	}

	models := model.NewStore(resolver)

	params := forest.DefaultParams()
	params.Trees = cfg.Model.Trees
	params.Seed = cfg.Model.Seed

	trainer := model.NewTrainer(logs, models, locks, features.NewEncoder(cfg.Model.TrafficThreshold), cfg.Model.MinTrainingRecords, params)

	var provider livecontext.Provider
	if cfg.Providers.OpenWeatherAPIKey != "" {
		provider = livecontext.NewHTTPProvider(cfg.Providers.OpenWeatherAPIKey, cfg.Providers.GoogleMapsAPIKey, cfg.Providers.Timeout)

		if cfg.Providers.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.Providers.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			client := redis.NewClient(opts)
			a.closers = append(a.closers, client.Close)
			provider = livecontext.NewCachedProvider(provider, client, cfg.Providers.CacheTTL)
			log.Infof("Live context cached in redis for %s.", cfg.Providers.CacheTTL)
		}
	} else {
		log.Info("No OPENWEATHER_API_KEY configured, live context will be neutral.")
	}

	a.Service = advisor.New(logs, models, trainer, provider, publisher)
	a.Credentials = credentials.NewStore(filepath.Join(cfg.Storage.DataDir, credentials.FileName))
	a.Tokens = credentials.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	a.Locator = livecontext.NewIPInfo(cfg.Providers.Timeout)

	return a, nil
}

func newShiftStore(cfg *config.Config, resolver *account.Resolver, locks *account.Locks) (shiftlog.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		log.Infof("Storing shifts in SQLite database %s.", cfg.Database.SQLitePath)
		return database.NewDatabaseConnection(database.NewSQLiteConnector(cfg.Database.SQLitePath))
	case config.BackendPostgres:
		log.Infof("Storing shifts in PostgreSQL at %s:%d.", cfg.Database.Host, cfg.Database.Port)
		return database.NewDatabaseConnection(database.NewPostgreSQLConnector(cfg.Database.GetDSN()))
	default:
		log.Infof("Storing shifts as CSV files in %s.", cfg.Storage.DataDir)
		return shiftlog.NewFileStore(resolver, locks), nil
	}
}
