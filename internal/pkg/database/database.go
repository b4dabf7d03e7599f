package database

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/account"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

//ConnectorFunc is used to inject the database backend
type ConnectorFunc func() (*gorm.DB, error)

//NewSQLiteConnector opens (and creates if needed) an SQLite database file
func NewSQLiteConnector(path string) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			// sqlite allows a single writer
			sqlDB, dberr := db.DB()
			if dberr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
		return db, err
	}
}

//NewPostgreSQLConnector connects to PostgreSQL, retrying while the server is starting up
func NewPostgreSQLConnector(dsn string) ConnectorFunc {
	return func() (*gorm.DB, error) {
		var lastErr error

		for attempt := 1; attempt <= 10; attempt++ {
			db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Silent),
			})
			if err == nil {
				return db, nil
			}

			lastErr = err
			log.Warnf("Failed to connect to database (attempt %d/10): %s", attempt, err.Error())
			time.Sleep(3 * time.Second)
		}

		return nil, fmt.Errorf("unable to connect to database: %w", lastErr)
	}
}

type shiftDB struct {
	impl *gorm.DB
}

//NewDatabaseConnection connects, migrates the schema and returns a shift log backed by the database
func NewDatabaseConnection(connect ConnectorFunc) (shiftlog.Store, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	if err := impl.AutoMigrate(&persistence.Shift{}); err != nil {
		return nil, fmt.Errorf("failed to migrate shift table: %w", err)
	}

	log.Infof("Shift database migrated and ready.")

	return &shiftDB{impl: impl}, nil
}

//Append stores a validated record as a new row for the account
func (db *shiftDB) Append(acct string, record shiftlog.Record) error {
	if err := account.Validate(acct); err != nil {
		return err
	}
	if err := shiftlog.Validate(record); err != nil {
		return err
	}

	row := &persistence.Shift{
		Account:   acct,
		Date:      record.Date,
		StartHour: record.StartHour,
		EndHour:   record.EndHour,
		Earnings:  record.Earnings,
		Weather:   record.Weather,
	}
	if v, ok := record.Traffic.Value(); ok {
		row.Traffic = &v
	}

	if result := db.impl.Create(row); result.Error != nil {
		return fmt.Errorf("failed to store shift for account %s: %w", acct, result.Error)
	}

	return nil
}

//Load returns the account's rows in insertion order
func (db *shiftDB) Load(acct string) ([]shiftlog.Record, error) {
	if err := account.Validate(acct); err != nil {
		return nil, err
	}

	rows := []persistence.Shift{}
	if result := db.impl.Where("account = ?", acct).Order("id asc").Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("failed to load shifts for account %s: %w", acct, result.Error)
	}

	records := make([]shiftlog.Record, 0, len(rows))
	for _, row := range rows {
		traffic := shiftlog.UnknownTraffic
		if row.Traffic != nil {
			traffic = shiftlog.KnownTraffic(*row.Traffic)
		}

		records = append(records, shiftlog.Record{
			Date:      row.Date,
			StartHour: row.StartHour,
			EndHour:   row.EndHour,
			Earnings:  row.Earnings,
			Weather:   row.Weather,
			Traffic:   traffic,
		})
	}

	return records, nil
}
