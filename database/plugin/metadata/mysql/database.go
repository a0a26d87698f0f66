// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/herdledger/database/plugin/metadata/gormstore"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// mysqlErrUnknownDatabase is returned by the server when the target schema
// does not exist
const mysqlErrUnknownDatabase = 1049

// MetadataStoreMysql stores ledger data in MySQL. Ownership reads in
// settlement take SELECT ... FOR UPDATE row locks.
type MetadataStoreMysql struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger

	host         string
	port         uint
	user         string
	password     string
	database     string
	tlsMode      string
	timeZone     string
	dsn          string // Data source name (MySQL connection string)
	maxOpenConns int
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	if db.host == "" {
		db.host = "localhost"
	}
	if db.port == 0 {
		db.port = 3306
	}
	if db.user == "" {
		db.user = "root"
	}
	if db.database == "" {
		db.database = "herdledger"
	}
	if db.timeZone == "" {
		db.timeZone = "UTC"
	}
	if db.maxOpenConns <= 0 {
		db.maxOpenConns = 100
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// SetLogger replaces the logger before Start() is called
func (d *MetadataStoreMysql) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

func (d *MetadataStoreMysql) buildDSN() (string, string) {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		if parsedDB, ok := parseMysqlDatabaseFromDSN(dsn); ok {
			return dsn, parsedDB
		}
		return dsn, d.database
	}
	cfg := mysql.Config{
		User:   d.user,
		Passwd: d.password,
		Net:    "tcp",
		Addr: fmt.Sprintf(
			"%s:%s",
			d.host,
			strconv.FormatUint(uint64(d.port), 10),
		),
		DBName:               d.database,
		ParseTime:            true,
		AllowNativePasswords: true,
		Params:               map[string]string{},
	}
	if d.timeZone != "" {
		loc, err := time.LoadLocation(d.timeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Loc = loc
	}
	if d.tlsMode != "" {
		cfg.Params["tls"] = d.tlsMode
	}
	return cfg.FormatDSN(), d.database
}

func (d *MetadataStoreMysql) open(dsn string) (*gorm.DB, error) {
	return gorm.Open(
		gormmysql.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
			TranslateError:         true,
		},
	)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	dsn, dbName := d.buildDSN()
	metadataDb, err := d.open(dsn)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) ||
			mysqlErr.Number != mysqlErrUnknownDatabase {
			return err
		}
		if createErr := d.ensureDatabaseExists(dsn, dbName); createErr != nil {
			return errors.Join(err, createErr)
		}
		if metadataDb, err = d.open(dsn); err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql metadata store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", dbName,
	)
	d.db = metadataDb
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(d.maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	d.Store = gormstore.New(d.db, d.logger, true)
	return d.Migrate()
}

func (d *MetadataStoreMysql) ensureDatabaseExists(
	dsn string,
	dbName string,
) error {
	if dbName == "" {
		return errors.New("no database name in DSN")
	}
	adminDsn, ok := stripDatabaseFromDSN(dsn)
	if !ok {
		return errors.New("cannot derive server DSN")
	}
	adminDb, err := d.open(adminDsn)
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	result := adminDb.Exec(
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName),
	)
	return result.Error
}

func parseMysqlDatabaseFromDSN(dsn string) (string, bool) {
	base, _, _ := strings.Cut(dsn, "?")
	slash := strings.LastIndex(base, "/")
	if slash < 0 || slash == len(base)-1 {
		return "", false
	}
	return base[slash+1:], true
}

func stripDatabaseFromDSN(dsn string) (string, bool) {
	base, params, hasParams := strings.Cut(dsn, "?")
	slash := strings.LastIndex(base, "/")
	if slash < 0 {
		return "", false
	}
	base = base[:slash+1]
	if !hasParams || params == "" {
		return base, true
	}
	return base + "?" + params, true
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the database connection
func (d *MetadataStoreMysql) Close() error {
	if d.db == nil {
		return nil
	}
	db, err := d.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
