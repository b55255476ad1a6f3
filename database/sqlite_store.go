/***************************************************************
 *
 * Copyright (C) 2024, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package database

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite" // pure-Go gorm dialector, no CGO required
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
	gormlog "github.com/thomas-tacquet/gormv2-logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dynamo-ddm/fileopsd"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteStore implements Store against a local SQLite database file via
// gorm, mirroring the teacher's own InitSQLiteDB/InitServerDatabase pairing
// in server_utils/db.go and database/server.go.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens (creating if necessary) the SQLite database at path
// and applies any pending migrations, following the teacher's
// InitSQLiteDB-then-migrate sequence.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for sqlite database at %s", path)
	}

	dbName := path + "?_busy_timeout=5000&_journal_mode=WAL"

	gormLogger := gormlog.NewGormlog(
		gormlog.WithLogrusEntry(log.WithField("component", "gorm")),
		gormlog.WithGormOptions(gormlog.GormOptions{
			LogLatency: true,
			LogLevel:   ormLogLevel(),
		}),
	)

	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database %s", path)
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, errors.Wrap(err, "failed to enable foreign key constraints")
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// ormLogLevel maps the process's global logrus level to the gorm logger
// verbosity, per the teacher's own InitSQLiteDB mapping.
func ormLogLevel() logger.LogLevel {
	switch log.GetLevel() {
	case log.DebugLevel, log.TraceLevel, log.InfoLevel:
		return logger.Info
	case log.WarnLevel:
		return logger.Warn
	case log.ErrorLevel:
		return logger.Error
	default:
		return logger.Info
	}
}

func migrate(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to obtain database/sql handle from gorm")
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "failed to set goose dialect")
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return errors.Wrap(err, "failed to apply embedded migrations")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to obtain database/sql handle from gorm")
	}
	return sqlDB.Close()
}

type kindTables struct {
	task         string // e.g. transfer_tasks
	batch        string // e.g. transfer_batches
	batchTask    string // e.g. transfer_batch_tasks
	paramColumns []string
	orderColumns []string // the batch columns to order by (the link's identity)
}

func tablesFor(kind fileopsd.Kind) kindTables {
	if kind == fileopsd.KindDeletion {
		return kindTables{
			task:         "deletion_tasks",
			batch:        "deletion_batches",
			batchTask:    "deletion_batch_tasks",
			paramColumns: []string{"file"},
			orderColumns: []string{"site"},
		}
	}
	return kindTables{
		task:         "transfer_tasks",
		batch:        "transfer_batches",
		batchTask:    "transfer_batch_tasks",
		paramColumns: []string{"source", "destination"},
		orderColumns: []string{"source_site", "destination_site"},
	}
}

// taskRow is the generic shape FetchNew scans into via gorm's raw-query
// Scan, the same tx.Raw(...).Scan(&slice) idiom the teacher uses in
// database/server.go's cleanupStaleServerEntries.
type taskRow struct {
	ID        int64
	Col1      string
	Col2      string
	OrderCol1 string
	OrderCol2 string
}

// FetchNew implements Store.FetchNew.
func (s *SQLiteStore) FetchNew(ctx context.Context, kind fileopsd.Kind) ([]fileopsd.Task, error) {
	t := tablesFor(kind)

	cols := []string{"t.id AS id"}
	paramAliases := []string{"col1", "col2"}
	for i, c := range t.paramColumns {
		cols = append(cols, fmt.Sprintf("t.%s AS %s", c, paramAliases[i]))
	}
	orderAliases := []string{"order_col1", "order_col2"}
	for i, c := range t.orderColumns {
		cols = append(cols, fmt.Sprintf("b.%s AS %s", c, orderAliases[i]))
	}

	orderBy := make([]string, 0, len(t.orderColumns)+1)
	for _, c := range t.orderColumns {
		orderBy = append(orderBy, "b."+c)
	}
	orderBy = append(orderBy, "t.id")

	query := fmt.Sprintf(
		`SELECT %s FROM %s AS t
		 JOIN %s AS jt ON jt.id = t.id
		 JOIN %s AS b ON b.batch_id = jt.batch_id
		 WHERE t.status = 'new'
		 ORDER BY %s`,
		strings.Join(cols, ", "), t.task, t.batchTask, t.batch, strings.Join(orderBy, ", "),
	)

	var rows []taskRow
	if err := s.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to fetch new %s tasks", kind)
	}

	tasks := make([]fileopsd.Task, 0, len(rows))
	for _, row := range rows {
		task := fileopsd.Task{ID: row.ID, Kind: kind}
		if kind == fileopsd.KindDeletion {
			task.Deletion = &fileopsd.DeletionParams{TargetPFN: row.Col1}
			task.Link = fileopsd.LinkKey{Kind: kind, Site: row.OrderCol1}
		} else {
			task.Transfer = &fileopsd.TransferParams{SourcePFN: row.Col1, DestinationPFN: row.Col2}
			task.Link = fileopsd.LinkKey{Kind: kind, SourceSite: row.OrderCol1, DestSite: row.OrderCol2}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// SetStatus implements Store.SetStatus.
func (s *SQLiteStore) SetStatus(ctx context.Context, kind fileopsd.Kind, id int64, outcome fileopsd.Outcome) error {
	t := tablesFor(kind)

	query := fmt.Sprintf(
		`UPDATE %s SET status = ?, exit_code = ?, start_time = ?, finish_time = ? WHERE id = ?`,
		t.task,
	)
	tx := s.db.WithContext(ctx).Exec(query,
		string(outcome.Status), outcome.ExitCode,
		unixOrZero(outcome.StartTime), unixOrZero(outcome.FinishTime), id,
	)
	if tx.Error != nil {
		return errors.Wrapf(tx.Error, "failed to set status of %s task %d to %s", kind, id, outcome.Status)
	}
	if tx.RowsAffected == 0 {
		return errors.Errorf("%s task %d does not exist", kind, id)
	}
	return nil
}

// ListQueued implements Store.ListQueued.
func (s *SQLiteStore) ListQueued(ctx context.Context, kind fileopsd.Kind) (map[int64]struct{}, error) {
	t := tablesFor(kind)

	var ids []int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE status = 'queued'`, t.task)
	if err := s.db.WithContext(ctx).Raw(query).Scan(&ids).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list queued %s tasks", kind)
	}

	result := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		result[id] = struct{}{}
	}
	return result, nil
}

// RecoverOrphans implements Store.RecoverOrphans.
func (s *SQLiteStore) RecoverOrphans(ctx context.Context) (int64, error) {
	var total int64
	for _, kind := range []fileopsd.Kind{fileopsd.KindTransfer, fileopsd.KindDeletion} {
		t := tablesFor(kind)
		tx := s.db.WithContext(ctx).Exec(fmt.Sprintf(
			`UPDATE %s SET status = 'new', exit_code = NULL, start_time = NULL, finish_time = NULL
			 WHERE status IN ('queued', 'active')`, t.task))
		if tx.Error != nil {
			return total, errors.Wrapf(tx.Error, "failed to recover orphaned %s tasks", kind)
		}
		total += tx.RowsAffected
	}
	return total, nil
}

var _ Store = (*SQLiteStore)(nil)
