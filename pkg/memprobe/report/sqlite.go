/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package report

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
)

const resultsTable = "results"

var sqliteSchema = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT NOT NULL,
	idx           INTEGER NOT NULL,
	name          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	mem_node      INTEGER,
	cpu_node      INTEGER,
	load_cpu_node INTEGER,
	pattern       TEXT,
	rw            TEXT,
	chunk_bytes   INTEGER,
	stride        INTEGER,
	threads       INTEGER,
	region_bytes  INTEGER,
	huge_pages    TEXT,
	delay         INTEGER,
	stream_op     TEXT,
	probe_chunk_bytes INTEGER,
	seed          INTEGER,
	duration_ns   INTEGER,
	passes        INTEGER,
	trials        INTEGER,
	units         TEXT,
	best          REAL,
	min           REAL,
	max           REAL,
	mean          REAL,
	median        REAL,
	p25           REAL,
	p75           REAL,
	p95           REAL,
	p99           REAL,
	stddev        REAL,
	cv            REAL,
	load_units    TEXT,
	load_best     REAL,
	load_mean     REAL,
	observed_mbps REAL,
	warning       INTEGER,
	unreliable    INTEGER,
	degraded      INTEGER,
	PRIMARY KEY (run_id, idx)
)`, resultsTable)

type sqliteWriter struct {
	db     *sql.DB
	insert *sql.Stmt
	runID  string
}

// NewSQLiteWriter appends entries to the results table of the database at
// path. Every writer tags its rows with a fresh run id so runs can share a file.
func NewSQLiteWriter(path string) (Writer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to create %s table", resultsTable)
	}

	columns := append([]string{"run_id"}, Header...)
	columns[1+indexOf(Header, "index")] = "idx"
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insert, err := db.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		resultsTable, strings.Join(columns, ", "), placeholders))
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to prepare insert")
	}

	return &sqliteWriter{db: db, insert: insert, runID: newRunID()}, nil
}

func (s *sqliteWriter) Write(entry *aggregator.ReportEntry) error {
	args := append([]interface{}{s.runID}, NewRecord(entry).Args()...)
	if _, err := s.insert.Exec(args...); err != nil {
		return errors.Wrapf(err, "failed to insert %s", entry.Config.Name)
	}
	return nil
}

func (s *sqliteWriter) Close() error {
	_ = s.insert.Close()
	return s.db.Close()
}

func newRunID() string {
	return time.Now().UTC().Format("20060102T150405.000000000Z")
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
