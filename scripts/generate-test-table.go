//go:build ignore

// Package main generates a synthetic SQLite table for benchmarking builds.
// Usage: go run scripts/generate-test-table.go -rows 100000 -output testdata/bench.db
//
// Then: rowbulk build --driver sqlite --dsn testdata/bench.db --table orders \
//
//	--backend bleve --index orders --no-tui
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	numRows   = flag.Int("rows", 100000, "Number of rows to generate")
	output    = flag.String("output", "testdata/bench.db", "Output database file")
	table     = flag.String("table", "orders", "Table name")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	batchSize = flag.Int("batch", 1000, "Rows per transaction")
	dropCol   = flag.Bool("drop-column", true, "Drop a column after creating the table")
)

var statuses = []string{"pending", "paid", "shipped", "delivered", "refunded"}

var words = []string{
	"widget", "gadget", "sprocket", "bolt", "washer", "bracket", "hinge",
	"spring", "gear", "pulley", "lever", "valve", "flange", "gasket",
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		return err
	}
	_ = os.Remove(*output)

	db, err := sql.Open("sqlite", *output)
	if err != nil {
		return err
	}
	defer db.Close()

	// Declared types are the ones the SQLite source maps to document types.
	create := fmt.Sprintf(`CREATE TABLE %q (
		id INT8,
		ref TEXT,
		customer TEXT,
		status VARCHAR(16),
		quantity INT4,
		weight REAL,
		total DOUBLE PRECISION,
		paid BOOLEAN,
		placed_at TEXT,
		ship_date TEXT,
		notes TEXT,
		attrs JSONB,
		legacy TEXT
	)`, *table)
	if _, err := db.Exec(create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insert := fmt.Sprintf(`INSERT INTO %q VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, *table)

	began := time.Now()
	for offset := 0; offset < *numRows; offset += *batchSize {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(insert)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		for i := offset; i < min(offset+*batchSize, *numRows); i++ {
			placed := start.Add(time.Duration(rng.Int63n(int64(365 * 24 * time.Hour))))
			var notes any
			if rng.Intn(4) == 0 {
				notes = nil
			} else {
				notes = fmt.Sprintf("%s %s %s", pick(rng), pick(rng), pick(rng))
			}
			attrs := fmt.Sprintf(`{"color": %q, "fragile": %t, "tags": [%q, %q]}`,
				pick(rng), rng.Intn(2) == 0, pick(rng), pick(rng))

			_, err := stmt.Exec(
				i+1,
				uuid.NewString(),
				fmt.Sprintf("customer-%05d", rng.Intn(10000)),
				statuses[rng.Intn(len(statuses))],
				rng.Intn(50)+1,
				rng.Float64()*20,
				float64(rng.Intn(100000))/100,
				rng.Intn(2) == 0,
				placed.Format(time.RFC3339Nano),
				placed.AddDate(0, 0, rng.Intn(10)).Format("2006-01-02"),
				notes,
				attrs,
				"unused",
			)
			if err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("insert row %d: %w", i+1, err)
			}
		}
		_ = stmt.Close()
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	if *dropCol {
		if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %q DROP COLUMN legacy`, *table)); err != nil {
			return fmt.Errorf("drop column: %w", err)
		}
	}

	fmt.Printf("Generated %d rows in %s (%s) at %s\n", *numRows, *table, time.Since(began).Round(time.Millisecond), *output)
	return nil
}

func pick(rng *rand.Rand) string {
	return words[rng.Intn(len(words))]
}
