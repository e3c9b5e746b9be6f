package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
	"github.com/calycompta/compta-core/internal/logger"
)

// migration is one versioned DDL file from migrations/bigquery.
type migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// appliedMigration is one row of the schema_migrations ledger.
type appliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// filenamePattern matches versioned migration files, e.g.
// 0001_create_transactions.sql.
var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	log := logger.New()

	projectID := flag.String("project", infra.ProjectID(), "GCP project ID")
	datasetID := flag.String("dataset", "calycompta", "BigQuery dataset ID")
	appliedBy := flag.String("applied-by", "migrate-cli", "Recorded in the schema_migrations ledger")
	migrationsDir := flag.String("migrations", "migrations/bigquery", "Path to the migration files")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().
		Str("project", *projectID).
		Str("dataset", *datasetID).
		Msg("Running schema migrations")

	if err := ensureLedger(ctx, client, *projectID, *datasetID); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	pending, err := loadMigrations(*migrationsDir, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migration files")
	}

	applied, err := appliedMigrations(ctx, client, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read schema_migrations")
	}

	ledger := make(map[int]appliedMigration, len(applied))
	for _, am := range applied {
		ledger[am.Version] = am
	}

	ran := 0
	for _, m := range pending {
		if prior, ok := ledger[m.Version]; ok {
			if prior.Checksum != "" && prior.Checksum != m.Checksum {
				// The file changed after it was applied. The ledger wins;
				// a new version number is the way to alter the schema.
				log.Warn().
					Str("migration", m.Filename).
					Msg("Checksum differs from the applied version")
			}
			log.Info().Str("migration", m.Filename).Msg("Already applied, skipping")
			continue
		}

		log.Info().Str("migration", m.Filename).Msg("Applying")
		if err := runStatement(ctx, client, m.SQL, nil); err != nil {
			log.Fatal().Err(err).Str("migration", m.Filename).Msg("Migration failed")
		}
		if err := recordMigration(ctx, client, *projectID, *datasetID, *appliedBy, m); err != nil {
			log.Fatal().Err(err).Str("migration", m.Filename).Msg("Failed to record migration")
		}
		ran++
	}

	if ran == 0 {
		log.Info().Msg("Schema is up to date")
		return
	}
	log.Info().Int("applied", ran).Msg("Migrations applied")
}

// ensureLedger creates the schema_migrations table on first run.
func ensureLedger(ctx context.Context, client *bigquery.Client, projectID, datasetID string) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)
	`, projectID, datasetID)

	if err := runStatement(ctx, client, sql, nil); err != nil {
		return fmt.Errorf("ensureLedger: %w", err)
	}
	return nil
}

// loadMigrations reads the versioned .sql files, substitutes the
// project/dataset placeholders and computes a checksum over the raw
// file so the ledger tracks the migration itself, not the target it
// was applied to.
func loadMigrations(dir, projectID, datasetID string) ([]migration, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Allow running from cmd/migrate during development.
		alt := filepath.Join("..", "..", dir)
		if _, err := os.Stat(alt); os.IsNotExist(err) {
			return nil, fmt.Errorf("loadMigrations: directory not found: %s", dir)
		}
		dir = alt
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loadMigrations: reading %s: %w", dir, err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := filenamePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("loadMigrations: bad version in %s: %w", entry.Name(), err)
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loadMigrations: reading %s: %w", entry.Name(), err)
		}

		sql := string(content)
		sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// appliedMigrations reads the ledger. A missing table means nothing has
// been applied yet.
func appliedMigrations(ctx context.Context, client *bigquery.Client, projectID, datasetID string) ([]appliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, projectID, datasetID)

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("appliedMigrations: reading ledger: %w", err)
	}

	var applied []appliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("appliedMigrations: iterating ledger: %w", err)
		}

		applied = append(applied, appliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

func recordMigration(ctx context.Context, client *bigquery.Client, projectID, datasetID, appliedBy string, m migration) error {
	sql := fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, projectID, datasetID)

	params := []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}

	if err := runStatement(ctx, client, sql, params); err != nil {
		return fmt.Errorf("recordMigration: %w", err)
	}
	return nil
}

// runStatement runs one query as a job and waits for it.
func runStatement(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) error {
	query := client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
