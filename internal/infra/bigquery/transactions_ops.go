package bigquery

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/calycompta/compta-core/internal/domain"
)

const (
	defaultProjectID  = "calycompta-prod"
	datasetID         = "calycompta"
	transactionsTable = "transactions"
)

// ProjectID returns the GCP project to use, honoring the BQ_PROJECT
// environment variable.
func ProjectID() string {
	if p := os.Getenv("BQ_PROJECT"); p != "" {
		return p
	}
	return defaultProjectID
}

// DateRange is an inclusive execution-date window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ListTransactions loads a tenant's transactions, optionally restricted
// to a date range.
func ListTransactions(ctx context.Context, tenantID string, rng *DateRange) ([]domain.Transaction, error) {
	client, err := bigquery.NewClient(ctx, ProjectID())
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: bigquery client: %w", err)
	}
	defer client.Close()

	return ListTransactionsWithClient(ctx, client, tenantID, rng)
}

// ListTransactionsWithClient loads a tenant's transactions using the
// provided BigQuery client. Rows come back ordered by execution date,
// then sequence number, so repeated calls over unchanged data are
// deterministic.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, tenantID string, rng *DateRange) ([]domain.Transaction, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantRequired
	}

	sql := fmt.Sprintf(`
		SELECT
			id,
			tenant_id,
			sequence_number,
			amount,
			execution_date,
			account,
			counterparty_name,
			communication,
			is_parent,
			matched_entities,
			created_ts,
			updated_ts
		FROM %s.%s
		WHERE tenant_id = @tenant_id`, datasetID, transactionsTable)

	params := []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
	}
	if rng != nil {
		sql += `
		  AND execution_date >= @start_date
		  AND execution_date <= @end_date`
		params = append(params,
			bigquery.QueryParameter{Name: "start_date", Value: rng.Start},
			bigquery.QueryParameter{Name: "end_date", Value: rng.End},
		)
	}
	sql += `
		ORDER BY execution_date, sequence_number`

	q := client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var txs []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		txs = append(txs, row.ToDomain())
	}

	return txs, nil
}

// UpdateMatchedEntities fully replaces the matched_entities field of one
// transaction.
func UpdateMatchedEntities(ctx context.Context, tenantID, transactionID string, entities []domain.MatchedEntity) error {
	client, err := bigquery.NewClient(ctx, ProjectID())
	if err != nil {
		return fmt.Errorf("UpdateMatchedEntities: bigquery client: %w", err)
	}
	defer client.Close()

	return UpdateMatchedEntitiesWithClient(ctx, client, tenantID, transactionID, entities)
}

// UpdateMatchedEntitiesWithClient fully replaces the matched_entities
// field of one transaction using the provided client. The write is
// last-writer-wins; there is no optimistic-concurrency check.
func UpdateMatchedEntitiesWithClient(ctx context.Context, client *bigquery.Client, tenantID, transactionID string, entities []domain.MatchedEntity) error {
	if tenantID == "" {
		return domain.ErrTenantRequired
	}
	if transactionID == "" {
		return fmt.Errorf("UpdateMatchedEntities: transaction id is required")
	}
	for _, e := range entities {
		if !e.EntityType.Valid() {
			return fmt.Errorf("UpdateMatchedEntities: invalid entity type %q", e.EntityType)
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET matched_entities = @matched_entities,
		    updated_ts = @updated_ts
		WHERE tenant_id = @tenant_id
		  AND id = @id
	`, datasetID, transactionsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "matched_entities", Value: matchedEntityParams(entities)},
		{Name: "updated_ts", Value: time.Now()},
		{Name: "tenant_id", Value: tenantID},
		{Name: "id", Value: transactionID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpdateMatchedEntities: running update query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpdateMatchedEntities: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("UpdateMatchedEntities: job error: %w", err)
	}

	return nil
}

// InsertTransactionsWithClient streams a batch of imported transaction
// rows into the store. Rows must already carry tenant and identifiers;
// there is no dedupe against previously imported statements here.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	for i, row := range rows {
		if row.TenantID == "" {
			return fmt.Errorf("InsertTransactions: row %d: %w", i, domain.ErrTenantRequired)
		}
		if row.ID == "" {
			return fmt.Errorf("InsertTransactions: row %d: id is required", i)
		}
	}

	inserter := client.Dataset(datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}

	return nil
}

// CountTransactionsWithClient returns the number of stored transactions
// for a tenant, optionally within a date range. Used by the discrepancy
// diagnosis to compare against reference statement counts.
func CountTransactionsWithClient(ctx context.Context, client *bigquery.Client, tenantID string, rng *DateRange) (int, error) {
	if tenantID == "" {
		return 0, domain.ErrTenantRequired
	}

	sql := fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s.%s
		WHERE tenant_id = @tenant_id`, datasetID, transactionsTable)

	params := []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
	}
	if rng != nil {
		sql += `
		  AND execution_date >= @start_date
		  AND execution_date <= @end_date`
		params = append(params,
			bigquery.QueryParameter{Name: "start_date", Value: rng.Start},
			bigquery.QueryParameter{Name: "end_date", Value: rng.End},
		)
	}

	q := client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountTransactions: query read: %w", err)
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountTransactions: iter next: %w", err)
	}

	return int(row.N), nil
}
