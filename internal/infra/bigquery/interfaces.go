package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/calycompta/compta-core/internal/domain"
)

// TransactionRepository is the read/write boundary of the transaction
// store consumed by the auditor, the dashboard and the matcher.
type TransactionRepository interface {
	ListTransactions(ctx context.Context, tenantID string, rng *DateRange) ([]domain.Transaction, error)
	UpdateMatchedEntities(ctx context.Context, tenantID, transactionID string, entities []domain.MatchedEntity) error
	CountTransactions(ctx context.Context, tenantID string, rng *DateRange) (int, error)
}

// EntityRepository is the read-only boundary over the entity
// collections (members, expenses, events, participants, demands,
// inscriptions).
type EntityRepository interface {
	LookupEntityName(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) (string, error)
	ListEntities(ctx context.Context, tenantID string, entityType domain.EntityType) ([]EntityRef, error)
}

// BigQueryTransactionRepository is the concrete implementation of
// TransactionRepository and EntityRepository backed by BigQuery. It
// holds a shared client to avoid creating a new connection for each
// operation.
type BigQueryTransactionRepository struct {
	client *bigquery.Client
}

// NewBigQueryTransactionRepository creates a new repository with a
// shared BigQuery client.
func NewBigQueryTransactionRepository(ctx context.Context) (*BigQueryTransactionRepository, error) {
	client, err := bigquery.NewClient(ctx, ProjectID())
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryTransactionRepository: creating client: %w", err)
	}
	return &BigQueryTransactionRepository{
		client: client,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryTransactionRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ListTransactions delegates to ListTransactionsWithClient with the shared client.
func (r *BigQueryTransactionRepository) ListTransactions(ctx context.Context, tenantID string, rng *DateRange) ([]domain.Transaction, error) {
	return ListTransactionsWithClient(ctx, r.client, tenantID, rng)
}

// UpdateMatchedEntities delegates to UpdateMatchedEntitiesWithClient with the shared client.
func (r *BigQueryTransactionRepository) UpdateMatchedEntities(ctx context.Context, tenantID, transactionID string, entities []domain.MatchedEntity) error {
	return UpdateMatchedEntitiesWithClient(ctx, r.client, tenantID, transactionID, entities)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (r *BigQueryTransactionRepository) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	return InsertTransactionsWithClient(ctx, r.client, rows)
}

// CountTransactions delegates to CountTransactionsWithClient with the shared client.
func (r *BigQueryTransactionRepository) CountTransactions(ctx context.Context, tenantID string, rng *DateRange) (int, error) {
	return CountTransactionsWithClient(ctx, r.client, tenantID, rng)
}

// LookupEntityName delegates to LookupEntityNameWithClient with the shared client.
func (r *BigQueryTransactionRepository) LookupEntityName(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) (string, error) {
	return LookupEntityNameWithClient(ctx, r.client, tenantID, entityType, entityID)
}

// ListEntities delegates to ListEntitiesWithClient with the shared client.
func (r *BigQueryTransactionRepository) ListEntities(ctx context.Context, tenantID string, entityType domain.EntityType) ([]EntityRef, error) {
	return ListEntitiesWithClient(ctx, r.client, tenantID, entityType)
}

var _ TransactionRepository = (*BigQueryTransactionRepository)(nil)
var _ EntityRepository = (*BigQueryTransactionRepository)(nil)
