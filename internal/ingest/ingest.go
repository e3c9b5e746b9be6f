// Package ingest imports bank statement exports (CSV) into the
// transaction store. The import is structured as a pipeline of steps
// sharing one state, in execution order: fetch, parse, validate,
// transform, insert.
package ingest

import (
	"context"
	"fmt"

	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

// Inserter is the write surface the import needs.
type Inserter interface {
	InsertTransactions(ctx context.Context, rows []*infra.TransactionRow) error
}

// StorageService is an interface for statement fetching.
type StorageService interface {
	FetchStatement(ctx context.Context, source string) ([]byte, error)
}

// ImportState holds the shared state across all import steps.
type ImportState struct {
	TenantID string
	Source   string // local path or gs:// URI

	Raw     []byte
	Records []StatementRecord
	Rows    []*infra.TransactionRow

	Inserted int
}

// ImportStep represents a single step in the import pipeline.
type ImportStep interface {
	Execute(ctx context.Context, state *ImportState) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []ImportStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...ImportStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *ImportState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("import step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// FetchStatementStep loads the statement bytes from the source.
type FetchStatementStep struct {
	Storage StorageService
}

func (s *FetchStatementStep) Execute(ctx context.Context, state *ImportState) error {
	raw, err := s.Storage.FetchStatement(ctx, state.Source)
	if err != nil {
		return err
	}
	state.Raw = raw
	return nil
}

// ParseStatementStep parses the CSV export into records.
type ParseStatementStep struct{}

func (s *ParseStatementStep) Execute(ctx context.Context, state *ImportState) error {
	records, err := ParseStatementCSV(state.Raw)
	if err != nil {
		return err
	}
	state.Records = records
	return nil
}

// ValidateStatementStep rejects records the store cannot hold.
type ValidateStatementStep struct{}

func (s *ValidateStatementStep) Execute(ctx context.Context, state *ImportState) error {
	return ValidateRecords(state.Records)
}

// TransformStep maps records into store rows for the tenant.
type TransformStep struct{}

func (s *TransformStep) Execute(ctx context.Context, state *ImportState) error {
	rows, err := RecordsToRows(state.TenantID, state.Records)
	if err != nil {
		return err
	}
	state.Rows = rows
	return nil
}

// InsertTransactionsStep writes the rows to the transaction store.
type InsertTransactionsStep struct {
	Inserter Inserter
}

func (s *InsertTransactionsStep) Execute(ctx context.Context, state *ImportState) error {
	if err := s.Inserter.InsertTransactions(ctx, state.Rows); err != nil {
		return err
	}
	state.Inserted = len(state.Rows)
	return nil
}

// NewStatementImportPipeline creates the standard 5-step pipeline for
// importing statement files.
func NewStatementImportPipeline(storage StorageService, inserter Inserter) *Pipeline {
	return NewPipeline(
		&FetchStatementStep{Storage: storage},
		&ParseStatementStep{},
		&ValidateStatementStep{},
		&TransformStep{},
		&InsertTransactionsStep{Inserter: inserter},
	)
}
