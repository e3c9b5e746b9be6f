package ingest

import (
	"context"
	"math/big"
	"testing"
	"time"

	infra "github.com/calycompta/compta-core/internal/infra/bigquery"
)

func TestParseStatementCSV(t *testing.T) {
	data := []byte(`sequence;date;amount;account;counterparty;communication;is_parent
2024-0001;2024-03-02;125,50;BE26 0000 0000 0000;DUPONT MARIE;INS-2024-0042;0
2024-0002;2024-03-05;-1.566,72;BE26 0000 0000 0000;AIR FILL SPRL;EXP-2024-0007;0
2024-0003;2024-03-05;300,00;BE26 0000 0000 0000;;;1
`)

	records, err := ParseStatementCSV(data)
	if err != nil {
		t.Fatalf("ParseStatementCSV failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	first := records[0]
	if first.SequenceNumber != "2024-0001" {
		t.Errorf("sequence = %q, want 2024-0001", first.SequenceNumber)
	}
	if got := first.Amount.FloatString(2); got != "125.50" {
		t.Errorf("amount = %s, want 125.50", got)
	}
	if first.ExecutionDate != time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) {
		t.Errorf("date = %v", first.ExecutionDate)
	}
	if first.CounterpartyName != "DUPONT MARIE" {
		t.Errorf("counterparty = %q", first.CounterpartyName)
	}

	if got := records[1].Amount.FloatString(2); got != "-1566.72" {
		t.Errorf("continental amount = %s, want -1566.72", got)
	}
	if !records[2].IsParent {
		t.Error("expected third record to be a ventilated parent")
	}
}

func TestParseStatementCSV_CommaDelimited(t *testing.T) {
	data := []byte(`date,amount,account
2024-03-02,125.50,BE26000000000000
`)

	records, err := ParseStatementCSV(data)
	if err != nil {
		t.Fatalf("ParseStatementCSV failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if got := records[0].Amount.FloatString(2); got != "125.50" {
		t.Errorf("amount = %s, want 125.50", got)
	}
}

func TestParseStatementCSV_MissingColumn(t *testing.T) {
	data := []byte("sequence;date;account\n2024-0001;2024-03-02;BE26\n")
	if _, err := ParseStatementCSV(data); err == nil {
		t.Fatal("expected error for missing amount column")
	}
}

func TestParseStatementCSV_MalformedRow(t *testing.T) {
	// A bad quote mid-file must reject the whole statement. Returning
	// the rows before it would import a truncated statement.
	data := []byte(`sequence;date;amount;account
2024-0001;2024-03-02;125,50;BE26
2024-0002;2024-03-05;"12,50;BE26
2024-0003;2024-03-06;300,00;BE26
`)

	records, err := ParseStatementCSV(data)
	if err == nil {
		t.Fatalf("expected error on malformed row, got %d records", len(records))
	}
	if records != nil {
		t.Errorf("got %d records alongside error, want none", len(records))
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1234.56", "1234.56", false},
		{"1.234,56", "1234.56", false},
		{"-1.566,72", "-1566.72", false},
		{"707,00", "707.00", false},
		{"0", "0.00", false},
		{"12 345,00", "12345.00", false},
		{"abc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got.FloatString(2) != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got.FloatString(2), tt.want)
			}
		})
	}
}

func TestValidateRecords(t *testing.T) {
	valid := StatementRecord{
		ExecutionDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		Amount:        big.NewRat(12550, 100),
		Account:       "BE26 0000 0000 0000",
	}

	tests := []struct {
		name    string
		mutate  func(r *StatementRecord)
		wantErr bool
	}{
		{"valid", func(r *StatementRecord) {}, false},
		{"missing account", func(r *StatementRecord) { r.Account = "   " }, true},
		{"missing date", func(r *StatementRecord) { r.ExecutionDate = time.Time{} }, true},
		{"missing amount", func(r *StatementRecord) { r.Amount = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			err := ValidateRecords([]StatementRecord{rec})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecords() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateRecords(nil); err == nil {
		t.Error("expected error for empty statement")
	}
}

func TestRecordsToRows(t *testing.T) {
	records := []StatementRecord{
		{
			SequenceNumber:   "2024-0001",
			ExecutionDate:    time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			Amount:           big.NewRat(12550, 100),
			Account:          "BE26 0000 0000 0000",
			CounterpartyName: "DUPONT MARIE",
			Communication:    "INS-2024-0042",
		},
		{
			ExecutionDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			Amount:        big.NewRat(30000, 100),
			Account:       "BE26 0000 0000 0000",
			IsParent:      true,
		},
	}

	rows, err := RecordsToRows("club-1", records)
	if err != nil {
		t.Fatalf("RecordsToRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first.ID == "" {
		t.Error("expected a generated row ID")
	}
	if first.TenantID != "club-1" {
		t.Errorf("tenant = %q, want club-1", first.TenantID)
	}
	if !first.CounterpartyName.Valid || first.CounterpartyName.StringVal != "DUPONT MARIE" {
		t.Errorf("counterparty = %+v", first.CounterpartyName)
	}
	if len(first.MatchedEntities) != 0 {
		t.Error("imported rows must start with no entity links")
	}
	if !rows[1].IsParent {
		t.Error("expected second row to keep is_parent")
	}
	if rows[1].CounterpartyName.Valid {
		t.Error("empty counterparty should map to NULL")
	}

	if _, err := RecordsToRows("", records); err == nil {
		t.Error("expected error for empty tenant")
	}
}

// mockInserter records inserted batches.
type mockInserter struct {
	rows [][]*infra.TransactionRow
	err  error
}

func (m *mockInserter) InsertTransactions(ctx context.Context, rows []*infra.TransactionRow) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, rows)
	return nil
}

// mockStorage serves fixed statement bytes.
type mockStorage struct {
	data []byte
}

func (m *mockStorage) FetchStatement(ctx context.Context, source string) ([]byte, error) {
	return m.data, nil
}

func TestStatementImportPipeline(t *testing.T) {
	data := []byte(`date;amount;account
2024-03-02;125,50;BE26 0000 0000 0000
2024-03-05;-80,00;BE26 0000 0000 0000
`)

	storage := &mockStorage{data: data}
	inserter := &mockInserter{}

	state := &ImportState{TenantID: "club-1", Source: "statement.csv"}
	pipeline := NewStatementImportPipeline(storage, inserter)

	if err := pipeline.Execute(context.Background(), state); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if state.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", state.Inserted)
	}
	if len(inserter.rows) != 1 || len(inserter.rows[0]) != 2 {
		t.Fatalf("unexpected insert batches: %+v", inserter.rows)
	}
}

func TestStatementImportPipeline_InvalidStatement(t *testing.T) {
	storage := &mockStorage{data: []byte("date;amount;account\nnot-a-date;1,00;BE26\n")}
	inserter := &mockInserter{}

	state := &ImportState{TenantID: "club-1", Source: "statement.csv"}
	pipeline := NewStatementImportPipeline(storage, inserter)

	if err := pipeline.Execute(context.Background(), state); err == nil {
		t.Fatal("expected parse error")
	}
	if len(inserter.rows) != 0 {
		t.Error("nothing should be inserted when parsing fails")
	}
}
