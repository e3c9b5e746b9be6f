package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/calycompta/compta-core/internal/audit"
	"github.com/calycompta/compta-core/internal/dashboard"
	"github.com/calycompta/compta-core/internal/export"
	infraBQ "github.com/calycompta/compta-core/internal/infra/bigquery"
	"github.com/calycompta/compta-core/internal/logger"
	"github.com/calycompta/compta-core/internal/matcher"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(log)
	case "fix":
		runFix(log)
	case "summary":
		runSummary(log)
	case "diagnose":
		runDiagnose(log)
	case "export":
		runExport(log)
	case "match":
		runMatch(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("CalyCompta reconciliation CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  comptactl <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze   Report multi-linked transactions and duplicate entity links")
	fmt.Println("  fix       Remove duplicate entity links (asks for confirmation)")
	fmt.Println("  summary   Compute revenue/expense totals for a fiscal period")
	fmt.Println("  diagnose  Compare computed totals against reference statement totals")
	fmt.Println("  export    Write the audit report to a file or GCS bucket")
	fmt.Println("  match     Run the entity matcher over a tenant's transactions")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'comptactl <command> -h' for more information on a command.")
}

func newRepo(ctx context.Context, log zerolog.Logger) *infraBQ.BigQueryTransactionRepository {
	repo, err := infraBQ.NewBigQueryTransactionRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction repository")
	}
	return repo
}

func runAnalyze(log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	tenantID := fs.String("tenant", "", "Tenant identifier")
	fs.Parse(os.Args[2:])

	if *tenantID == "" {
		log.Fatal().Msg("Error: --tenant is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	report, err := audit.Analyze(ctx, repo, *tenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("Analyze failed")
	}

	fmt.Printf("\nTenant:                   %s\n", report.TenantID)
	fmt.Printf("Total transactions:       %d\n", report.TotalTransactions)
	fmt.Printf("Transactions with links:  %d\n", report.TransactionsWithLinks)
	fmt.Printf("Multi-linked:             %d\n", len(report.MultiLinked))
	fmt.Printf("With duplicate links:     %d\n\n", len(report.WithDuplicates))

	if len(report.MultiLinked) == 0 {
		fmt.Println("No multi-linked transactions.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Sequence", "Date", "Amount", "Links", "Duplicate keys"})
	for _, entry := range report.MultiLinked {
		tx := entry.Transaction
		amount := ""
		if tx.Amount != nil {
			amount = tx.Amount.FloatString(2)
		}
		var keys []string
		for _, dup := range entry.Duplicates {
			keys = append(keys, fmt.Sprintf("%s x%d", dup.Key, dup.Count))
		}
		table.Append([]string{
			tx.SequenceNumber,
			tx.ExecutionDate.Format("2006-01-02"),
			amount,
			fmt.Sprintf("%d", entry.LinkCount),
			strings.Join(keys, ", "),
		})
	}
	table.Render()
}

func runFix(log zerolog.Logger) {
	fs := flag.NewFlagSet("fix", flag.ExitOnError)
	tenantID := fs.String("tenant", "", "Tenant identifier")
	yes := fs.Bool("yes", false, "Skip the interactive confirmation")
	fs.Parse(os.Args[2:])

	if *tenantID == "" {
		log.Fatal().Msg("Error: --tenant is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	report, err := audit.Analyze(ctx, repo, *tenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("Analyze failed")
	}

	if len(report.WithDuplicates) == 0 {
		fmt.Println("No duplicate entity links found. Nothing to fix.")
		return
	}

	fmt.Printf("%d transactions carry duplicate entity links:\n", len(report.WithDuplicates))
	for _, entry := range report.WithDuplicates {
		for _, dup := range entry.Duplicates {
			fmt.Printf("  %s: %s linked %d times\n", entry.Transaction.SequenceNumber, dup.Key, dup.Count)
		}
	}

	if !*yes && !confirm(fmt.Sprintf("Rewrite matched entities on %d transactions?", len(report.WithDuplicates))) {
		fmt.Println("Aborted. No transactions were modified.")
		return
	}

	result, err := audit.Fix(ctx, repo, *tenantID, report.WithDuplicates)
	if err != nil {
		log.Fatal().Err(err).Msg("Fix failed")
	}

	fmt.Printf("Fixed %d of %d transactions.\n", result.Fixed, result.Requested)
	for _, failure := range result.Failures {
		fmt.Printf("  FAILED %s: %s\n", failure.SequenceNumber, failure.Error)
	}
	if len(result.Failures) > 0 {
		os.Exit(1)
	}
}

// confirm prompts on stdin and accepts only an explicit yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func parsePeriodFlags(fs *flag.FlagSet) (start, end *string) {
	start = fs.String("start", "", "Period start date (YYYY-MM-DD)")
	end = fs.String("end", "", "Period end date (YYYY-MM-DD)")
	return start, end
}

func mustPeriod(log zerolog.Logger, startStr, endStr string) dashboard.Period {
	if startStr == "" || endStr == "" {
		log.Fatal().Msg("Error: --start and --end are required (YYYY-MM-DD)")
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		log.Fatal().Str("start", startStr).Msg("Error: invalid --start date")
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		log.Fatal().Str("end", endStr).Msg("Error: invalid --end date")
	}
	// Inclusive end of day.
	end = end.Add(24*time.Hour - time.Nanosecond)
	return dashboard.Period{Start: start, End: end}
}

func runSummary(log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	tenantID := fs.String("tenant", "", "Tenant identifier")
	account := fs.String("account", "", "Operating account IBAN")
	startStr, endStr := parsePeriodFlags(fs)
	fs.Parse(os.Args[2:])

	if *tenantID == "" || *account == "" {
		log.Fatal().Msg("Error: --tenant and --account are required")
	}
	period := mustPeriod(log, *startStr, *endStr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	summary, err := dashboard.Aggregate(ctx, repo, *tenantID, period, *account)
	if err != nil {
		log.Fatal().Err(err).Msg("Aggregation failed")
	}

	printSummary(summary)
}

func printSummary(summary *dashboard.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"", "Amount", "Count"})
	table.Append([]string{"Revenue", summary.Revenue.FloatString(2), ""})
	table.Append([]string{"Expenses", summary.Expenses.FloatString(2), ""})
	table.Append([]string{"Net", summary.Net.FloatString(2), fmt.Sprintf("%d", summary.CountIncluded)})
	table.Append([]string{"Excluded revenue", summary.RevenueExcluded.FloatString(2), ""})
	table.Append([]string{"Excluded expenses", summary.ExpensesExcluded.FloatString(2), fmt.Sprintf("%d", summary.CountExcluded)})
	table.Render()

	if len(summary.Excluded) > 0 {
		fmt.Printf("\nExcluded transactions (%d):\n", len(summary.Excluded))
		for _, ex := range summary.Excluded {
			amount := ""
			if ex.Transaction.Amount != nil {
				amount = ex.Transaction.Amount.FloatString(2)
			}
			fmt.Printf("  %s  %10s  %s (%s)\n", ex.Transaction.SequenceNumber, amount, ex.Transaction.Account, ex.Reason)
		}
	}
}

func runDiagnose(log zerolog.Logger) {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	tenantID := fs.String("tenant", "", "Tenant identifier")
	account := fs.String("account", "", "Operating account IBAN")
	startStr, endStr := parsePeriodFlags(fs)
	refRevenue := fs.String("ref-revenue", "", "Reference revenue total (e.g. 12345.67)")
	refExpenses := fs.String("ref-expenses", "", "Reference expenses total, absolute value")
	refCount := fs.Int("ref-count", 0, "Reference transaction count")
	refFile := fs.String("ref-file", "", "JSON file with reference totals (overrides the flags)")
	fs.Parse(os.Args[2:])

	if *tenantID == "" || *account == "" {
		log.Fatal().Msg("Error: --tenant and --account are required")
	}
	period := mustPeriod(log, *startStr, *endStr)

	ref := loadReference(log, *refFile, *refRevenue, *refExpenses, *refCount)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	summary, err := dashboard.Aggregate(ctx, repo, *tenantID, period, *account)
	if err != nil {
		log.Fatal().Err(err).Msg("Aggregation failed")
	}

	storedCount, err := repo.CountTransactions(ctx, *tenantID, &infraBQ.DateRange{Start: period.Start, End: period.End})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count stored transactions")
	}

	diagnosis := dashboard.Diagnose(summary, storedCount, ref)

	printSummary(summary)

	fmt.Printf("\nDeltas versus reference (computed minus reference):\n")
	fmt.Printf("  Revenue:  %s\n", diagnosis.RevenueDelta.FloatString(2))
	fmt.Printf("  Expenses: %s\n", diagnosis.ExpensesDelta.FloatString(2))
	fmt.Printf("  Net:      %s\n", diagnosis.NetDelta.FloatString(2))
	fmt.Printf("  Count:    %+d (stored %d, reference %d)\n", diagnosis.CountDelta, storedCount, ref.TransactionCount)

	if diagnosis.Consistent {
		fmt.Println("\nComputed totals are consistent with the reference.")
		return
	}

	fmt.Println("\nHypotheses:")
	for _, hyp := range diagnosis.Hypotheses {
		marker := " "
		if hyp.Leading {
			marker = "*"
		}
		fmt.Printf("  %s %s: %s\n", marker, hyp.Code, hyp.Detail)
	}
}

func loadReference(log zerolog.Logger, path, revenue, expenses string, count int) dashboard.ReferenceTotals {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to read reference file")
		}
		var doc struct {
			Revenue          string `json:"revenue"`
			Expenses         string `json:"expenses"`
			TransactionCount int    `json:"transaction_count"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to parse reference file")
		}
		revenue, expenses, count = doc.Revenue, doc.Expenses, doc.TransactionCount
	}

	return dashboard.ReferenceTotals{
		Revenue:          mustRat(log, "revenue", revenue),
		Expenses:         mustRat(log, "expenses", expenses),
		TransactionCount: count,
	}
}

func mustRat(log zerolog.Logger, name, s string) *big.Rat {
	if s == "" {
		return new(big.Rat)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		log.Fatal().Str(name, s).Msg("Error: invalid reference amount")
	}
	return r
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	tenantID := fs.String("tenant", "", "Tenant identifier")
	bucket := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for the report (or set GCS_BUCKET env)")
	outFile := fs.String("out", "", "Write the report to a local file instead of GCS")
	fs.Parse(os.Args[2:])

	if *tenantID == "" {
		log.Fatal().Msg("Error: --tenant is required")
	}
	if *bucket == "" && *outFile == "" {
		log.Fatal().Msg("Error: either --bucket or --out is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	report, err := audit.Analyze(ctx, repo, *tenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("Analyze failed")
	}

	if *outFile != "" {
		if err := export.WriteReportFile(report, *outFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report file")
		}
		fmt.Printf("Report written to %s\n", *outFile)
		return
	}

	uri, err := export.UploadReport(ctx, *bucket, report)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to upload report")
	}
	fmt.Printf("Report uploaded to %s\n", uri)
}

func runMatch(log zerolog.Logger) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	tenantID := fs.String("tenant", "", "Tenant identifier")
	dryRun := fs.Bool("dry-run", false, "Print proposed links without persisting them")
	startStr, endStr := parsePeriodFlags(fs)
	fs.Parse(os.Args[2:])

	if *tenantID == "" {
		log.Fatal().Msg("Error: --tenant is required")
	}

	var rng *infraBQ.DateRange
	if *startStr != "" || *endStr != "" {
		period := mustPeriod(log, *startStr, *endStr)
		rng = &infraBQ.DateRange{Start: period.Start, End: period.End}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepo(ctx, log)
	defer repo.Close()

	txs, err := repo.ListTransactions(ctx, *tenantID, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	m := matcher.NewRuleMatcher(repo)
	updated := 0
	for _, tx := range txs {
		if *dryRun {
			fresh, err := m.Match(ctx, tx)
			if err != nil {
				log.Fatal().Err(err).Str("transaction_id", tx.ID).Msg("Matching failed")
			}
			for _, link := range fresh {
				fmt.Printf("  %s -> %s (%s)\n", tx.SequenceNumber, link.Key(), link.EntityName)
			}
			continue
		}

		before := len(tx.MatchedEntities)
		merged, err := matcher.Apply(ctx, repo, m, tx)
		if err != nil {
			log.Fatal().Err(err).Str("transaction_id", tx.ID).Msg("Matching failed")
		}
		if len(merged) != before {
			updated++
		}
	}

	if *dryRun {
		fmt.Println("Dry run: no transactions were modified.")
		return
	}
	fmt.Printf("Matcher updated %d of %d transactions.\n", updated, len(txs))
}
