package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"vaultcore/audit"
	"vaultcore/core/state"
	"vaultcore/observability/logging"
	"vaultcore/storage"
)

func main() {
	configPath := flag.String("config", "./audit.yaml", "Path to the audit job configuration")
	outDir := flag.String("out", "", "Output directory (overrides the job's output_dir)")
	flag.Parse()

	logger := logging.Setup("vault-audit", strings.TrimSpace(os.Getenv("VAULT_ENV")))

	job, err := audit.LoadJob(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load audit job: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*outDir) != "" {
		job.OutputDir = strings.TrimSpace(*outDir)
	}

	db, err := storage.NewLevelDB(job.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database %s (is the node stopped?): %v\n", job.DataDir, err)
		os.Exit(1)
	}
	defer db.Close()

	auditor := audit.NewAuditor(state.NewManager(db), logger)
	report, err := auditor.Run(job.ExpectedAdmin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit run failed: %v\n", err)
		os.Exit(1)
	}

	artifacts, err := audit.WriteFiles(job.OutputDir, report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("audit run %s: %d records, price %d/%d\n", report.RunID, report.RowCount, report.Price, report.PriceScale)
	fmt.Printf("  csv:      %s\n", artifacts.CSVPath)
	fmt.Printf("  parquet:  %s\n", artifacts.ParquetPath)
	fmt.Printf("  manifest: %s\n", artifacts.ManifestPath)

	if !report.Clean() {
		for _, anomaly := range report.Anomalies {
			fmt.Fprintf(os.Stderr, "anomaly %s [%s]: %s\n", anomaly.ID, anomaly.Type, anomaly.Detail)
		}
		os.Exit(1)
	}
}
