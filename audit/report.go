package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

// Artifacts names the files one run produced.
type Artifacts struct {
	CSVPath      string
	ParquetPath  string
	ManifestPath string
}

// manifest is the machine-readable summary written next to the report files.
// CSVBlake3 lets downstream consumers prove the CSV they hold is the one this
// run produced.
type manifest struct {
	Report
	CSVBlake3 string `json:"csvBlake3"`
}

// WriteFiles renders the report as CSV, Parquet and a manifest carrying a
// blake3 digest of the canonical CSV bytes.
func WriteFiles(dir string, report *Report) (Artifacts, error) {
	if report == nil {
		return Artifacts{}, fmt.Errorf("audit: nil report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("audit: create output dir: %w", err)
	}

	csvBytes, err := renderCSV(report)
	if err != nil {
		return Artifacts{}, err
	}
	csvPath := filepath.Join(dir, "report.csv")
	if err := os.WriteFile(csvPath, csvBytes, 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("audit: write csv: %w", err)
	}

	parquetPath := filepath.Join(dir, "report.parquet")
	if err := writeParquet(parquetPath, report.Rows); err != nil {
		return Artifacts{}, err
	}

	digest := blake3.Sum256(csvBytes)
	m := manifest{Report: *report, CSVBlake3: hex.EncodeToString(digest[:])}
	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Artifacts{}, fmt.Errorf("audit: encode manifest: %w", err)
	}
	manifestPath := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(manifestPath, append(encoded, '\n'), 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("audit: write manifest: %w", err)
	}

	return Artifacts{CSVPath: csvPath, ParquetPath: parquetPath, ManifestPath: manifestPath}, nil
}

// renderCSV produces the canonical CSV bytes the manifest digest covers. Rows
// keep the source's insertion order so reruns over the same database are
// byte-identical.
func renderCSV(report *Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{
		"owner", "deposited_amount", "receipt_token_amount", "redemption_value",
		"receipt_balance", "base_balance",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range report.Rows {
		record := []string{
			row.Owner,
			strconv.FormatUint(row.DepositedAmount, 10),
			strconv.FormatUint(row.ReceiptTokenAmount, 10),
			strconv.FormatUint(row.RedemptionValue, 10),
			strconv.FormatUint(row.ReceiptBalance, 10),
			strconv.FormatUint(row.BaseBalance, 10),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

type parquetRow struct {
	Owner              string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
	DepositedAmount    int64  `parquet:"name=deposited_amount, type=INT64"`
	ReceiptTokenAmount int64  `parquet:"name=receipt_token_amount, type=INT64"`
	RedemptionValue    int64  `parquet:"name=redemption_value, type=INT64"`
	ReceiptBalance     int64  `parquet:"name=receipt_balance, type=INT64"`
	BaseBalance        int64  `parquet:"name=base_balance, type=INT64"`
}

func writeParquet(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			Owner:              row.Owner,
			DepositedAmount:    clampInt64(row.DepositedAmount),
			ReceiptTokenAmount: clampInt64(row.ReceiptTokenAmount),
			RedemptionValue:    clampInt64(row.RedemptionValue),
			ReceiptBalance:     clampInt64(row.ReceiptBalance),
			BaseBalance:        clampInt64(row.BaseBalance),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("audit: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("audit: finish parquet: %w", err)
	}
	return file.Close()
}

// clampInt64 keeps oversized unsigned values representable in the parquet
// schema. Balances past 2^63 only appear if the books are already broken,
// which the auditor reports separately.
func clampInt64(v uint64) int64 {
	const maxInt64 = uint64(1)<<63 - 1
	if v > maxInt64 {
		return int64(maxInt64)
	}
	return int64(v)
}
