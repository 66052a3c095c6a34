package audit

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"vaultcore/core/state"
	"vaultcore/crypto"
	"vaultcore/native/token"
	"vaultcore/native/vault"
	"vaultcore/storage"
)

func makeAddress(t *testing.T, suffix byte) crypto.Address {
	t.Helper()
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.VaultPrefix, raw)
}

// seedBooks writes a consistent vault snapshot: two depositors, conservation
// holding, custody funded past full redemption.
func seedBooks(t *testing.T) *state.Manager {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())

	admin := makeAddress(t, 0x01)
	alice := makeAddress(t, 0x0a)
	bob := makeAddress(t, 0x0b)
	custody := vault.DeriveAuthority(token.BaseSymbol)

	require.NoError(t, manager.PutVaultState(&vault.VaultState{
		Price:       vault.FixedPointPrice(1_050_000),
		LastUpdated: 1_700_000_000,
		Admin:       admin,
	}))
	require.NoError(t, manager.PutVaultDeposit(&vault.VaultDeposit{
		Owner:              alice,
		DepositedAmount:    5_000_000,
		ReceiptTokenAmount: 5_000_000,
	}))
	require.NoError(t, manager.PutVaultDeposit(&vault.VaultDeposit{
		Owner:              bob,
		DepositedAmount:    2_000_000,
		ReceiptTokenAmount: 1_500_000,
	}))
	require.NoError(t, manager.SetBalance(token.ReceiptSymbol, alice, 5_000_000))
	require.NoError(t, manager.SetBalance(token.ReceiptSymbol, bob, 1_500_000))
	require.NoError(t, manager.SetSupply(token.ReceiptSymbol, 6_500_000))
	require.NoError(t, manager.SetBalance(token.BaseSymbol, custody, 7_000_000))
	require.NoError(t, manager.Commit())
	return manager
}

func TestAuditorCleanBooks(t *testing.T) {
	manager := seedBooks(t)
	auditor := NewAuditor(manager, nil)
	auditor.SetNow(func() time.Time { return time.Unix(1_700_000_100, 0) })

	report, err := auditor.Run("")
	require.NoError(t, err)
	require.True(t, report.Clean(), "anomalies: %+v", report.Anomalies)

	require.Equal(t, uint64(1_050_000), report.Price)
	require.Equal(t, 2, report.RowCount)
	require.Equal(t, uint64(6_500_000), report.TotalReceipts)
	require.Equal(t, uint64(6_500_000), report.ReceiptSupply)
	// 5,000,000 * 1.05 + 1,500,000 * 1.05
	require.Equal(t, uint64(5_250_000+1_575_000), report.TotalRedemption)
	require.Equal(t, uint64(7_000_000), report.CustodyBalance)
}

func TestAuditorUninitializedState(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	auditor := NewAuditor(manager, nil)
	_, err := auditor.Run("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialised")
}

func TestAuditorConservationBreach(t *testing.T) {
	manager := seedBooks(t)
	// Outstanding supply drifts from the recorded receipts.
	require.NoError(t, manager.SetSupply(token.ReceiptSymbol, 6_000_000))
	require.NoError(t, manager.Commit())

	report, err := NewAuditor(manager, nil).Run("")
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Equal(t, AnomalyConservationBreach, report.Anomalies[0].Type)
}

func TestAuditorCustodyShortfall(t *testing.T) {
	manager := seedBooks(t)
	custody := vault.DeriveAuthority(token.BaseSymbol)
	require.NoError(t, manager.SetBalance(token.BaseSymbol, custody, 1_000_000))
	require.NoError(t, manager.Commit())

	report, err := NewAuditor(manager, nil).Run("")
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Equal(t, AnomalyCustodyShortfall, report.Anomalies[0].Type)
}

func TestAuditorAdminMismatch(t *testing.T) {
	manager := seedBooks(t)
	other := makeAddress(t, 0x7f)

	report, err := NewAuditor(manager, nil).Run(other.String())
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Equal(t, AnomalyAdminMismatch, report.Anomalies[0].Type)
}

func TestWriteFilesManifestDigest(t *testing.T) {
	manager := seedBooks(t)
	report, err := NewAuditor(manager, nil).Run("")
	require.NoError(t, err)

	dir := t.TempDir()
	artifacts, err := WriteFiles(dir, report)
	require.NoError(t, err)

	csvBytes, err := os.ReadFile(artifacts.CSVPath)
	require.NoError(t, err)
	digest := blake3.Sum256(csvBytes)

	manifestBytes, err := os.ReadFile(artifacts.ManifestPath)
	require.NoError(t, err)
	var m struct {
		RunID     string `json:"runId"`
		Rows      int    `json:"rows"`
		CSVBlake3 string `json:"csvBlake3"`
	}
	require.NoError(t, json.Unmarshal(manifestBytes, &m))
	require.Equal(t, report.RunID.String(), m.RunID)
	require.Equal(t, report.RowCount, m.Rows)
	require.Equal(t, hex.EncodeToString(digest[:]), m.CSVBlake3)

	// Parquet artefact exists and is non-empty.
	info, err := os.Stat(artifacts.ParquetPath)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestRenderCSVDeterministic(t *testing.T) {
	manager := seedBooks(t)
	report, err := NewAuditor(manager, nil).Run("")
	require.NoError(t, err)

	first, err := renderCSV(report)
	require.NoError(t, err)
	second, err := renderCSV(report)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestLoadJobDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/audit.yaml"
	require.NoError(t, os.WriteFile(path, []byte("data_dir: ./vault-data\n"), 0o644))

	job, err := LoadJob(path)
	require.NoError(t, err)
	require.Equal(t, "./vault-data", job.DataDir)
	require.Equal(t, "./audit-out", job.OutputDir)

	_, err = LoadJob(dir + "/missing.yaml")
	require.Error(t, err)
}

func TestLoadJobRequiresDataDir(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/audit.yaml"
	require.NoError(t, os.WriteFile(path, []byte("output_dir: ./out\n"), 0o644))
	_, err := LoadJob(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "data_dir")
}
