package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ubysync/ubysync/config"
	"github.com/ubysync/ubysync/internal/cache/rediscache"
	"github.com/ubysync/ubysync/internal/confirmation"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/integrations/ubyport/fake"
	"github.com/ubysync/ubysync/internal/integrations/ubyport/soap"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/services/registration"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

type memLedger struct {
	mu     sync.Mutex
	nextID int64
	guests []*models.GuestRecord
	txns   []*models.SubmissionTransaction
}

func (l *memLedger) FindGuest(ctx context.Context, key models.NaturalKey) (*models.GuestRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range l.guests {
		if g.NaturalKey() == key {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *memLedger) RecordOutcome(ctx context.Context, g *models.GuestRecord, status models.GuestStatus, txn models.SubmissionTransaction) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	l.nextID++
	g.ID = l.nextID
	g.Status = status
	g.LastSyncAt = &now
	cp := *g
	l.guests = append(l.guests, &cp)
	txn.ID = l.nextID
	txn.GuestID = g.ID
	txn.CreatedAt = now
	l.txns = append(l.txns, &txn)
	return g.ID, nil
}

func (l *memLedger) Snapshot(ctx context.Context) (*pgledger.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &pgledger.Snapshot{TakenAt: time.Now().UTC(), Guests: l.guests, Transactions: l.txns}, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.guests)
}

func testFactories(ledger *memLedger, client ubyport.Client) factories {
	return factories{
		newLedger: func(ctx context.Context, cfg *config.Config) (ledgerStore, func(), error) {
			return ledger, func() {}, nil
		},
		newClient: func(cfg *config.Config, env string) (ubyport.Client, confirmation.TextExtractor, error) {
			return client, confirmation.PlainText{}, nil
		},
		newEvents: func(cfg *config.Config) (registration.EventPublisher, func()) {
			return nil, func() {}
		},
		newRedis: func(cfg *config.Config) *rediscache.RedisCache { return nil },
	}
}

const guestsCSV = `Příjmení;Jméno;Datum narození;Číslo pasu;Státní občanství;Datum příjezdu;Datum odjezdu
Novák;Jan;15.05.1985;AB123456;UKR;01.03.2025;05.03.2025
Kowalski;Piotr;01021990;PL998877;Polsko;02.03.2025;04.03.2025
`

// writeWorkspace lays out a config and an input file under a temp dir.
func writeWorkspace(t *testing.T, input string) (cfgPath, inputPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfg := `
logging:
  level: error
paths:
  confirmations: ` + filepath.Join(dir, "pdf") + `
  diagnostics: ` + filepath.Join(dir, "diag") + `
  backups: ` + filepath.Join(dir, "backups") + `
  logs: ` + filepath.Join(dir, "logs") + `
  exports: ` + filepath.Join(dir, "export") + `
operator:
  idub: ABC123
`
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	inputPath = filepath.Join(dir, "guests.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte(input), 0o644))
	return cfgPath, inputPath, dir
}

func execute(t *testing.T, f factories, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(f, strings.NewReader(stdin), &out)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_AutoConfirmRegistersAndExports(t *testing.T) {
	ledger := &memLedger{}
	client := fake.New()
	cfgPath, input, dir := writeWorkspace(t, guestsCSV)

	out, err := execute(t, testFactories(ledger, client), "", "run", "--config", cfgPath, "--input", input, "--yes")
	require.NoError(t, err)
	require.Contains(t, out, "Registered:")
	require.Equal(t, 2, ledger.count())
	require.Len(t, client.Submissions(), 1)

	exports, err := filepath.Glob(filepath.Join(dir, "export", "export_kompletni_*.xlsx"))
	require.NoError(t, err)
	require.Len(t, exports, 1)
	registered, err := filepath.Glob(filepath.Join(dir, "export", "potvrzeni_policie_*.xlsx"))
	require.NoError(t, err)
	require.Len(t, registered, 1)

	backups, err := filepath.Glob(filepath.Join(dir, "backups", "*.json"))
	require.NoError(t, err)
	require.Len(t, backups, 1)

	logs, err := filepath.Glob(filepath.Join(dir, "logs", "ubysync_*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestRun_SecondRunSkipsKnownGuests(t *testing.T) {
	ledger := &memLedger{}
	client := fake.New()
	cfgPath, input, _ := writeWorkspace(t, guestsCSV)
	f := testFactories(ledger, client)

	_, err := execute(t, f, "", "run", "--config", cfgPath, "--input", input, "-y")
	require.NoError(t, err)
	_, err = execute(t, f, "", "run", "--config", cfgPath, "--input", input, "-y")
	require.NoError(t, err)

	require.Equal(t, 2, ledger.count())
	require.Len(t, client.Submissions(), 1)
}

func TestRun_PromptAnswers(t *testing.T) {
	cases := []struct {
		answer string
		submit bool
	}{
		{"y\n", true},
		{"ano\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(strings.TrimSpace(tc.answer), func(t *testing.T) {
			ledger := &memLedger{}
			client := fake.New()
			cfgPath, input, _ := writeWorkspace(t, guestsCSV)

			out, err := execute(t, testFactories(ledger, client), tc.answer, "run", "--config", cfgPath, "--input", input)
			require.NoError(t, err)
			require.Contains(t, out, "[y/n]")
			if tc.submit {
				require.Len(t, client.Submissions(), 1)
				return
			}
			require.Empty(t, client.Submissions())
			require.Zero(t, ledger.count())
			require.Contains(t, out, "Submission cancelled.")
		})
	}
}

func TestRun_DryRunSubmitsNothing(t *testing.T) {
	ledger := &memLedger{}
	client := fake.New()
	cfgPath, input, dir := writeWorkspace(t, guestsCSV)

	out, err := execute(t, testFactories(ledger, client), "", "run", "--config", cfgPath, "--input", input, "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "DRY RUN")
	require.Empty(t, client.Submissions())
	require.Zero(t, ledger.count())

	backups, _ := filepath.Glob(filepath.Join(dir, "backups", "*.json"))
	require.Empty(t, backups)
}

func TestRun_NoValidRowsFails(t *testing.T) {
	input := "Příjmení;Jméno;Datum narození;Číslo pasu;Státní občanství;Datum příjezdu;Datum odjezdu\n" +
		"Novák;Jan;99999999;X;Atlantis;01.03.2025;05.03.2025\n"
	cfgPath, inputPath, _ := writeWorkspace(t, input)

	out, err := execute(t, testFactories(&memLedger{}, fake.New()), "", "run", "--config", cfgPath, "--input", inputPath, "-y")
	require.ErrorIs(t, err, registration.ErrNoValidRecords)
	require.Contains(t, out, "Skipped (validation):")
}

func TestRun_UnavailableServiceFails(t *testing.T) {
	client := fake.New()
	client.Unavailable = true
	cfgPath, input, _ := writeWorkspace(t, guestsCSV)

	_, err := execute(t, testFactories(&memLedger{}, client), "", "run", "--config", cfgPath, "--input", input, "-y")
	require.ErrorIs(t, err, ubyport.ErrUnavailable)
}

func TestRun_MissingInputFlag(t *testing.T) {
	cfgPath, _, _ := writeWorkspace(t, guestsCSV)
	_, err := execute(t, testFactories(&memLedger{}, fake.New()), "", "run", "--config", cfgPath)
	require.Error(t, err)
}

func TestCheck_ReportsServiceState(t *testing.T) {
	cfgPath, _, _ := writeWorkspace(t, guestsCSV)

	out, err := execute(t, testFactories(&memLedger{}, fake.New()), "", "check", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "available: true")
	require.Contains(t, out, "max batch size: 32")
	for _, kind := range ubyport.CodeTableKinds {
		require.Contains(t, out, "code table "+string(kind)+":")
	}
}

func TestCheck_Unavailable(t *testing.T) {
	client := fake.New()
	client.Unavailable = true
	cfgPath, _, _ := writeWorkspace(t, guestsCSV)

	out, err := execute(t, testFactories(&memLedger{}, client), "", "check", "--config", cfgPath)
	require.ErrorIs(t, err, ubyport.ErrUnavailable)
	require.Contains(t, out, "available: false")
}

func TestDefaultFactories_SelectClient(t *testing.T) {
	f := defaultFactories()
	cfg := &config.Config{Service: config.ServiceConfig{
		Environments: map[string]config.EnvironmentConfig{
			"test": {URL: "http://localhost:9000/ws", Username: "u", Password: "p"},
		},
	}}

	c, ex, err := f.newClient(cfg, envFake)
	require.NoError(t, err)
	require.IsType(t, &fake.Client{}, c)
	require.IsType(t, confirmation.PlainText{}, ex)

	c, ex, err = f.newClient(cfg, "test")
	require.NoError(t, err)
	require.IsType(t, &soap.Client{}, c)
	require.IsType(t, confirmation.PDFExtractor{}, ex)

	_, _, err = f.newClient(cfg, "prod")
	require.Error(t, err)

	events, closeEvents := f.newEvents(cfg)
	require.Nil(t, events)
	closeEvents()
	require.Nil(t, f.newRedis(cfg))
}

func TestApplyDefaults(t *testing.T) {
	cfg := &config.Config{}
	applyDefaults(cfg)
	require.Equal(t, "data/pdf", cfg.Paths.Confirmations)
	require.Equal(t, "data/export", cfg.Paths.Exports)
	require.Equal(t, registration.DefaultFallbackBatchSize, cfg.Pipeline.FallbackBatchSize)
	require.Equal(t, []string{"1"}, cfg.Pipeline.FatalPrefixes)
	require.Equal(t, 10, cfg.Pipeline.BackupKeep)
	require.Equal(t, "ubysync", cfg.Metrics.JobName)
}

// countryClient serves an extra country in the Staty table and counts
// code table requests.
type countryClient struct {
	*fake.Client

	mu    sync.Mutex
	calls map[ubyport.CodeTableKind]int
}

func newCountryClient() *countryClient {
	return &countryClient{Client: fake.New(), calls: map[ubyport.CodeTableKind]int{}}
}

func (c *countryClient) CodeTable(ctx context.Context, kind ubyport.CodeTableKind) ([]ubyport.CodeEntry, error) {
	c.mu.Lock()
	c.calls[kind]++
	c.mu.Unlock()
	entries, err := c.Client.CodeTable(ctx, kind)
	if err != nil {
		return nil, err
	}
	if kind == ubyport.CodeTableCountries {
		entries = append(entries, ubyport.CodeEntry{ID: 4, Code2: "FR", Code3: "FRA", TextCZ: "Francie", TextEN: "France"})
	}
	return entries, nil
}

func (c *countryClient) callsFor(kind ubyport.CodeTableKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[kind]
}

const frenchGuestCSV = `Příjmení;Jméno;Datum narození;Číslo pasu;Státní občanství;Datum příjezdu;Datum odjezdu
Dubois;Marie;12071992;FR123456;Francie;01.03.2025;05.03.2025
`

func TestRun_CountryNamesFromCodeTable(t *testing.T) {
	ledger := &memLedger{}
	client := newCountryClient()
	cfgPath, input, _ := writeWorkspace(t, frenchGuestCSV)

	_, err := execute(t, testFactories(ledger, client), "", "run", "--config", cfgPath, "--input", input, "-y")
	require.NoError(t, err)
	require.Equal(t, 1, client.callsFor(ubyport.CodeTableCountries))
	require.Len(t, client.Submissions(), 1)

	snap, err := ledger.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Guests, 1)
	require.Equal(t, "FRA", snap.Guests[0].Nationality)
}

func TestRun_CodeTableFailureFallsBackToBuiltInAliases(t *testing.T) {
	ledger := &memLedger{}
	client := fake.New()
	cfgPath, input, _ := writeWorkspace(t, guestsCSV)
	f := testFactories(ledger, failingTables{client})

	_, err := execute(t, f, "", "run", "--config", cfgPath, "--input", input, "-y")
	require.NoError(t, err)
	require.Equal(t, 2, ledger.count())
}

type failingTables struct {
	*fake.Client
}

func (failingTables) CodeTable(context.Context, ubyport.CodeTableKind) ([]ubyport.CodeEntry, error) {
	return nil, errors.New("fault")
}

func TestRun_DryRunDoesNotFetchCodeTables(t *testing.T) {
	client := newCountryClient()
	cfgPath, input, _ := writeWorkspace(t, guestsCSV)

	_, err := execute(t, testFactories(&memLedger{}, client), "", "run", "--config", cfgPath, "--input", input, "--dry-run")
	require.NoError(t, err)
	require.Zero(t, client.callsFor(ubyport.CodeTableCountries))
}

func TestCheck_RefreshDropsCachedTables(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newCountryClient()
	cfgPath, _, _ := writeWorkspace(t, guestsCSV)
	f := testFactories(&memLedger{}, client)
	f.newRedis = func(cfg *config.Config) *rediscache.RedisCache { return rediscache.New(mr.Addr()) }

	_, err := execute(t, f, "", "check", "--config", cfgPath)
	require.NoError(t, err)
	_, err = execute(t, f, "", "check", "--config", cfgPath)
	require.NoError(t, err)
	require.Equal(t, 1, client.callsFor(ubyport.CodeTableCountries))
	require.True(t, mr.Exists("codetable:Staty"))

	_, err = execute(t, f, "", "check", "--config", cfgPath, "--refresh")
	require.NoError(t, err)
	require.Equal(t, 2, client.callsFor(ubyport.CodeTableCountries))
}
