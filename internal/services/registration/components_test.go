package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ubysync/ubysync/internal/confirmation"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/integrations/ubyport/fake"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/artifacts"
)

func TestSplit(t *testing.T) {
	var recs []models.GuestRecord
	for i := 0; i < 70; i++ {
		r := record("Guest", "Anna", "01011990", "P"+string(rune('A'+i%26))+"00000")
		r.SourceRow = i + 2
		recs = append(recs, r)
	}

	for _, size := range []int{1, 7, 32, 70, 100} {
		batches := Split(recs, size)
		require.Len(t, batches, (len(recs)+size-1)/size, "size %d", size)

		var joined []models.GuestRecord
		for _, b := range batches {
			require.LessOrEqual(t, len(b), size)
			require.NotEmpty(t, b)
			joined = append(joined, b...)
		}
		require.Equal(t, recs, joined, "size %d", size)
	}

	require.Nil(t, Split(nil, 32))
	require.Nil(t, Split(recs, 0))
}

type errSizeClient struct {
	*fake.Client
}

func (errSizeClient) MaxBatchSize(ctx context.Context) (int, error) {
	return 0, errors.New("fault")
}

func TestBatchSize(t *testing.T) {
	c := fake.New()
	c.MaxBatch = 10
	require.Equal(t, 10, BatchSize(context.Background(), c, 32))

	c.MaxBatch = 50
	require.Equal(t, 32, BatchSize(context.Background(), c, 32))

	c.MaxBatch = 0
	require.Equal(t, 32, BatchSize(context.Background(), c, 0))

	require.Equal(t, 16, BatchSize(context.Background(), errSizeClient{fake.New()}, 16))
}

func TestDetector_Detect(t *testing.T) {
	l := newMemLedger()
	known := record("Novák", "Jan", "15051985", "AB123456")
	_, err := l.RecordOutcome(context.Background(), &known, models.GuestStatusError, models.SubmissionTransaction{})
	require.NoError(t, err)

	// Same key, different non-key fields: still known.
	changed := record("Novák", "Jan", "15051985", "AB123456")
	changed.Nationality = "SVK"
	// Similar looking, different key: new.
	similar := record("Novák", "Jan", "15051986", "AB123456")
	first := record("Smith", "Anna", "01011990", "X1234567")
	first.SourceRow = 4
	again := record("Smith", "Anna", "01011990", "X1234567")
	again.SourceRow = 5

	p, err := NewDetector(l).Detect(context.Background(), []models.GuestRecord{changed, similar, first, again})
	require.NoError(t, err)
	require.Equal(t, []models.GuestRecord{changed}, p.Known)
	require.Equal(t, []models.GuestRecord{similar, first}, p.New)
	require.Equal(t, []models.GuestRecord{again}, p.Repeated)
}

type failingLedger struct{ *memLedger }

func (failingLedger) FindGuest(ctx context.Context, key models.NaturalKey) (*models.GuestRecord, error) {
	return nil, errors.New("db down")
}

func TestDetector_LedgerError(t *testing.T) {
	_, err := NewDetector(failingLedger{newMemLedger()}).Detect(context.Background(), []models.GuestRecord{
		record("Novák", "Jan", "15051985", "AB123456"),
	})
	require.ErrorContains(t, err, "db down")
}

func TestClassify(t *testing.T) {
	doc := confirmation.Document{Entries: []confirmation.RejectedEntry{
		{Surname: "KOWALSKI", FirstName: "PIOTR", Reason: "210 DUPLICITNÍ hlášení"},
		{Surname: "MÜLLER", FirstName: "HANS", Reason: "220 Chybné datum"},
	}}
	markers := DefaultDuplicateMarkers

	st, reason := Classify(record("Kowalski", "Piotr", "", ""), Outcome{Success: true, Document: doc}, markers)
	require.Equal(t, models.GuestStatusDuplicateError, st)
	require.Equal(t, "210 DUPLICITNÍ hlášení", *reason)

	st, reason = Classify(record("Müller", "Hans", "", ""), Outcome{Success: false, HeaderErrors: "199", Document: doc}, markers)
	require.Equal(t, models.GuestStatusError, st)
	require.Equal(t, "220 Chybné datum", *reason)

	st, reason = Classify(record("Novák", "Jan", "", ""), Outcome{Success: false, HeaderErrors: "199"}, markers)
	require.Equal(t, models.GuestStatusError, st)
	require.Equal(t, "199", *reason)

	st, reason = Classify(record("Novák", "Jan", "", ""), Outcome{Success: false, RecordErrors: []string{"105", "110"}}, markers)
	require.Equal(t, models.GuestStatusError, st)
	require.Equal(t, "105; 110", *reason)

	st, reason = Classify(record("Novák", "Jan", "", ""), Outcome{Success: true}, markers)
	require.Equal(t, models.GuestStatusRegistered, st)
	require.Nil(t, reason)
}

type oversizeClient struct {
	*fake.Client
	called bool
}

func (c *oversizeClient) Submit(ctx context.Context, req ubyport.SubmitRequest) (ubyport.SubmitResponse, error) {
	c.called = true
	return c.Client.Submit(ctx, req)
}

func TestSubmitter_OversizeRejectedLocally(t *testing.T) {
	c := &oversizeClient{Client: fake.New()}
	s := NewSubmitter(c, artifacts.New(t.TempDir(), t.TempDir()), confirmation.PlainText{}, ubyport.SeverityRules{})

	out := s.Submit(context.Background(), []models.GuestRecord{
		record("A", "A", "01011990", "AAAA1"), record("B", "B", "01011990", "BBBB1"),
	}, 1)
	require.False(t, out.Success)
	require.Equal(t, "Počet osob překračuje limit 1", out.HeaderErrors)
	require.False(t, c.called)
}

func TestSubmitter_SavesErrorConfirmation(t *testing.T) {
	store := artifacts.New(t.TempDir(), t.TempDir())
	c := &docClient{Client: fake.New()}
	s := NewSubmitter(c, store, confirmation.PlainText{}, ubyport.DefaultSeverityRules())

	out := s.Submit(context.Background(), []models.GuestRecord{record("Novák", "Jan", "15051985", "AB123456")}, 32)
	require.True(t, out.Success)
	require.NotNil(t, out.ConfirmationPath)
	require.NotNil(t, out.ErrorConfirmationPath)
	require.Contains(t, *out.ErrorConfirmationPath, "chyby_")
	require.Equal(t, 1, out.Document.Total)
}

type docClient struct {
	*fake.Client
}

func (c *docClient) Submit(ctx context.Context, req ubyport.SubmitRequest) (ubyport.SubmitResponse, error) {
	resp, err := c.Client.Submit(ctx, req)
	resp.ErrorConfirmation = []byte("%PDF-1.4 errors")
	return resp, err
}
