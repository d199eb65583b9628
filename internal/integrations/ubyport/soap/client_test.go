package soap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/models"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func scalarEnvelope(op, value string) string {
	return `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<` + op + `Response xmlns="http://tempuri.org/"><` + op + `Result>` + value + `</` + op + `Result></` + op + `Response>` +
		`</s:Body></s:Envelope>`
}

func newTestClient(url string) *Client {
	return New(Config{
		URL:      url,
		Domain:   "DOM",
		Username: "user",
		Password: "secret",
		Accommodation: ubyport.Accommodation{
			ID: "123456789", Mark: "HOTEL", Name: "Hotel Praha", PostalCode: "11000",
		},
	}, &http.Client{Timeout: 5 * time.Second})
}

func TestClient_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, `"http://tempuri.org/IWS_UBY/TestDostupnosti"`, r.Header.Get("SOAPAction"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, `DOM\user`, user)
		require.Equal(t, "secret", pass)

		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), "<AutentificationCode>X</AutentificationCode>")
		_, _ = w.Write([]byte(scalarEnvelope("TestDostupnosti", "true")))
	}))
	defer srv.Close()

	ok, err := newTestClient(srv.URL).Available(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClient_MaxBatchSize_Cached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(scalarEnvelope("MaximalniDelkaSeznamu", "32")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		n, err := c.MaxBatchSize(context.Background())
		require.NoError(t, err)
		require.Equal(t, 32, n)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_CodeTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), "<CoChci>Staty</CoChci>")
		_, _ = w.Write(fixture(t, "code_table.xml"))
	}))
	defer srv.Close()

	entries, err := newTestClient(srv.URL).CodeTable(context.Background(), ubyport.CodeTableCountries)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 1, entries[0].ID)
	require.Equal(t, "UKR", entries[0].Code3)
	require.Equal(t, "Ukraine", entries[0].TextEN)
	require.NotNil(t, entries[0].ValidFrom)
	require.Nil(t, entries[0].ValidUntil)
	require.Equal(t, "POL", entries[1].Code3)
}

func TestClient_Submit(t *testing.T) {
	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, `"http://tempuri.org/IWS_UBY/ZapisUbytovane"`, r.Header.Get("SOAPAction"))
		body, _ := io.ReadAll(r.Body)
		captured = string(body)
		_, _ = w.Write(fixture(t, "submit_ok.xml"))
	}))
	defer srv.Close()

	visa := "V123"
	g := models.GuestRecord{
		Surname: "Novák", FirstName: "Jan", BirthDate: "15051985", PassportNumber: "AB123456",
		Nationality: "UKR", PurposeCode: 99, VisaNumber: &visa,
		ArrivalAt:   time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC),
		DepartureAt: time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC),
	}

	resp, err := newTestClient(srv.URL).Submit(context.Background(), ubyport.SubmitRequest{
		Guests: []models.GuestRecord{g}, WantConfirmation: true,
	})
	require.NoError(t, err)

	require.Equal(t, "201", resp.HeaderErrors)
	require.Equal(t, []string{"205;210"}, resp.RecordErrors)
	require.Equal(t, "UBY-2025-0001", resp.Stamp)
	require.Equal(t, []byte("%PDF-1.4\n"), resp.Confirmation)
	require.Nil(t, resp.ErrorConfirmation)
	require.NotEmpty(t, resp.RawResponse)

	require.Contains(t, captured, ">2025-01-01T14:00:00<")
	require.Contains(t, captured, ">15051985<")
	require.Contains(t, captured, ">V123<")
	require.Contains(t, captured, ">123456789<")
	require.Contains(t, captured, ">true<")
	require.NotContains(t, captured, "cNote")
	require.Less(t, strings.Index(captured, "cDate"), strings.Index(captured, "cDocN"))
	require.Less(t, strings.Index(captured, "Ubytovani"), strings.Index(captured, "VracetPDF"))
}

func TestClient_Submit_Fault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(fixture(t, "fault.xml"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(context.Background(), ubyport.SubmitRequest{
		Guests: []models.GuestRecord{{Surname: "A", FirstName: "B"}},
	})
	require.Error(t, err)

	var te *ubyport.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "ZapisUbytovane", te.Op)
	require.Contains(t, string(te.Request), "ZapisUbytovane")

	var f *Fault
	require.True(t, errors.As(err, &f))
	require.Equal(t, "a:DeserializationFailed", f.Code)
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Available(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 401")
}
