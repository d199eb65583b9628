package soap

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/models"
)

const (
	// The service requires the field but ignores its value.
	authCode = "X"

	isoLocal = "2006-01-02T15:04:05"
)

type requestEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    struct {
		Content any
	} `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type authOnly struct {
	XMLName             xml.Name
	AutentificationCode string `xml:"AutentificationCode"`
}

type codeTableRequest struct {
	XMLName             xml.Name
	AutentificationCode string `xml:"AutentificationCode"`
	CoChci              string `xml:"CoChci"`
}

type submitRequest struct {
	XMLName             xml.Name
	AutentificationCode string    `xml:"AutentificationCode"`
	Seznam              guestList `xml:"Seznam"`
}

// Data contract members are serialized in ordinal name order.
type guestList struct {
	Ubytovani guestArray `xml:"http://schemas.datacontract.org/2004/07/WS_UBY Ubytovani"`
	VracetPDF bool       `xml:"http://schemas.datacontract.org/2004/07/WS_UBY VracetPDF"`
	UCont     string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uCont"`
	UHomN     string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uHomN"`
	UIdub     string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uIdub"`
	UMark     string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uMark"`
	UName     string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uName"`
	UOb       string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uOb"`
	UObCa     string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uObCa"`
	UOkr      string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uOkr"`
	UOriN     string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uOriN"`
	UPsc      string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uPsc"`
	UStr      string     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY uStr"`
}

type guestArray struct {
	Items []guest `xml:"http://schemas.datacontract.org/2004/07/WS_UBY Ubytovany"`
}

type guest struct {
	CDate   string  `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cDate"`
	CDocN   string  `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cDocN"`
	CFirstN string  `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cFirstN"`
	CFrom   string  `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cFrom"`
	CNati   string  `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cNati"`
	CNote   *string `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cNote,omitempty"`
	CPurp   int     `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cPurp"`
	CResi   *string `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cResi,omitempty"`
	CSurN   string  `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cSurN"`
	CUntil  string  `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cUntil"`
	CVisN   *string `xml:"http://schemas.datacontract.org/2004/07/WS_UBY cVisN,omitempty"`
}

func newGuest(g models.GuestRecord) guest {
	return guest{
		CDate:   g.BirthDate,
		CDocN:   g.PassportNumber,
		CFirstN: g.FirstName,
		CFrom:   g.ArrivalAt.Format(isoLocal),
		CNati:   g.Nationality,
		CNote:   g.Note,
		CPurp:   g.PurposeCode,
		CResi:   g.HomeAddress,
		CSurN:   g.Surname,
		CUntil:  g.DepartureAt.Format(isoLocal),
		CVisN:   g.VisaNumber,
	}
}

func newGuestList(a ubyport.Accommodation, guests []models.GuestRecord, wantPDF bool) guestList {
	l := guestList{
		VracetPDF: wantPDF,
		UCont:     a.Contact,
		UHomN:     a.HouseNumber,
		UIdub:     a.ID,
		UMark:     a.Mark,
		UName:     a.Name,
		UOb:       a.Municipality,
		UObCa:     a.MunicipalityPart,
		UOkr:      a.District,
		UOriN:     a.OrientationNumber,
		UPsc:      a.PostalCode,
		UStr:      a.Street,
	}
	for _, g := range guests {
		l.Ubytovani.Items = append(l.Ubytovani.Items, newGuest(g))
	}
	return l
}

// Responses are matched by local name only; the service mixes several
// namespaces in its result elements.

type responseEnvelope[T any] struct {
	Body struct {
		Fault    *Fault `xml:"Fault"`
		Response *T     `xml:",any"`
	} `xml:"Body"`
}

type scalarResponse struct {
	Result string `xml:",any"`
}

type codeTableResponse struct {
	Result struct {
		Items []codeItem `xml:",any"`
	} `xml:",any"`
}

type codeItem struct {
	ID           string `xml:"Id"`
	Kod2         string `xml:"Kod2"`
	Kod3         string `xml:"Kod3"`
	TextCZ       string `xml:"TextCZ"`
	TextKratkyCZ string `xml:"TextKratkyCZ"`
	TextENG      string `xml:"TextENG"`
	TextKratkyEN string `xml:"TextKratkyENG"`
	PlatiOd      string `xml:"PlatiOd"`
	PlatiDo      string `xml:"PlatiDo"`
}

func (i codeItem) entry() ubyport.CodeEntry {
	id, _ := strconv.Atoi(strings.TrimSpace(i.ID))
	return ubyport.CodeEntry{
		ID:         id,
		Code2:      strings.TrimSpace(i.Kod2),
		Code3:      strings.TrimSpace(i.Kod3),
		TextCZ:     i.TextCZ,
		ShortCZ:    i.TextKratkyCZ,
		TextEN:     i.TextENG,
		ShortEN:    i.TextKratkyEN,
		ValidFrom:  parseContractTime(i.PlatiOd),
		ValidUntil: parseContractTime(i.PlatiDo),
	}
}

func parseContractTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, isoLocal} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

type submitResponse struct {
	Result struct {
		ChybyHlavicky          string   `xml:"ChybyHlavicky"`
		ChybyZaznamu           textList `xml:"ChybyZaznamu"`
		DokumentChybyPotvrzeni string   `xml:"DokumentChybyPotvrzeni"`
		DokumentPotvrzeni      string   `xml:"DokumentPotvrzeni"`
		PseudoRazitko          string   `xml:"PseudoRazitko"`
	} `xml:",any"`
}

type textList struct {
	Text  string `xml:",chardata"`
	Items []struct {
		Text string `xml:",chardata"`
	} `xml:",any"`
}

func (l textList) strings() []string {
	var out []string
	for _, it := range l.Items {
		if s := strings.TrimSpace(it.Text); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		if s := strings.TrimSpace(l.Text); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Fault is a SOAP 1.1 fault returned by the service.
type Fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (f *Fault) Error() string {
	return "soap fault " + f.Code + ": " + f.String
}
