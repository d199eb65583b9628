package registration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/ubysync/ubysync/internal/confirmation"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/artifacts"
)

// Outcome is what one batch submission produced.
type Outcome struct {
	Success      bool
	HeaderErrors string
	RecordErrors []string
	Stamp        string

	ConfirmationPath      *string
	ErrorConfirmationPath *string
	Document              confirmation.Document

	RequestPayload  *string
	ResponsePayload *string

	// Transport is set when the call itself failed.
	Transport error
}

// ErrorText is the batch-level reason given to records without their own.
func (o Outcome) ErrorText() string {
	if o.HeaderErrors != "" {
		return o.HeaderErrors
	}
	return strings.Join(o.RecordErrors, "; ")
}

type Submitter struct {
	client    ubyport.Client
	store     ArtifactStore
	extractor confirmation.TextExtractor
	rules     ubyport.SeverityRules
}

func NewSubmitter(client ubyport.Client, store ArtifactStore, extractor confirmation.TextExtractor, rules ubyport.SeverityRules) *Submitter {
	if extractor == nil {
		extractor = confirmation.PDFExtractor{}
	}
	if len(rules.FatalPrefixes) == 0 {
		rules = ubyport.DefaultSeverityRules()
	}
	return &Submitter{client: client, store: store, extractor: extractor, rules: rules}
}

// Submit sends one batch and never fails: every problem becomes an
// unsuccessful Outcome. The caller checks ctx for interruption.
func (s *Submitter) Submit(ctx context.Context, batch []models.GuestRecord, maxSize int) Outcome {
	if maxSize > 0 && len(batch) > maxSize {
		return Outcome{HeaderErrors: fmt.Sprintf("Počet osob překračuje limit %d", maxSize)}
	}

	resp, err := s.client.Submit(ctx, ubyport.SubmitRequest{Guests: batch, WantConfirmation: true})
	if err != nil {
		out := Outcome{HeaderErrors: err.Error(), Transport: err}
		var te *ubyport.TransportError
		if errors.As(err, &te) && len(te.Request) > 0 {
			payload := string(te.Request)
			out.RequestPayload = &payload
			if path, derr := s.store.DumpRequest(te.Request); derr != nil {
				slog.Warn("failed to dump request", "error", derr.Error())
			} else {
				slog.Info("failed request dumped", "path", path)
			}
		}
		slog.Error("batch submission failed", "records", len(batch), "error", err.Error())
		return out
	}

	out := Outcome{
		Success:      s.rules.Success(resp.HeaderErrors, resp.RecordErrors),
		HeaderErrors: resp.HeaderErrors,
		RecordErrors: resp.RecordErrors,
		Stamp:        resp.Stamp,
	}
	if len(resp.RawRequest) > 0 {
		v := string(resp.RawRequest)
		out.RequestPayload = &v
	}
	if len(resp.RawResponse) > 0 {
		v := string(resp.RawResponse)
		out.ResponsePayload = &v
	}
	if codes := s.rules.FatalCodes(resp.HeaderErrors); len(codes) > 0 {
		slog.Error("service reported fatal header errors", "codes", strings.Join(codes, ";"))
	} else if strings.TrimSpace(resp.HeaderErrors) != "" {
		slog.Warn("service reported header warnings", "codes", resp.HeaderErrors)
	}

	if len(resp.Confirmation) > 0 {
		out.ConfirmationPath = s.save(artifacts.KindConfirmation, resp.Confirmation)
		doc, err := confirmation.ParseArtifact(s.extractor, resp.Confirmation)
		if err != nil {
			slog.Warn("confirmation document unreadable, using batch outcome only", "error", err.Error())
		}
		out.Document = doc
		slog.Info("confirmation parsed",
			"total", doc.Total, "accepted", doc.Accepted, "rejected", doc.Rejected, "entries", len(doc.Entries))
	}
	if len(resp.ErrorConfirmation) > 0 {
		out.ErrorConfirmationPath = s.save(artifacts.KindErrorConfirmation, resp.ErrorConfirmation)
	}
	return out
}

func (s *Submitter) save(kind artifacts.Kind, data []byte) *string {
	path, err := s.store.SaveConfirmation(kind, data)
	if err != nil {
		slog.Warn("failed to save document", "kind", string(kind), "error", err.Error())
		return nil
	}
	slog.Info("document saved", "kind", string(kind), "path", path)
	return &path
}
