package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ubysync/ubysync/internal/broker/messages"
	"github.com/ubysync/ubysync/internal/logging"
	"github.com/ubysync/ubysync/internal/metrics"
	"github.com/ubysync/ubysync/internal/models"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type apiOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type statusConsumer interface {
	ConsumeStatusChanged(ctx context.Context, handler func(ctx context.Context, msg messages.GuestStatusChanged) error) error
}

type guestReader interface {
	GetGuest(ctx context.Context, id int64) (*models.GuestRecord, error)
	ListGuests(ctx context.Context, status string, limit, offset int) ([]*models.GuestRecord, error)
	ListTransactions(ctx context.Context, guestID int64) ([]*models.SubmissionTransaction, error)
	StatusCounts(ctx context.Context) (map[models.GuestStatus]int, error)
	ApplyStatusEvent(ctx context.Context, msg messages.GuestStatusChanged) error
}

// runAPI serves the read API until ctx is done. consumer may be nil.
func runAPI(ctx context.Context, opts apiOpts, svc guestReader, m *metrics.API, consumer statusConsumer) error {
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			err := consumer.ConsumeStatusChanged(ctx, svc.ApplyStatusEvent)
			if err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "error", err.Error())
			}
		}()
	}

	srv := &http.Server{Handler: newRouter(svc, m, opts.swaggerPath), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP API listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func newRouter(svc guestReader, m *metrics.API, swaggerPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		counts, err := svc.StatusCounts(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": total, "byStatus": counts})
	})

	r.Get("/guests", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := q.Get("status")
		if status != "" && !models.GuestStatus(status).Valid() {
			writeError(w, r, http.StatusBadRequest, errors.Errorf("unknown status %q", status))
			return
		}
		limit, err := intParam(q.Get("limit"), defaultListLimit)
		if err != nil || limit <= 0 {
			writeError(w, r, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(limit, maxListLimit)
		offset, err := intParam(q.Get("offset"), 0)
		if err != nil || offset < 0 {
			writeError(w, r, http.StatusBadRequest, errors.New("offset must be a non-negative integer"))
			return
		}

		list, err := svc.ListGuests(r.Context(), status, limit, offset)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		if list == nil {
			list = []*models.GuestRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"guests": list, "limit": limit, "offset": offset})
	})

	r.Get("/guests/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := guestID(w, r)
		if !ok {
			return
		}
		g, err := svc.GetGuest(r.Context(), id)
		if err != nil {
			writeError(w, r, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	})

	r.Get("/guests/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		id, ok := guestID(w, r)
		if !ok {
			return
		}
		txns, err := svc.ListTransactions(r.Context(), id)
		if err != nil {
			writeError(w, r, statusFor(err), err)
			return
		}
		if txns == nil {
			txns = []*models.SubmissionTransaction{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
	})

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	return r
}

func guestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func statusFor(err error) int {
	if errors.Is(err, pgledger.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err.Error())
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
