package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ubysync/ubysync/config"
	"github.com/ubysync/ubysync/internal/broker/kafka"
	"github.com/ubysync/ubysync/internal/cache/rediscache"
	"github.com/ubysync/ubysync/internal/confirmation"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/integrations/ubyport/fake"
	"github.com/ubysync/ubysync/internal/integrations/ubyport/soap"
	"github.com/ubysync/ubysync/internal/services/registration"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

// envFake selects the in-memory service instead of a configured endpoint.
const envFake = "fake"

type ledgerStore interface {
	registration.Ledger
	Snapshot(ctx context.Context) (*pgledger.Snapshot, error)
}

type factories struct {
	newLedger func(ctx context.Context, cfg *config.Config) (ledgerStore, func(), error)
	newClient func(cfg *config.Config, env string) (ubyport.Client, confirmation.TextExtractor, error)
	// newEvents returns nil when no broker is configured.
	newEvents func(cfg *config.Config) (registration.EventPublisher, func())
	// newRedis returns nil when no redis is configured.
	newRedis func(cfg *config.Config) *rediscache.RedisCache
}

func defaultFactories() factories {
	return factories{
		newLedger: func(ctx context.Context, cfg *config.Config) (ledgerStore, func(), error) {
			st, err := pgledger.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newClient: func(cfg *config.Config, env string) (ubyport.Client, confirmation.TextExtractor, error) {
			if env == envFake {
				return fake.New(), confirmation.PlainText{}, nil
			}
			e, err := cfg.Environment(env)
			if err != nil {
				return nil, nil, err
			}
			c := soap.New(soap.Config{
				URL:           e.URL,
				Domain:        e.Domain,
				Username:      e.Username,
				Password:      e.Password,
				Namespace:     cfg.Service.Namespace,
				ActionPrefix:  cfg.Service.ActionPrefix,
				Timeout:       time.Duration(cfg.Service.TimeoutSeconds) * time.Second,
				Accommodation: accommodation(cfg.Operator),
			}, nil)
			return c, confirmation.PDFExtractor{}, nil
		},
		newEvents: func(cfg *config.Config) (registration.EventPublisher, func()) {
			if cfg.Kafka.Host == "" {
				return nil, func() {}
			}
			p := kafka.NewProducer([]string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)})
			return kafka.NewStatusEvents(p, cfg.Kafka.StatusChangedTopicName), func() { _ = p.Close() }
		},
		newRedis: func(cfg *config.Config) *rediscache.RedisCache {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		},
	}
}

func accommodation(o config.OperatorConfig) ubyport.Accommodation {
	return ubyport.Accommodation{
		ID:                o.ID,
		Mark:              o.Mark,
		Name:              o.Name,
		Contact:           o.Contact,
		District:          o.District,
		Municipality:      o.Municipality,
		MunicipalityPart:  o.MunicipalityPart,
		Street:            o.Street,
		HouseNumber:       o.HouseNumber,
		OrientationNumber: o.OrientationNumber,
		PostalCode:        o.PostalCode,
	}
}

func applyDefaults(cfg *config.Config) {
	if cfg.Paths.Confirmations == "" {
		cfg.Paths.Confirmations = "data/pdf"
	}
	if cfg.Paths.Diagnostics == "" {
		cfg.Paths.Diagnostics = "logs"
	}
	if cfg.Paths.Backups == "" {
		cfg.Paths.Backups = "data/backups"
	}
	if cfg.Paths.Logs == "" {
		cfg.Paths.Logs = "logs"
	}
	if cfg.Paths.Exports == "" {
		cfg.Paths.Exports = "data/export"
	}
	if cfg.Pipeline.FallbackBatchSize <= 0 {
		cfg.Pipeline.FallbackBatchSize = registration.DefaultFallbackBatchSize
	}
	if len(cfg.Pipeline.FatalPrefixes) == 0 {
		cfg.Pipeline.FatalPrefixes = ubyport.DefaultSeverityRules().FatalPrefixes
	}
	if len(cfg.Pipeline.DuplicateMarkers) == 0 {
		cfg.Pipeline.DuplicateMarkers = registration.DefaultDuplicateMarkers
	}
	if cfg.Pipeline.BackupKeep <= 0 {
		cfg.Pipeline.BackupKeep = 10
	}
	if cfg.Redis.RunLockTTLSeconds <= 0 {
		cfg.Redis.RunLockTTLSeconds = 1800
	}
	if cfg.Redis.CodeTableTTLSeconds <= 0 {
		cfg.Redis.CodeTableTTLSeconds = 86400
	}
	if cfg.Metrics.JobName == "" {
		cfg.Metrics.JobName = "ubysync"
	}
}
