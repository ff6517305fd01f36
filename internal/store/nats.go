package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKV stores entries in a JetStream key-value bucket.
type NATSKV struct {
	nc      *nats.Conn
	kv      jetstream.KeyValue
	metrics Metrics
	logger  *slog.Logger
}

func NewNATSKV(ctx context.Context, url, bucket string, m Metrics, logger *slog.Logger) (*NATSKV, error) {
	logger = logger.With(slog.String("component", "nats_kv"))
	nc, err := nats.Connect(url,
		nats.Name("transit-lookup"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "per-device favorite and recent routes",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("key-value bucket %q: %w", bucket, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSKV{nc: nc, kv: kv, metrics: m, logger: logger}, nil
}

func (s *NATSKV) Close() error {
	if s.nc == nil {
		return nil
	}
	err := s.nc.Drain()
	s.nc.Close()
	return err
}

func (s *NATSKV) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.StoreOp(op, err)
	}
}

func (s *NATSKV) Get(ctx context.Context, key string) (Entry, error) {
	e, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		s.observe("get", nil)
		return Entry{}, ErrNotFound
	}
	s.observe("get", err)
	if err != nil {
		return Entry{}, fmt.Errorf("kv get %q: %w", key, err)
	}
	return Entry{Value: e.Value(), Revision: e.Revision()}, nil
}

func (s *NATSKV) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	var rev uint64
	var err error
	if revision == 0 {
		rev, err = s.kv.Create(ctx, key, value)
	} else {
		rev, err = s.kv.Update(ctx, key, value, revision)
	}
	if isConflict(err) {
		s.observe("update", nil)
		return 0, ErrConflict
	}
	s.observe("update", err)
	if err != nil {
		return 0, fmt.Errorf("kv update %q: %w", key, err)
	}
	return rev, nil
}

func (s *NATSKV) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		err = nil
	}
	s.observe("delete", err)
	if err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
