package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockBytesCache is a testify mock of cache.BytesCache.
type MockBytesCache struct {
	mock.Mock
}

func (m *MockBytesCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Bool(1), args.Error(2)
}

func (m *MockBytesCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockBytesCache) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}
