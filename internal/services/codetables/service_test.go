package codetables

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ubysync/ubysync/internal/cache/mocks"
	"github.com/ubysync/ubysync/internal/cache/rediscache"
	"github.com/ubysync/ubysync/internal/integrations/ubyport"
	"github.com/ubysync/ubysync/internal/integrations/ubyport/fake"
)

type countingFetcher struct {
	inner Fetcher
	calls int
	err   error
}

func (f *countingFetcher) CodeTable(ctx context.Context, kind ubyport.CodeTableKind) ([]ubyport.CodeEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.inner.CodeTable(ctx, kind)
}

type ServiceSuite struct {
	suite.Suite

	cache   *mocks.MockBytesCache
	fetcher *countingFetcher
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	s.cache = &mocks.MockBytesCache{}
	s.fetcher = &countingFetcher{inner: fake.New()}
	s.svc = New(s.fetcher, s.cache, time.Hour)
}

func (s *ServiceSuite) TestLookup_HitSkipsService() {
	b, _ := json.Marshal([]ubyport.CodeEntry{{ID: 7, Code3: "UKR"}})
	s.cache.On("Get", mock.Anything, "codetable:Staty").Return(b, true, nil).Once()

	entries, err := s.svc.Lookup(context.Background(), ubyport.CodeTableCountries)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(7, entries[0].ID)
	s.Equal(0, s.fetcher.calls)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestLookup_MissFetchesAndStores() {
	s.cache.On("Get", mock.Anything, "codetable:Chyby").Return(nil, false, nil).Once()
	s.cache.On("Set", mock.Anything, "codetable:Chyby", mock.Anything, time.Hour).Return(nil).Once()

	entries, err := s.svc.Lookup(context.Background(), ubyport.CodeTableErrors)
	s.Require().NoError(err)
	s.NotEmpty(entries)
	s.Equal(1, s.fetcher.calls)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestLookup_CacheErrorFallsThrough() {
	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down")).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

	entries, err := s.svc.Lookup(context.Background(), ubyport.CodeTablePurposes)
	s.Require().NoError(err)
	s.NotEmpty(entries)
}

func (s *ServiceSuite) TestLookup_ServiceError() {
	s.fetcher.err = errors.New("fault")
	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, nil).Once()

	_, err := s.svc.Lookup(context.Background(), ubyport.CodeTableCountries)
	s.Require().ErrorContains(err, "fault")
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func TestService_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	t.Cleanup(func() { _ = rc.Close() })

	f := &countingFetcher{inner: fake.New()}
	svc := New(f, rc, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Lookup(ctx, ubyport.CodeTableCountries)
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.calls)
	require.True(t, mr.Exists("codetable:Staty"))

	require.NoError(t, svc.Invalidate(ctx, ubyport.CodeTableCountries))
	_, err := svc.Lookup(ctx, ubyport.CodeTableCountries)
	require.NoError(t, err)
	require.Equal(t, 2, f.calls)

	aliases, err := svc.CountryAliases(ctx)
	require.NoError(t, err)
	require.Equal(t, "UKR", aliases["Ukrajina"])
	require.Equal(t, "DEU", aliases["Germany"])
}

func TestService_NilCache(t *testing.T) {
	f := &countingFetcher{inner: fake.New()}
	svc := New(f, nil, 0)
	_, err := svc.Lookup(context.Background(), ubyport.CodeTableCountries)
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), ubyport.CodeTableCountries)
	require.NoError(t, err)
	require.Equal(t, 2, f.calls)
}
