package bankdirectory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/models"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, clientCode string) ([]models.BankAccount, bool, error) {
	args := m.Called(ctx, clientCode)
	accounts, _ := args.Get(0).([]models.BankAccount)
	return accounts, args.Bool(1), args.Error(2)
}

func (m *MockCache) Set(ctx context.Context, clientCode string, accounts []models.BankAccount) error {
	args := m.Called(ctx, clientCode, accounts)
	return args.Error(0)
}

func directoryServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, bankDetailsPath, r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("authToken"))
		switch r.URL.Query().Get("client_code") {
		case "C1":
			fmt.Fprint(w, `{"status":true,"data":[{"bank_acno":"111","ifsc_code_act":"ICIC0001596","client_name":"RAVI KUMAR","micr_code":"400229001","bank_name":"ICICI BANK"}]}`)
		default:
			fmt.Fprint(w, `{"status":false,"message":"no records"}`)
		}
	}))
}

func TestLookupDecodesAccounts(t *testing.T) {
	var hits atomic.Int32
	srv := directoryServer(t, &hits)
	defer srv.Close()

	c := NewClient(zap.NewNop(), srv.URL, time.Second, nil)
	accounts, err := c.Lookup(context.Background(), "C1", "tok")
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	acc, ok := FindAccount(accounts, "111")
	require.True(t, ok)
	assert.Equal(t, "ICIC0001596", acc.IFSC)
	assert.Equal(t, "RAVI KUMAR", acc.BeneficiaryName)
	assert.Equal(t, "ICICI BANK", acc.BankName)

	_, ok = FindAccount(accounts, "999")
	assert.False(t, ok)
}

func TestLookupStatusFalseIsNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := directoryServer(t, &hits)
	defer srv.Close()

	c := NewClient(zap.NewNop(), srv.URL, time.Second, nil)
	_, err := c.Lookup(context.Background(), "NOPE", "tok")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestLookupServesFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := directoryServer(t, &hits)
	defer srv.Close()

	cached := []models.BankAccount{{AccountNo: "111", IFSC: "ICIC0001596"}}
	cache := new(MockCache)
	cache.On("Get", mock.Anything, "C1").Return(cached, true, nil)

	c := NewClient(zap.NewNop(), srv.URL, time.Second, cache)
	accounts, err := c.Lookup(context.Background(), "C1", "tok")
	require.NoError(t, err)
	assert.Equal(t, cached, accounts)
	assert.Equal(t, int32(0), hits.Load())
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestLookupFillsCacheOnMiss(t *testing.T) {
	var hits atomic.Int32
	srv := directoryServer(t, &hits)
	defer srv.Close()

	cache := new(MockCache)
	cache.On("Get", mock.Anything, "C1").Return(nil, false, nil)
	cache.On("Set", mock.Anything, "C1", mock.AnythingOfType("[]models.BankAccount")).Return(nil)

	c := NewClient(zap.NewNop(), srv.URL, time.Second, cache)
	_, err := c.Lookup(context.Background(), "C1", "tok")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	cache.AssertExpectations(t)
}

func TestLookupSurvivesUnreachableRedis(t *testing.T) {
	var hits atomic.Int32
	srv := directoryServer(t, &hits)
	defer srv.Close()

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	c := NewClient(zap.NewNop(), srv.URL, time.Second, NewRedisCache(rdb, time.Minute))
	accounts, err := c.Lookup(context.Background(), "C1", "tok")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, int32(1), hits.Load())
}
