package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sd-enrollment-api/pkg/errors"
)

type memoryCacheRepo struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func TestCacheServiceRoundTripAndDefaultTTL(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), 45*time.Second, nil, true)

	var out map[string]string
	assert.False(t, svc.Get(context.Background(), "k", &out))

	svc.Set(context.Background(), "k", map[string]string{"status": "pending"}, 0)
	require.True(t, svc.Get(context.Background(), "k", &out))
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, 45*time.Second, repo.ttls["k"])

	svc.Invalidate(context.Background(), "k")
	assert.False(t, svc.Get(context.Background(), "k", &out))
}

func TestCacheServiceDisabledNeverHits(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	svc.Set(context.Background(), "k", "v", 0)
	var out string
	assert.False(t, svc.Get(context.Background(), "k", &out))
	assert.Empty(t, repo.data)
}

func TestCacheServiceBackendErrorIsAMiss(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("i/o timeout")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	var out string
	assert.False(t, svc.Get(context.Background(), "k", &out))
}
