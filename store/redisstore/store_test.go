package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mdshimul186/reqcoord"
	"github.com/mdshimul186/reqcoord/store/redisstore/mock"
)

func testConfig() reqcoord.RedisConfig {
	return reqcoord.RedisConfig{
		Prefix:      "lessons:",
		ReadTimeout: time.Second,
		Retention:   time.Hour,
	}
}

func TestStore_Get_Miss(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	client.EXPECT().Get(gomock.Any(), "lessons:course:1").Return(redis.NewStringResult("", redis.Nil))

	_, found, err := store.Get(context.Background(), "course:1")

	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Get_Hit(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	storedAt := time.Unix(1700000000, 0)
	data, err := reqcoord.MarshalEntry(reqcoord.Entry{Value: map[string]int{"lessons": 4}, StoredAt: storedAt})
	require.NoError(t, err)

	client.EXPECT().Get(gomock.Any(), "lessons:course:1").Return(redis.NewStringResult(string(data), nil))

	entry, found, err := store.Get(context.Background(), "course:1")

	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, entry.Value)
	assert.JSONEq(t, `{"lessons":4}`, string(entry.Raw))
	assert.True(t, storedAt.Equal(entry.StoredAt))
}

func TestStore_Get_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	boom := errors.New("connection refused")
	client.EXPECT().Get(gomock.Any(), "lessons:k").Return(redis.NewStringResult("", boom))

	_, found, err := store.Get(context.Background(), "k")

	assert.ErrorIs(t, err, boom)
	assert.False(t, found)
}

func TestStore_Get_CorruptEntryIsDeleted(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	client.EXPECT().Get(gomock.Any(), "lessons:k").Return(redis.NewStringResult("not-json", nil))
	client.EXPECT().Del(gomock.Any(), "lessons:k").Return(redis.NewIntResult(1, nil)).Times(1)

	_, found, err := store.Get(context.Background(), "k")

	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Set_UsesPrefixAndRetention(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	client.EXPECT().
		Set(gomock.Any(), "lessons:k", gomock.Any(), time.Hour).
		DoAndReturn(func(_ context.Context, _ string, value interface{}, _ time.Duration) *redis.StatusCmd {
			entry, err := reqcoord.UnmarshalEntry(value.([]byte))
			assert.NoError(t, err)
			assert.JSONEq(t, `"draft"`, string(entry.Raw))
			return redis.NewStatusResult("OK", nil)
		})

	err := store.Set(context.Background(), "k", reqcoord.Entry{Value: "draft", StoredAt: time.Now()})

	assert.NoError(t, err)
}

func TestStore_Set_UnencodableValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	err := store.Set(context.Background(), "k", reqcoord.Entry{Value: make(chan int)})

	assert.Error(t, err)
}

func TestStore_Keys_ScansNamespace(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	gomock.InOrder(
		client.EXPECT().Scan(gomock.Any(), uint64(0), "lessons:*", int64(scanCount)).
			Return(redis.NewScanCmdResult([]string{"lessons:user:1", "lessons:user:2"}, 7, nil)),
		client.EXPECT().Scan(gomock.Any(), uint64(7), "lessons:*", int64(scanCount)).
			Return(redis.NewScanCmdResult([]string{"lessons:course:9"}, 0, nil)),
	)

	keys, err := store.Keys(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2", "course:9"}, keys)
}

func TestStore_DeleteMatching(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	client.EXPECT().Scan(gomock.Any(), uint64(0), "lessons:*", int64(scanCount)).
		Return(redis.NewScanCmdResult([]string{"lessons:user:1", "lessons:course:9", "lessons:user:2"}, 0, nil))
	client.EXPECT().Del(gomock.Any(), "lessons:user:1", "lessons:user:2").Return(redis.NewIntResult(2, nil))

	n, err := store.DeleteMatching(context.Background(), reqcoord.Prefix("user:").MatchString)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_Clear_NoKeys(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	client.EXPECT().Scan(gomock.Any(), uint64(0), "lessons:*", int64(scanCount)).
		Return(redis.NewScanCmdResult(nil, 0, nil))

	assert.NoError(t, store.Clear(context.Background()))
}

func TestStore_Len_PropagatesScanError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())

	boom := errors.New("scan failed")
	client.EXPECT().Scan(gomock.Any(), uint64(0), "lessons:*", int64(scanCount)).
		Return(redis.NewScanCmdResult(nil, 0, boom))

	_, err := store.Len(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestStore_WithCoordinator(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())
	coord := reqcoord.New(reqcoord.WithStore(store))

	var saved []byte
	client.EXPECT().Get(gomock.Any(), "lessons:course:1").Return(redis.NewStringResult("", redis.Nil))
	client.EXPECT().Set(gomock.Any(), "lessons:course:1", gomock.Any(), time.Hour).
		DoAndReturn(func(_ context.Context, _ string, value interface{}, _ time.Duration) *redis.StatusCmd {
			saved = value.([]byte)
			return redis.NewStatusResult("OK", nil)
		})

	type course struct {
		Title string `json:"title"`
	}
	calls := 0
	op := func(context.Context) (course, error) {
		calls++
		return course{Title: "Fractions"}, nil
	}

	got, err := reqcoord.Cached(context.Background(), coord, "course:1", op, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Fractions", got.Title)

	client.EXPECT().Get(gomock.Any(), "lessons:course:1").DoAndReturn(func(context.Context, string) *redis.StringCmd {
		return redis.NewStringResult(string(saved), nil)
	})

	got, err = reqcoord.Cached(context.Background(), coord, "course:1", op, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Fractions", got.Title)
	assert.Equal(t, 1, calls)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
	assert.Equal(t, "plain:", escapeGlob("plain:"))
}

func TestStore_Get_CorruptEntryDeleteFailureIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	core, logs := observer.New(zap.WarnLevel)
	store := New(client, testConfig(), zap.New(core))

	client.EXPECT().Get(gomock.Any(), "lessons:k").Return(redis.NewStringResult("not-json", nil))
	client.EXPECT().Del(gomock.Any(), "lessons:k").Return(redis.NewIntResult(0, errors.New("READONLY replica")))

	_, found, err := store.Get(context.Background(), "k")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, logs.FilterMessage("Failed to delete corrupt redis cache entry").Len())
}

func TestStore_WithCoordinatorSkipsLossyValues(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	store := New(client, testConfig(), zap.NewNop())
	coord := reqcoord.New(reqcoord.WithStore(store))

	// No Set is expected: the mock fails the test if one is made.
	client.EXPECT().Get(gomock.Any(), "lessons:lesson:1").Return(redis.NewStringResult("", redis.Nil)).Times(2)

	type lesson struct {
		Title string
		draft bool
	}
	calls := 0
	op := func(context.Context) (lesson, error) {
		calls++
		return lesson{Title: "Fractions", draft: true}, nil
	}

	for i := 0; i < 2; i++ {
		got, err := reqcoord.Cached(context.Background(), coord, "lesson:1", op, time.Minute)
		require.NoError(t, err)
		assert.True(t, got.draft)
	}
	assert.Equal(t, 2, calls)
}
