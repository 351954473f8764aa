package indexcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

func TestMemory_AddContainsRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0, 0)

	if m.Contains(ctx, "records_utec_dev") {
		t.Fatal("empty cache reported a hit")
	}
	m.Add(ctx, "records_utec_dev")
	if !m.Contains(ctx, "records_utec_dev") {
		t.Fatal("expected hit after Add")
	}
	m.Remove(ctx, "records_utec_dev")
	if m.Contains(ctx, "records_utec_dev") {
		t.Fatal("expected miss after Remove")
	}
}

func TestMemory_Bounded(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, 0)
	m.Add(ctx, "a")
	m.Add(ctx, "b")
	m.Add(ctx, "c")
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
	if m.Contains(ctx, "a") {
		t.Error("oldest entry should be evicted")
	}
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, 20*time.Millisecond)
	m.Add(ctx, "a")
	time.Sleep(60 * time.Millisecond)
	if m.Contains(ctx, "a") {
		t.Error("entry should expire")
	}
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("idx_%d", i%5)
			m.Add(ctx, name)
			_ = m.Contains(ctx, name)
		}(i)
	}
	wg.Wait()
	if m.Len() != 5 {
		t.Errorf("Len = %d, want 5", m.Len())
	}
}

func TestNop(t *testing.T) {
	var n Nop
	n.Add(context.Background(), "a")
	if n.Contains(context.Background(), "a") {
		t.Error("Nop must never hit")
	}
}

func TestRedis_Contains(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "indexsync:index:records_utec_dev")).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "indexsync:index:records_mit_dev")).
		Return(mock.Result(mock.RedisInt64(0)))

	r := NewRedisForTest(c, RedisConfig{})
	if !r.Contains(context.Background(), "records_utec_dev") {
		t.Error("expected hit")
	}
	if r.Contains(context.Background(), "records_mit_dev") {
		t.Error("expected miss")
	}
}

func TestRedis_ContainsErrorIsMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "indexsync:index:x")).
		Return(mock.ErrorResult(errors.New("connection refused")))

	r := NewRedisForTest(c, RedisConfig{})
	if r.Contains(context.Background(), "x") {
		t.Error("redis failure must degrade to a miss")
	}
}

func TestRedis_AddWithTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "p:records_utec_dev", "1", "EX", "3600")).
		Return(mock.Result(mock.RedisString("OK")))

	r := NewRedisForTest(c, RedisConfig{KeyPrefix: "p:", TTL: time.Hour})
	r.Add(context.Background(), "records_utec_dev")
}

func TestRedis_AddWithoutTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "indexsync:index:a", "1")).
		Return(mock.Result(mock.RedisString("OK")))

	r := NewRedisForTest(c, RedisConfig{})
	r.Add(context.Background(), "a")
}

func TestRedis_Remove(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "indexsync:index:a")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	r := NewRedisForTest(c, RedisConfig{})
	r.Remove(context.Background(), "a") // logged, not fatal
}

func TestRedis_Ping(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	r := NewRedisForTest(c, RedisConfig{})
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
