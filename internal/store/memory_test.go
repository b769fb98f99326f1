package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, historySize int) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(historySize)
	require.NoError(t, err)
	return s
}

func TestNewMemoryStore(t *testing.T) {
	s := newStore(t, 0)
	assert.Empty(t, s.GetAll())
	assert.Nil(t, s.History("api"))

	_, err := NewMemoryStore(-1)
	assert.Error(t, err)
}

func TestMemoryStore_UpdateKeepsLatest(t *testing.T) {
	s := newStore(t, 0)

	s.Update(Record{Name: "api", Status: "up", ResponseTimeMs: 100})
	s.Update(Record{Name: "api", Status: "degraded", ResponseTimeMs: 200})
	s.Update(Record{Name: "api", Status: "down", ResponseTimeMs: 300})

	all := s.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "down", all[0].Status)
	assert.Equal(t, int64(300), all[0].ResponseTimeMs)

	got, ok := s.Get("api")
	require.True(t, ok)
	assert.Equal(t, all[0], got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStore_GetAllOrderedByName(t *testing.T) {
	s := newStore(t, 0)

	s.Update(Record{Name: "worker", Status: "up"})
	s.Update(Record{Name: "api", Status: "down"})
	s.Update(Record{Name: "db", Status: "degraded"})

	var names []string
	for _, r := range s.GetAll() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"api", "db", "worker"}, names)
}

func TestMemoryStore_HistoryIsBounded(t *testing.T) {
	s := newStore(t, 3)

	for i := 1; i <= 5; i++ {
		s.Update(Record{Name: "api", ResponseTimeMs: int64(i)})
	}
	s.Update(Record{Name: "db", ResponseTimeMs: 9})

	var latencies []int64
	for _, r := range s.History("api") {
		latencies = append(latencies, r.ResponseTimeMs)
	}
	assert.Equal(t, []int64{3, 4, 5}, latencies, "oldest records are evicted")
	assert.Len(t, s.History("db"), 1)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	s := newStore(t, 0)

	ch1 := s.Subscribe()
	ch2 := s.Subscribe()
	s.Update(Record{Name: "api", Status: "up"})

	for _, ch := range []<-chan Record{ch1, ch2} {
		select {
		case r := <-ch:
			assert.Equal(t, "api", r.Name)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive update")
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	s := newStore(t, 0)

	ch1 := s.Subscribe()
	ch2 := s.Subscribe()
	s.Unsubscribe(ch1)
	s.Unsubscribe(ch1)

	_, ok := <-ch1
	assert.False(t, ok, "channel is closed")

	s.Update(Record{Name: "api", Status: "up"})
	select {
	case r := <-ch2:
		assert.Equal(t, "api", r.Name)
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber did not receive update")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := newStore(t, 0)
	_ = s.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			s.Update(Record{Name: "api", Status: "up"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Update blocked on a slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := newStore(t, 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(Record{Name: "api", Status: "up"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.GetAll()
				_ = s.History("api")
			}
		}()
		go func() {
			defer wg.Done()
			ch := s.Subscribe()
			time.Sleep(10 * time.Millisecond)
			s.Unsubscribe(ch)
		}()
	}
	wg.Wait()

	assert.Len(t, s.History("api"), 10)
}
