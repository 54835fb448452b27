package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/log"
	actorimpl "executor-go/infrastructure/actor"
)

const waitFor = 2 * time.Second

func newTestMonitor(t *testing.T) (*actorimpl.Directory, *Monitor) {
	t.Helper()
	logger := log.NewFromZap(zaptest.NewLogger(t))
	dir := actorimpl.NewDirectory(actorimpl.DirectoryConfig{
		Name:           "health-test",
		ReceiveTimeout: 10 * time.Millisecond,
		Logger:         logger,
	})
	m := NewMonitor(dir, Config{
		Name:     "monitor",
		Interval: 10 * time.Millisecond,
		Timeout:  80 * time.Millisecond,
	}, logger)
	t.Cleanup(func() {
		m.Stop()
		dir.Shutdown()
	})
	return dir, m
}

func statusOf(m *Monitor, name string) (PeerStatus, bool) {
	for _, s := range m.Status() {
		if s.Name == name {
			return s, true
		}
	}
	return PeerStatus{}, false
}

func TestMonitorTracksHealthyActors(t *testing.T) {
	dir, m := newTestMonitor(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))

	var mu sync.Mutex
	seen := make(map[string]int)
	m.SetSeenCallback(func(name string) {
		mu.Lock()
		seen[name]++
		mu.Unlock()
	})
	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["A"] >= 2 && seen["B"] >= 2 && seen["monitor"] >= 2
	}, waitFor, 5*time.Millisecond)

	for _, name := range []string{"A", "B"} {
		s, ok := statusOf(m, name)
		require.True(t, ok)
		assert.True(t, s.Healthy)
		assert.False(t, s.LastSeen.IsZero())
	}
	_, ok := statusOf(m, "monitor")
	assert.False(t, ok, "the monitor never probes itself")
	assert.Equal(t, 0, m.Unhealthy())
}

func TestMonitorReportsLostActorOnce(t *testing.T) {
	dir, m := newTestMonitor(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))

	lost := make(chan string, 8)
	m.SetLostCallback(func(name string) { lost <- name })
	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		s, ok := statusOf(m, "B")
		return ok && s.Healthy
	}, waitFor, 5*time.Millisecond)

	// B stops answering once a malformed envelope retires it
	inbox, ok := dir.Lookup("B")
	require.True(t, ok)
	inbox.Send([]byte("not an envelope"))

	select {
	case name := <-lost:
		assert.Equal(t, "B", name)
	case <-time.After(waitFor):
		t.Fatal("B was never reported lost")
	}

	// several more timeouts pass without a second report
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, lost, 0)

	s, ok := statusOf(m, "B")
	require.True(t, ok)
	assert.False(t, s.Healthy)
	a, ok := statusOf(m, "A")
	require.True(t, ok)
	assert.True(t, a.Healthy)
	assert.Equal(t, 1, m.Unhealthy())
}

func TestMonitorPicksUpLateActors(t *testing.T) {
	dir, m := newTestMonitor(t)
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, dir.Start("late"))

	require.Eventually(t, func() bool {
		s, ok := statusOf(m, "late")
		return ok && s.Healthy && !s.LastSeen.IsZero()
	}, waitFor, 5*time.Millisecond)
}

func TestMonitorStartErrors(t *testing.T) {
	dir, m := newTestMonitor(t)
	require.NoError(t, dir.Start("monitor"))
	err := m.Start(context.Background())
	assert.ErrorIs(t, err, actor.ErrAlreadyExists)

	bad := NewMonitor(dir, Config{Name: "other"}, nil)
	assert.Error(t, bad.Start(context.Background()))
	bad.Stop()
}

func TestMonitorStopsWithContext(t *testing.T) {
	dir, m := newTestMonitor(t)
	require.NoError(t, dir.Start("A"))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("monitor did not stop")
	}
}
