package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitoring_Counters(t *testing.T) {
	req := require.New(t)
	m := NewMonitoring()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.SessionOpened()
			m.IncrMessagesSent()
		}()
	}
	wg.Wait()
	m.SessionClosed()
	m.IncrDeliveryFailures()
	m.SetOnlineUsers(3)
	m.RecordSample(ProcessSample{RSSBytes: 1024, At: time.Now()})

	stats := m.Snapshot()
	req.Equal(int64(49), stats.OpenSessions)
	req.Equal(uint64(50), stats.MessagesSent)
	req.Equal(uint64(1), stats.DeliveryFailures)
	req.Equal(int64(3), stats.OnlineUsers)
	req.Equal(uint64(1024), stats.RSSBytes)
}

func TestMonitoring_Nil_Is_Noop(t *testing.T) {
	var m *Monitoring
	m.IncrMessagesSent()
	m.SessionOpened()
	require.Equal(t, Stats{}, m.Snapshot())
}
