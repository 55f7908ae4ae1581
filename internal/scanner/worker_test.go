package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/netaudit/shapeaudit/internal/audit"
	"github.com/netaudit/shapeaudit/internal/device"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(ch <-chan *audit.Record) map[string][]*audit.Record {
	out := make(map[string][]*audit.Record)
	for rec := range ch {
		out[rec.Address] = append(out[rec.Address], rec)
	}
	return out
}

func TestWorkerPoolCompleteness(t *testing.T) {
	devices := make(map[string]fakeDevice)
	var addresses []string
	for i := 0; i < 60; i++ {
		addr := fmt.Sprintf("10.1.0.%d", i)
		addresses = append(addresses, addr)
		switch i % 5 {
		case 0:
			devices[addr] = healthy(fmt.Sprintf("edge%02d", i), 10000, 10000000)
		case 1:
			devices[addr] = fakeDevice{dialErr: errors.New("connection refused")}
		case 2:
			dev := healthy(fmt.Sprintf("edge%02d", i), 10000, 10000000)
			dev.runErr = map[string]error{CmdBandwidth: &device.CommandError{Command: CmdBandwidth, Err: device.ErrRejected}}
			devices[addr] = dev
		case 3:
			dev := healthy(fmt.Sprintf("edge%02d", i), 1, 1000)
			dev.shape = "shape average lots"
			devices[addr] = dev
		case 4:
			devices[addr] = fakeDevice{hostname: fmt.Sprintf("hostname be%02d", i)}
		}
	}

	d := newFakeDialer(devices)
	d.latency = 2 * time.Millisecond
	a, _ := newTestAuditor(d, false)

	got := collect(RunWorkerPool(context.Background(), a, addresses, WorkerConfig{Threads: 4}))

	require.Len(t, got, len(addresses))
	faults := map[audit.FaultKind]int{}
	for _, addr := range addresses {
		recs := got[addr]
		require.Len(t, recs, 1, addr)
		assert.Equal(t, 1, d.dialCount(addr), addr)
		faults[recs[0].Fault]++
	}
	assert.Equal(t, 12, faults[audit.FaultConnectivity])
	assert.Equal(t, 12, faults[audit.FaultProtocol])
	assert.Equal(t, 12, faults[audit.FaultEngine])
	assert.Equal(t, 24, faults[audit.FaultNone])

	assert.LessOrEqual(t, d.maxActive.Load(), int32(4))
	assert.Equal(t, int32(0), d.active.Load())
}

func TestWorkerPoolCoercesThreads(t *testing.T) {
	d := newFakeDialer(map[string]fakeDevice{
		"10.2.0.1": healthy("a", 1, 1000),
		"10.2.0.2": healthy("b", 1, 1000),
	})
	a, _ := newTestAuditor(d, false)

	got := collect(RunWorkerPool(context.Background(), a, []string{"10.2.0.1", "10.2.0.2"}, WorkerConfig{Threads: 0}))
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), d.maxActive.Load())
}

func TestWorkerPoolEmpty(t *testing.T) {
	a, _ := newTestAuditor(newFakeDialer(nil), false)
	got := collect(RunWorkerPool(context.Background(), a, nil, WorkerConfig{Threads: 3}))
	assert.Empty(t, got)
}

func TestWorkerPoolCancellation(t *testing.T) {
	devices := make(map[string]fakeDevice)
	var addresses []string
	for i := 0; i < 40; i++ {
		addr := fmt.Sprintf("10.3.0.%d", i)
		addresses = append(addresses, addr)
		devices[addr] = healthy(fmt.Sprintf("edge%02d", i), 1, 1000)
	}
	d := newFakeDialer(devices)
	d.latency = 20 * time.Millisecond
	a, _ := newTestAuditor(d, false)

	ctx, cancel := context.WithCancel(context.Background())
	ch := RunWorkerPool(ctx, a, addresses, WorkerConfig{Threads: 2})

	got := make(map[string][]*audit.Record)
	n := 0
	for rec := range ch {
		got[rec.Address] = append(got[rec.Address], rec)
		n++
		if n == 3 {
			cancel()
		}
	}
	cancel()

	require.Len(t, got, len(addresses), "one record per address even after cancel")
	canceled := 0
	for _, addr := range addresses {
		recs := got[addr]
		require.Len(t, recs, 1, addr)
		if recs[0].Fault == audit.FaultCanceled {
			canceled++
			assert.Equal(t, audit.StatusFail, recs[0].Status)
			if d.dialCount(addr) == 0 {
				assert.Equal(t, addr+" - audit interrupted before device was contacted", recs[0].Comment)
			}
		}
	}
	assert.Greater(t, canceled, 0)
	assert.Equal(t, int32(0), d.active.Load())
}

func TestWorkerPoolCanceledWhilePaused(t *testing.T) {
	d := newFakeDialer(map[string]fakeDevice{"10.4.0.1": healthy("a", 1, 1000)})
	a, _ := newTestAuditor(d, false)

	p := NewPauser()
	p.Toggle()

	ctx, cancel := context.WithCancel(context.Background())
	ch := RunWorkerPool(ctx, a, []string{"10.4.0.1", "10.4.0.2", "10.4.0.3"}, WorkerConfig{Threads: 1, Pauser: p})

	time.Sleep(20 * time.Millisecond)
	cancel()

	got := collect(ch)
	require.Len(t, got, 3)
	for addr, recs := range got {
		assert.Equal(t, audit.FaultCanceled, recs[0].Fault, addr)
	}
	assert.Equal(t, 0, d.dialCount("10.4.0.1"))
}

func TestWorkerPoolThrottleFeedback(t *testing.T) {
	devices := map[string]fakeDevice{}
	var addresses []string
	for i := 0; i < 4; i++ {
		addr := fmt.Sprintf("10.5.0.%d", i)
		addresses = append(addresses, addr)
		devices[addr] = fakeDevice{dialErr: errors.New("connection reset")}
	}
	log, _ := logtest.NewNullLogger()
	th := NewThrottler(0, true, log)
	a, _ := newTestAuditor(newFakeDialer(devices), false)

	got := collect(RunWorkerPool(context.Background(), a, addresses, WorkerConfig{Threads: 1, Throttler: th}))
	assert.Len(t, got, 4)
	assert.Greater(t, th.Delay(), time.Duration(0))
}
