package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/dkhalov/tlswire/pkg/pool"
	"github.com/dkhalov/tlswire/pkg/zerocopy"
)

func TestCollectorConns(t *testing.T) {
	c := NewCollector(nil)

	c.ConnOpened()
	c.ConnOpened()
	c.ConnClosed()
	c.ConnFailed()

	snap := c.Snapshot()
	if snap.ConnsActive != 1 {
		t.Errorf("ConnsActive = %d, want 1", snap.ConnsActive)
	}
	if snap.ConnsTotal != 2 {
		t.Errorf("ConnsTotal = %d, want 2", snap.ConnsTotal)
	}
	if snap.ConnsFailed != 1 {
		t.Errorf("ConnsFailed = %d, want 1", snap.ConnsFailed)
	}
}

func TestCollectorConnClosedUnderflow(t *testing.T) {
	c := NewCollector(nil)
	c.ConnClosed() // must not wrap below zero
	if snap := c.Snapshot(); snap.ConnsActive != 0 {
		t.Errorf("ConnsActive = %d, want 0", snap.ConnsActive)
	}
}

func TestCollectorRecords(t *testing.T) {
	c := NewCollector(nil)

	c.RecordSent(100)
	c.RecordSent(200)
	c.RecordReceived(50)

	snap := c.Snapshot()
	if snap.RecordsSent != 2 || snap.BytesSent != 300 {
		t.Errorf("sent = %d records / %d bytes", snap.RecordsSent, snap.BytesSent)
	}
	if snap.RecordsRecv != 1 || snap.BytesRecv != 50 {
		t.Errorf("recv = %d records / %d bytes", snap.RecordsRecv, snap.BytesRecv)
	}
}

func TestCollectorErrors(t *testing.T) {
	c := NewCollector(nil)

	c.RecordBadRecord()
	c.RecordAlertSent()
	c.RecordEncryptError()
	c.RecordDecryptError()
	c.RecordDecryptError()
	c.RecordKeyUpdate()

	snap := c.Snapshot()
	if snap.BadRecords != 1 || snap.AlertsSent != 1 || snap.EncryptErrors != 1 || snap.DecryptErrors != 2 || snap.KeyUpdates != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestCollectorZeroCopy(t *testing.T) {
	c := NewCollector(nil)

	c.MergeZeroCopy(zerocopy.Stats{InPlaceDecrypts: 10, CopyDecrypts: 2, BytesSaved: 4096})
	c.MergeZeroCopy(zerocopy.Stats{InPlaceDecrypts: 5, BytesSaved: 1024})

	snap := c.Snapshot()
	if snap.InPlaceDecrypts != 15 {
		t.Errorf("InPlaceDecrypts = %d, want 15", snap.InPlaceDecrypts)
	}
	if snap.CopyDecrypts != 2 {
		t.Errorf("CopyDecrypts = %d, want 2", snap.CopyDecrypts)
	}
	if snap.ZeroCopySaved != 5120 {
		t.Errorf("ZeroCopySaved = %d, want 5120", snap.ZeroCopySaved)
	}
}

func TestCollectorPoolGauges(t *testing.T) {
	c := NewCollector(nil)

	c.ObservePool(pool.Stats{Hits: 7, Misses: 3, ActiveBuffers: 2, PeakBuffers: 5})

	snap := c.Snapshot()
	if snap.PoolHits != 7 || snap.PoolMisses != 3 || snap.PoolActive != 2 || snap.PoolPeak != 5 {
		t.Errorf("pool gauges: %+v", snap)
	}
}

func TestCollectorLatency(t *testing.T) {
	c := NewCollector(nil)

	c.RecordEncryptLatency(30 * time.Microsecond)
	c.RecordDecryptLatency(70 * time.Microsecond)

	snap := c.Snapshot()
	if snap.EncryptLatency.Count != 1 {
		t.Errorf("encrypt latency count = %d", snap.EncryptLatency.Count)
	}
	if snap.DecryptLatency.Count != 1 {
		t.Errorf("decrypt latency count = %d", snap.DecryptLatency.Count)
	}
}

func TestCollectorConcurrency(t *testing.T) {
	c := NewCollector(nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.RecordSent(1)
				c.RecordReceived(1)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.RecordsSent != 8000 || snap.RecordsRecv != 8000 {
		t.Errorf("sent=%d recv=%d, want 8000 each", snap.RecordsSent, snap.RecordsRecv)
	}
}

func TestGlobalCollector(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	c := NewCollector(Labels{"test": "yes"})
	SetGlobal(c)
	if Global() != c {
		t.Error("SetGlobal did not take effect")
	}
}

func TestPoolObserverSample(t *testing.T) {
	c := NewCollector(nil)
	p := pool.NewBufferPool(64, 2)

	b := p.Acquire()
	o := NewPoolObserver(c, p, time.Hour)
	o.Sample()
	b.Release()

	snap := c.Snapshot()
	if snap.PoolActive != 1 {
		t.Errorf("PoolActive = %d, want 1", snap.PoolActive)
	}
	o.Stop()
}

func TestPoolObserverStartStop(t *testing.T) {
	c := NewCollector(nil)
	p := pool.NewBufferPool(64, 1)

	o := NewPoolObserver(c, p, 10*time.Millisecond)
	o.Start()
	b := p.Acquire()
	time.Sleep(30 * time.Millisecond)
	b.Release()
	o.Stop()

	if c.Snapshot().PoolPeak != 1 {
		t.Errorf("PoolPeak = %d, want 1", c.Snapshot().PoolPeak)
	}
}
