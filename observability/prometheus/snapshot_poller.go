package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-thread-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports pool Stats() snapshots into Prometheus
// gauges. It complements MetricsExporter: the exporter records events inline
// on worker goroutines, the poller samples point-in-time state such as worker
// counts and queue depths per group.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	poolIncomplete *prom.GaugeVec
	poolDelayed    *prom.GaugeVec
	poolShutdown   *prom.GaugeVec

	groupWorkers *prom.GaugeVec
	groupIdle    *prom.GaugeVec
	groupQueued  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	poolIncomplete := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadpool",
		Name:      "pool_incomplete_tasks",
		Help:      "Tasks posted but not yet completed, per pool.",
	}, []string{"pool"})
	poolDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadpool",
		Name:      "pool_delayed_tasks",
		Help:      "Delayed tasks waiting to ripen, per pool.",
	}, []string{"pool"})
	poolShutdown := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadpool",
		Name:      "pool_shutdown_started",
		Help:      "Pool shutdown state (1=shutdown started, 0=running).",
	}, []string{"pool"})

	groupWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadpool",
		Name:      "group_workers",
		Help:      "Live worker goroutines per thread group.",
	}, []string{"pool", "group"})
	groupIdle := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadpool",
		Name:      "group_idle_workers",
		Help:      "Idle worker goroutines per thread group.",
	}, []string{"pool", "group"})
	groupQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadpool",
		Name:      "group_queued_sources",
		Help:      "Task sources queued per thread group.",
	}, []string{"pool", "group"})

	var err error
	if poolIncomplete, err = registerCollector(reg, poolIncomplete); err != nil {
		return nil, err
	}
	if poolDelayed, err = registerCollector(reg, poolDelayed); err != nil {
		return nil, err
	}
	if poolShutdown, err = registerCollector(reg, poolShutdown); err != nil {
		return nil, err
	}
	if groupWorkers, err = registerCollector(reg, groupWorkers); err != nil {
		return nil, err
	}
	if groupIdle, err = registerCollector(reg, groupIdle); err != nil {
		return nil, err
	}
	if groupQueued, err = registerCollector(reg, groupQueued); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		pools:          make(map[string]PoolSnapshotProvider),
		poolIncomplete: poolIncomplete,
		poolDelayed:    poolDelayed,
		poolShutdown:   poolShutdown,
		groupWorkers:   groupWorkers,
		groupIdle:      groupIdle,
		groupQueued:    groupQueued,
	}, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolIncomplete.WithLabelValues(name).Set(float64(stats.IncompleteTasks))
		p.poolDelayed.WithLabelValues(name).Set(float64(stats.DelayedTasks))
		if stats.ShutdownStarted {
			p.poolShutdown.WithLabelValues(name).Set(1)
		} else {
			p.poolShutdown.WithLabelValues(name).Set(0)
		}

		for _, group := range stats.Groups {
			groupLabel := normalizeLabel(group.Name, "group")
			p.groupWorkers.WithLabelValues(name, groupLabel).Set(float64(group.Workers))
			p.groupIdle.WithLabelValues(name, groupLabel).Set(float64(group.IdleWorkers))
			p.groupQueued.WithLabelValues(name, groupLabel).Set(float64(group.QueuedSources))
		}
	}
	p.poolsMu.RUnlock()
}
