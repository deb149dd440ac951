// Command poolbench exercises a thread pool under configurable load and
// prints scheduling statistics. It doubles as a smoke test for the
// Prometheus exporters: with --metrics-addr set, it serves /metrics while
// the benchmark runs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	threadpool "github.com/Swind/go-thread-pool"
	"github.com/Swind/go-thread-pool/core"
	poolprom "github.com/Swind/go-thread-pool/observability/prometheus"
)

func main() {
	app := &cli.App{
		Name:  "poolbench",
		Usage: "benchmark the thread pool scheduler under mixed-priority load",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Usage: "maximum foreground workers",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "background-workers",
				Usage: "maximum background workers (0 = derived)",
				Value: 0,
			},
			&cli.IntFlag{
				Name:  "tasks",
				Usage: "number of tasks to post per priority band",
				Value: 10000,
			},
			&cli.IntFlag{
				Name:  "sequences",
				Usage: "number of sequenced runners sharing the load",
				Value: 8,
			},
			&cli.DurationFlag{
				Name:  "task-duration",
				Usage: "busy time simulated by each task",
				Value: 100 * time.Microsecond,
			},
			&cli.IntFlag{
				Name:  "job-iterations",
				Usage: "iterations for the data-parallel job phase (0 = skip)",
				Value: 1000,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus /metrics on this address (empty = off)",
			},
		},
		Action: runBench,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "poolbench:", err)
		os.Exit(1)
	}
}

func runBench(c *cli.Context) error {
	reg := prom.NewRegistry()
	exporter, err := poolprom.NewMetricsExporter("poolbench", reg, poolprom.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("create metrics exporter: %w", err)
	}

	cfg := threadpool.DefaultConfig()
	cfg.MaxNumForegroundThreads = c.Int("workers")
	cfg.MaxNumBackgroundThreads = c.Int("background-workers")
	cfg.Metrics = exporter

	pool := threadpool.NewThreadPool("poolbench")
	if err := pool.Start(cfg); err != nil {
		return err
	}
	defer pool.Shutdown()

	poller, err := poolprom.NewSnapshotPoller(reg, 250*time.Millisecond)
	if err != nil {
		return fmt.Errorf("create snapshot poller: %w", err)
	}
	poller.AddPool(pool.Name(), pool)
	poller.Start(c.Context)
	defer poller.Stop()

	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintln(os.Stderr, "poolbench: metrics server:", err)
			}
		}()
		defer server.Close()
		fmt.Printf("serving metrics on %s/metrics\n", addr)
	}

	tasksPerBand := c.Int("tasks")
	busy := c.Duration("task-duration")

	fmt.Printf("posting %d tasks per priority band across %d sequences\n",
		tasksPerBand, c.Int("sequences"))

	var completed atomic.Int64
	start := time.Now()

	// Phase 1: mixed-priority parallel and sequenced load. Each posting
	// goroutine hammers one band so posting itself is contended.
	group, _ := errgroup.WithContext(c.Context)
	bands := []core.TaskTraits{
		threadpool.TraitsUserBlocking(),
		threadpool.TraitsUserVisible(),
		threadpool.TraitsBestEffort(),
	}
	runners := make([]*core.SequencedTaskRunner, c.Int("sequences"))
	for i := range runners {
		runners[i] = pool.CreateSequencedTaskRunner(bands[i%len(bands)])
	}
	for _, traits := range bands {
		band := traits
		group.Go(func() error {
			for i := 0; i < tasksPerBand; i++ {
				pool.PostTaskWithTraits(func(ctx context.Context) {
					spin(busy)
					completed.Add(1)
				}, band)
			}
			return nil
		})
	}
	group.Go(func() error {
		for i := 0; i < tasksPerBand; i++ {
			runners[i%len(runners)].PostTask(func(ctx context.Context) {
				spin(busy)
				completed.Add(1)
			})
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}
	pool.FlushForTesting()
	phase1 := time.Since(start)

	// Phase 2: one data-parallel job.
	jobIterations := c.Int("job-iterations")
	var jobDone atomic.Int64
	if jobIterations > 0 {
		remaining := atomic.Int64{}
		remaining.Store(int64(jobIterations))
		jobStart := time.Now()
		handle := pool.PostJob(func(ctx context.Context) {
			if remaining.Add(-1) >= 0 {
				spin(busy)
				jobDone.Add(1)
			}
		}, func() int {
			n := remaining.Load()
			if n < 0 {
				return 0
			}
			return int(n)
		}, threadpool.TraitsUserVisible())
		handle.Join()
		fmt.Printf("job phase: %d iterations in %v\n", jobDone.Load(), time.Since(jobStart))
	}

	total := completed.Load()
	fmt.Printf("task phase: %d tasks in %v (%.0f tasks/s)\n",
		total, phase1, float64(total)/phase1.Seconds())

	stats := pool.Stats()
	for _, g := range stats.Groups {
		fmt.Printf("group %s: workers=%d idle=%d queued=%d\n",
			g.Name, g.Workers, g.IdleWorkers, g.QueuedSources)
	}
	return nil
}

// spin burns CPU for roughly d without sleeping, so workers stay runnable.
func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}
