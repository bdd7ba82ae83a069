package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memmaker/chunkforge/engine/sched"
	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
	"github.com/memmaker/chunkforge/world"
)

// runBench times a full generate+mesh pass and then a series of edit+remesh
// rounds over every chunk. With -metrics set it serves the scheduler and
// buffer pool counters for scraping while the rounds run.
func runBench(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	rounds := fs.Int("rounds", 0, "remesh rounds, overrides the config")
	metricsAddr := fs.String("metrics", "", "serve prometheus metrics on this address, e.g. :2112")
	hold := fs.Bool("hold", false, "keep serving metrics after the rounds until interrupted")
	fs.Parse(args)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *rounds > 0 {
		cfg.Bench.Rounds = *rounds
	}
	if *metricsAddr != "" {
		cfg.Bench.MetricsAddr = *metricsAddr
	}

	scheduler, err := newScheduler(cfg, nil)
	if err != nil {
		return err
	}
	defer shutdownScheduler(scheduler)

	reg := world.DefaultRegistry()
	pool := voxel.NewBufferPool(cfg.World.ChunkSize, 32)

	if cfg.Bench.MetricsAddr != "" {
		serveMetrics(cfg.Bench.MetricsAddr, scheduler, pool)
	}

	biome, err := newBiome(cfg, reg)
	if err != nil {
		return err
	}
	meshed := 0
	m, err := world.NewManager(world.Options{
		ChunkSize:  cfg.World.ChunkSize,
		Dimensions: cfg.worldDimensions(),
		Registry:   reg,
		Scheduler:  scheduler,
		Pool:       pool,
		Biome:      biome,
		OnMesh: func(coord voxel.Int3, mesh *voxel.MeshData) {
			meshed++
			pool.ReleaseMesh(mesh)
		},
	})
	if err != nil {
		return err
	}

	timer := util.NewTimer()
	stop := timer.Start("initial generate+mesh")
	if err := m.GenerateAll(); err != nil {
		return err
	}
	if err := pump(ctx, m); err != nil {
		return err
	}
	stop()

	stone, _ := reg.ByName("stone")
	size := m.Size()
	dims := m.Dimensions()
	for round := 0; round < cfg.Bench.Rounds; round++ {
		stop := timer.Start("edit+remesh round")
		// one edit per chunk, alternating between placing and clearing
		local := voxel.Int3{
			X: int32(round) % size,
			Y: size / 2,
			Z: int32(round*7) % size,
		}
		id := stone
		if round%2 == 1 {
			id = voxel.Air
		}
		for cz := int32(0); cz < dims.Z; cz++ {
			for cy := int32(0); cy < dims.Y; cy++ {
				for cx := int32(0); cx < dims.X; cx++ {
					origin := voxel.Int3{X: cx, Y: cy, Z: cz}.Mul(size)
					m.SetBlock(origin.Add(local), id)
				}
			}
		}
		if err := pump(ctx, m); err != nil {
			return err
		}
		stop()
	}

	stats := scheduler.Stats()
	poolStats := pool.Stats()
	fmt.Printf("bench done: %d meshes over %d rounds\n", meshed, cfg.Bench.Rounds)
	fmt.Printf("jobs: %d completed, %d canceled, %d failed, %d rejected\n", stats.Completed, stats.Canceled, stats.Failed, stats.Rejected)
	fmt.Printf("buffers: %d hits, %d misses, %d drops\n%s\n", poolStats.Hits, poolStats.Misses, poolStats.Drops, timer.String())

	if cfg.Bench.MetricsAddr != "" && *hold {
		fmt.Printf("serving metrics on %s, interrupt to exit\n", cfg.Bench.MetricsAddr)
		<-ctx.Done()
	}
	return nil
}

// serveMetrics exposes the job and buffer counters on addr. The server
// lives for the rest of the process.
func serveMetrics(addr string, scheduler *sched.Scheduler, pool *voxel.BufferPool) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(sched.NewCollector(scheduler))
	promReg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "chunkforge",
		Subsystem: "buffers",
		Name:      "hits_total",
		Help:      "Buffer requests served from the pool.",
	}, func() float64 { return float64(pool.Stats().Hits) }))
	promReg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "chunkforge",
		Subsystem: "buffers",
		Name:      "misses_total",
		Help:      "Buffer requests that had to allocate.",
	}, func() float64 { return float64(pool.Stats().Misses) }))
	promReg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "chunkforge",
		Subsystem: "buffers",
		Name:      "drops_total",
		Help:      "Returned buffers discarded because the pool was full.",
	}, func() float64 { return float64(pool.Stats().Drops) }))

	go func() {
		util.LogSchedInfo(fmt.Sprintf("[Sched] metrics on %s", addr))
		if err := http.ListenAndServe(addr, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})); err != nil {
			util.LogSchedError(fmt.Sprintf("[Sched] metrics server: %v", err))
		}
	}()
}
