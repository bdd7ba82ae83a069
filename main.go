package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/memmaker/chunkforge/engine/export"
	"github.com/memmaker/chunkforge/engine/sched"
	"github.com/memmaker/chunkforge/engine/store"
	"github.com/memmaker/chunkforge/engine/util"
	"github.com/memmaker/chunkforge/engine/voxel"
	"github.com/memmaker/chunkforge/world"
)

func usage() {
	fmt.Fprintln(os.Stderr, `chunkforge - voxel chunk pipeline

usage: chunkforge <command> [flags]

commands:
  gen      generate terrain and persist it to the chunk store
  mesh     generate and mesh a world once, print pipeline stats
  import   load a .construction file into the chunk store
  export   mesh a world and write it as glTF, OBJ or a PNG map
  view     open the interactive viewer
  bench    run repeated remesh rounds, optionally serving metrics

run 'chunkforge <command> -h' for the flags of a command.`)
}

func main() {
	// non-interactive runs only want the errors
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		util.GLOBAL_LOG_LEVEL = util.LogLevelError
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "gen":
		err = runGen(ctx, args)
	case "mesh":
		err = runMesh(ctx, args)
	case "import":
		err = runImport(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "view":
		err = runView(ctx, args)
	case "bench":
		err = runBench(ctx, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newScheduler(cfg Config, onEvent func(sched.Event, string)) (*sched.Scheduler, error) {
	policy, err := sched.ParsePolicy(cfg.Jobs.Policy)
	if err != nil {
		return nil, err
	}
	return sched.NewScheduler(sched.Options{
		Policy:     policy,
		Workers:    cfg.Jobs.Workers,
		QueueDepth: cfg.Jobs.QueueDepth,
		OnEvent:    onEvent,
	}), nil
}

func shutdownScheduler(s *sched.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		util.LogSchedError(fmt.Sprintf("[Sched] shutdown did not drain: %v", err))
	}
}

func newBiome(cfg Config, reg *voxel.AtlasRegistry) (world.Biome, error) {
	blocks := world.DefaultBlockSet(reg)
	extent := cfg.worldDimensions().Mul(cfg.World.ChunkSize)
	switch cfg.World.Biome {
	case "", "hills":
		return world.NewHeightmapBiome("hills", cfg.World.Seed, blocks, extent), nil
	case "flat":
		return world.FlatBiome{Height: extent.Y / 2, Blocks: blocks}, nil
	}
	return nil, errors.Errorf("unknown biome %q", cfg.World.Biome)
}

// pump ticks the pipeline until it drains or ctx ends.
func pump(ctx context.Context, m *world.Manager) error {
	for {
		m.Update()
		if m.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func runGen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	storePath := fs.String("store", "", "chunk store directory, overrides the config")
	fs.Parse(args)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	scheduler, err := newScheduler(cfg, nil)
	if err != nil {
		return err
	}
	defer shutdownScheduler(scheduler)

	reg := world.DefaultRegistry()
	biome, err := newBiome(cfg, reg)
	if err != nil {
		return err
	}
	m, err := world.NewManager(world.Options{
		ChunkSize:  cfg.World.ChunkSize,
		Dimensions: cfg.worldDimensions(),
		Registry:   reg,
		Scheduler:  scheduler,
		Biome:      biome,
		Store:      st,
	})
	if err != nil {
		return err
	}

	timer := util.NewTimer()
	stop := timer.Start("generate")
	if err := m.GenerateAll(); err != nil {
		return err
	}
	if err := pump(ctx, m); err != nil {
		return err
	}
	stop()
	if err := m.SaveAll(); err != nil {
		return err
	}
	fmt.Printf("generated %s chunks with biome %q\n%s\n", cfg.worldDimensions().ToString(), biome.Name(), timer.String())
	return nil
}

func runMesh(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mesh", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	fs.Parse(args)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	scheduler, err := newScheduler(cfg, nil)
	if err != nil {
		return err
	}
	defer shutdownScheduler(scheduler)

	reg := world.DefaultRegistry()
	biome, err := newBiome(cfg, reg)
	if err != nil {
		return err
	}
	pool := voxel.NewBufferPool(cfg.World.ChunkSize, 16)

	quads, triangles, nonEmpty := 0, 0, 0
	m, err := world.NewManager(world.Options{
		ChunkSize:  cfg.World.ChunkSize,
		Dimensions: cfg.worldDimensions(),
		Registry:   reg,
		Scheduler:  scheduler,
		Pool:       pool,
		Biome:      biome,
		OnMesh: func(coord voxel.Int3, mesh *voxel.MeshData) {
			if !mesh.Empty() {
				nonEmpty++
			}
			quads += mesh.QuadCount()
			triangles += mesh.TriangleCount()
			pool.ReleaseMesh(mesh)
		},
	})
	if err != nil {
		return err
	}

	timer := util.NewTimer()
	stop := timer.Start("generate+mesh")
	if err := m.GenerateAll(); err != nil {
		return err
	}
	if err := pump(ctx, m); err != nil {
		return err
	}
	stop()

	stats := scheduler.Stats()
	poolStats := pool.Stats()
	dims := m.Dimensions()
	fmt.Printf("meshed %d chunks (%d with geometry): %d quads, %d triangles\n", dims.X*dims.Y*dims.Z, nonEmpty, quads, triangles)
	fmt.Printf("jobs: %d completed, %d canceled, %d failed, %d rejected\n", stats.Completed, stats.Canceled, stats.Failed, stats.Rejected)
	fmt.Printf("buffers: %d hits, %d misses, %d drops\n%s\n", poolStats.Hits, poolStats.Misses, poolStats.Drops, timer.String())
	return nil
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	inPath := fs.String("in", "", "construction file to import")
	storePath := fs.String("store", "", "chunk store directory, overrides the config")
	fs.Parse(args)
	if *inPath == "" {
		return errors.New("import needs -in <file.construction>")
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	scheduler, err := newScheduler(cfg, nil)
	if err != nil {
		return err
	}
	defer shutdownScheduler(scheduler)

	reg := world.DefaultRegistry()
	m, err := world.ManagerFromConstruction(*inPath, reg, world.Options{
		ChunkSize: cfg.World.ChunkSize,
		Scheduler: scheduler,
		Store:     st,
	})
	if err != nil {
		return err
	}
	if err := pump(ctx, m); err != nil {
		return err
	}
	if err := m.SaveAll(); err != nil {
		return err
	}
	fmt.Printf("imported %q into %q as %s chunks\n", *inPath, cfg.Store.Path, m.Dimensions().ToString())
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	inPath := fs.String("in", "", "construction file to export instead of generated terrain")
	outPath := fs.String("out", "world.gltf", "output file, format chosen by extension (.gltf, .obj, .png)")
	mapScale := fs.Int("map-scale", 4, "pixels per block for .png maps")
	fs.Parse(args)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	scheduler, err := newScheduler(cfg, nil)
	if err != nil {
		return err
	}
	defer shutdownScheduler(scheduler)

	reg := world.DefaultRegistry()
	pool := voxel.NewBufferPool(cfg.World.ChunkSize, 16)
	meshes := make(map[voxel.Int3]*voxel.MeshData)
	opts := world.Options{
		ChunkSize: cfg.World.ChunkSize,
		Scheduler: scheduler,
		Pool:      pool,
		OnMesh: func(coord voxel.Int3, mesh *voxel.MeshData) {
			if old, ok := meshes[coord]; ok {
				pool.ReleaseMesh(old)
			}
			meshes[coord] = mesh
		},
	}

	var m *world.Manager
	if *inPath != "" {
		m, err = world.ManagerFromConstruction(*inPath, reg, opts)
	} else {
		opts.Registry = reg
		opts.Dimensions = cfg.worldDimensions()
		var biome world.Biome
		if biome, err = newBiome(cfg, reg); err != nil {
			return err
		}
		opts.Biome = biome
		if m, err = world.NewManager(opts); err == nil {
			err = m.GenerateAll()
		}
	}
	if err != nil {
		return err
	}
	if err := pump(ctx, m); err != nil {
		return err
	}

	chunks := make([]export.ChunkMesh, 0, len(meshes))
	for coord, mesh := range meshes {
		chunks = append(chunks, export.ChunkMesh{Origin: coord.Mul(m.Size()), Mesh: mesh})
	}
	sort.Slice(chunks, func(i, j int) bool {
		a, b := chunks[i].Origin, chunks[j].Origin
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	switch filepath.Ext(*outPath) {
	case ".obj":
		err = export.WriteOBJ(*outPath, chunks)
	case ".gltf", ".glb":
		err = export.WriteGLTF(*outPath, chunks)
	case ".png":
		err = export.WriteMapPNG(*outPath, m, reg, m.Dimensions().Mul(m.Size()), *mapScale)
	default:
		err = errors.Errorf("unknown export format %q", filepath.Ext(*outPath))
	}
	if err != nil {
		return err
	}
	if filepath.Ext(*outPath) == ".png" {
		fmt.Printf("exported map of %s chunks to %q\n", m.Dimensions().ToString(), *outPath)
	} else {
		fmt.Printf("exported %d chunk meshes to %q\n", len(chunks), *outPath)
	}
	return nil
}
