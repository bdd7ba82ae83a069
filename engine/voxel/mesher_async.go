package voxel

import (
	"context"
	"fmt"

	"github.com/memmaker/chunkforge/engine/sched"
)

// MeshJob tracks one asynchronous meshing pass.
type MeshJob struct {
	origin Int3
	handle *sched.Handle
	result *MeshData
}

func (j *MeshJob) Origin() Int3 {
	return j.origin
}

// Done closes once the pass finished, failed or was canceled.
func (j *MeshJob) Done() <-chan struct{} {
	return j.handle.Done()
}

// Err reports the outcome; nil while the pass is still running.
func (j *MeshJob) Err() error {
	return j.handle.Err()
}

// Cancel asks the pass to stop. The mesher polls per cell, so a running
// pass winds down quickly; its output never surfaces.
func (j *MeshJob) Cancel() {
	j.handle.Cancel()
}

// Result returns the finished mesh, nil while running or after
// cancellation/failure. The mesh belongs to the caller; hand it back to the
// mesher's pool when done with it.
func (j *MeshJob) Result() *MeshData {
	select {
	case <-j.handle.Done():
		if j.handle.Err() != nil {
			return nil
		}
		return j.result
	default:
		return nil
	}
}

// Wait blocks for the pass and returns its mesh.
func (j *MeshJob) Wait(ctx context.Context) (*MeshData, error) {
	if err := j.handle.Wait(ctx); err != nil {
		return nil, err
	}
	return j.result, nil
}

// BeginMesh snapshots the volume on the submitter and runs the meshing pass
// on a scheduler worker, so later edits to the volume never leak into the
// pass. Neighbors are resolved once at submission; their volumes are read
// live at the borders, so the chunk owner keeps them stable while the job
// runs. A rejected submission returns the scheduler's error with every
// borrowed buffer back in the pool.
func BeginMesh(s *sched.Scheduler, m *Mesher, vol *Volume, origin Int3, resolver NeighborResolver) (*MeshJob, error) {
	if vol.Size() != m.pool.Size() {
		panic(fmt.Sprintf("voxel: volume size %d does not match mesher size %d", vol.Size(), m.pool.Size()))
	}
	job := &MeshJob{origin: origin}
	name := "mesh " + origin.ToString()

	// an all-air chunk needs no pass, but the caller still gets a job
	if value, uniform := vol.UniformValue(); uniform && value == Air {
		handle, err := s.Submit(name, func(context.Context) error {
			job.result = m.pool.AcquireMesh()
			return nil
		})
		if err != nil {
			return nil, err
		}
		job.handle = handle
		return job, nil
	}

	neighbors := resolver.Neighbors(origin)
	snapshot := m.pool.AcquireScratch()
	vol.Decompress(snapshot)

	handle, err := s.Submit(name, func(ctx context.Context) error {
		defer m.pool.ReleaseScratch(snapshot)
		mesh, meshErr := m.meshCells(ctx, snapshot, origin, neighbors)
		if meshErr != nil {
			return meshErr
		}
		job.result = mesh
		return nil
	})
	if err != nil {
		m.pool.ReleaseScratch(snapshot)
		return nil, err
	}
	job.handle = handle
	return job, nil
}
