// Package shm backs a named, page-aligned shared-memory region with a
// monotonic write cursor so an out-of-process reader (e.g. a visualizer or
// a debugging tool) can observe in-flight capture audio without taking a
// lock. The producer is this process; the bridge is read-only to anyone
// else that maps it.
package shm

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Region is a named shared-memory ring used to mirror captured samples for
// external consumers. It is not consumed by this process itself: the
// session orchestrator only ever writes to it.
type Region struct {
	file     *os.File
	data     []byte
	path     string
	capacity int // sample capacity, excluding header

	writeCursor *atomic.Uint64
	finalized   *atomic.Uint64
}

// Create allocates (or truncates) a POSIX shared-memory-style file at path
// sized for capacitySamples float32 samples plus a small atomic header, and
// maps it PROT_READ|PROT_WRITE MAP_SHARED.
func Create(path string, capacitySamples int) (*Region, error) {
	if capacitySamples <= 0 {
		return nil, fmt.Errorf("shm: capacity must be > 0")
	}

	const headerBytes = 16 // two uint64 counters
	size := headerBytes + capacitySamples*4

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %q: %w", path, err)
	}

	if err := file.Truncate(int64(size)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("shm: truncate %q: %w", path, err)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("shm: mmap %q: %w", path, err)
	}

	r := &Region{
		file:     file,
		data:     data,
		path:     path,
		capacity: capacitySamples,
	}
	r.writeCursor = atomicUint64At(data, 0)
	r.finalized = atomicUint64At(data, 8)
	return r, nil
}

// atomicUint64At reinterprets 8 bytes of the mapping as an atomic.Uint64.
// The mapping is page-aligned by the kernel, so offset 0/8 are naturally
// aligned for 64-bit atomics.
func atomicUint64At(data []byte, offset int) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafePointerAt(data, offset))
}

// Write appends samples at the current cursor and publishes the new cursor
// with release ordering so a concurrent reader observing writeCursor with
// acquire ordering always sees fully written sample data behind it.
//
// writeCursor never exceeds capacity: a reader maps exactly 4*capacity
// bytes of sample data and trusts [0, writeCursor) to stay inside that
// mapping, so once the region fills, Write clamps instead of wrapping and
// reports how many of the given samples it actually accepted.
func (r *Region) Write(samples []float32) int {
	cursor := r.writeCursor.Load()
	if cursor >= uint64(r.capacity) {
		return 0
	}

	free := uint64(r.capacity) - cursor
	n := uint64(len(samples))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		putFloat32(r.data, 16+int(cursor+i)*4, samples[i])
	}
	r.writeCursor.Store(cursor + n)
	return int(n)
}

// Finalize marks the region as closed for writing. Readers use this to
// detect end-of-session without needing a separate control channel.
func (r *Region) Finalize() {
	r.finalized.Store(1)
}

// Cursor returns the number of samples published so far.
func (r *Region) Cursor() uint64 { return r.writeCursor.Load() }

// Finalized reports whether the region has been closed for writing.
func (r *Region) Finalized() bool { return r.finalized.Load() != 0 }

// Capacity returns the region's sample capacity.
func (r *Region) Capacity() int { return r.capacity }

// Path returns the filesystem path backing this mapping.
func (r *Region) Path() string { return r.path }

// Close unmaps and closes the backing file. The file itself is left on
// disk; callers that want cleanup should os.Remove(Path()) after Close.
func (r *Region) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("shm: munmap %q: %w", r.path, err)
	}
	return r.file.Close()
}
