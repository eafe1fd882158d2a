// Package sandbox provisions isolated working copies of the schema state.
// Every validation run gets its own copy; nothing a run does is visible to
// the live source or to any concurrent run.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"formsentry/pkg/domain"
)

// Handle is one sandbox instance. It owns a private copy of the schema state
// and the digest taken before any mutation, used afterwards to prove that
// rows outside the changeset were left untouched.
type Handle struct {
	mu       sync.Mutex
	state    domain.State
	digest   string
	released bool
}

// State returns the sandbox contents, or nil after release. Callers mutate
// the returned state directly; it is private to this handle.
func (h *Handle) State() domain.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Swap replaces the sandbox contents wholesale. The applier stages its work
// on a clone and commits it here, so a failed apply never leaves the sandbox
// half written.
func (h *Handle) Swap(state domain.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.state = state
}

// PreApplyDigest returns the digest of the sandbox contents at provisioning
// time.
func (h *Handle) PreApplyDigest() string { return h.digest }

// Release reclaims the sandbox storage. It is safe to call more than once
// and must run on every exit path, success or failure.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = nil
	h.released = true
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Provisioner builds sandbox handles from a schema source.
type Provisioner struct {
	source domain.SchemaSource
}

// NewProvisioner returns a provisioner reading from the given source.
func NewProvisioner(source domain.SchemaSource) *Provisioner {
	return &Provisioner{source: source}
}

// Snapshot reads one consistent copy of the live schema contents. Failures
// wrap ErrSnapshotFailed so callers can tell a provisioning fault from a
// validation outcome.
func (p *Provisioner) Snapshot(ctx context.Context) (domain.State, error) {
	state, err := p.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotFailed, err)
	}
	return state, nil
}

// Wrap turns an already-taken snapshot into a sandbox handle. The handle
// takes ownership of the state; callers may keep reading it as the pre-apply
// image but must not write through it.
func (p *Provisioner) Wrap(state domain.State) (*Handle, error) {
	digest, err := state.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: digest: %v", domain.ErrSnapshotFailed, err)
	}
	return &Handle{state: state, digest: digest}, nil
}

// Acquire snapshots the source and provisions a sandbox in one step.
func (p *Provisioner) Acquire(ctx context.Context) (*Handle, error) {
	state, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return p.Wrap(state)
}
