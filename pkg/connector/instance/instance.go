// Package instance wraps a connector backend with lifecycle, bounds checking
// and serialization.
//
// An Instance is the only handle callers hold on a backend. It is created by
// the inventory in the Active state and moves to Released exactly once.
// After release every operation fails with a released error and the backend
// is never called again.
package instance

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/logger"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/memmap"
	"github.com/ajitpratap0/memgate/pkg/metrics"
)

// State is the lifecycle state of an Instance.
type State int32

const (
	StateCreated State = iota
	StateActive
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Lease keeps the module that provided a backend loaded. Release is called
// once, after the backend has been closed.
type Lease interface {
	Release()
}

// LeaseFunc adapts a function to Lease.
type LeaseFunc func()

// Release calls f.
func (f LeaseFunc) Release() { f() }

// Option configures an Instance.
type Option func(*Instance)

// WithLogger sets the instance logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Instance) {
		i.logger = l
	}
}

// WithReleaseHook registers fn to run after the instance is released.
func WithReleaseHook(fn func(*Instance)) Option {
	return func(i *Instance) {
		i.onRelease = append(i.onRelease, fn)
	}
}

// Instance is an owned connector backend.
type Instance struct {
	name    string
	backend core.Backend
	lease   Lease
	meta    core.Metadata

	// life guards the backend against Release. Operations hold it shared.
	life sync.RWMutex
	// io serializes backend calls for backends that are not thread safe.
	io    sync.Mutex
	state atomic.Int32

	logger    *zap.Logger
	onRelease []func(*Instance)
}

// New wraps backend. The instance owns backend and lease from here on; lease
// may be nil.
func New(name string, backend core.Backend, lease Lease, opts ...Option) (*Instance, error) {
	if backend == nil {
		return nil, memerrors.Newf(memerrors.ErrorTypeConnectorInitFailed,
			"connector %s returned no backend", name).WithDetail("connector", name)
	}

	inst := &Instance{
		name:    name,
		backend: backend,
		lease:   lease,
		meta:    backend.Metadata(),
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(inst)
	}
	inst.logger = inst.logger.With(zap.String("connector", name))
	inst.state.Store(int32(StateActive))

	metrics.LiveInstances.WithLabelValues(name).Inc()
	inst.logger.Debug("connector instance active",
		zap.Uint64("address_space", inst.meta.Size()),
		zap.Bool("read_only", inst.meta.ReadOnly),
		zap.Bool("thread_safe", inst.meta.ThreadSafe))
	return inst, nil
}

// Name returns the connector name.
func (i *Instance) Name() string { return i.name }

// State returns the current lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

func (i *Instance) released() error {
	return memerrors.Newf(memerrors.ErrorTypeReleased, "connector %s instance released", i.name)
}

// acquire takes the shared lifecycle lock. It fails without holding the lock
// once the instance is released.
func (i *Instance) acquire() error {
	i.life.RLock()
	if i.State() != StateActive {
		i.life.RUnlock()
		return i.released()
	}
	return nil
}

func (i *Instance) lockIO() func() {
	if i.meta.ThreadSafe {
		return func() {}
	}
	i.io.Lock()
	return i.io.Unlock
}

// Metadata returns the backend metadata captured at creation.
func (i *Instance) Metadata() (core.Metadata, error) {
	if err := i.acquire(); err != nil {
		return core.Metadata{}, err
	}
	defer i.life.RUnlock()
	return i.meta, nil
}

// ReadRaw reads length bytes at addr as a batch of one.
func (i *Instance) ReadRaw(addr address.PhysicalAddress, length int) ([]byte, error) {
	if length < 0 {
		return nil, memerrors.New(memerrors.ErrorTypeValidation, "negative read length")
	}
	if err := i.acquire(); err != nil {
		return nil, err
	}
	err := i.checkRange(addr, length)
	i.life.RUnlock()
	if err != nil {
		return nil, err
	}
	if length > core.MaxTransferLength {
		return nil, memerrors.Newf(memerrors.ErrorTypeValidation,
			"read of %#x bytes exceeds the %#x byte limit", length, core.MaxTransferLength)
	}

	buf := make([]byte, length)
	c := i.ReadBatch([]core.ReadRequest{{Addr: addr, Buf: buf}})[0]
	if c.Err != nil {
		return buf[:c.N], c.Err
	}
	return buf, nil
}

// WriteRaw writes data at addr as a batch of one.
func (i *Instance) WriteRaw(addr address.PhysicalAddress, data []byte) error {
	return i.WriteBatch([]core.WriteRequest{{Addr: addr, Data: data}})[0].Err
}

// ReadBatch dispatches reqs and returns one completion per request in order.
// Requests outside the address space fail individually and are not passed
// to the backend. A request filled only partially fails with short_read.
func (i *Instance) ReadBatch(reqs []core.ReadRequest) []core.Completion {
	if err := i.acquire(); err != nil {
		return core.FailAll(len(reqs), err)
	}
	defer i.life.RUnlock()

	out := make([]core.Completion, len(reqs))
	valid := make([]core.ReadRequest, 0, len(reqs))
	index := make([]int, 0, len(reqs))

	for n, req := range reqs {
		if err := i.checkRange(req.Addr, len(req.Buf)); err != nil {
			out[n].Err = err
			continue
		}
		valid = append(valid, req)
		index = append(index, n)
	}

	if len(valid) > 0 {
		metrics.BatchSize.WithLabelValues(i.name, "read").Observe(float64(len(valid)))

		results := i.dispatchRead(valid)

		i.merge(out, index, results, func(k int) int { return len(valid[k].Buf) })
	}

	i.account("read", out)
	return out
}

// WriteBatch is the write counterpart of ReadBatch. Read-only backends
// reject every request with unsupported.
func (i *Instance) WriteBatch(reqs []core.WriteRequest) []core.Completion {
	if err := i.acquire(); err != nil {
		return core.FailAll(len(reqs), err)
	}
	defer i.life.RUnlock()

	if i.meta.ReadOnly {
		out := core.FailAll(len(reqs), memerrors.Newf(memerrors.ErrorTypeUnsupported,
			"connector %s is read-only", i.name))
		i.account("write", out)
		return out
	}

	out := make([]core.Completion, len(reqs))
	valid := make([]core.WriteRequest, 0, len(reqs))
	index := make([]int, 0, len(reqs))

	for n, req := range reqs {
		if err := i.checkRange(req.Addr, len(req.Data)); err != nil {
			out[n].Err = err
			continue
		}
		valid = append(valid, req)
		index = append(index, n)
	}

	if len(valid) > 0 {
		metrics.BatchSize.WithLabelValues(i.name, "write").Observe(float64(len(valid)))

		results := i.dispatchWrite(valid)

		i.merge(out, index, results, func(k int) int { return len(valid[k].Data) })
	}

	i.account("write", out)
	return out
}

func (i *Instance) dispatchRead(reqs []core.ReadRequest) []core.Completion {
	defer i.lockIO()()
	return i.backend.ReadBatch(reqs)
}

func (i *Instance) dispatchWrite(reqs []core.WriteRequest) []core.Completion {
	defer i.lockIO()()
	return i.backend.WriteBatch(reqs)
}

// merge copies backend results into out. A backend returning the wrong
// number of completions fails the unmatched requests instead of panicking.
func (i *Instance) merge(out []core.Completion, index []int, results []core.Completion, want func(int) int) {
	if len(results) != len(index) {
		i.logger.Warn("backend returned wrong number of completions",
			zap.Int("requests", len(index)), zap.Int("completions", len(results)))
	}

	for k, n := range index {
		if k >= len(results) {
			out[n].Err = memerrors.Newf(memerrors.ErrorTypeInternal,
				"connector %s dropped request %d", i.name, n)
			continue
		}

		c := results[k]
		if c.N > want(k) {
			c.N = want(k)
		}
		if c.Err == nil && c.N < want(k) {
			c.Err = memerrors.Newf(memerrors.ErrorTypeShortRead,
				"connector %s transferred %d of %d bytes", i.name, c.N, want(k)).
				WithDetail("transferred", c.N).
				WithDetail("requested", want(k))
		}
		out[n] = c
	}
}

func (i *Instance) checkRange(addr address.PhysicalAddress, length int) error {
	if _, err := addr.End(uint64(length), address.MaxWidth); err != nil {
		return err
	}
	if !i.meta.InRange(addr, uint64(length)) {
		return memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"range %s+%#x exceeds address space of %#x", addr, length, i.meta.Size()).
			WithDetail("address", addr.Uint64()).
			WithDetail("length", length)
	}
	return nil
}

func (i *Instance) account(op string, out []core.Completion) {
	var total int
	for _, c := range out {
		if c.Err != nil {
			metrics.RecordError(i.name, op, c.Err)
			logger.TraceOn(i.logger, "request failed", zap.String("op", op), zap.Error(c.Err))
			continue
		}
		total += c.N
	}
	if total == 0 {
		return
	}
	if op == "read" {
		metrics.BytesRead.WithLabelValues(i.name).Add(float64(total))
	} else {
		metrics.BytesWritten.WithLabelValues(i.name).Add(float64(total))
	}
}

// SetMemoryMap replaces the backend's physical layout and refreshes the
// cached metadata. Backends that do not implement core.MemoryMapper fail
// with unsupported. It waits for in-flight operations.
func (i *Instance) SetMemoryMap(m *memmap.Map) error {
	i.life.Lock()
	defer i.life.Unlock()

	if i.State() != StateActive {
		return i.released()
	}

	mapper, ok := i.backend.(core.MemoryMapper)
	if !ok {
		return memerrors.Newf(memerrors.ErrorTypeUnsupported,
			"connector %s does not support memory maps", i.name)
	}

	if err := mapper.SetMemoryMap(m); err != nil {
		return err
	}
	i.meta = i.backend.Metadata()
	return nil
}

// Release closes the backend and releases the module lease. Only the first
// call has an effect; it waits for in-flight operations to finish. The
// backend's close error is returned but the instance is released regardless.
func (i *Instance) Release() error {
	i.life.Lock()
	if i.State() == StateReleased {
		i.life.Unlock()
		return nil
	}
	i.state.Store(int32(StateReleased))

	err := i.backend.Close()
	i.backend = nil
	i.life.Unlock()

	if i.lease != nil {
		i.lease.Release()
		i.lease = nil
	}

	metrics.LiveInstances.WithLabelValues(i.name).Dec()
	if err != nil {
		i.logger.Warn("connector close failed", zap.Error(err))
		err = memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to close connector "+i.name)
	} else {
		i.logger.Debug("connector instance released")
	}

	for _, fn := range i.onRelease {
		fn(i)
	}
	return err
}
