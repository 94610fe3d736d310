// Package cache provides a page cache in front of a connector backend.
//
// Reads are served from fixed-size, page-aligned blocks kept in LRU order.
// Missing pages of one batch are fetched from the backend in a single batch.
// Writes go straight to the backend and invalidate every page they touch.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/memmap"
	"github.com/ajitpratap0/memgate/pkg/metrics"
)

// DefaultPageSize is used when neither the caller nor the backend names one.
const DefaultPageSize = 4096

type page struct {
	base uint64
	// data may be shorter than the page size at the end of the address space.
	data []byte
}

// Cache is a core.Backend serving reads through an LRU page cache.
type Cache struct {
	inner    core.Backend
	meta     core.Metadata
	pageSize uint64
	capacity int

	mu    sync.Mutex
	lru   *list.List
	pages map[uint64]*list.Element

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New wraps inner with a cache of pages entries of pageSize bytes. A zero
// pageSize takes the backend's page size.
func New(inner core.Backend, pages int, pageSize uint64) (*Cache, error) {
	if pages <= 0 {
		return nil, memerrors.New(memerrors.ErrorTypeValidation, "cache needs at least one page")
	}

	meta := inner.Metadata()
	if pageSize == 0 {
		pageSize = meta.PageSize
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if !address.IsPowerOfTwo(pageSize) {
		return nil, memerrors.Newf(memerrors.ErrorTypeValidation,
			"cache page size %#x is not a power of two", pageSize)
	}

	return &Cache{
		inner:    inner,
		meta:     meta,
		pageSize: pageSize,
		capacity: pages,
		lru:      list.New(),
		pages:    make(map[uint64]*list.Element, pages),
	}, nil
}

// PageSize returns the cache granularity.
func (c *Cache) PageSize() uint64 { return c.pageSize }

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached pages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Flush drops every cached page.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Cache) flushLocked() {
	c.lru.Init()
	c.pages = make(map[uint64]*list.Element, c.capacity)
}

func (c *Cache) pageBase(addr uint64) uint64 {
	return addr &^ (c.pageSize - 1)
}

// pageLen returns how many bytes of the page at base exist, 0 past the end
// of a known address space.
func (c *Cache) pageLen(base uint64) uint64 {
	if !c.meta.SizeKnown() {
		return c.pageSize
	}
	size := c.meta.Size()
	if base >= size {
		return 0
	}
	return min(c.pageSize, size-base)
}

func (c *Cache) lookup(base uint64) *page {
	el, ok := c.pages[base]
	if !ok {
		return nil
	}
	c.lru.MoveToFront(el)
	return el.Value.(*page)
}

func (c *Cache) insert(p *page) {
	if el, ok := c.pages[p.base]; ok {
		el.Value = p
		c.lru.MoveToFront(el)
		return
	}
	c.pages[p.base] = c.lru.PushFront(p)
	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.pages, oldest.Value.(*page).base)
	}
}

func (c *Cache) invalidate(start, length uint64) {
	if length == 0 {
		return
	}
	last := c.pageBase(start + length - 1)
	for base := c.pageBase(start); ; base += c.pageSize {
		if el, ok := c.pages[base]; ok {
			c.lru.Remove(el)
			delete(c.pages, base)
		}
		if base >= last {
			break
		}
	}
}

// ReadBatch serves reqs from cached pages, fetching missing pages first.
func (c *Cache) ReadBatch(reqs []core.ReadRequest) []core.Completion {
	c.mu.Lock()
	defer c.mu.Unlock()

	fetched := make(map[uint64]*page)
	failed := make(map[uint64]error)
	var missing []uint64

	for _, req := range reqs {
		if len(req.Buf) == 0 {
			continue
		}
		start := req.Addr.Uint64()
		last := c.pageBase(start + uint64(len(req.Buf)) - 1)
		for base := c.pageBase(start); ; base += c.pageSize {
			if _, seen := fetched[base]; !seen {
				// Hits are pinned in fetched so inserting missing pages
				// cannot evict them before assembly.
				if p := c.lookup(base); p != nil {
					c.hits.Add(1)
					metrics.CacheLookups.WithLabelValues("hit").Inc()
					fetched[base] = p
				} else {
					c.misses.Add(1)
					metrics.CacheLookups.WithLabelValues("miss").Inc()
					fetched[base] = nil
					missing = append(missing, base)
				}
			}
			if base >= last {
				break
			}
		}
	}

	c.fetch(missing, fetched, failed)

	out := make([]core.Completion, len(reqs))
	for i, req := range reqs {
		out[i] = c.assemble(req, fetched, failed)
	}
	return out
}

func (c *Cache) fetch(missing []uint64, fetched map[uint64]*page, failed map[uint64]error) {
	if len(missing) == 0 {
		return
	}

	preqs := make([]core.ReadRequest, 0, len(missing))
	bases := make([]uint64, 0, len(missing))
	for _, base := range missing {
		n := c.pageLen(base)
		if n == 0 {
			failed[base] = memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
				"page %#x beyond address space", base)
			continue
		}
		preqs = append(preqs, core.ReadRequest{Addr: address.From(base), Buf: make([]byte, n)})
		bases = append(bases, base)
	}
	if len(preqs) == 0 {
		return
	}

	results := c.inner.ReadBatch(preqs)
	for k, base := range bases {
		if k >= len(results) {
			failed[base] = memerrors.New(memerrors.ErrorTypeInternal, "backend dropped page request")
			continue
		}
		n := min(max(results[k].N, 0), len(preqs[k].Buf))
		p := &page{base: base, data: preqs[k].Buf[:n]}
		if err := results[k].Err; err != nil {
			// Bytes before the failure are still served for this batch,
			// but the page is not cached.
			failed[base] = err
			if n > 0 {
				fetched[base] = p
			}
			continue
		}
		fetched[base] = p
		c.insert(p)
	}
}

// assemble copies one request out of the pages gathered for its batch. It
// stops at the first failed or short page, returning the page's error.
func (c *Cache) assemble(req core.ReadRequest, fetched map[uint64]*page, failed map[uint64]error) core.Completion {
	start := req.Addr.Uint64()
	off := 0

	for off < len(req.Buf) {
		addr := start + uint64(off)
		base := c.pageBase(addr)

		p := fetched[base]
		if p == nil {
			if err, ok := failed[base]; ok {
				return core.Completion{N: off, Err: err}
			}
			return core.Completion{N: off, Err: memerrors.Newf(memerrors.ErrorTypeInternal,
				"page %#x missing from cache batch", base)}
		}

		inPage := addr - base
		if inPage >= uint64(len(p.data)) {
			return core.Completion{N: off, Err: failed[base]}
		}
		off += copy(req.Buf[off:], p.data[inPage:])
		if uint64(len(p.data)) < c.pageSize && off < len(req.Buf) {
			return core.Completion{N: off, Err: failed[base]}
		}
	}
	return core.Completion{N: off}
}

// WriteBatch writes through to the backend and invalidates the touched
// pages.
func (c *Cache) WriteBatch(reqs []core.WriteRequest) []core.Completion {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, req := range reqs {
		c.invalidate(req.Addr.Uint64(), uint64(len(req.Data)))
	}
	return c.inner.WriteBatch(reqs)
}

// Metadata returns the backend metadata. The cache serializes access
// itself, so a thread-safe backend stays thread safe.
func (c *Cache) Metadata() core.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// SetMemoryMap flushes the cache and forwards m to the backend.
func (c *Cache) SetMemoryMap(m *memmap.Map) error {
	mapper, ok := c.inner.(core.MemoryMapper)
	if !ok {
		return memerrors.New(memerrors.ErrorTypeUnsupported, "backend does not support memory maps")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := mapper.SetMemoryMap(m); err != nil {
		return err
	}
	c.flushLocked()
	c.meta = c.inner.Metadata()
	return nil
}

// Close closes the backend.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
	return c.inner.Close()
}
