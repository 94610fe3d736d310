package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/memmap"
	"github.com/ajitpratap0/memgate/pkg/testutil"
)

func fill(b *testutil.MockBackend) {
	mem := b.Memory()
	for i := range mem {
		mem[i] = byte(i)
	}
}

func read(c *Cache, addr uint64, n int) core.Completion {
	return c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(addr), Buf: make([]byte, n)}})[0]
}

func TestNewValidation(t *testing.T) {
	b := testutil.NewMockBackend(0x1000)

	_, err := New(b, 0, 0)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))

	_, err = New(b, 4, 3000)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))

	c, err := New(b, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), c.PageSize())
}

func TestReadHitsAfterMiss(t *testing.T) {
	b := testutil.NewMockBackend(0x4000)
	fill(b)
	c, err := New(b, 4, 0x1000)
	require.NoError(t, err)

	buf := make([]byte, 4)
	out := c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0x10), Buf: buf}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, []byte{0x10, 0x11, 0x12, 0x13}, buf)

	out = c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0x20), Buf: buf}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, byte(0x20), buf[0])

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, int64(1), b.Calls())
}

func TestReadSpanningPages(t *testing.T) {
	b := testutil.NewMockBackend(0x4000)
	fill(b)
	c, err := New(b, 8, 0x1000)
	require.NoError(t, err)

	buf := make([]byte, 0x20)
	out := c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0xff0), Buf: buf}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, 0x20, out[0].N)
	assert.Equal(t, b.Memory()[0xff0:0x1010], buf)

	batches := b.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []uint64{0x0, 0x1000}, batches[0])
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	b := testutil.NewMockBackend(0x4000)
	fill(b)
	c, err := New(b, 2, 0x1000)
	require.NoError(t, err)

	read(c, 0x0000, 1)
	read(c, 0x1000, 1)
	read(c, 0x0000, 1)
	read(c, 0x2000, 1)
	assert.Equal(t, 2, c.Len())

	calls := b.Calls()
	read(c, 0x0000, 1)
	assert.Equal(t, calls, b.Calls(), "page 0 should still be cached")

	read(c, 0x1000, 1)
	assert.Equal(t, calls+1, b.Calls(), "page 1 should have been evicted")
}

func TestBatchLargerThanCapacity(t *testing.T) {
	b := testutil.NewMockBackend(0x4000)
	fill(b)
	c, err := New(b, 1, 0x1000)
	require.NoError(t, err)

	out := c.ReadBatch([]core.ReadRequest{
		{Addr: testutil.Addr(0x0001), Buf: make([]byte, 1)},
		{Addr: testutil.Addr(0x1002), Buf: make([]byte, 1)},
		{Addr: testutil.Addr(0x2003), Buf: make([]byte, 1)},
	})
	for _, o := range out {
		assert.NoError(t, o.Err)
		assert.Equal(t, 1, o.N)
	}
	assert.Equal(t, 1, c.Len())
}

func TestWriteInvalidates(t *testing.T) {
	b := testutil.NewMockBackend(0x2000)
	c, err := New(b, 4, 0x1000)
	require.NoError(t, err)

	assert.Equal(t, byte(0), func() byte {
		buf := make([]byte, 1)
		c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0x10), Buf: buf}})
		return buf[0]
	}())

	out := c.WriteBatch([]core.WriteRequest{{Addr: testutil.Addr(0x10), Data: []byte{0x42}}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, 0, c.Len())

	buf := make([]byte, 1)
	c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0x10), Buf: buf}})
	assert.Equal(t, byte(0x42), buf[0])
}

func TestPartialLastPage(t *testing.T) {
	b := testutil.NewMockBackend(0x1800)
	fill(b)
	c, err := New(b, 4, 0x1000)
	require.NoError(t, err)

	got := read(c, 0x17fe, 2)
	assert.NoError(t, got.Err)
	assert.Equal(t, 2, got.N)

	got = read(c, 0x17fe, 4)
	assert.NoError(t, got.Err)
	assert.Equal(t, 2, got.N)

	got = read(c, 0x2000, 1)
	assert.True(t, memerrors.IsType(got.Err, memerrors.ErrorTypeOutOfBounds))
}

func TestBackendErrorsPerRequest(t *testing.T) {
	b := testutil.NewMockBackend(0x4000)
	b.FailAt[0x1000] = memerrors.New(memerrors.ErrorTypeIO, "bad page")
	c, err := New(b, 4, 0x1000)
	require.NoError(t, err)

	out := c.ReadBatch([]core.ReadRequest{
		{Addr: testutil.Addr(0x0), Buf: make([]byte, 1)},
		{Addr: testutil.Addr(0x1004), Buf: make([]byte, 1)},
	})
	assert.NoError(t, out[0].Err)
	assert.True(t, memerrors.IsType(out[1].Err, memerrors.ErrorTypeIO))
	assert.Equal(t, 1, c.Len())
}

func TestSetMemoryMapFlushes(t *testing.T) {
	b := testutil.NewMockBackend(0x4000)
	c, err := New(b, 4, 0x1000)
	require.NoError(t, err)

	read(c, 0, 1)
	require.Equal(t, 1, c.Len())

	require.NoError(t, c.SetMemoryMap(memmap.Identity(0x2000)))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(0x2000), c.Metadata().Size())

	require.NoError(t, c.Close())
	assert.True(t, b.Closed())
}

func TestSpanningReadKeepsHitPage(t *testing.T) {
	b := testutil.NewMockBackend(0x4000)
	fill(b)
	c, err := New(b, 1, 0x1000)
	require.NoError(t, err)

	require.NoError(t, read(c, 0x10, 4).Err)

	buf := make([]byte, 0x20)
	out := c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0xff0), Buf: buf}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, 0x20, out[0].N)
	assert.Equal(t, b.Memory()[0xff0:0x1010], buf)
	assert.Equal(t, 1, c.Len())
}

// holeBackend backs only the first mapped bytes of its address space.
type holeBackend struct {
	*testutil.MockBackend
	mapped uint64
}

func (h *holeBackend) ReadBatch(reqs []core.ReadRequest) []core.Completion {
	out := h.MockBackend.ReadBatch(reqs)
	for i, req := range reqs {
		start := req.Addr.Uint64()
		if start+uint64(len(req.Buf)) <= h.mapped {
			continue
		}
		var n int
		if start < h.mapped {
			n = int(h.mapped - start)
		}
		out[i] = core.Completion{N: n, Err: memerrors.New(memerrors.ErrorTypeOutOfBounds, "unmapped")}
	}
	return out
}

func TestPartialPageServesMappedBytes(t *testing.T) {
	b := &holeBackend{MockBackend: testutil.NewMockBackend(0x2000), mapped: 0x800}
	fill(b.MockBackend)
	c, err := New(b, 4, 0x1000)
	require.NoError(t, err)

	buf := make([]byte, 8)
	out := c.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0x100), Buf: buf}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, 8, out[0].N)
	assert.Equal(t, b.Memory()[0x100:0x108], buf)

	got := read(c, 0x7fc, 8)
	assert.Equal(t, 4, got.N)
	assert.True(t, memerrors.IsType(got.Err, memerrors.ErrorTypeOutOfBounds))

	assert.Equal(t, 0, c.Len(), "partially backed pages are not cached")
}
