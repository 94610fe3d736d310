package coredump

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/compression"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/connector/inventory"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/memmap"
	"github.com/ajitpratap0/memgate/pkg/physmem"
	"github.com/ajitpratap0/memgate/pkg/testutil"
)

func snapshot() []byte {
	data := make([]byte, 0x3000)
	for i := range data {
		data[i] = byte(i >> 8)
	}
	return data
}

func writeSnapshot(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func read(t *testing.T, b core.Backend, addr uint64, n int) core.Completion {
	t.Helper()
	out := b.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(addr), Buf: make([]byte, n)}})
	require.Len(t, out, 1)
	return out[0]
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("/tmp/vm.raw,map=/tmp/vm.yaml")
	require.NoError(t, err)
	assert.Equal(t, Config{Path: "/tmp/vm.raw", MapFile: "/tmp/vm.yaml", Compression: "auto", MaxSize: DefaultMaxSize}, cfg)

	cfg, err = ParseConfig("path=/tmp/vm.zst,compression=zstd,maxsize=1G")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vm.zst", cfg.Path)
	assert.Equal(t, "zstd", cfg.Compression)

	_, err = ParseConfig("map=/tmp/vm.yaml")
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))
}

func TestMappedSnapshot(t *testing.T) {
	path := writeSnapshot(t, "vm.raw", snapshot())

	b, err := Open(context.Background(), Config{Path: path, Compression: "auto"})
	require.NoError(t, err)
	defer b.Close()

	md := b.Metadata()
	assert.True(t, md.ReadOnly)
	assert.Equal(t, uint64(0x3000), md.Size())

	c := read(t, b, 0x1ffe, 4)
	require.NoError(t, c.Err)
	assert.Equal(t, 4, c.N)

	w := b.WriteBatch([]core.WriteRequest{{Addr: testutil.Addr(0), Data: []byte{1}}})
	assert.True(t, memerrors.IsType(w[0].Err, memerrors.ErrorTypeUnsupported))
}

func TestCompressedSnapshot(t *testing.T) {
	data := snapshot()
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Zstd})
	require.NoError(t, err)
	packed, err := comp.Compress(data)
	require.NoError(t, err)

	path := writeSnapshot(t, "vm.dump", packed)

	b, err := Open(context.Background(), Config{Path: path, Compression: "auto", MaxSize: DefaultMaxSize})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, uint64(len(data)), b.Metadata().Size())

	buf := make([]byte, 2)
	out := b.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0x2100), Buf: buf}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, []byte{0x21, 0x21}, buf)

	_, err = Open(context.Background(), Config{Path: path, Compression: "zstd", MaxSize: 0x1000})
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))
}

func TestMemoryMap(t *testing.T) {
	path := writeSnapshot(t, "vm.raw", snapshot())

	m := memmap.New()
	require.NoError(t, m.Add(0, 0x1000, 0))
	require.NoError(t, m.Add(0x10000, 0x2000, 0x1000))
	mapFile := filepath.Join(t.TempDir(), "vm.yaml")
	require.NoError(t, m.SaveFile(mapFile))

	b, err := Open(context.Background(), Config{Path: path, MapFile: mapFile, Compression: "none"})
	require.NoError(t, err)
	defer b.Close()

	md := b.Metadata()
	assert.Equal(t, uint64(0x12000), md.Size())
	assert.Equal(t, uint64(0x3000), md.RealSize)

	buf := make([]byte, 1)
	out := b.ReadBatch([]core.ReadRequest{{Addr: testutil.Addr(0x10000), Buf: buf}})
	require.NoError(t, out[0].Err)
	assert.Equal(t, byte(0x10), buf[0])

	c := read(t, b, 0xff0, 0x20)
	assert.True(t, memerrors.IsType(c.Err, memerrors.ErrorTypeOutOfBounds))
	assert.Equal(t, 0x10, c.N)

	bad := memmap.New()
	require.NoError(t, bad.Add(0, 0x4000, 0))
	assert.True(t, memerrors.IsType(b.SetMemoryMap(bad), memerrors.ErrorTypeOutOfBounds))
}

func TestThroughInventory(t *testing.T) {
	ctx := testutil.TestContext(t)
	path := writeSnapshot(t, "vm.raw", snapshot())

	inv := inventory.New(inventory.WithLogger(testutil.TestLogger(t)))
	defer inv.Destroy()

	inst, err := inv.Create(ctx, Name, path)
	require.NoError(t, err)
	defer inst.Release()

	v, err := physmem.ReadScalar[uint16](inst, testutil.Addr(0x2ffe))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2f2f), v)

	assert.True(t, memerrors.IsType(physmem.WriteScalar[uint8](inst, testutil.Addr(0), 1), memerrors.ErrorTypeUnsupported))

	require.NoError(t, inst.SetMemoryMap(memmap.Identity(0x1000)))
	md, err := inst.Metadata()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), md.Size())

	_, err = inv.Create(ctx, Name, filepath.Join(t.TempDir(), "missing.raw"))
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeConnectorInitFailed))
}
