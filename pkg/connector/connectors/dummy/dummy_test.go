package dummy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/connector/inventory"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/physmem"
	"github.com/ajitpratap0/memgate/pkg/testutil"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name string
		args string
		want Config
	}{
		{"defaults", "", Config{Size: DefaultSize}},
		{"positional size", "1M", Config{Size: address.MiB}},
		{"size key", "size=0x2000,pattern=0xcc", Config{Size: 0x2000, Pattern: 0xcc}},
		{"leading flag", "readonly,size=4k", Config{Size: 4096, ReadOnly: true}},
		{"threadsafe", "64k,threadsafe", Config{Size: 64 * address.KiB, ThreadSafe: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConfigErrors(t *testing.T) {
	for _, args := range []string{"size=0", "pattern=0x100", "size=lots", "readonly=maybe"} {
		_, err := ParseConfig(args)
		assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation), args)
	}
}

func TestHostMemoryGuard(t *testing.T) {
	orig := availableMemory
	availableMemory = func() (uint64, error) { return 8192, nil }
	t.Cleanup(func() { availableMemory = orig })

	_, err := factory(context.Background(), "size=16k")
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))

	b, err := factory(context.Background(), "size=4k")
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}

func TestBackend(t *testing.T) {
	b := New(Config{Size: 0x1000, Pattern: 0xaa})
	md := b.Metadata()
	assert.Equal(t, uint64(0x1000), md.Size())
	assert.False(t, md.ReadOnly)

	buf := make([]byte, 4)
	out := b.ReadBatch([]core.ReadRequest{
		{Addr: testutil.Addr(0x10), Buf: buf},
		{Addr: testutil.Addr(0x2000), Buf: make([]byte, 1)},
	})
	require.Len(t, out, 2)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, []byte{0xaa, 0xaa, 0xaa, 0xaa}, buf)
	assert.True(t, memerrors.IsType(out[1].Err, memerrors.ErrorTypeOutOfBounds))

	ro := New(Config{Size: 0x1000, ReadOnly: true})
	wout := ro.WriteBatch([]core.WriteRequest{{Addr: testutil.Addr(0), Data: []byte{1}}})
	assert.True(t, memerrors.IsType(wout[0].Err, memerrors.ErrorTypeUnsupported))
}

func TestRegisteredBuiltin(t *testing.T) {
	ctx := testutil.TestContext(t)

	inv := inventory.New(inventory.WithLogger(testutil.TestLogger(t)))
	defer inv.Destroy()

	_, ok := inv.Lookup(Name)
	require.True(t, ok)

	inst, err := inv.Create(ctx, Name, "size=8k")
	require.NoError(t, err)
	defer inst.Release()

	require.NoError(t, physmem.WriteScalar[uint32](inst, testutil.Addr(0x1ff0), 0xcafef00d))
	v, err := physmem.ReadScalar[uint32](inst, testutil.Addr(0x1ff0))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xcafef00d), v)

	_, err = physmem.ReadScalar[uint64](inst, testutil.Addr(0x1ffc))
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))
}
