package testutil

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// fakePluginMagic starts every file FakeLoader accepts.
const fakePluginMagic = "MEMGATE-FAKE-PLUGIN"

// WriteFakePlugin writes a plugin file FakeLoader understands and returns
// its path. abi 0 means core.ABIVersion.
func WriteFakePlugin(t *testing.T, dir, file, name string, abi uint32) string {
	t.Helper()
	if abi == 0 {
		abi = core.ABIVersion
	}

	content := strings.Join([]string{
		fakePluginMagic,
		"name=" + name,
		"version=1.0.0",
		"abi=" + strconv.FormatUint(uint64(abi), 10),
	}, "\n")

	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// FakeLoader loads text files written by WriteFakePlugin. Every loaded
// module exports a descriptor whose factory is looked up in Factories by
// connector name, defaulting to a 1 MiB MockBackend.
type FakeLoader struct {
	mu        sync.Mutex
	Factories map[string]core.Factory
	loaded    map[string]int
	closed    map[string]int
}

// NewFakeLoader returns an empty loader.
func NewFakeLoader() *FakeLoader {
	return &FakeLoader{
		Factories: make(map[string]core.Factory),
		loaded:    make(map[string]int),
		closed:    make(map[string]int),
	}
}

// Load implements core.ModuleLoader.
func (l *FakeLoader) Load(path string) (core.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to read plugin")
	}
	if !bytes.HasPrefix(data, []byte(fakePluginMagic)) {
		return nil, memerrors.New(memerrors.ErrorTypePluginLoadFailed, "not a plugin: bad header").
			WithDetail("path", path)
	}

	desc := core.Descriptor{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "name":
			desc.Name = value
		case "version":
			desc.Version = value
		case "abi":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, memerrors.Wrap(err, memerrors.ErrorTypePluginLoadFailed, "bad abi field")
			}
			desc.ABIVersion = uint32(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.Factories[desc.Name]; ok {
		desc.Factory = f
	} else {
		desc.Factory = MockDescriptor(desc.Name, func(string) (core.Backend, error) {
			return NewMockBackend(1 << 20), nil
		}).Factory
	}
	desc.Description = "fake plugin " + filepath.Base(path)

	l.loaded[path]++
	return &fakeModule{loader: l, path: path, desc: desc}, nil
}

// Loaded returns how often path was loaded.
func (l *FakeLoader) Loaded(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[path]
}

// Closed returns how often a module loaded from path was closed.
func (l *FakeLoader) Closed(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed[path]
}

type fakeModule struct {
	loader *FakeLoader
	path   string
	desc   core.Descriptor
}

func (m *fakeModule) Lookup(symbol string) (any, error) {
	if symbol != core.EntrySymbol {
		return nil, memerrors.Newf(memerrors.ErrorTypeNotFound, "symbol %s not found", symbol)
	}
	return &m.desc, nil
}

func (m *fakeModule) Close() error {
	m.loader.mu.Lock()
	defer m.loader.mu.Unlock()
	m.loader.closed[m.path]++
	return nil
}
