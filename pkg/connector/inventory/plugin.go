package inventory

import (
	"os"
	"path/filepath"
	"plugin"
	"runtime"
	"strings"

	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// PluginEnvVar lists extra plugin directories, separated by the OS list
// separator.
const PluginEnvVar = "MEMGATE_PLUGIN_PATH"

// PluginLoader loads Go plugins built with -buildmode=plugin.
//
// The Go runtime cannot unload a plugin, so Close only drops the handle and
// the code stays mapped for the life of the process.
type PluginLoader struct{}

// Load opens the plugin at path.
func (PluginLoader) Load(path string) (core.Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypePluginLoadFailed, "failed to open plugin").
			WithDetail("path", path)
	}
	return &pluginModule{plugin: p}, nil
}

type pluginModule struct {
	plugin *plugin.Plugin
}

func (m *pluginModule) Lookup(symbol string) (any, error) {
	if m.plugin == nil {
		return nil, memerrors.New(memerrors.ErrorTypeReleased, "plugin module closed")
	}
	sym, err := m.plugin.Lookup(symbol)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeNotFound, "symbol "+symbol+" not found")
	}
	return sym, nil
}

func (m *pluginModule) Close() error {
	m.plugin = nil
	return nil
}

// DefaultExtensions returns the plugin file extensions for the running OS.
func DefaultExtensions() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{".dylib", ".so"}
	case "windows":
		return []string{".dll"}
	default:
		return []string{".so"}
	}
}

// DefaultSearchPaths returns the directories scanned when none are given:
// entries of MEMGATE_PLUGIN_PATH, the per-user library directory, the
// system library directories and the directory of the running executable.
func DefaultSearchPaths() []string {
	var paths []string

	if env := os.Getenv(PluginEnvVar); env != "" {
		for _, p := range filepath.SplitList(env) {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local", "lib", "memgate"))
	}

	if runtime.GOOS != "windows" {
		paths = append(paths, "/usr/local/lib/memgate", "/usr/lib/memgate")
	}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Dir(exe))
	}

	return paths
}

func hasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
