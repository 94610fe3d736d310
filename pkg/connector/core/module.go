package core

// EntrySymbol is the symbol a plugin module exports. Its value is a
// *Descriptor, a Descriptor or a func() Descriptor.
const EntrySymbol = "MemgateConnector"

// Module is a loaded plugin file.
type Module interface {
	// Lookup returns the value of an exported symbol.
	Lookup(symbol string) (any, error)
	// Close releases the module. It is called once, when no instance
	// created from the module remains.
	Close() error
}

// ModuleLoader opens plugin files.
type ModuleLoader interface {
	Load(path string) (Module, error)
}

// DescriptorFrom extracts a descriptor from an entry symbol value.
func DescriptorFrom(sym any) (Descriptor, bool) {
	switch v := sym.(type) {
	case *Descriptor:
		if v == nil {
			return Descriptor{}, false
		}
		return *v, true
	case Descriptor:
		return v, true
	case func() Descriptor:
		return v(), true
	case *func() Descriptor:
		if v == nil || *v == nil {
			return Descriptor{}, false
		}
		return (*v)(), true
	default:
		return Descriptor{}, false
	}
}
