// Package memgate provides access to the physical memory of machines, virtual
// machines and memory snapshots through pluggable connectors.
//
// # Architecture
//
// An Inventory lists the connectors available to the process: those linked
// into the binary and those loaded from plugin files on the search path.
// Creating a connector yields an Instance that owns one backend. Backends
// implement a batch-first contract; single reads and typed access are built
// on top by the physmem package. A plugin module stays loaded while any
// instance created from it is alive, even after the inventory is destroyed.
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/memgate/pkg/address"
//	    "github.com/ajitpratap0/memgate/pkg/connector/inventory"
//	    "github.com/ajitpratap0/memgate/pkg/physmem"
//
//	    _ "github.com/ajitpratap0/memgate/pkg/connector/connectors"
//	)
//
//	inv, err := inventory.Scan(ctx, nil)
//	defer inv.Destroy()
//
//	inst, err := inv.Create(ctx, "coredump", "/var/lib/vm0.raw")
//	defer inst.Release()
//
//	v, err := physmem.ReadScalar[uint64](inst, address.MustPhysical(0x30000))
//
// # Key Packages
//
//	pkg/connector/inventory  - Connector discovery and creation
//	pkg/connector/instance   - Instance lifecycle and request validation
//	pkg/connector/core       - Backend contract and plugin ABI
//	pkg/connector/connectors - Builtin dummy, coredump and shm connectors
//	pkg/physmem              - Typed physical memory access
//	pkg/address              - Physical addresses and size parsing
//	pkg/memmap               - Physical to backend address translation
//	pkg/cache                - Page cache for slow backends
//	pkg/dumpsink             - Dumps to files, S3 and GCS
//	pkg/memerrors            - Structured error kinds
//	pkg/logger               - Leveled logging sink
//	pkg/metrics              - Prometheus metrics
//	pkg/observability        - OpenTelemetry tracing
//
// # Plugins
//
// A plugin is a Go plugin exporting a core.Descriptor named
// MemgateConnector whose ABIVersion matches core.ABIVersion:
//
//	go build -buildmode=plugin -o ~/.local/lib/memgate/fill.so ./examples/plugins/fillplugin
//
// Plugins that fail to load are skipped with a warning; the scan itself does
// not fail.
package memgate
