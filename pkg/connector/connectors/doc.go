// Package connectors groups the connectors linked into memgate binaries.
//
// Each sub-package registers its descriptor with the inventory from init,
// so a blank import is enough to make it visible to inventory.New:
//
//	import _ "github.com/ajitpratap0/memgate/pkg/connector/connectors/dummy"
//
// Import all of them at once with:
//
//	import _ "github.com/ajitpratap0/memgate/pkg/connector/connectors"
package connectors

import (
	// Builtin connectors.
	_ "github.com/ajitpratap0/memgate/pkg/connector/connectors/coredump"
	_ "github.com/ajitpratap0/memgate/pkg/connector/connectors/dummy"
	_ "github.com/ajitpratap0/memgate/pkg/connector/connectors/shm"
)
