package config_test

import (
	"fmt"

	"github.com/ajitpratap0/memgate/pkg/config"
)

// ExampleDefault shows the defaults used without a configuration file.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Log level: %s\n", cfg.Logging.Level)
	fmt.Printf("Max args length: %d\n", cfg.Inventory.MaxArgsLength)
	fmt.Printf("Chunk size: %d\n", cfg.Access.ChunkSize)
	fmt.Printf("Valid: %v\n", cfg.Validate() == nil)

	// Output:
	// Log level: info
	// Max args length: 4096
	// Chunk size: 65536
	// Valid: true
}
