// Command agriflow loads daily harvest logs into the harvest warehouse.
package main

import (
	"os"

	"github.com/leapstack-labs/agriflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
