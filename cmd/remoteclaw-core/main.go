// Command remoteclaw-core is a development aid for the runtime bridge
// library in pkg/agentcore — not a gateway. It currently exposes one
// subcommand, doctor, that replays a captured NDJSON transcript
// through the real parser and runtime-base logic. Grounded on the
// teacher's cmd/nexus's cobra root + buildXCmd-per-subcommand layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "remoteclaw-core",
		Short: "Development aid for the remote agent runtime bridge",
	}
	root.AddCommand(buildDoctorCmd())
	return root
}
