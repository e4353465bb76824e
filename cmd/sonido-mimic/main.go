// Command sonido-mimic replays recorded audio and pose streams through a
// mimic session: it records training examples, fits the landmark model and
// writes its live predictions.
//
// Usage:
//
//	sonido-mimic [flags] <command>
//
// Commands:
//
//	replay   record, train and infer over an audio file and a pose log
//	config   print the effective configuration
//	version  print build information
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-mimic/cmd/sonido-mimic/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
