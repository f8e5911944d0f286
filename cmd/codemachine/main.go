// Command codemachine orchestrates workflows of AI coding agents from
// the terminal. All behavior lives in internal/cli; this entry point
// only translates the command result into a process exit code.
package main

import (
	"os"

	"github.com/codemachine-ai/codemachine/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
