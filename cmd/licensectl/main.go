// Command licensectl administers the license server's data directory: it
// issues, inspects and revokes licenses, resets trial usage and manages
// backups without going through the HTTP API.
package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			printError(cmd.ErrOrStderr(), err)
		}
		os.Exit(1)
	}
}
