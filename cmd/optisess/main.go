// Command optisess inspects and edits sessions stored under the optimistic
// concurrency protocol.
package main

import (
	"context"
	"os"

	"github.com/roach88/optisess/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
