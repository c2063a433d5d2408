// Command ledger operates the trade ledger store.
package main

import (
	"context"
	"os"

	"github.com/roach88/tradeledger/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
