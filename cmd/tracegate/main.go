// tracegate evaluates agent data access against purpose-bound policy.
package main

import (
	"os"

	"github.com/ppiankov/tracegate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
