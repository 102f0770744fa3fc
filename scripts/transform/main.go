// Command transform splits the consolidated contract schemas that the schema
// generator writes into the repository, ready for the TypeScript generator.
//
//	go run ./scripts/transform
package main

import (
	"os"
	"path/filepath"

	"github.com/erisprotocol/contracts-tokenfactory/internal/cli"
	"github.com/erisprotocol/contracts-tokenfactory/kit/fsutil"
)

func main() {
	// The repository root is one level above scripts/.
	root := filepath.Join(fsutil.GetCallerDir(), "..", "..")
	os.Exit(cli.Execute(root))
}
