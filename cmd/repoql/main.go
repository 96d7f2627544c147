// Command repoql stores content nodes and queries them.
//
//	repoql put /content/blog --type nt:folder
//	repoql query "SELECT * FROM [nt:folder] AS f"
//	repoql serve --listen :8080
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mstrYoda/repoql/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
