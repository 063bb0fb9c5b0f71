// Command pageindex crawls web pages and indexes them for semantic search.
package main

import (
	"github.com/JakeFAU/pageindex/cmd"
)

func main() {
	cmd.Execute()
}
