// Command siteadmin runs operator tasks against the site content database:
// password hashing, connectivity checks, export/import and migrations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "siteadmin:", err)
		os.Exit(1)
	}
}
