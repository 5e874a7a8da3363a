// Command vetctl runs operator tasks against a deployment: seeding clinic
// profiles, one-off scheduled passes, access resets and schema migrations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultOpener).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vetctl:", err)
		os.Exit(1)
	}
}
