// solidauth is a Solid-OIDC relying party: a web process that signs
// users in against their identity provider, and a CLI that walks the
// same flow step by step.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
