// Command jose signs, verifies, encrypts and decrypts JOSE objects.
package main

import (
	"fmt"
	"os"

	"github.com/KeyBridge/lib-jose-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
