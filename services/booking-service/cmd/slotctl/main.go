// Command slotctl queries free slots and reserves appointments, either against a
// running booking-service over gRPC (--addr) or offline from a clinic reference
// file (--config) with an in-memory appointment store.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
