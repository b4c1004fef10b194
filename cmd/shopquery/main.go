// Command shopquery runs the extractor and the search chain against a local
// catalog snapshot without starting the HTTP server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
