// Command rxrender renders a prescription described by a JSON file, saves it
// locally and optionally archives it.
//
//	go run ./cmd/rxrender render --input rx.json --format pdf --out ./out --archive
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
