// Package main is the entry point of the collab CLI.
package main

import "os"

func main() {
	os.Exit(Run())
}
