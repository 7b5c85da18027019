// Package main is the entry point for the renec-harvester binary.
package main

import "github.com/madfam-io/renec-harvester-sub000/cmd"

func main() {
	cmd.Execute()
}
