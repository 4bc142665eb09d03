// Package main is the entry point for watchpost.
package main

import "watchpost/internal/cli"

func main() {
	cli.Execute()
}
