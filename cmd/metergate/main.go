// Package main is the entry point for Metergate.
package main

func main() {
	Execute()
}
