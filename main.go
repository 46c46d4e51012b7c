package main

import "payment-sentinel/internal/cli"

func main() {
	cli.Execute()
}
