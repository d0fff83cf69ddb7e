package main

import "github.com/einvoice-networks/einvoice-gateway/internal/cli"

func main() {
	cli.Execute()
}
