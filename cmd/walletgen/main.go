package main

import (
	"os"

	"WalletGen/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
