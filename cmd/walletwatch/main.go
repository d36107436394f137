package main

import "github.com/vietddude/walletwatch/internal/cli"

func main() {
	cli.Execute()
}
