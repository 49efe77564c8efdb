package main

import "github.com/vietddude/tabretry/internal/cli"

func main() {
	cli.Execute()
}
