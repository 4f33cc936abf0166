package main

import "github.com/querygate/querygate/internal/cli"

func main() {
	cli.Execute()
}
