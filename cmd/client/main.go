package main

import (
	"github.com/dkeye/p2pcall/internal/cli"
	"github.com/dkeye/p2pcall/internal/logging"
)

func main() {
	logging.Init()
	cli.Execute()
}
