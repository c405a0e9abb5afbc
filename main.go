package main

import (
	"github.com/marketbridge/mcp-marketdata/cmd"
)

// version is set at build time via ldflags, e.g.:
//
//	go build -ldflags "-X main.version=v1.0.0"
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
