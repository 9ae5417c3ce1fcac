package main

import (
	"github.com/vietddude/streamkeeper/internal/cli"
	"github.com/vietddude/streamkeeper/internal/failure"
)

func main() {
	// Receivers implemented in code are registered here; receivers declared
	// in the config file are added when the app starts.
	registry := failure.NewRegistry()

	cli.Execute(registry)
}
