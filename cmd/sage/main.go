package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sage/internal/cli"
)

// version is set via -ldflags.
var version = "dev"

func main() {
	// Optional; flags can also come from SAGE_* variables.
	_ = godotenv.Load()

	os.Exit(cli.Execute(context.Background(), version))
}
