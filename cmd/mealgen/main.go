package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"mealgen/internal/cli"
)

func main() {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mealgen:", err)
		os.Exit(1)
	}
}
