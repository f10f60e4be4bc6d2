package main

import (
	"os"

	"github.com/knei-knurow/mahony/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
