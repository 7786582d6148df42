package main

import (
	"os"

	"github.com/JohnVinyard/annotate-api-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
