package main

import (
	"os"

	"dev/bravebird/login-e2e-go/cmd/logincheck/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
