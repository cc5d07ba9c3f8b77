package main

import (
	"os"

	"github.com/joho/godotenv"

	rapportcmder "github.com/papercomputeco/rapport/cmd/rapport"
)

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	cmd := rapportcmder.NewRapportCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
