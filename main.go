package main

import (
	"os"

	"github.com/snapcircle/dmsocket/internal/app"
)

func main() {
	if err := app.DMSocket().Execute(); err != nil {
		os.Exit(1)
	}
}
