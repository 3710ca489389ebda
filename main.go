package main

import (
	"os"

	"github.com/ringnet/ringd/app"
)

func main() {
	if err := app.StartApp(); err != nil {
		os.Exit(1)
	}
}
