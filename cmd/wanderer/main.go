package main

import (
	"os"

	"github.com/duskrange/wanderer/internal/app"
)

func main() {
	os.Exit(app.Execute())
}
