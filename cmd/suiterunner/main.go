package main

import (
	"os"

	"github.com/labfleet/labfleet/cmd/suiterunner/cmd"
	"github.com/labfleet/labfleet/internal/common"
)

func main() {
	common.ConfigureLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(2)
	}
}
