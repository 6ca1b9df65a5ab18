package main

import (
	"os"

	"github.com/labfleet/labfleet/internal/common"
	"github.com/labfleet/labfleet/internal/common/app"
	"github.com/labfleet/labfleet/internal/hostscheduler/configuration"
	"github.com/labfleet/labfleet/internal/hostscheduler/startup"
)

func main() {
	common.ConfigureLogging()

	var config configuration.HostSchedulerConfiguration
	common.LoadConfig(&config, "./config/hostscheduler", os.Args[1:])

	shutdown, wg := startup.StartUp(config)

	ctx := app.CreateContextWithShutdown()
	go func() {
		<-ctx.Done()
		shutdown()
	}()

	wg.Wait()
}
