package startup

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-redis/redis"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/labfleet/labfleet/internal/common/task"
	"github.com/labfleet/labfleet/internal/hostscheduler"
	"github.com/labfleet/labfleet/internal/hostscheduler/configuration"
	"github.com/labfleet/labfleet/internal/hostscheduler/repository"
)

// StartUp wires the host scheduler against Redis and starts the tick loop.
// The returned cleanup function stops the loop and reports whether shutdown
// timed out.
func StartUp(config configuration.HostSchedulerConfiguration) (func(), *sync.WaitGroup) {
	db := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.Db,
	})

	store := repository.NewRedisLeaseStore(db)
	if err := store.RegisterHosts(config.Hosts...); err != nil {
		log.Errorf("Failed to register hosts because %s", err)
	}
	if hosts, err := store.Hosts(); err == nil {
		log.Infof("Scheduling over %d registered hosts", len(hosts))
	}

	jobQueue := repository.NewRedisJobQueue(db)
	var scheduler hostscheduler.Scheduler
	if config.Dummy {
		scheduler = hostscheduler.DummyHostScheduler{}
	} else {
		scheduler = hostscheduler.NewHostScheduler(
			store,
			jobQueue,
			repository.NewPoolHostMatcher(store),
			jobQueue,
			hostscheduler.LogNotifier{},
		)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		err := http.ListenAndServe(fmt.Sprintf(":%d", config.MetricsPort), nil)
		if err != nil {
			log.Errorf("Metrics server stopped: %s", err)
		}
	}()

	taskManager := task.NewBackgroundTaskManager("labfleet_hostscheduler_loop_")
	taskManager.Register(func() {
		if err := scheduler.Tick(); err != nil {
			log.Errorf("Scheduling tick failed: %s", err)
		}
	}, config.Task.SchedulingInterval, "scheduling_tick")

	wg := &sync.WaitGroup{}
	wg.Add(1)
	return func() {
		if taskManager.StopAll(config.Task.ShutdownTimeout) {
			log.Warnf("Graceful shutdown timed out")
		}
		if err := db.Close(); err != nil {
			log.Errorf("Failed to close redis connection: %s", err)
		}
		wg.Done()
		log.Infof("Shutdown complete")
	}, wg
}
