package configuration

import "time"

type RedisConfiguration struct {
	Addr     string
	Password string
	Db       int
}

type TaskConfiguration struct {
	SchedulingInterval time.Duration
	ShutdownTimeout    time.Duration
}

type HostSchedulerConfiguration struct {
	MetricsPort uint16
	// Dummy substitutes the no-op scheduler; used when host acquisition is
	// handled inline by the job execution path.
	Dummy bool
	// Hosts registered into the lease store at startup.
	Hosts []string
	Redis RedisConfiguration
	Task  TaskConfiguration
}
