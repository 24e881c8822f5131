// Package testreports generates synthetic commuter reports and loads them into
// a report store so the engine can be exercised end to end.
package testreports

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	NumReports int           // Reports to generate
	NumRoutes  int           // Routes to spread them over
	NumSaccos  int           // Operators owning the routes
	Days       int           // Reports are spread over the last Days days
	Devices    int           // Distinct device fingerprints; fewer means more repeats
	Seed       int64         // Same seed, same data
	BatchSize  int           // Reports per store write
	Workers    int           // Concurrent store writers
	BaseURL    string        // When set, a recalculation is requested after loading
	Timeout    time.Duration // HTTP request timeout
	Verbose    bool
}

// Stats holds run statistics.
type Stats struct {
	RoutesGenerated  int
	ReportsGenerated int
	ReportsWritten   int
	BatchesFailed    int
	Recalculated     bool
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.NumReports <= 0 {
		out.NumReports = 1000
	}
	if out.NumRoutes <= 0 {
		out.NumRoutes = 20
	}
	if out.NumSaccos <= 0 {
		out.NumSaccos = 5
	}
	if out.Days <= 0 {
		out.Days = 30
	}
	if out.Devices <= 0 {
		out.Devices = out.NumReports / 4
		if out.Devices == 0 {
			out.Devices = 1
		}
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 500
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return &out
}
