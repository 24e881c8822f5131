package testreports

import "os"

// ShowHelp prints usage information for the seeding tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Route Report Seeder
===================

Generates synthetic commuter reports and loads them into the report store.

Usage:
  go run ./cmd/seed-reports [options]

Options:
  -reports int       Number of reports to generate (default 1000)
  -routes int        Number of routes (default 20)
  -saccos int        Number of operators (default 5)
  -days int          Spread reports over the last N days (default 30)
  -devices int       Distinct device fingerprints (default reports/4)
  -seed int          Random seed; the same seed yields the same data (default 1)
  -batch int         Reports per store write (default 500)
  -workers int       Concurrent store writers (default 2)
  -mongo-uri string  Write to MongoDB instead of stdout
  -mongo-db string   MongoDB database (default "commutewatch")
  -url string        Service base URL; requests a recalculation when set
  -timeout duration  HTTP request timeout (default 30s)
  -verbose           Log every batch
  -help              Show this help message

Examples:
  # Print 200 reports as JSON lines
  go run ./cmd/seed-reports -reports 200

  # Load 50k reports into MongoDB and trigger a pass
  go run ./cmd/seed-reports -reports 50000 -mongo-uri mongodb://localhost:27017 -url http://localhost:9080
`)
}
