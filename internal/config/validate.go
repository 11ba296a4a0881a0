package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one validation finding. Path is a dotted path into the config
// (e.g. "stores.postgres.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the list is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateConfig performs static checks over a decoded Config without
// mutating it. Callers decide whether warnings are fatal.
func ValidateConfig(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels metrics and log lines",
		})
	}

	if strings.TrimSpace(c.Stores.Postgres.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "stores.postgres.dsn",
			Message:  "detailed store requires a non-empty dsn",
		})
	}
	if strings.TrimSpace(c.Stores.ClickHouse.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "stores.clickhouse.dsn",
			Message:  "analytic store requires a non-empty dsn",
		})
	}

	if c.Runtime.IngestWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.ingest_workers",
			Message:  "must not be negative",
		})
	}
	if c.Runtime.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "must not be negative",
		})
	}
	if c.Runtime.BatchSize > 100000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  "very large batches hold long-lived result sets; consider a smaller value",
		})
	}

	switch c.Metrics.Backend {
	case "", "nop", "prompush", "datadog":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown backend %q; ensure a matching implementation is registered", c.Metrics.Backend),
		})
	}
	if c.Metrics.Backend == "prompush" && c.Metrics.Options.String("push_url", "") == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.options.push_url",
			Message:  "prompush backend requires push_url",
		})
	}
	if c.Metrics.Backend == "datadog" && c.Metrics.Options.String("statsd_addr", "") == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.options.statsd_addr",
			Message:  "datadog backend requires statsd_addr",
		})
	}

	return issues
}
