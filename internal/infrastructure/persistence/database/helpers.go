package database

import (
	"strings"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// CheckAndLogSlowQuery logs query on the slow-query channel when it ran longer
// than threshold. Bulk statements get three times the budget.
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, threshold time.Duration, query string, duration time.Duration, scope string) {
	if threshold <= 0 {
		return
	}
	if strings.HasPrefix(query, "BULK_") {
		threshold *= 3
	}
	if duration > threshold {
		logger.LogSlowQuery(query, duration, scope)
	}
}

// Placeholders returns "?, ?, ..." with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
