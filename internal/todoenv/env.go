package todoenv

import (
	"os"
	"strings"

	"github.com/amonks/daybook/todo"
)

// ContextEnvVar overrides the configured default context.
const ContextEnvVar = "DAYBOOK_CONTEXT"

// DefaultContext returns the context implied by the environment, falling
// back to configured and then to todo.DefaultContext.
func DefaultContext(configured string) string {
	if value := strings.TrimSpace(os.Getenv(ContextEnvVar)); value != "" {
		return value
	}
	if value := strings.TrimSpace(configured); value != "" {
		return value
	}
	return todo.DefaultContext
}
