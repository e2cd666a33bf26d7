package config

import "fmt"

// DefaultTemplate returns a commented config file listing every key with its default.
func DefaultTemplate() string {
	d := Defaults()
	return fmt.Sprintf(`# trialrank configuration
# Uncomment a value to enable it. CLI flags override config values.

[esologs]
# api-key = ""               # ESO Logs API key (or set %s)
# base-url = %q
# timeout = %q

[ledger]
# db-path = %q
# sheet = %q                 # Ledger table name
# date-layout = %q     # Must sort lexicographically
# timezone = %q

[retry]
# initial = %q
# max-interval = %q
# max-elapsed = %q

[log]
# level = %q                # debug, info, warn or error
# file = ""                  # Also write JSON logs here

[cache]
# size-mb = %d                # 0 disables the report payload cache
# ttl = %q
`,
		APIKeyEnv,
		d.BaseURL,
		d.Timeout,
		d.DBPath,
		d.Sheet,
		d.DateLayout,
		d.Timezone,
		d.RetryInitial,
		d.RetryMaxInterval,
		d.RetryMaxElapsed,
		d.LogLevel,
		d.CacheSizeMB,
		d.CacheTTL,
	)
}
