package secrets

import (
	"os"
	"strings"
)

// EnvLoader returns a Loader that snapshots the named environment
// variables. A variable that is unset, empty, or whitespace-only is
// treated as absent so Vault.Has never reports a blank credential.
func EnvLoader(names ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(names))
		for _, name := range names {
			raw, ok := os.LookupEnv(name)
			if !ok {
				continue
			}
			if v := strings.TrimSpace(raw); v != "" {
				vals[name] = v
			}
		}
		return vals, nil
	}
}
