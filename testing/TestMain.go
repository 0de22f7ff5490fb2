// Package testing forces test mode for any package that imports it.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("AUTHZ_TEST_MODE", "1")
		if os.Getenv("LOG_FORMAT") == "" {
			_ = os.Setenv("LOG_FORMAT", "json")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain is reusable by packages that want test mode before m.Run.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
