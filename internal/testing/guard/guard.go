// Package guard flips the runtime into test mode as a side effect of being
// imported. Test packages that spin up application wiring blank-import it
// so binaries under test never start real side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("COSTWISE_TEST_MODE") == "" {
			_ = os.Setenv("COSTWISE_TEST_MODE", "1")
		}
	})
}
