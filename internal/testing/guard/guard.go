package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("IAM_TEST_MODE") == "" {
			_ = os.Setenv("IAM_TEST_MODE", "1")
		}
	})
}
