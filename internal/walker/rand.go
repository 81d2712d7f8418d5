package walker

import (
	"fmt"
	"math/rand"
)

func randIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("walker: empty range")
	}
	return rand.Intn(n), nil
}
