package scan

import (
	"math/rand"

	"github.com/skyhookdm/skyquery/conf"
	"github.com/skyhookdm/skyquery/storage"
)

// buildWorkList enumerates the target object names in the configured
// traversal order. Dispatch order never affects aggregate results, only the
// access pattern seen by storage.
func buildWorkList(numObjs int, dir string) []string {
	oids := make([]string, numObjs)
	for i := 0; i < numObjs; i++ {
		oids[i] = storage.ObjectName(i)
	}
	switch dir {
	case conf.OrderBackward:
		for i, j := 0, len(oids)-1; i < j; i, j = i+1, j-1 {
			oids[i], oids[j] = oids[j], oids[i]
		}
	case conf.OrderShuffled:
		rand.Shuffle(len(oids), func(i, j int) {
			oids[i], oids[j] = oids[j], oids[i]
		})
	}
	return oids
}
