package scan

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// RunIndexBuild builds the point-lookup index for every target object.
// Objects are handed out to the worker pool from a shared list; there is no
// queue-depth throttling since every call is synchronous inside storage.
func (e *Engine) RunIndexBuild() error {
	oids := buildWorkList(e.cfg.NumObjs, e.cfg.Dir)

	var lock sync.Mutex
	var firstErr error
	next := 0

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.WorkerThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				lock.Lock()
				if firstErr != nil || next >= len(oids) {
					lock.Unlock()
					return
				}
				oid := oids[next]
				next++
				lock.Unlock()

				log.Infof("building index for %s", oid)
				if err := e.store.BuildIndex(oid, e.cfg.BuildIndexBatchSize); err != nil {
					lock.Lock()
					if firstErr == nil {
						firstErr = err
					}
					lock.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}
