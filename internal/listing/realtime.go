package listing

import (
	"encoding/json"
	"sync"

	"github.com/alfredjeanlab/studiodesk/internal/events"
	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// invalidator holds the change subscriptions of one controller scope.
type invalidator struct {
	cancels []func()
	wg      sync.WaitGroup
	once    sync.Once
}

// subscribe listens for changes to the configured tables in the scope's
// workspace. Any change triggers a full reload. Failures are logged and not
// retried.
func (c *Controller) subscribe(scope model.Scope) {
	if c.sub == nil || !c.cfg.Realtime {
		return
	}

	rt := &invalidator{}
	for _, table := range c.cfg.Tables() {
		topic := events.ChangeTopic(scope.WorkspaceID, table)
		ch, cancel, err := c.sub.Subscribe(topic)
		if err != nil {
			c.logger.Warn("realtime subscription failed", "topic", topic, "err", err)
			continue
		}
		rt.cancels = append(rt.cancels, cancel)
		rt.wg.Add(1)
		go func(table model.Table) {
			defer rt.wg.Done()
			for data := range ch {
				var change model.Change
				if err := json.Unmarshal(data, &change); err == nil {
					c.logger.Debug("change received", "table", table, "op", change.Op, "row", change.RowID)
				}
				c.reload("realtime " + string(table))
			}
		}(table)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		rt.stop()
		return
	}
	c.rt = rt
	c.mu.Unlock()
}

// stop cancels every subscription and waits for the listening goroutines.
func (rt *invalidator) stop() {
	if rt == nil {
		return
	}
	rt.once.Do(func() {
		for _, cancel := range rt.cancels {
			cancel()
		}
		rt.wg.Wait()
	})
}
