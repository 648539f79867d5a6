// Package ingest buffers incoming event batches and flushes them into the
// session store on a timer or when a session's pending batch grows past the
// size threshold. One goroutine owns all buffered state; callers only send
// messages.
package ingest

import (
	"log"
	"sync"
	"time"

	"relive/replay/internal/types"
)

// Appender is the slice of the session store the collector writes to.
type Appender interface {
	CreateOrAppend(id string, events []types.Event, patch types.MetadataPatch) (string, error)
}

// Batch is one incoming chunk of capture data for a session.
type Batch struct {
	SessionID string
	Events    []types.Event
	Patch     types.MetadataPatch
}

type pending struct {
	events []types.Event
	patch  types.MetadataPatch
}

type Collector struct {
	store    Appender
	interval time.Duration
	maxBatch int

	in   chan Batch
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewCollector(store Appender, interval time.Duration, maxBatch int) *Collector {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &Collector{
		store:    store,
		interval: interval,
		maxBatch: maxBatch,
		in:       make(chan Batch, 64),
		stop:     make(chan struct{}),
	}
}

// Start launches the owning goroutine.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.run()
}

// Enqueue hands a batch to the collector. Blocks only if the inbox is full.
func (c *Collector) Enqueue(b Batch) {
	c.in <- b
}

// Stop flushes everything still pending and waits for the goroutine to exit.
func (c *Collector) Stop() {
	close(c.stop)
	c.wg.Wait()
}

func (c *Collector) run() {
	defer c.wg.Done()
	buf := make(map[string]*pending)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case b := <-c.in:
			p, ok := buf[b.SessionID]
			if !ok {
				p = &pending{}
				buf[b.SessionID] = p
			}
			p.events = append(p.events, b.Events...)
			p.patch = mergePatch(p.patch, b.Patch)
			if len(p.events) >= c.maxBatch {
				c.flush(b.SessionID, p)
				delete(buf, b.SessionID)
			}
		case <-ticker.C:
			for id, p := range buf {
				c.flush(id, p)
				delete(buf, id)
			}
		case <-c.stop:
			// Drain the inbox before the final flush.
			for {
				select {
				case b := <-c.in:
					p, ok := buf[b.SessionID]
					if !ok {
						p = &pending{}
						buf[b.SessionID] = p
					}
					p.events = append(p.events, b.Events...)
					p.patch = mergePatch(p.patch, b.Patch)
					continue
				default:
				}
				break
			}
			for id, p := range buf {
				c.flush(id, p)
			}
			return
		}
	}
}

func (c *Collector) flush(id string, p *pending) {
	if _, err := c.store.CreateOrAppend(id, p.events, p.patch); err != nil {
		// The batch is lost; the capture side keeps sending fresh ones.
		log.Printf("ingest[%s] flush of %d events failed: %v", id, len(p.events), err)
		return
	}
}

// mergePatch overlays b on a, later values winning, without losing an earlier
// isComplete signal.
func mergePatch(a, b types.MetadataPatch) types.MetadataPatch {
	out := a
	if b.URL != "" {
		out.URL = b.URL
	}
	if b.UserAgent != "" {
		out.UserAgent = b.UserAgent
	}
	if b.Timestamp != 0 {
		out.Timestamp = b.Timestamp
	}
	if b.Viewport != nil {
		out.Viewport = b.Viewport
	}
	if b.IsComplete {
		out.IsComplete = true
	}
	return out
}
