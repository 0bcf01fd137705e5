// internal/service/dispatcher.go
package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/grassrootshq/outreach-backend/internal/audience"
	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
	"github.com/grassrootshq/outreach-backend/internal/repository"
	"github.com/grassrootshq/outreach-backend/internal/sender"
)

// Dispatcher runs delivery cycles: it materializes delivery records on the
// first cycle, pushes pending records through a bounded worker pool, and
// drives the campaign to sealed/completed when all records are terminal.
// At most one cycle runs per campaign; campaigns run independently of each
// other.
type Dispatcher struct {
	Campaigns  repository.CampaignRepositoryInterface
	Deliveries repository.DeliveryRepositoryInterface
	OptOuts    repository.OptOutRepositoryInterface
	Resolver   *audience.Resolver
	Senders    sender.Registry
	Clock      Clock

	Concurrency int
	SendTimeout time.Duration
	BatchSize   int

	mu     sync.Mutex
	active map[int]*cycleHandle
}

type cycleHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

const (
	defaultBatchSize   = 50
	defaultSendTimeout = 15 * time.Second
)

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return defaultBatchSize
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.SendTimeout > 0 {
		return d.SendTimeout
	}
	return defaultSendTimeout
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency > 0 {
		return d.Concurrency
	}
	return 4
}

// Active reports whether a cycle currently holds the campaign's lease.
func (d *Dispatcher) Active(campaignID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[campaignID]
	return ok
}

func (d *Dispatcher) acquire(ctx context.Context, campaignID int) (context.Context, *cycleHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		d.active = make(map[int]*cycleHandle)
	}
	if _, ok := d.active[campaignID]; ok {
		return nil, nil, appErrors.ErrCycleRunning
	}
	cctx, cancel := context.WithCancel(ctx)
	h := &cycleHandle{cancel: cancel, done: make(chan struct{})}
	d.active[campaignID] = h
	return cctx, h, nil
}

func (d *Dispatcher) release(campaignID int, h *cycleHandle) {
	d.mu.Lock()
	delete(d.active, campaignID)
	d.mu.Unlock()
	h.cancel()
	close(h.done)
}

// StartCycle runs one send cycle for the campaign. A second trigger while
// a cycle is active returns ErrCycleRunning, which callers treat as a
// no-op. The cycle exits without finalizing when the calling-hours gate
// closes; the campaign stays sending and the scheduler sweep resumes it.
func (d *Dispatcher) StartCycle(ctx context.Context, campaignID int) error {
	cctx, handle, err := d.acquire(ctx, campaignID)
	if err != nil {
		return err
	}
	defer d.release(campaignID, handle)

	c, err := d.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.Status != model.StatusSending {
		// Cancelled or force-stopped between trigger and pickup.
		return nil
	}

	if c.TotalRecipients == 0 {
		if err := d.materialize(c); err != nil {
			return err
		}
	}

	for {
		if cctx.Err() != nil {
			// Force stop took over; it does the bookkeeping.
			return nil
		}

		// Gate check and pending fetch happen back to back inside the
		// lease, so a pause cannot race a resume into duplicate sends.
		if !CallingHoursOpen(c, d.Clock.Now()) {
			log.Println("⏸ Calling-hours gate closed, pausing campaign:", c.ID)
			return nil
		}

		batch, err := d.Deliveries.ListPending(c.ID, d.batchSize())
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return d.finalize(c.ID)
		}

		batch, err = d.failFreshOptOuts(c, batch)
		if err != nil {
			return err
		}

		d.processBatch(cctx, c, batch)
	}
}

// materialize resolves the audience and bulk-creates pending records; runs
// exactly once, on the campaign's first cycle.
func (d *Dispatcher) materialize(c *model.Campaign) error {
	recipients, err := d.Resolver.Resolve(audience.FilterFor(c))
	if err != nil {
		return err
	}
	if err := d.Deliveries.BulkCreate(c.ID, recipients); err != nil {
		return err
	}
	now := d.Clock.Now()
	if err := d.Campaigns.SetSentAt(c.ID, now); err != nil {
		return err
	}
	c.TotalRecipients = len(recipients)
	log.Println("📦 Materialized", len(recipients), "delivery records for campaign:", c.ID)
	return d.recount(c.ID)
}

// failFreshOptOuts drops recipients who opted out after the cycle started.
// Sends already dispatched in earlier batches are not recalled; the
// registry is honored from the next batch on.
func (d *Dispatcher) failFreshOptOuts(c *model.Campaign, batch []*model.DeliveryRecord) ([]*model.DeliveryRecord, error) {
	if !c.Channel.UsesPhone() {
		return batch, nil
	}
	optedOut, err := d.OptOuts.ActivePhones(c.Channel)
	if err != nil {
		return nil, err
	}
	kept := batch[:0]
	for _, rec := range batch {
		if optedOut[rec.Address] {
			if err := d.Deliveries.MarkFailed(rec.ID, "recipient opted out after campaign start"); err != nil {
				return nil, err
			}
			if err := d.recount(c.ID); err != nil {
				return nil, err
			}
			continue
		}
		kept = append(kept, rec)
	}
	return kept, nil
}

type outcome struct {
	rec *model.DeliveryRecord
	err error
}

// processBatch sends the batch on a bounded worker pool and applies every
// outcome through a single collector, so counter updates are sequential
// per campaign no matter how sends interleave.
func (d *Dispatcher) processBatch(ctx context.Context, c *model.Campaign, batch []*model.DeliveryRecord) {
	sem := make(chan struct{}, d.concurrency())
	outcomes := make(chan outcome, len(batch))

	var wg sync.WaitGroup
	for _, rec := range batch {
		wg.Add(1)
		go func(rec *model.DeliveryRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sctx, cancel := context.WithTimeout(ctx, d.sendTimeout())
			defer cancel()
			outcomes <- outcome{rec: rec, err: d.Senders.Send(sctx, c, rec.Address)}
		}(rec)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err != nil {
			// Timeouts and transient provider errors land here too; the
			// explicit retry command is the recovery path.
			if err := d.Deliveries.MarkFailed(o.rec.ID, o.err.Error()); err != nil {
				log.Println("dispatcher: failed to record failure:", o.rec.ID, err)
				continue
			}
		} else {
			if err := d.Deliveries.MarkSent(o.rec.ID); err != nil {
				log.Println("dispatcher: failed to record success:", o.rec.ID, err)
				continue
			}
		}
		if err := d.recount(c.ID); err != nil {
			log.Println("dispatcher: failed to update counters:", c.ID, err)
		}
	}
}

// recount recomputes the campaign counters from the delivery aggregate;
// the campaign row is never the source of truth, only a cache of it.
func (d *Dispatcher) recount(campaignID int) error {
	counts, err := d.Deliveries.Counts(campaignID)
	if err != nil {
		return err
	}
	return d.Campaigns.SetCounters(campaignID, counts)
}

func (d *Dispatcher) finalize(campaignID int) error {
	counts, err := d.Deliveries.Counts(campaignID)
	if err != nil {
		return err
	}
	status := model.StatusCompleted
	if counts.Failed == 0 && counts.Total > 0 {
		status = model.StatusSealed
	}
	if err := d.Campaigns.UpdateStatus(campaignID, status); err != nil {
		return err
	}
	log.Println("🏁 Campaign", campaignID, "finished as", status)
	return nil
}

// ForceStop aborts the campaign: it cancels any active cycle, waits for
// the cycle to let go of the lease, then fails every remaining pending
// record without attempting delivery.
func (d *Dispatcher) ForceStop(campaignID int) error {
	d.mu.Lock()
	h := d.active[campaignID]
	d.mu.Unlock()
	if h != nil {
		h.cancel()
		<-h.done
	}

	n, err := d.Deliveries.FailAllPending(campaignID, "force stopped")
	if err != nil {
		return err
	}
	if err := d.recount(campaignID); err != nil {
		return err
	}
	if err := d.Campaigns.UpdateStatus(campaignID, model.StatusFailed); err != nil {
		return err
	}
	log.Println("🛑 Force-stopped campaign", campaignID, "- failed", n, "pending deliveries")
	return nil
}
