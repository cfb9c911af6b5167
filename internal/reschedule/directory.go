package reschedule

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/keepitcut/reschedule-service/internal/meevo"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

const (
	// pagesPerBatch pages are fetched concurrently per search round.
	pagesPerBatch = 10

	// maxSearchBatches caps the phone search at 200 pages.
	maxSearchBatches = 20

	// detailBatchSize caps concurrent client-detail fetches while resolving
	// linked profiles.
	detailBatchSize = 50
)

type pageRange struct {
	start, end int
}

// linkedProfilePageRanges orders the linked-profile scan newest pages first:
// recently added dependents are the likely match for an active caller. The
// scan is a bounded heuristic, not a complete search — a guardian whose
// dependents live outside these ranges will not be found.
var linkedProfilePageRanges = []pageRange{
	{start: 150, end: 200},
	{start: 100, end: 150},
	{start: 50, end: 100},
	{start: 1, end: 50},
}

// Directory resolves caller identity against the vendor's client list.
type Directory struct {
	api    *meevo.Client
	logger *logging.Logger
}

// NewDirectory creates a Directory backed by the given Meevo client.
func NewDirectory(api *meevo.Client, logger *logging.Logger) *Directory {
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{api: api, logger: logger}
}

// FindClientByPhone scans the paginated client list for the first record
// whose normalized phone equals the normalized input. Pages are fetched in
// concurrent batches of pagesPerBatch; the scan stops after a batch where
// every page came back empty, or after maxSearchBatches batches. When
// several clients share a phone number, whichever appears first in scan
// order wins — a known ambiguity, not a disambiguation guarantee.
func (d *Directory) FindClientByPhone(ctx context.Context, phone string) (*meevo.ClientRecord, error) {
	cleaned := NormalizePhone(phone)
	if cleaned == "" {
		return nil, ErrClientNotFound
	}

	for batch := 0; batch < maxSearchBatches; batch++ {
		startPage := batch*pagesPerBatch + 1
		pages := d.fetchPages(ctx, startPage, startPage+pagesPerBatch-1)

		empty := 0
		for _, page := range pages {
			if len(page) == 0 {
				empty++
				continue
			}
			for i := range page {
				if NormalizePhone(page[i].PrimaryPhoneNumber) == cleaned {
					match := page[i]
					d.logger.Info("found client by phone",
						"client_id", match.ClientID,
						"name", match.Name(),
					)
					return &match, nil
				}
			}
		}

		// A fully empty batch means the list is exhausted.
		if empty == pagesPerBatch {
			break
		}
	}
	return nil, ErrClientNotFound
}

// FindLinkedProfiles locates minor/guest profiles tied to a guardian.
// Dependents typically have no phone of their own, so the scan collects
// phone-less records and fetches each one's detail record to compare
// guardian ids. Page ranges are scanned newest first and the whole search
// stops as soon as any linked profile turns up.
func (d *Directory) FindLinkedProfiles(ctx context.Context, guardianID string) ([]meevo.ClientRecord, error) {
	var linked []meevo.ClientRecord
	seen := make(map[string]bool)

	d.logger.Info("finding linked profiles", "guardian_id", guardianID)

	for _, rng := range linkedProfilePageRanges {
		for batchStart := rng.start; batchStart < rng.end; batchStart += pagesPerBatch {
			batchEnd := batchStart + pagesPerBatch - 1
			if batchEnd > rng.end {
				batchEnd = rng.end
			}
			pages := d.fetchPages(ctx, batchStart, batchEnd)

			empty := 0
			var candidates []meevo.ClientRecord
			for _, page := range pages {
				if len(page) == 0 {
					empty++
					continue
				}
				for _, rec := range page {
					if seen[rec.ClientID] {
						continue
					}
					if rec.PrimaryPhoneNumber == "" {
						candidates = append(candidates, rec)
					}
				}
			}

			for start := 0; start < len(candidates); start += detailBatchSize {
				end := start + detailBatchSize
				if end > len(candidates) {
					end = len(candidates)
				}
				details := d.fetchDetails(ctx, candidates[start:end])
				for _, detail := range details {
					if detail == nil || seen[detail.ClientID] {
						continue
					}
					seen[detail.ClientID] = true
					if detail.GuardianID == guardianID {
						linked = append(linked, *detail)
						d.logger.Info("found linked profile",
							"client_id", detail.ClientID,
							"name", detail.Name(),
						)
					}
				}
			}

			if empty >= pagesPerBatch {
				break
			}
		}

		if len(linked) > 0 {
			break
		}
	}
	return linked, nil
}

// fetchPages retrieves client-list pages first..last concurrently. A page
// that errors is treated as empty: one flaky page must not sink the scan.
func (d *Directory) fetchPages(ctx context.Context, first, last int) [][]meevo.ClientRecord {
	pages := make([][]meevo.ClientRecord, last-first+1)
	g, gctx := errgroup.WithContext(ctx)
	for i := range pages {
		page := first + i
		idx := i
		g.Go(func() error {
			clients, err := d.api.ListClients(gctx, page)
			if err != nil {
				d.logger.Debug("client page fetch failed", "page", page, "error", err)
				return nil
			}
			pages[idx] = clients
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// fetchDetails retrieves full client records concurrently; failures yield
// nil entries.
func (d *Directory) fetchDetails(ctx context.Context, candidates []meevo.ClientRecord) []*meevo.ClientRecord {
	details := make([]*meevo.ClientRecord, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		idx := i
		clientID := candidates[i].ClientID
		g.Go(func() error {
			detail, err := d.api.GetClient(gctx, clientID)
			if err != nil {
				d.logger.Debug("client detail fetch failed", "client_id", clientID, "error", err)
				return nil
			}
			details[idx] = detail
			return nil
		})
	}
	_ = g.Wait()
	return details
}
