package reschedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keepitcut/reschedule-service/internal/meevo"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

// placeholderFirstNames are roster entries that are not real stylists.
var placeholderFirstNames = map[string]bool{
	"home":     true,
	"training": true,
	"test":     true,
}

// StylistFinder looks for a stylist with an opening at an exact time. It is
// a best-effort heuristic: the scan window is coarse and the comparison is
// on wall-clock HH:MM only, because the vendor returns zone-less local
// times. A miss is not an error — callers book without pinning a stylist
// and let the vendor auto-assign.
type StylistFinder struct {
	api    *meevo.Client
	logger *logging.Logger
}

// NewStylistFinder creates a StylistFinder.
func NewStylistFinder(api *meevo.Client, logger *logging.Logger) *StylistFinder {
	if logger == nil {
		logger = logging.Default()
	}
	return &StylistFinder{api: api, logger: logger}
}

// FindAvailableStylist returns the first active employee whose openings for
// the service include the requested time, or "" when none does. All lookup
// failures are swallowed: availability pinning is optional.
func (f *StylistFinder) FindAvailableStylist(ctx context.Context, serviceID string, at time.Time) string {
	date := at.Format("2006-01-02")
	target := at.Format("15:04")
	windowStart, windowEnd := scanWindow(at)

	f.logger.Info("scanning stylist availability",
		"date", date,
		"window_start", windowStart,
		"window_end", windowEnd,
	)

	employees, err := f.api.ListEmployees(ctx)
	if err != nil {
		f.logger.Warn("employee listing failed, proceeding without a stylist", "error", err)
		return ""
	}

	tenant, location := f.api.TenantLocation()
	for _, emp := range employees {
		if emp.ObjectState != meevo.EmployeeStateActive {
			continue
		}
		if placeholderFirstNames[strings.ToLower(emp.FirstName)] {
			continue
		}

		results, err := f.api.ScanOpenings(ctx, meevo.ScanOpeningsRequest{
			LocationID:   location,
			TenantID:     tenant,
			ScanDateType: 1,
			StartDate:    date,
			EndDate:      date,
			ScanTimeType: 1,
			StartTime:    windowStart,
			EndTime:      windowEnd,
			ScanServices: []meevo.ScanService{
				{ServiceID: serviceID, EmployeeIDs: []string{emp.ID}},
			},
		})
		if err != nil {
			// Employee may simply not be scheduled that day.
			continue
		}

		for _, result := range results {
			for _, opening := range result.ServiceOpenings {
				if openingTimeOfDay(opening.StartTime) == target {
					f.logger.Info("found available stylist",
						"employee_id", emp.ID,
						"name", emp.FirstName,
						"start", opening.StartTime,
					)
					return emp.ID
				}
			}
		}
	}

	f.logger.Info("no available stylist found", "date", date, "time", target)
	return ""
}

// scanWindow derives the coarse two-hour scan window holding the requested
// time: the requested hour floored to an even hour, plus two hours.
func scanWindow(at time.Time) (start, end string) {
	startHour := (at.Hour() / 2) * 2
	return fmt.Sprintf("%02d:00", startHour), fmt.Sprintf("%02d:00", startHour+2)
}

// openingTimeOfDay extracts the HH:MM portion from a vendor opening time,
// ignoring any offset the vendor might append.
func openingTimeOfDay(startTime string) string {
	_, after, found := strings.Cut(startTime, "T")
	if !found || len(after) < 5 {
		return ""
	}
	return after[:5]
}
