package reschedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keepitcut/reschedule-service/internal/meevo"
	"github.com/keepitcut/reschedule-service/internal/observability/metrics"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

// Result reports what a completed reschedule did.
type Result struct {
	// AppointmentServiceID identifies the anchor service after the move. It
	// changes when the cancel-rebook path had to create a new appointment.
	AppointmentServiceID string

	// ServicesRescheduled counts the services moved, add-ons included.
	ServicesRescheduled int

	// UsedCancelRebook is true when the in-place update was rejected and the
	// appointment was recreated at the new time.
	UsedCancelRebook bool
}

// Executor moves a resolved appointment group to a new start time. It tries
// an in-place update of every service first; when the vendor rejects a date
// change, it falls back to cancelling the group and rebooking it at the new
// time, with the anchor's add-ons reattached at their original offsets.
// Every mutation path keeps a compensation log so a partial failure restores
// the original appointment.
type Executor struct {
	api      *meevo.Client
	stylists *StylistFinder
	logger   *logging.Logger
	metrics  *metrics.RescheduleMetrics
}

// NewExecutor creates an Executor. metrics may be nil.
func NewExecutor(api *meevo.Client, stylists *StylistFinder, logger *logging.Logger, m *metrics.RescheduleMetrics) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{api: api, stylists: stylists, logger: logger, metrics: m}
}

// Execute moves the target group to newStart. newStartRaw is the caller's
// original rendering of the time and is sent to the vendor verbatim for the
// anchor service, so the caller's offset is preserved exactly; add-on times
// are derived from newStart plus each service's offset.
func (e *Executor) Execute(ctx context.Context, target *Target, newStart time.Time, newStartRaw string) (*Result, error) {
	group := &target.Group

	stylistID := target.StylistID
	if stylistID == "" {
		stylistID = e.stylists.FindAvailableStylist(ctx, group.Services[0].ServiceID, newStart)
	}

	comp := newCompensationLog(e.logger)
	var attemptErr error
	needFallback := false

	for i, svc := range group.Services {
		startStr := newStartRaw
		if i > 0 {
			startStr = formatVendorTime(newStart.Add(svc.Offset))
		}

		// Mutating one service invalidates its siblings' concurrency digits,
		// so each update works from a fresh read of the book.
		fresh, err := e.freshService(ctx, group.ClientID, svc.AppointmentServiceID)
		if err != nil {
			attemptErr = err
			break
		}
		if fresh == nil {
			attemptErr = ErrAppointmentServiceMissing
			break
		}

		err = e.api.UpdateService(ctx, meevo.UpdateServiceRequest{
			AppointmentServiceID:   svc.AppointmentServiceID,
			ServiceID:              svc.ServiceID,
			StartTime:              startStr,
			ClientID:               group.ClientID,
			ConcurrencyCheckDigits: fresh.ConcurrencyCheckDigits,
			EmployeeID:             stylistID,
		})
		if err != nil {
			if meevo.IsDateChangeRejection(err) {
				e.logger.Info("in-place update rejected for date change, falling back to cancel-rebook",
					"appointment_service_id", svc.AppointmentServiceID,
				)
				needFallback = true
			} else {
				attemptErr = err
			}
			break
		}

		svc := svc
		comp.push("restore "+svc.AppointmentServiceID, func(ctx context.Context) error {
			prev, err := e.freshService(ctx, group.ClientID, svc.AppointmentServiceID)
			if err != nil {
				return err
			}
			if prev == nil {
				return fmt.Errorf("service %s vanished during rollback", svc.AppointmentServiceID)
			}
			return e.api.UpdateService(ctx, meevo.UpdateServiceRequest{
				AppointmentServiceID:   svc.AppointmentServiceID,
				ServiceID:              svc.ServiceID,
				StartTime:              svc.OriginalStartRaw,
				ClientID:               group.ClientID,
				ConcurrencyCheckDigits: prev.ConcurrencyCheckDigits,
				EmployeeID:             target.StylistID,
			})
		})
	}

	if attemptErr == nil && !needFallback {
		comp.discard()
		e.logger.Info("rescheduled in place",
			"appointment_id", group.AppointmentID,
			"services", len(group.Services),
		)
		return &Result{
			AppointmentServiceID: target.AppointmentServiceID,
			ServicesRescheduled:  len(group.Services),
		}, nil
	}

	actions := comp.depth()
	failures := comp.unwind(ctx)
	e.metrics.ObserveRollback(actions, failures)

	if attemptErr != nil {
		return nil, attemptErr
	}

	e.metrics.ObserveFallback()
	return e.cancelRebook(ctx, target, stylistID, newStart, newStartRaw)
}

// cancelRebook cancels every service in the group and books it again at the
// new time under a new appointment. The compensation log rebooks the
// originals if any step fails partway.
func (e *Executor) cancelRebook(ctx context.Context, target *Target, stylistID string, newStart time.Time, newStartRaw string) (*Result, error) {
	group := &target.Group
	comp := newCompensationLog(e.logger)

	fail := func(cause error) (*Result, error) {
		actions := comp.depth()
		failures := comp.unwind(ctx)
		e.metrics.ObserveRollback(actions, failures)
		return nil, cause
	}

	// Cancel add-ons before the anchor so the rollback stack rebooks the
	// anchor first and reattaches add-ons to an intact appointment shell.
	for i := len(group.Services) - 1; i >= 0; i-- {
		svc := group.Services[i]

		fresh, err := e.freshService(ctx, group.ClientID, svc.AppointmentServiceID)
		if err != nil || fresh == nil || fresh.IsCancelled {
			e.logger.Warn("skipping cancel of unavailable service",
				"appointment_service_id", svc.AppointmentServiceID,
				"error", err,
			)
			continue
		}

		if err := e.api.CancelService(ctx, svc.AppointmentServiceID, fresh.ConcurrencyCheckDigits); err != nil {
			e.logger.Warn("failed to cancel service, continuing",
				"appointment_service_id", svc.AppointmentServiceID,
				"error", err,
			)
			continue
		}

		comp.push("rebook original "+svc.AppointmentServiceID, func(ctx context.Context) error {
			_, err := e.api.BookService(ctx, meevo.BookServiceRequest{
				ServiceID:  svc.ServiceID,
				ClientID:   group.ClientID,
				StartTime:  svc.OriginalStartRaw,
				EmployeeID: target.StylistID,
			})
			return err
		})
	}

	anchor := group.Services[0]
	booked, err := e.api.BookService(ctx, meevo.BookServiceRequest{
		ServiceID:  anchor.ServiceID,
		ClientID:   group.ClientID,
		StartTime:  newStartRaw,
		EmployeeID: stylistID,
	})
	if err != nil {
		e.logger.Error("failed to book replacement appointment, rolling back", "error", err)
		return fail(err)
	}

	newServiceID := booked.AppointmentServiceID
	if newServiceID == "" {
		newServiceID = target.AppointmentServiceID
	}
	newAppointmentID := booked.AppointmentID

	comp.push("cancel new anchor "+newServiceID, func(ctx context.Context) error {
		fresh, err := e.freshService(ctx, group.ClientID, newServiceID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return nil
		}
		return e.api.CancelService(ctx, newServiceID, fresh.ConcurrencyCheckDigits)
	})

	for _, svc := range group.Services[1:] {
		addon, err := e.api.BookService(ctx, meevo.BookServiceRequest{
			ServiceID:     svc.ServiceID,
			ClientID:      group.ClientID,
			StartTime:     formatVendorTime(newStart.Add(svc.Offset)),
			AppointmentID: newAppointmentID,
			EmployeeID:    stylistID,
		})
		if err != nil {
			e.logger.Error("failed to rebook add-on service, rolling back",
				"service_id", svc.ServiceID,
				"error", err,
			)
			return fail(fmt.Errorf("cannot reschedule: the requested time does not have availability for all services (%s)", vendorMessage(err)))
		}

		addonID := addon.AppointmentServiceID
		comp.push("cancel new add-on "+addonID, func(ctx context.Context) error {
			fresh, err := e.freshService(ctx, group.ClientID, addonID)
			if err != nil {
				return err
			}
			if fresh == nil {
				return nil
			}
			return e.api.CancelService(ctx, addonID, fresh.ConcurrencyCheckDigits)
		})
	}

	comp.discard()
	e.logger.Info("rescheduled via cancel-rebook",
		"old_appointment_id", group.AppointmentID,
		"new_appointment_id", newAppointmentID,
		"services", len(group.Services),
	)
	return &Result{
		AppointmentServiceID: newServiceID,
		ServicesRescheduled:  len(group.Services),
		UsedCancelRebook:     true,
	}, nil
}

// freshService re-reads one service from the client's book, returning
// (nil, nil) when it is no longer listed.
func (e *Executor) freshService(ctx context.Context, clientID, appointmentServiceID string) (*meevo.AppointmentService, error) {
	services, err := e.api.ClientServices(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for i := range services {
		if services[i].AppointmentServiceID == appointmentServiceID {
			return &services[i], nil
		}
	}
	return nil, nil
}

// vendorMessage extracts the vendor's human-readable message from an error.
func vendorMessage(err error) string {
	var apiErr *meevo.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// formatVendorTime renders a derived time the way the vendor expects, with
// the offset carried by the time's own location.
func formatVendorTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}
