package reschedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/keepitcut/reschedule-service/internal/meevo"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

// ErrAppointmentServiceMissing means the target service id was resolved but
// no longer appears on the client's book.
var ErrAppointmentServiceMissing = errors.New("could not find the appointment service")

// ServicePlan is one service scheduled to move, with its fixed offset from
// the anchor service's start time.
type ServicePlan struct {
	AppointmentServiceID string
	ServiceID            string
	StylistID            string
	ConcurrencyCheck     string
	OriginalStartRaw     string // vendor's own rendering, replayed verbatim on rollback
	OriginalStart        time.Time
	Offset               time.Duration
}

// AppointmentGroup is the unit of reschedule: every non-cancelled service
// sharing one appointment id, earliest first. Services[0] is the anchor;
// the rest are add-ons whose offsets must be reproduced at the new time.
type AppointmentGroup struct {
	AppointmentID string
	ClientID      string
	Services      []ServicePlan
}

// LocateRequest carries the caller-supplied identification fields.
type LocateRequest struct {
	Phone                string
	AppointmentServiceID string
	ServiceID            string
	ClientID             string
	Stylist              string
	ConcurrencyCheck     string
}

// Target is a fully resolved reschedule target.
type Target struct {
	Group AppointmentGroup

	// AppointmentServiceID is the service the caller asked to move.
	AppointmentServiceID string

	// StylistID is the caller's requested stylist, falling back to the
	// employee already on the appointment. Empty means none was pinned.
	StylistID string
}

// Locator turns request fields into the ordered group of services that must
// move together.
type Locator struct {
	api    *meevo.Client
	dir    *Directory
	logger *logging.Logger
}

// NewLocator creates a Locator.
func NewLocator(api *meevo.Client, dir *Directory, logger *logging.Logger) *Locator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Locator{api: api, dir: dir, logger: logger}
}

// Locate resolves the reschedule target. With an explicit appointment-service
// id and a phone, the caller's own book is checked before linked profiles.
// With no id, the earliest upcoming service across the caller and all linked
// profiles is selected.
func (l *Locator) Locate(ctx context.Context, req LocateRequest) (*Target, error) {
	serviceID := req.AppointmentServiceID
	clientID := req.ClientID
	stylistID := req.Stylist

	switch {
	case serviceID != "" && req.Phone != "" && (req.ServiceID == "" || clientID == "" || req.ConcurrencyCheck == ""):
		match, ownerID, err := l.matchServiceForCaller(ctx, req.Phone, serviceID)
		if err != nil {
			return nil, err
		}
		if clientID == "" {
			clientID = ownerID
		}
		if stylistID == "" {
			stylistID = match.EmployeeID
		}

	case serviceID == "":
		next, err := l.earliestUpcoming(ctx, req.Phone)
		if err != nil {
			return nil, err
		}
		serviceID = next.service.AppointmentServiceID
		clientID = next.clientID
		if stylistID == "" {
			stylistID = next.service.EmployeeID
		}
		l.logger.Info("selected earliest upcoming appointment",
			"appointment_service_id", serviceID,
			"client", next.clientName,
			"start", next.service.StartTime,
		)
	}

	if clientID == "" {
		return nil, ErrAppointmentServiceMissing
	}

	group, err := l.buildGroup(ctx, clientID, serviceID)
	if err != nil {
		return nil, err
	}
	return &Target{
		Group:                *group,
		AppointmentServiceID: serviceID,
		StylistID:            stylistID,
	}, nil
}

// matchServiceForCaller finds the given appointment-service id on the book
// of the phone's client, then on linked profiles' books. First match wins.
func (l *Locator) matchServiceForCaller(ctx context.Context, phone, serviceID string) (*meevo.AppointmentService, string, error) {
	caller, err := l.dir.FindClientByPhone(ctx, phone)
	if err != nil {
		return nil, "", err
	}

	if match := l.findOnBook(ctx, caller.ClientID, serviceID); match != nil {
		l.logger.Info("found appointment on caller's own book", "client", caller.Name())
		return match, caller.ClientID, nil
	}

	l.logger.Info("appointment not on caller's book, checking linked profiles")
	linked, err := l.dir.FindLinkedProfiles(ctx, caller.ClientID)
	if err != nil {
		return nil, "", err
	}
	for _, profile := range linked {
		if match := l.findOnBook(ctx, profile.ClientID, serviceID); match != nil {
			l.logger.Info("found appointment on linked profile's book", "client", profile.Name())
			return match, profile.ClientID, nil
		}
	}
	return nil, "", ErrServiceNotFound
}

// findOnBook returns the service with the given id from one client's book,
// or nil. Lookup errors count as no match: the linked-profile fallback still
// has a chance.
func (l *Locator) findOnBook(ctx context.Context, clientID, serviceID string) *meevo.AppointmentService {
	services, err := l.api.ClientServices(ctx, clientID)
	if err != nil {
		l.logger.Warn("failed to list client services", "client_id", clientID, "error", err)
		return nil
	}
	for i := range services {
		if services[i].AppointmentServiceID == serviceID {
			return &services[i]
		}
	}
	return nil
}

type upcomingService struct {
	service    meevo.AppointmentService
	clientID   string
	clientName string
	start      time.Time
}

// earliestUpcoming gathers future, non-cancelled services for the caller and
// every linked profile, and returns the earliest by start time.
func (l *Locator) earliestUpcoming(ctx context.Context, phone string) (*upcomingService, error) {
	caller, err := l.dir.FindClientByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	all := l.upcomingFor(ctx, caller.ClientID, caller.Name())

	linked, err := l.dir.FindLinkedProfiles(ctx, caller.ClientID)
	if err != nil {
		return nil, err
	}
	callerCount := len(all)
	for _, profile := range linked {
		all = append(all, l.upcomingFor(ctx, profile.ClientID, profile.Name())...)
	}

	l.logger.Info("gathered upcoming appointments",
		"caller", callerCount,
		"linked", len(all)-callerCount,
	)

	if len(all) == 0 {
		return nil, ErrNoUpcomingAppointments
	}
	sort.Slice(all, func(i, j int) bool { return all[i].start.Before(all[j].start) })
	next := all[0]
	return &next, nil
}

// upcomingFor lists one client's future, non-cancelled services. Errors are
// logged and yield an empty list so one unreadable book does not fail the
// whole search.
func (l *Locator) upcomingFor(ctx context.Context, clientID, clientName string) []upcomingService {
	services, err := l.api.ClientServices(ctx, clientID)
	if err != nil {
		l.logger.Warn("failed to list appointments", "client", clientName, "error", err)
		return nil
	}

	now := time.Now()
	var upcoming []upcomingService
	for _, svc := range services {
		if svc.IsCancelled {
			continue
		}
		start, err := parseVendorTime(svc.StartTime)
		if err != nil {
			l.logger.Warn("unparseable service start time",
				"appointment_service_id", svc.AppointmentServiceID,
				"start_time", svc.StartTime,
			)
			continue
		}
		if !start.After(now) {
			continue
		}
		upcoming = append(upcoming, upcomingService{
			service:    svc,
			clientID:   clientID,
			clientName: clientName,
			start:      start,
		})
	}
	return upcoming
}

// buildGroup collects every non-cancelled service sharing the target's
// appointment id, sorted by start time, with each one's offset from the
// anchor.
func (l *Locator) buildGroup(ctx context.Context, clientID, serviceID string) (*AppointmentGroup, error) {
	services, err := l.api.ClientServices(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("look up appointment group: %w", err)
	}

	var target *meevo.AppointmentService
	for i := range services {
		if services[i].AppointmentServiceID == serviceID {
			target = &services[i]
			break
		}
	}
	if target == nil {
		return nil, ErrAppointmentServiceMissing
	}

	type member struct {
		svc   meevo.AppointmentService
		start time.Time
	}
	var members []member
	for _, svc := range services {
		if svc.AppointmentID != target.AppointmentID || svc.IsCancelled {
			continue
		}
		start, err := parseVendorTime(svc.StartTime)
		if err != nil {
			l.logger.Warn("dropping service with unparseable start time",
				"appointment_service_id", svc.AppointmentServiceID,
				"start_time", svc.StartTime,
			)
			continue
		}
		members = append(members, member{svc: svc, start: start})
	}
	if len(members) == 0 {
		return nil, ErrAppointmentServiceMissing
	}
	sort.Slice(members, func(i, j int) bool { return members[i].start.Before(members[j].start) })

	anchorStart := members[0].start
	group := &AppointmentGroup{
		AppointmentID: target.AppointmentID,
		ClientID:      clientID,
	}
	for _, m := range members {
		group.Services = append(group.Services, ServicePlan{
			AppointmentServiceID: m.svc.AppointmentServiceID,
			ServiceID:            m.svc.ServiceID,
			StylistID:            m.svc.EmployeeID,
			ConcurrencyCheck:     m.svc.ConcurrencyCheckDigits,
			OriginalStartRaw:     m.svc.StartTime,
			OriginalStart:        m.start,
			Offset:               m.start.Sub(anchorStart),
		})
	}

	l.logger.Info("resolved appointment group",
		"appointment_id", group.AppointmentID,
		"services", len(group.Services),
	)
	return group, nil
}

// vendorTimeLayouts covers the renderings Meevo uses for start times: RFC
// 3339 with offset, and zone-less local time with or without fractional
// seconds.
var vendorTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseVendorTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range vendorTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
