package meevo

import "fmt"

// ClientRecord is one entry from the paginated client listing. The listing
// only carries summary fields; GuardianID is populated on the detail record
// returned by GetClient.
type ClientRecord struct {
	ClientID           string `json:"clientId"`
	FirstName          string `json:"firstName"`
	LastName           string `json:"lastName"`
	PrimaryPhoneNumber string `json:"primaryPhoneNumber"`
	GuardianID         string `json:"guardianId"`
}

// Name returns the record's display name.
func (c ClientRecord) Name() string {
	return c.FirstName + " " + c.LastName
}

// AppointmentService is one bookable line item on a client's book. Services
// sharing an AppointmentID form one appointment; ConcurrencyCheckDigits is
// the optimistic-concurrency stamp Meevo requires on every mutation, and any
// mutation can invalidate the stamps of sibling services.
type AppointmentService struct {
	AppointmentID          string `json:"appointmentId"`
	AppointmentServiceID   string `json:"appointmentServiceId"`
	ServiceID              string `json:"serviceId"`
	EmployeeID             string `json:"employeeId"`
	StartTime              string `json:"startTime"`
	ServicingEndTime       string `json:"servicingEndTime"`
	ConcurrencyCheckDigits string `json:"concurrencyCheckDigits"`
	IsCancelled            bool   `json:"isCancelled"`
}

// Employee is a staff record. ObjectState 2026 marks an active employee.
type Employee struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	ObjectState int    `json:"objectState"`
}

// UpdateServiceRequest reschedules an existing appointment service in place.
type UpdateServiceRequest struct {
	AppointmentServiceID   string
	ServiceID              string
	StartTime              string
	ClientID               string
	ConcurrencyCheckDigits string
	EmployeeID             string // optional; vendor auto-assigns when empty
}

// BookServiceRequest books a new appointment service. AppointmentID, when
// set, links the new service into an existing appointment as an add-on.
type BookServiceRequest struct {
	ServiceID     string
	ClientID      string
	StartTime     string
	AppointmentID string // optional
	EmployeeID    string // optional
}

// BookingResult identifies the service created by BookService.
type BookingResult struct {
	AppointmentServiceID string `json:"appointmentServiceId"`
	AppointmentID        string `json:"appointmentId"`
}

// ScanOpeningsRequest is the v2 scan/openings query body.
type ScanOpeningsRequest struct {
	LocationID   int           `json:"LocationId"`
	TenantID     int           `json:"TenantId"`
	ScanDateType int           `json:"ScanDateType"`
	StartDate    string        `json:"StartDate"`
	EndDate      string        `json:"EndDate"`
	ScanTimeType int           `json:"ScanTimeType"`
	StartTime    string        `json:"StartTime"`
	EndTime      string        `json:"EndTime"`
	ScanServices []ScanService `json:"ScanServices"`
}

// ScanService restricts an openings scan to one service and employee set.
type ScanService struct {
	ServiceID   string   `json:"ServiceId"`
	EmployeeIDs []string `json:"EmployeeIds"`
}

// ScanResult is one scan/openings result row.
type ScanResult struct {
	ServiceOpenings []ServiceOpening `json:"serviceOpenings"`
}

// ServiceOpening is a single bookable opening. StartTime carries no timezone
// offset; it is local to the scanned location.
type ServiceOpening struct {
	StartTime string `json:"startTime"`
}

// APIError is a non-2xx response from the Meevo API with the message pulled
// from the vendor's error envelope when one was present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meevo: status %d: %s", e.StatusCode, e.Message)
}
