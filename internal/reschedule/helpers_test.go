package reschedule

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/keepitcut/reschedule-service/internal/meevo"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

// fakeMeevo is a stateful in-memory stand-in for the Meevo public API. It
// enforces the vendor's optimistic-concurrency rule: every mutation bumps the
// digits of all services sharing the mutated service's appointment, and a
// mutation presented with stale digits gets a 409. Tests that pass against it
// therefore prove digits are re-fetched before each write.
type fakeMeevo struct {
	t *testing.T

	mu          sync.Mutex
	clientPages [][]meevo.ClientRecord
	details     map[string]meevo.ClientRecord
	services    map[string][]*meevo.AppointmentService
	employees   []meevo.Employee
	openings    map[string][]string // serviceID+"|"+employeeID -> opening start times

	rejectDateChange bool
	// failUpdateMessage, when set, makes every in-place update fail with this
	// vendor envelope message.
	failUpdateMessage  string
	failBookServiceIDs map[string]bool
	// failBookOnDate scopes failBookServiceIDs to bookings on one date, so
	// rollback rebooks at the original date still succeed.
	failBookOnDate string

	digitSeq    int
	tokenCalls  int
	updateCalls int
	bookCalls   int
	cancelCalls int

	srv *httptest.Server
}

func newFakeMeevo(t *testing.T) *fakeMeevo {
	f := &fakeMeevo{
		t:                  t,
		details:            make(map[string]meevo.ClientRecord),
		services:           make(map[string][]*meevo.AppointmentService),
		openings:           make(map[string][]string),
		failBookServiceIDs: make(map[string]bool),
		digitSeq:           100,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeMeevo) client(t *testing.T) *meevo.Client {
	c, err := meevo.New(meevo.Config{
		AuthURL:      f.srv.URL + "/oauth2/token",
		BaseURL:      f.srv.URL + "/publicapi/v1",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TenantID:     "42",
		LocationID:   "7",
	}, testLogger())
	if err != nil {
		t.Fatalf("meevo.New: %v", err)
	}
	return c
}

func testLogger() *logging.Logger {
	return logging.New("error")
}

func (f *fakeMeevo) addClient(rec meevo.ClientRecord, page int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.clientPages) < page {
		f.clientPages = append(f.clientPages, nil)
	}
	f.clientPages[page-1] = append(f.clientPages[page-1], rec)
	f.details[rec.ClientID] = rec
}

func (f *fakeMeevo) addService(clientID string, svc meevo.AppointmentService) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if svc.ConcurrencyCheckDigits == "" {
		f.digitSeq++
		svc.ConcurrencyCheckDigits = strconv.Itoa(f.digitSeq)
	}
	copied := svc
	f.services[clientID] = append(f.services[clientID], &copied)
}

func (f *fakeMeevo) serviceByID(appointmentServiceID string) *meevo.AppointmentService {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupLocked(appointmentServiceID)
}

func (f *fakeMeevo) lookupLocked(appointmentServiceID string) *meevo.AppointmentService {
	for _, book := range f.services {
		for _, svc := range book {
			if svc.AppointmentServiceID == appointmentServiceID {
				return svc
			}
		}
	}
	return nil
}

// bumpAppointmentLocked refreshes the digits of every service in one
// appointment, mirroring the vendor invalidating siblings on any mutation.
func (f *fakeMeevo) bumpAppointmentLocked(appointmentID string) {
	for _, book := range f.services {
		for _, svc := range book {
			if svc.AppointmentID == appointmentID {
				f.digitSeq++
				svc.ConcurrencyCheckDigits = strconv.Itoa(f.digitSeq)
			}
		}
	}
}

func (f *fakeMeevo) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/oauth2/token":
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "fake-token", "expires_in": 3600})

	case path == "/publicapi/v1/clients":
		f.handleListClients(w, r)

	case strings.HasPrefix(path, "/publicapi/v1/client/"):
		f.handleGetClient(w, strings.TrimPrefix(path, "/publicapi/v1/client/"))

	case strings.HasPrefix(path, "/publicapi/v1/book/client/"):
		rest := strings.TrimPrefix(path, "/publicapi/v1/book/client/")
		f.handleClientServices(w, strings.TrimSuffix(rest, "/services"))

	case path == "/publicapi/v1/book/service" && r.Method == http.MethodPost:
		f.handleBookService(w, r)

	case strings.HasPrefix(path, "/publicapi/v1/book/service/") && r.Method == http.MethodPut:
		f.handleUpdateService(w, r, strings.TrimPrefix(path, "/publicapi/v1/book/service/"))

	case strings.HasPrefix(path, "/publicapi/v1/book/service/") && r.Method == http.MethodDelete:
		f.handleCancelService(w, r, strings.TrimPrefix(path, "/publicapi/v1/book/service/"))

	case path == "/publicapi/v1/employees":
		f.mu.Lock()
		emps := f.employees
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": emps})

	case path == "/publicapi/v2/scan/openings":
		f.handleScanOpenings(w, r)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeMeevo) handleListClients(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("PageNumber"))
	f.mu.Lock()
	var recs []meevo.ClientRecord
	if page >= 1 && page <= len(f.clientPages) {
		recs = f.clientPages[page-1]
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": recs})
}

func (f *fakeMeevo) handleGetClient(w http.ResponseWriter, clientID string) {
	f.mu.Lock()
	rec, ok := f.details[clientID]
	f.mu.Unlock()
	if !ok {
		writeVendorError(w, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (f *fakeMeevo) handleClientServices(w http.ResponseWriter, clientID string) {
	f.mu.Lock()
	var out []meevo.AppointmentService
	for _, svc := range f.services[clientID] {
		out = append(out, *svc)
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (f *fakeMeevo) handleUpdateService(w http.ResponseWriter, r *http.Request, id string) {
	if err := r.ParseForm(); err != nil {
		writeVendorError(w, http.StatusBadRequest, "bad form")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++

	svc := f.lookupLocked(id)
	if svc == nil || svc.IsCancelled {
		writeVendorError(w, http.StatusNotFound, "appointment service not found")
		return
	}
	if r.PostForm.Get("ConcurrencyCheckDigits") != svc.ConcurrencyCheckDigits {
		writeVendorError(w, http.StatusConflict, "concurrency check failed")
		return
	}
	if f.failUpdateMessage != "" {
		writeVendorError(w, http.StatusBadRequest, f.failUpdateMessage)
		return
	}

	newStart := r.PostForm.Get("StartTime")
	if f.rejectDateChange && datePart(newStart) != datePart(svc.StartTime) {
		writeVendorError(w, http.StatusBadRequest,
			"When changing the date of an appointment, please cancel and rebook.")
		return
	}

	svc.StartTime = newStart
	if emp := r.PostForm.Get("EmployeeId"); emp != "" {
		svc.EmployeeID = emp
	}
	f.bumpAppointmentLocked(svc.AppointmentID)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (f *fakeMeevo) handleBookService(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeVendorError(w, http.StatusBadRequest, "bad form")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls++

	serviceID := r.PostForm.Get("ServiceId")
	if f.failBookServiceIDs[serviceID] &&
		(f.failBookOnDate == "" || f.failBookOnDate == datePart(r.PostForm.Get("StartTime"))) {
		writeVendorError(w, http.StatusBadRequest, "no availability for the requested time")
		return
	}

	clientID := r.PostForm.Get("ClientId")
	appointmentID := r.PostForm.Get("AppointmentId")
	if appointmentID == "" {
		appointmentID = fmt.Sprintf("appt-new-%d", f.bookCalls)
	}
	f.digitSeq++
	svc := &meevo.AppointmentService{
		AppointmentID:          appointmentID,
		AppointmentServiceID:   fmt.Sprintf("as-new-%d", f.bookCalls),
		ServiceID:              serviceID,
		EmployeeID:             r.PostForm.Get("EmployeeId"),
		StartTime:              r.PostForm.Get("StartTime"),
		ConcurrencyCheckDigits: strconv.Itoa(f.digitSeq),
	}
	f.services[clientID] = append(f.services[clientID], svc)
	f.bumpAppointmentLocked(appointmentID)

	writeJSON(w, http.StatusOK, map[string]any{"data": meevo.BookingResult{
		AppointmentServiceID: svc.AppointmentServiceID,
		AppointmentID:        svc.AppointmentID,
	}})
}

func (f *fakeMeevo) handleCancelService(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++

	svc := f.lookupLocked(id)
	if svc == nil || svc.IsCancelled {
		writeVendorError(w, http.StatusNotFound, "appointment service not found")
		return
	}
	if r.URL.Query().Get("ConcurrencyCheckDigits") != svc.ConcurrencyCheckDigits {
		writeVendorError(w, http.StatusConflict, "concurrency check failed")
		return
	}
	svc.IsCancelled = true
	f.bumpAppointmentLocked(svc.AppointmentID)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (f *fakeMeevo) handleScanOpenings(w http.ResponseWriter, r *http.Request) {
	var scan meevo.ScanOpeningsRequest
	if err := json.NewDecoder(r.Body).Decode(&scan); err != nil {
		writeVendorError(w, http.StatusBadRequest, "bad scan body")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var results []meevo.ScanResult
	for _, ss := range scan.ScanServices {
		for _, emp := range ss.EmployeeIDs {
			var result meevo.ScanResult
			for _, start := range f.openings[ss.ServiceID+"|"+emp] {
				result.ServiceOpenings = append(result.ServiceOpenings, meevo.ServiceOpening{StartTime: start})
			}
			results = append(results, result)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}

func (f *fakeMeevo) book(clientID string) []meevo.AppointmentService {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []meevo.AppointmentService
	for _, svc := range f.services[clientID] {
		out = append(out, *svc)
	}
	return out
}

func (f *fakeMeevo) counts() (token, update, book, cancel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.updateCalls, f.bookCalls, f.cancelCalls
}

func datePart(s string) string {
	before, _, _ := strings.Cut(s, "T")
	return before
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeVendorError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": msg}})
}
