// Package meevo provides a REST client for the Meevo public API, the
// scheduling platform of record for the salon. All state lives on the vendor
// side; this client is a thin, typed wrapper over its v1/v2 endpoints.
package meevo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keepitcut/reschedule-service/pkg/logging"
)

const (
	// tokenRefreshWindow renews the cached bearer token this long before it
	// actually expires.
	tokenRefreshWindow = 5 * time.Minute

	// clientGenderCode is a fixed numeric code the vendor schema requires on
	// every booking mutation.
	clientGenderCode = "2035"

	// EmployeeStateActive is the objectState value of an active employee.
	EmployeeStateActive = 2026

	// ItemsPerPage is the page size used for all paginated listings.
	ItemsPerPage = 100

	timeoutClientList   = 3 * time.Second
	timeoutClientDetail = 2 * time.Second
	timeoutServices     = 5 * time.Second
	timeoutEmployees    = 5 * time.Second
	timeoutScan         = 5 * time.Second

	// dateChangeRejection is the vendor's error text when an in-place update
	// moves a service to a different date, which Meevo refuses.
	dateChangeRejection = "When changing the date"
)

// CallObserver records the outcome of outbound vendor calls.
type CallObserver interface {
	ObserveVendorCall(operation, status string)
}

// Config holds the per-deployment Meevo credentials and identifiers.
type Config struct {
	AuthURL      string
	BaseURL      string // e.g. "https://na1pub.meevo.com/publicapi/v1"
	ClientID     string
	ClientSecret string
	TenantID     string
	LocationID   string
}

// Client is a Meevo public API client. The bearer token is cached on the
// client and refreshed under a mutex, so a single instance is safe to share
// across requests.
type Client struct {
	authURL      string
	baseURL      string
	scanBaseURL  string
	clientID     string
	clientSecret string
	tenantID     string
	locationID   string

	// Mutations carry no timeout; reads apply per-call context deadlines.
	httpClient *http.Client
	logger     *logging.Logger
	observer   CallObserver

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func (c *Client) observe(operation, status string) {
	if c.observer != nil {
		c.observer.ObserveVendorCall(operation, status)
	}
}

// Option configures a Client.
type Option func(*Client)

// WithObserver attaches a vendor-call observer.
func WithObserver(o CallObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// New creates a Meevo API client.
func New(cfg Config, logger *logging.Logger, opts ...Option) (*Client, error) {
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("meevo: AuthURL is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("meevo: BaseURL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("meevo: ClientID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("meevo: ClientSecret is required")
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("meevo: TenantID is required")
	}
	if cfg.LocationID == "" {
		return nil, fmt.Errorf("meevo: LocationID is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		authURL:      cfg.AuthURL,
		baseURL:      base,
		scanBaseURL:  strings.TrimSuffix(base, "/v1") + "/v2",
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tenantID:     cfg.TenantID,
		locationID:   cfg.LocationID,
		httpClient:   &http.Client{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the cached bearer token, refreshing it from the OAuth
// endpoint when it is within tokenRefreshWindow of expiring. Refresh happens
// under the client mutex so concurrent requests produce a single writer.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshWindow)) {
		return c.accessToken, nil
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("meevo: marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("meevo: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("token", "error")
		return "", fmt.Errorf("meevo: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.observe("token", strconv.Itoa(resp.StatusCode))
		return "", fmt.Errorf("meevo: token request failed (status %d): %s", resp.StatusCode, truncate(string(body)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("meevo: decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("meevo: token response missing access_token")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.observe("token", "ok")
	return c.accessToken, nil
}

// ListClients returns one page of the location's client list. Pages are
// 1-based; an empty slice signals a page past the end of the list.
func (c *Client) ListClients(ctx context.Context, page int) ([]ClientRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutClientList)
	defer cancel()

	endpoint := fmt.Sprintf("%s/clients?tenantid=%s&locationid=%s&PageNumber=%d&ItemsPerPage=%d",
		c.baseURL, url.QueryEscape(c.tenantID), url.QueryEscape(c.locationID), page, ItemsPerPage)

	var wrapped struct {
		Data []ClientRecord `json:"data"`
	}
	if err := c.doGet(ctx, "list_clients", endpoint, &wrapped); err != nil {
		return nil, fmt.Errorf("list clients page %d: %w", page, err)
	}
	return wrapped.Data, nil
}

// GetClient fetches one client's full detail record, including GuardianID.
func (c *Client) GetClient(ctx context.Context, clientID string) (*ClientRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutClientDetail)
	defer cancel()

	endpoint := fmt.Sprintf("%s/client/%s?TenantId=%s&LocationId=%s",
		c.baseURL, url.PathEscape(clientID), url.QueryEscape(c.tenantID), url.QueryEscape(c.locationID))

	// The detail endpoint sometimes wraps the record in a data envelope and
	// sometimes returns it bare.
	var wrapped struct {
		Data *ClientRecord `json:"data"`
		ClientRecord
	}
	if err := c.doGet(ctx, "get_client", endpoint, &wrapped); err != nil {
		return nil, fmt.Errorf("get client %s: %w", clientID, err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	rec := wrapped.ClientRecord
	return &rec, nil
}

// ClientServices lists every appointment service on a client's book,
// cancelled ones included.
func (c *Client) ClientServices(ctx context.Context, clientID string) ([]AppointmentService, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutServices)
	defer cancel()

	endpoint := fmt.Sprintf("%s/book/client/%s/services?TenantId=%s&LocationId=%s",
		c.baseURL, url.PathEscape(clientID), url.QueryEscape(c.tenantID), url.QueryEscape(c.locationID))

	var wrapped struct {
		Data []AppointmentService `json:"data"`
	}
	if err := c.doGet(ctx, "client_services", endpoint, &wrapped); err != nil {
		return nil, fmt.Errorf("client services for %s: %w", clientID, err)
	}
	return wrapped.Data, nil
}

// ListEmployees returns the location's employee roster.
func (c *Client) ListEmployees(ctx context.Context) ([]Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutEmployees)
	defer cancel()

	endpoint := fmt.Sprintf("%s/employees?tenantid=%s&locationid=%s&ItemsPerPage=%d",
		c.baseURL, url.QueryEscape(c.tenantID), url.QueryEscape(c.locationID), ItemsPerPage)

	var wrapped struct {
		Data []Employee `json:"data"`
	}
	if err := c.doGet(ctx, "list_employees", endpoint, &wrapped); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return wrapped.Data, nil
}

// UpdateService reschedules an appointment service in place via PUT. The
// concurrency digits must have been fetched immediately beforehand.
func (c *Client) UpdateService(ctx context.Context, req UpdateServiceRequest) error {
	form := url.Values{}
	form.Set("ServiceId", req.ServiceID)
	form.Set("StartTime", req.StartTime)
	form.Set("ClientId", req.ClientID)
	form.Set("ClientGender", clientGenderCode)
	form.Set("ConcurrencyCheckDigits", req.ConcurrencyCheckDigits)
	if req.EmployeeID != "" {
		form.Set("EmployeeId", req.EmployeeID)
	}

	endpoint := fmt.Sprintf("%s/book/service/%s?TenantId=%s&LocationId=%s",
		c.baseURL, url.PathEscape(req.AppointmentServiceID), url.QueryEscape(c.tenantID), url.QueryEscape(c.locationID))

	if err := c.doForm(ctx, "update_service", http.MethodPut, endpoint, form, nil); err != nil {
		return fmt.Errorf("update service %s: %w", req.AppointmentServiceID, err)
	}
	return nil
}

// BookService books a new appointment service via POST and returns the ids
// the vendor assigned.
func (c *Client) BookService(ctx context.Context, req BookServiceRequest) (*BookingResult, error) {
	form := url.Values{}
	form.Set("ServiceId", req.ServiceID)
	form.Set("ClientId", req.ClientID)
	form.Set("ClientGender", clientGenderCode)
	form.Set("StartTime", req.StartTime)
	if req.AppointmentID != "" {
		form.Set("AppointmentId", req.AppointmentID)
	}
	if req.EmployeeID != "" {
		form.Set("EmployeeId", req.EmployeeID)
	}

	endpoint := fmt.Sprintf("%s/book/service?TenantId=%s&LocationId=%s",
		c.baseURL, url.QueryEscape(c.tenantID), url.QueryEscape(c.locationID))

	var wrapped struct {
		Data *BookingResult `json:"data"`
	}
	if err := c.doForm(ctx, "book_service", http.MethodPost, endpoint, form, &wrapped); err != nil {
		return nil, fmt.Errorf("book service %s: %w", req.ServiceID, err)
	}
	if wrapped.Data == nil {
		return &BookingResult{}, nil
	}
	return wrapped.Data, nil
}

// CancelService cancels an appointment service. The concurrency digits ride
// as a query parameter on the DELETE.
func (c *Client) CancelService(ctx context.Context, appointmentServiceID, concurrencyCheckDigits string) error {
	endpoint := fmt.Sprintf("%s/book/service/%s?TenantId=%s&LocationId=%s&ConcurrencyCheckDigits=%s",
		c.baseURL, url.PathEscape(appointmentServiceID), url.QueryEscape(c.tenantID),
		url.QueryEscape(c.locationID), url.QueryEscape(concurrencyCheckDigits))

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("cancel service %s: build request: %w", appointmentServiceID, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("cancel_service", "error")
		return fmt.Errorf("cancel service %s: %w", appointmentServiceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe("cancel_service", strconv.Itoa(resp.StatusCode))
		return fmt.Errorf("cancel service %s: %w", appointmentServiceID, apiErrorFrom(resp))
	}
	c.observe("cancel_service", "ok")
	return nil
}

// ScanOpenings runs a v2 scan/openings availability query.
func (c *Client) ScanOpenings(ctx context.Context, scan ScanOpeningsRequest) ([]ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutScan)
	defer cancel()

	payload, err := json.Marshal(scan)
	if err != nil {
		return nil, fmt.Errorf("scan openings: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/scan/openings?TenantId=%s&LocationId=%s",
		c.scanBaseURL, url.QueryEscape(c.tenantID), url.QueryEscape(c.locationID))

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("scan openings: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("scan_openings", "error")
		return nil, fmt.Errorf("scan openings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observe("scan_openings", strconv.Itoa(resp.StatusCode))
		return nil, fmt.Errorf("scan openings: %w", apiErrorFrom(resp))
	}

	var wrapped struct {
		Data []ScanResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("scan openings: decode response: %w", err)
	}
	c.observe("scan_openings", "ok")
	return wrapped.Data, nil
}

// TenantLocation returns the configured tenant and location ids as integers
// for the v2 scan body, which wants numbers where v1 takes strings.
func (c *Client) TenantLocation() (tenant, location int) {
	tenant, _ = strconv.Atoi(c.tenantID)
	location, _ = strconv.Atoi(c.locationID)
	return tenant, location
}

// IsDateChangeRejection reports whether err is the vendor refusing an
// in-place update because the date portion changed.
func IsDateChangeRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, dateChangeRejection)
}

func (c *Client) doGet(ctx context.Context, operation, endpoint string, out interface{}) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, "error")
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observe(operation, strconv.Itoa(resp.StatusCode))
		return apiErrorFrom(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.observe(operation, "ok")
	return nil
}

func (c *Client) doForm(ctx context.Context, operation, method, endpoint string, form url.Values, out interface{}) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, "error")
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(operation, strconv.Itoa(resp.StatusCode))
		return apiErrorFrom(resp)
	}

	if out != nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
	}
	c.observe(operation, "ok")
	return nil
}

// apiErrorFrom builds an APIError from a non-2xx response, preferring the
// vendor's {"error":{"message":...}} envelope over the raw body.
func apiErrorFrom(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: truncate(string(body))}
}

func truncate(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
