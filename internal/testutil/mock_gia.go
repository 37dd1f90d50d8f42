// Package testutil provides testing utilities for the GIA report client.
package testutil

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/gia-report-checker/pkg/report"
)

// Paths served by MockGIA.
const (
	LookupPath = "/report-check"
	DataPath   = "/otmm_wcs_int/loadXML.jsp"
)

// MockGIAResponse defines the behavior for one mocked response.
type MockGIAResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockGIA is a configurable fake of the GIA lookup page and report XML endpoint.
//
// Unless overridden, a lookup for report number N answers with a page whose
// #encryptedString holds "enc-N", and a data request for "enc-N" answers with
// ValidReportXML(N).
type MockGIA struct {
	server *httptest.Server
	mu     sync.Mutex

	lookups map[string]MockGIAResponse
	details map[string]MockGIAResponse
	delay   time.Duration

	// Tracking
	LookupCount    int
	DataCount      int
	inFlight       int
	MaxInFlight    int
	LastUserAgent  string
	LookupReportNo []string
}

// NewMockGIA creates and starts a new mock server.
func NewMockGIA() *MockGIA {
	mock := &MockGIA{
		lookups: make(map[string]MockGIAResponse),
		details: make(map[string]MockGIAResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.enter(r)
		defer mock.leave()

		switch r.URL.Path {
		case LookupPath:
			mock.handleLookup(w, r)
		case DataPath:
			mock.handleData(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockGIA) URL() string {
	return m.server.URL
}

// LookupURL returns the URL to configure as the client's lookup endpoint.
func (m *MockGIA) LookupURL() string {
	return m.server.URL + LookupPath
}

// DataURL returns the URL to configure as the client's data endpoint.
func (m *MockGIA) DataURL() string {
	return m.server.URL + DataPath
}

// Close shuts down the mock server.
func (m *MockGIA) Close() {
	m.server.Close()
}

// SetDelay makes every request sleep for d before answering.
func (m *MockGIA) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetLookupResponse overrides the lookup page answer for a report number.
func (m *MockGIA) SetLookupResponse(reportNo string, resp MockGIAResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[reportNo] = resp
}

// SetDataResponse overrides the XML answer for a token.
func (m *MockGIA) SetDataResponse(token string, resp MockGIAResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[token] = resp
}

// GetMaxInFlight returns the highest number of requests served concurrently.
func (m *MockGIA) GetMaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MaxInFlight
}

// GetLookupCount returns the number of lookup requests served.
func (m *MockGIA) GetLookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LookupCount
}

// GetDataCount returns the number of data requests served.
func (m *MockGIA) GetDataCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DataCount
}

// GetLookupReportNos returns the report numbers received by the lookup page, in arrival order.
func (m *MockGIA) GetLookupReportNos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.LookupReportNo...)
}

// GetLastUserAgent returns the User-Agent of the most recent request.
func (m *MockGIA) GetLastUserAgent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastUserAgent
}

func (m *MockGIA) enter(r *http.Request) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.MaxInFlight {
		m.MaxInFlight = m.inFlight
	}
	m.LastUserAgent = r.Header.Get("User-Agent")
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
}

func (m *MockGIA) leave() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func (m *MockGIA) handleLookup(w http.ResponseWriter, r *http.Request) {
	reportNo := r.URL.Query().Get("reportno")

	m.mu.Lock()
	m.LookupCount++
	m.LookupReportNo = append(m.LookupReportNo, reportNo)
	resp, ok := m.lookups[reportNo]
	m.mu.Unlock()

	if !ok {
		resp = MockGIAResponse{StatusCode: http.StatusOK, Body: LookupPage("enc-" + reportNo)}
	}
	write(w, resp, "text/html; charset=utf-8")
}

func (m *MockGIA) handleData(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("ReportNumber")

	m.mu.Lock()
	m.DataCount++
	resp, ok := m.details[token]
	m.mu.Unlock()

	if !ok {
		if !strings.HasPrefix(token, "enc-") {
			resp = MockGIAResponse{StatusCode: http.StatusOK, Body: EmptyReportXML()}
		} else {
			resp = MockGIAResponse{StatusCode: http.StatusOK, Body: ValidReportXML(strings.TrimPrefix(token, "enc-"))}
		}
	}
	write(w, resp, "text/xml; charset=utf-8")
}

func write(w http.ResponseWriter, resp MockGIAResponse, contentType string) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// LookupPage returns a lookup page whose #encryptedString carries token.
func LookupPage(token string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>GIA Report Check</title></head>
<body>
<form id="reportCheckForm">
<input type="hidden" id="encryptedString" name="encryptedString" value="%s"/>
</form>
</body></html>`, html.EscapeString(token))
}

// LookupPageWithoutToken returns a lookup page lacking #encryptedString.
func LookupPageWithoutToken() string {
	return `<!DOCTYPE html><html><body><p>Report not found</p></body></html>`
}

// ValidFields returns raw values for every field of the table.
func ValidFields(reportNo string) map[string]string {
	raw := make(map[string]string, len(report.Fields))
	for _, f := range report.Fields {
		raw[f.Key] = strings.ToLower(f.Key)
	}
	raw["REPORT_NO"] = reportNo
	raw["WEIGHT"] = "1.01 carat"
	raw["COLOR"] = "E"
	raw["CLARITY"] = "VS1"
	raw["CRN_AG"] = "34.5 degrees"
	raw["PAV_AG"] = "40.8°"
	raw["DEPTH_PCT"] = "61.9%"
	return raw
}

// ReportXML renders a REPORT_CHECK_RESPONSE document for the given raw fields,
// emitted in field-table order followed by any extra keys in sorted order.
func ReportXML(raw map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<REPORT_CHECK_RESPONSE><REPORT_DTLS><REPORT_DTL>")
	seen := make(map[string]bool, len(raw))
	for _, key := range report.Keys() {
		if v, ok := raw[key]; ok {
			writeElement(&b, key, v)
			seen[key] = true
		}
	}
	for _, key := range sortedKeys(raw) {
		if !seen[key] {
			writeElement(&b, key, raw[key])
		}
	}
	b.WriteString("</REPORT_DTL></REPORT_DTLS></REPORT_CHECK_RESPONSE>")
	return b.String()
}

// ValidReportXML returns a complete report document for reportNo.
func ValidReportXML(reportNo string) string {
	return ReportXML(ValidFields(reportNo))
}

// EmptyReportXML returns a document whose REPORT_DTL has no fields.
func EmptyReportXML() string {
	return `<?xml version="1.0" encoding="UTF-8"?><REPORT_CHECK_RESPONSE><REPORT_DTLS><REPORT_DTL></REPORT_DTL></REPORT_DTLS></REPORT_CHECK_RESPONSE>`
}

func writeElement(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "<%s>%s</%s>", key, html.EscapeString(value), key)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
