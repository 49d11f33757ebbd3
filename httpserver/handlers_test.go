package httpserver

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	glidein "github.com/bbockelm/golang-glidein"
	"github.com/bbockelm/golang-glidein/ratelimit"
)

const sampleQueue = `

-- Schedd: gfactory@cm.example.com : <10.0.0.5:9618?... @ 10/18/25 09:20:01
OWNER  BATCH_NAME    SUBMITTED   DONE   RUN    IDLE   HOLD  TOTAL JOB_IDS
alice  ID: 42      10/18 09:15      _      1      4      _      5 42.0-4
bob    ID: 43      10/18 09:16      _      _      1      1 43.0

Total for query: 6 jobs; 0 completed, 0 removed, 4 idle, 1 running, 1 held, 0 suspended
`

var logLinkPattern = regexp.MustCompile(`href="http://example\.com/log\?uuid=([0-9a-f-]+)"`)

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	return e
}

func TestSubmitResultLogFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(submitRequest(t, "3", " -a   b ", []byte("#!/bin/sh\necho hello\n")))
	if resp.StatusCode != http.StatusTemporaryRedirect {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("submit status = %d, body %s", resp.StatusCode, body)
	}
	if loc := resp.Header.Get("Location"); loc != "/result" {
		t.Errorf("Location = %q, want /result", loc)
	}

	if len(ts.submitter.requests) != 1 {
		t.Fatalf("submitter called %d times", len(ts.submitter.requests))
	}
	req := ts.submitter.requests[0]
	if req.Entry != "testCE" || req.Collector != "cm.example.com" {
		t.Errorf("base request not carried over: %+v", req)
	}
	ov := req.Overrides
	if ov.Count != 3 {
		t.Errorf("Count = %d, want 3", ov.Count)
	}
	if strings.Join(ov.Arguments, "|") != "-a|b" {
		t.Errorf("Arguments = %q", ov.Arguments)
	}
	wsDir := ov.WorkDir
	if req.PatchDir != wsDir {
		t.Errorf("PatchDir = %s, want the workspace %s", req.PatchDir, wsDir)
	}
	for name, got := range map[string]string{
		glidein.LogFile:        ov.LogFile,
		glidein.OutputFile:     ov.OutputFile,
		glidein.ErrorFile:      ov.ErrorFile,
		glidein.ExecutableFile: ov.Executable,
	} {
		if got != filepath.Join(wsDir, name) {
			t.Errorf("%s path = %s, want it inside %s", name, got, wsDir)
		}
	}
	info, err := os.Stat(ov.Executable)
	if err != nil {
		t.Fatalf("executable not stored: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("executable mode = %v, want owner-executable", info.Mode())
	}

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			session = c
		}
	}
	if session == nil || !session.HttpOnly {
		t.Fatalf("missing HttpOnly session cookie: %v", resp.Cookies())
	}

	resultReq := httptest.NewRequest(http.MethodPost, "/result", nil)
	resultReq.AddCookie(session)
	resp = ts.do(resultReq)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	m := logLinkPattern.FindSubmatch(body)
	if m == nil {
		t.Fatalf("result page has no log link: %s", body)
	}
	id := string(m[1])
	if id != filepath.Base(wsDir) {
		t.Errorf("log link names %s, want %s", id, filepath.Base(wsDir))
	}

	resp = ts.do(httptest.NewRequest(http.MethodGet, "/log?uuid="+id, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("log status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, `attachment; filename="logdownloads_`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("download is not a zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names[glidein.ExecutableFile] || !names[glidein.LogFile] {
		t.Errorf("archive entries = %v", names)
	}

	// Downloading retires the workspace but keeps it available
	if _, err := os.Stat(filepath.Join(wsDir, ".retired")); err != nil {
		t.Errorf("workspace not retired after download: %v", err)
	}
	resp = ts.do(httptest.NewRequest(http.MethodGet, "/log?uuid="+id, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second download status = %d", resp.StatusCode)
	}
	data, _ = io.ReadAll(resp.Body)
	zr, err = zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("second download is not a zip: %v", err)
	}
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "logdownloads_") {
			t.Errorf("second archive contains earlier archive %s", f.Name)
		}
	}
	if served, _ := filepath.Glob(filepath.Join(wsDir, "logdownloads_*.zip")); len(served) != 0 {
		t.Errorf("served archives left in workspace: %v", served)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
		want int
	}{
		{"GET", func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, "/submit", nil) }, http.StatusMethodNotAllowed},
		{"not multipart", func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("x")) }, http.StatusBadRequest},
		{"zero count", func(t *testing.T) *http.Request { return submitRequest(t, "0", "", []byte("x")) }, http.StatusBadRequest},
		{"count not a number", func(t *testing.T) *http.Request { return submitRequest(t, "five", "", []byte("x")) }, http.StatusBadRequest},
		{"no executable", func(t *testing.T) *http.Request { return submitRequest(t, "1", "", nil) }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			resp := ts.do(tt.req(t))
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if e := decodeError(t, resp); e.Code != tt.want {
				t.Errorf("error code = %d, want %d", e.Code, tt.want)
			}
			if len(ts.submitter.requests) != 0 {
				t.Error("submitter ran for a rejected request")
			}
		})
	}
}

func TestSubmitFailureStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&glidein.NotFoundError{Identity: "fe", Target: "testCE"}, http.StatusNotFound},
		{&glidein.ValidationError{Reason: "unknown key id"}, http.StatusForbidden},
		{&glidein.SubmissionError{ExitCode: 1, Output: []byte("ERROR")}, http.StatusBadGateway},
		{&glidein.TemplateIncompleteError{Path: "job.condor", Missing: []string{"Log"}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.submitter.err = tt.err

			resp := ts.do(submitRequest(t, "1", "", []byte("x")))
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			e := decodeError(t, resp)
			if e.Message != tt.err.Error() {
				t.Errorf("message = %q, want %q", e.Message, tt.err.Error())
			}
			for _, c := range resp.Cookies() {
				if c.Name == SessionCookie {
					t.Error("failed submission set a session")
				}
			}
		})
	}
}

func TestSubmitRateLimited(t *testing.T) {
	ts := newTestServer(t, ratelimit.NewManager(0, 1, 0, 0))
	want := []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}
	for i, code := range want {
		resp := ts.do(httptest.NewRequest(http.MethodPost, "/submit", nil))
		if resp.StatusCode != code {
			t.Errorf("request %d status = %d, want %d", i, resp.StatusCode, code)
		}
	}
}

func TestResultRequiresSession(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(httptest.NewRequest(http.MethodPost, "/result", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no cookie: status = %d, want 401", resp.StatusCode)
	}

	forged, err := NewSessionSigner([]byte("another-key-another-key-another!")).Issue("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/result", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: forged})
	if resp := ts.do(req); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("forged cookie: status = %d, want 401", resp.StatusCode)
	}

	// Valid signature, but the workspace is gone
	token, err := ts.sessions.Issue("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodPost, "/result", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	if resp := ts.do(req); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown workspace: status = %d, want 404", resp.StatusCode)
	}
}

func TestLogUnknownWorkspace(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, q := range []string{"", "?uuid=", "?uuid=../../etc", "?uuid=6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		resp := ts.do(httptest.NewRequest(http.MethodGet, "/log"+q, nil))
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("/log%s status = %d, want 404", q, resp.StatusCode)
		}
	}
}

func TestQueuePage(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.queue.raw = sampleQueue

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/queue", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{
		"<td>OWNER</td><td>BATCH_NAME</td>",
		"<tr><td>alice</td><td>ID: 42</td><td>10/18 09:15</td><td>_</td><td>1</td><td>4</td><td>_</td><td>5</td><td>42.0-4</td></tr>",
		"<tr><td>bob</td><td>ID: 43</td><td>10/18 09:16</td><td>_</td><td>_</td><td>1</td><td>1</td><td>43.0</td></tr>",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("queue page lacks %q:\n%s", want, page)
		}
	}
	if strings.Contains(page, "Total for query") {
		t.Error("footer line rendered as a row")
	}
}

func TestQueueFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.queue.err = &glidein.QueueListingError{ExitCode: 1, Output: []byte("cannot reach schedd")}

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/queue", nil))
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestQueueRateLimited(t *testing.T) {
	ts := newTestServer(t, ratelimit.NewManager(0, 0, 1, 0))
	ts.queue.raw = sampleQueue
	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(httptest.NewRequest(http.MethodGet, "/queue", nil)).StatusCode)
	}
	if codes[0] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}
}

func TestIntroPage(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{`href="http://example.com/queue"`, `name="payload"`, `name="file"`, `name="args"`, "testCE"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("intro page lacks %q", want)
		}
	}

	if resp := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil)); resp.StatusCode != http.StatusNotFound {
		t.Errorf("/nope status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name           string
		method         string
		wantStatusCode int
		wantStatus     string
	}{
		{"GET /healthz returns OK", http.MethodGet, http.StatusOK, "ok"},
		{"POST /healthz returns Method Not Allowed", http.MethodPost, http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(httptest.NewRequest(tt.method, "/healthz", nil))
			if resp.StatusCode != tt.wantStatusCode {
				t.Errorf("status = %v, want %v", resp.StatusCode, tt.wantStatusCode)
			}
			if tt.wantStatus != "" {
				var response map[string]string
				if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if response["status"] != tt.wantStatus {
					t.Errorf("status = %v, want %v", response["status"], tt.wantStatus)
				}
			}
		})
	}
}
