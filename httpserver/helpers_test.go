package httpserver

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	glidein "github.com/bbockelm/golang-glidein"
	"github.com/bbockelm/golang-glidein/ratelimit"
)

var testSessionKey = []byte("0123456789abcdef0123456789abcdef")

// fakeSubmitter records requests and writes a job log the way condor would.
type fakeSubmitter struct {
	requests []glidein.SubmitRequest
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, req glidein.SubmitRequest) (*glidein.SubmitResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(req.Overrides.LogFile, []byte("000 (042.000.000) Job submitted from host\n"), 0o644); err != nil {
		return nil, err
	}
	return &glidein.SubmitResult{ClusterID: 42, JobCount: req.Overrides.Count}, nil
}

type fakeQueue struct {
	raw string
	err error
}

func (f *fakeQueue) List(_ context.Context) ([]string, []glidein.QueueRecord, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	header, rows := glidein.ParseQueue(f.raw)
	return header, rows, nil
}

type testServer struct {
	*Server
	submitter  *fakeSubmitter
	queue      *fakeQueue
	workspaces *glidein.WorkspaceManager
}

func newTestServer(t *testing.T, limits *ratelimit.Manager) *testServer {
	t.Helper()
	ts := &testServer{
		submitter:  &fakeSubmitter{},
		queue:      &fakeQueue{},
		workspaces: glidein.NewWorkspaceManager(t.TempDir(), glidein.WorkspaceOptions{}),
	}
	s, err := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		Submitter:  ts.submitter,
		Base: glidein.SubmitRequest{
			Collector: "cm.example.com",
			Frontend:  "vofrontend_service@cm.example.com",
			Entry:     "testCE",
			Client:    "test.test",
			Template:  "/var/lib/gwms-factory/work-dir/entry_testCE/job.condor",
		},
		Workspaces: ts.workspaces,
		Queue:      ts.queue,
		RateLimits: limits,
		SessionKey: testSessionKey,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts.Server = s
	return ts
}

func (ts *testServer) do(req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w.Result()
}

// submitRequest builds a POST /submit multipart request. A nil executable omits the file part.
func submitRequest(t *testing.T, payload, args string, executable []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("payload", payload); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("args", args); err != nil {
		t.Fatal(err)
	}
	if executable != nil {
		fw, err := mw.CreateFormFile("file", "job.sh")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(executable); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
