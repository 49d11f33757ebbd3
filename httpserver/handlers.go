package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	glidein "github.com/bbockelm/golang-glidein"
	"github.com/bbockelm/golang-glidein/logging"
)

// maxUploadMemory is how much of a multipart upload is held in memory; the rest spills to disk
const maxUploadMemory = 32 << 20

// handleIntro handles GET /
func (s *Server) handleIntro(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.renderHTML(w, introPage, introData{
		Entry:    s.base.Entry,
		QueueURL: rootURL(r) + "queue",
	})
}

// handleSubmit handles POST /submit: one workspace and one condor_submit per request
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.limits.AllowSubmit(clientIP(r)); err != nil {
		s.writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	count, err := strconv.Atoi(strings.TrimSpace(r.FormValue("payload")))
	if err != nil || count < 1 {
		s.writeError(w, http.StatusBadRequest, "payload must be a positive job count")
		return
	}
	upload, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer upload.Close()
	args := strings.Fields(r.FormValue("args"))

	ctx := r.Context()
	ws, err := s.workspaces.Open(ctx)
	if err != nil {
		s.logger.Error(logging.DestinationWorkspace, "cannot allocate workspace", "error", err)
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	if err := saveExecutable(ws.File(glidein.ExecutableFile), upload); err != nil {
		s.logger.Error(logging.DestinationWorkspace, "cannot store executable", "workspace", ws.ID, "error", err)
		s.abandon(r, ws)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	req := s.base
	req.Overrides = glidein.Overrides{
		Count:      count,
		LogFile:    ws.File(glidein.LogFile),
		OutputFile: ws.File(glidein.OutputFile),
		ErrorFile:  ws.File(glidein.ErrorFile),
		Executable: ws.File(glidein.ExecutableFile),
		Arguments:  args,
		WorkDir:    ws.Path,
	}
	req.PatchDir = ws.Path

	result, err := s.submitter.Submit(ctx, req)
	if err != nil {
		s.logger.Error(logging.DestinationSubmit, "web submission failed", "workspace", ws.ID, "error", err)
		s.abandon(r, ws)
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.logger.Info(logging.DestinationSubmit, "web submission queued",
		"workspace", ws.ID, "cluster", result.ClusterID, "jobs", result.JobCount, "client_ip", clientIP(r))

	if err := s.setSession(w, r, ws.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// 307 keeps the POST so /result can be served from the same form submission
	http.Redirect(w, r, "/result", http.StatusTemporaryRedirect)
}

// abandon retires a workspace whose submission failed so the sweep reclaims it
func (s *Server) abandon(r *http.Request, ws *glidein.Workspace) {
	if err := s.workspaces.Retire(r.Context(), ws); err != nil {
		s.logger.Warn(logging.DestinationWorkspace, "cannot retire workspace", "workspace", ws.ID, "error", err)
	}
}

func saveExecutable(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create executable: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write executable: %w", err)
	}
	return f.Close()
}

// handleResult handles POST /result
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, err := s.sessionWorkspace(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if _, err := s.workspaces.Lookup(r.Context(), id); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.renderHTML(w, resultPage, resultData{
		LogURL: rootURL(r) + "log?uuid=" + url.QueryEscape(id),
	})
}

// handleLog handles GET /log?uuid=<id>
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()
	ws, err := s.workspaces.Lookup(ctx, r.URL.Query().Get("uuid"))
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	archive, err := s.workspaces.Archive(ws)
	if err != nil {
		s.logger.Error(logging.DestinationWorkspace, "cannot archive workspace", "workspace", ws.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() {
		if err := os.Remove(archive); err != nil {
			s.logger.Warn(logging.DestinationWorkspace, "cannot remove served archive", "archive", archive, "error", err)
		}
	}()

	f, err := os.Open(archive)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := filepath.Base(archive)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), f)

	if err := s.workspaces.Retire(ctx, ws); err != nil {
		s.logger.Warn(logging.DestinationWorkspace, "cannot retire workspace", "workspace", ws.ID, "error", err)
	}
}

// handleQueue handles GET /queue
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.limits.AllowQueue(clientIP(r)); err != nil {
		s.writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	header, records, err := s.queue.List(r.Context())
	if err != nil {
		var listing *glidein.QueueListingError
		if errors.As(err, &listing) {
			s.logger.Error(logging.DestinationSubmit, "queue listing failed", "exit_code", listing.ExitCode, "error", err)
		}
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	data := queueData{Header: header}
	for _, rec := range records {
		data.Rows = append(data.Rows, rec.Columns())
	}
	s.renderHTML(w, queuePage, data)
}

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// renderHTML executes tmpl into a buffer so template errors still produce a clean 500
func (s *Server) renderHTML(w http.ResponseWriter, tmpl *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.logger.Error(logging.DestinationHTTP, "failed to render page", "template", tmpl.Name(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// rootURL is the externally visible root of the server, with a trailing slash
func rootURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/"
}
