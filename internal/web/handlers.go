package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sage/internal/core"
	"github.com/JonMunkholm/sage/internal/execution"
	"github.com/JonMunkholm/sage/internal/report"
)

// maxConfigSize bounds the configuration part of an upload.
const maxConfigSize = 1 << 20

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status     string                  `json:"status"`
	Executions execution.LimiterStatus `json:"executions"`
}

// ValidateResponse is returned by POST /api/validate.
type ValidateResponse struct {
	ExecutionID string            `json:"execution_id"`
	Status      report.Status     `json:"status"`
	Summary     report.Summary    `json:"summary"`
	Links       map[string]string `json:"links"`
	Report      *report.Report    `json:"report"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Executions: s.service.Limiter().Status(),
	})
}

// handleValidate runs a validation on a multipart upload with a "config"
// file, a "data" file and an optional "name" field.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	// Room for the data file, the config and the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Validation.MaxFileSize+2*maxConfigSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrFileTooLarge, tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", "BAD_REQUEST")
		return
	}
	defer r.MultipartForm.RemoveAll()

	cfgFile, _, err := r.FormFile("config")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no config file provided", "MISSING_CONFIG")
		return
	}
	defer cfgFile.Close()

	cfgBytes, err := io.ReadAll(io.LimitReader(cfgFile, maxConfigSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read config file", "BAD_REQUEST")
		return
	}

	data, header, err := r.FormFile("data")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no data file provided", "MISSING_DATA")
		return
	}
	defer data.Close()

	if _, err := core.DetectFileType(header.Filename); err != nil {
		s.respondError(w, r, err)
		return
	}

	tmp, err := spool(data, filepath.Ext(header.Filename))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer os.Remove(tmp)

	out, err := s.service.Run(r.Context(), execution.Request{
		Config:   cfgBytes,
		DataPath: tmp,
		DataName: filepath.Base(header.Filename),
		Name:     r.FormValue("name"),
		Method:   "api",
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	base := "/api/executions/" + out.ID
	w.Header().Set("Location", base)
	writeJSON(w, http.StatusOK, ValidateResponse{
		ExecutionID: out.ID,
		Status:      out.Report.Summary.Status,
		Summary:     out.Report.Summary,
		Links: map[string]string{
			"report": base,
			"html":   base + "/" + report.HTMLFile,
			"text":   base + "/" + report.TextFile,
		},
		Report: out.Report,
	})
}

func (s *Server) handleExecution(w http.ResponseWriter, r *http.Request) {
	rep, err := s.service.Report(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExecutionRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleExecutionFile serves report.html or results.txt.
func (s *Server) handleExecutionFile(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	if file != report.HTMLFile && file != report.TextFile {
		s.respondError(w, r, core.ErrExecutionNotFound)
		return
	}

	path, err := s.service.ReportPath(chi.URLParam(r, "id"), file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}

// spool copies an uploaded file to a temporary file and returns its path.
func spool(src io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "sage-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	return tmp.Name(), nil
}
