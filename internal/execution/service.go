// Package execution runs validations as executions: each run gets an ID and
// a directory holding its inputs and reports. It also owns the concurrency
// limiter, the retention janitor and the inbox watcher.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sage/internal/config"
	"github.com/JonMunkholm/sage/internal/core"
	"github.com/JonMunkholm/sage/internal/expr"
	"github.com/JonMunkholm/sage/internal/logging"
	"github.com/JonMunkholm/sage/internal/metrics"
	"github.com/JonMunkholm/sage/internal/report"
	"github.com/JonMunkholm/sage/internal/schema"
	"github.com/JonMunkholm/sage/internal/store"
)

// ConfigFile is the name the configuration is saved under in an execution directory.
const ConfigFile = "input.yaml"

// History persists execution records.
type History interface {
	Record(ctx context.Context, e store.Execution) error
	Get(ctx context.Context, id string) (store.Execution, error)
}

// Request describes one validation.
type Request struct {
	// Config is the YAML configuration. When nil, ConfigPath is read.
	Config     []byte
	ConfigPath string

	// DataPath is the file to validate. DataName is its original file
	// name when DataPath is a temporary copy.
	DataPath string
	DataName string

	// Name is the package or catalog to use. Resolved from the file when empty.
	Name string

	// Method records how the execution was submitted (cli, api, watch).
	Method string
}

// Outcome is a finished execution.
type Outcome struct {
	ID     string
	Dir    string
	Report *report.Report
	Result core.Result
}

// Service runs executions.
type Service struct {
	cfg     config.ValidationConfig
	limiter *Limiter
	eval    core.RuleEvaluator
	history History
	metrics *metrics.Metrics
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore records every execution in h.
func WithStore(h History) ServiceOption {
	return func(s *Service) { s.history = h }
}

// WithMetrics reports executions to m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithEvaluator replaces the CEL rule evaluator.
func WithEvaluator(e core.RuleEvaluator) ServiceOption {
	return func(s *Service) { s.eval = e }
}

// NewService creates a Service. A nil limiter allows cfg.MaxConcurrent executions.
func NewService(cfg config.ValidationConfig, limiter *Limiter, opts ...ServiceOption) *Service {
	if limiter == nil {
		limiter = NewLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime)
	}
	s := &Service{
		cfg:     cfg,
		limiter: limiter,
		eval:    expr.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limiter returns the service's concurrency limiter.
func (s *Service) Limiter() *Limiter { return s.limiter }

// Run executes one validation and writes its reports.
//
// Problems with the configuration or the data end up in the report, not in
// the returned error. Run fails only when the execution cannot take place:
// no free slot, a data file over the size limit, or I/O on the execution
// directory.
func (s *Service) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.metrics != nil {
		done := s.metrics.Started()
		defer done()
	}

	dataName := req.DataName
	if dataName == "" {
		dataName = filepath.Base(req.DataPath)
	}

	info, err := os.Stat(req.DataPath)
	if err != nil {
		return nil, fmt.Errorf("stat data file: %w", err)
	}
	if s.cfg.MaxFileSize > 0 && info.Size() > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", core.ErrFileTooLarge, dataName, info.Size(), s.cfg.MaxFileSize)
	}

	cfgBytes := req.Config
	configName := ConfigFile
	if cfgBytes == nil {
		if req.ConfigPath == "" {
			return nil, errors.New("no configuration given")
		}
		cfgBytes, err = os.ReadFile(req.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		configName = filepath.Base(req.ConfigPath)
	}

	id := uuid.NewString()
	dir := filepath.Join(s.cfg.ExecutionsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create execution dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), cfgBytes, 0o644); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	dataPath := filepath.Join(dir, dataFileName(dataName))
	if err := copyFile(req.DataPath, dataPath); err != nil {
		return nil, fmt.Errorf("save data file: %w", err)
	}

	log := logging.WithFields(ctx, "execution_id", id)
	start := s.now()
	log.Info("execution started", "data_file", dataName, "method", req.Method)

	col := report.NewCollector(log)
	name, res := s.validate(ctx, log, col, cfgBytes, dataPath, dataName, req.Name)

	rep := col.Build(report.Info{
		ID:         id,
		Name:       name,
		ConfigFile: configName,
		DataFile:   dataName,
		Directory:  dir,
		Method:     req.Method,
		Start:      start,
		End:        s.now(),
	}, res)

	if err := rep.WriteFiles(dir); err != nil {
		return nil, fmt.Errorf("write reports: %w", err)
	}

	status := rep.Summary.Status
	log.Info("execution finished",
		"name", name,
		"status", status,
		"records", res.Records,
		"errors", res.Errors,
		"warnings", res.Warnings,
		"duration_ms", rep.Execution.End.Sub(start).Milliseconds(),
	)

	if s.metrics != nil {
		s.metrics.Finished(string(status), rep.Execution.End.Sub(start), res.Records, res.Errors, res.Warnings)
	}

	if s.history != nil {
		err := s.history.Record(ctx, store.Execution{
			ID:         id,
			Name:       name,
			ConfigFile: configName,
			DataFile:   dataName,
			Status:     string(status),
			Records:    res.Records,
			Errors:     res.Errors,
			Warnings:   res.Warnings,
			Directory:  dir,
			Method:     req.Method,
			StartedAt:  start,
			FinishedAt: rep.Execution.End,
		})
		if err != nil {
			log.Warn("failed to record execution", "error", err)
		}
	}

	return &Outcome{ID: id, Dir: dir, Report: rep, Result: res}, nil
}

// validate parses the configuration, resolves the name and processes the
// data file. Failures before processing count as one error.
func (s *Service) validate(ctx context.Context, log *slog.Logger, col *report.Collector, cfgBytes []byte, dataPath, dataName, name string) (string, core.Result) {
	cfg, err := schema.Parse(cfgBytes)
	if err != nil {
		col.Error(fmt.Sprintf("Invalid configuration: %v", err), core.Fields{Err: err})
		return name, core.Result{Errors: 1}
	}

	if name == "" {
		name, err = core.ResolveName(cfg, dataName)
		if err != nil {
			col.Error(err.Error(), core.Fields{File: dataName, Err: err})
			return name, core.Result{Errors: 1}
		}
		log.Debug("name resolved", "name", name)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	p := core.NewProcessor(cfg, s.eval, col,
		core.WithThrottle(s.cfg.SmallFileThreshold, s.cfg.MaxErrorsPerRule),
		core.WithScratchDir(filepath.Dir(dataPath)),
		core.WithExtractLimit(s.cfg.MaxExtractSize),
	)
	res, err := p.Process(ctx, dataPath, name)
	if err != nil {
		log.Warn("validation stopped", "error", err)
	}
	return name, res
}

// Report loads the JSON report of execution id.
func (s *Service) Report(id string) (*report.Report, error) {
	path, err := s.ReportPath(id, report.JSONFile)
	if err != nil {
		return nil, err
	}
	rep, err := report.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, core.ErrExecutionNotFound
	}
	return rep, err
}

// ReportPath returns the path of one of the report files of execution id.
func (s *Service) ReportPath(id, file string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", core.ErrExecutionNotFound
	}
	path := filepath.Join(s.cfg.ExecutionsDir, id, file)
	if _, err := os.Stat(path); err != nil {
		return "", core.ErrExecutionNotFound
	}
	return path, nil
}

// Record returns the stored history row of execution id.
func (s *Service) Record(ctx context.Context, id string) (store.Execution, error) {
	if s.history == nil {
		return store.Execution{}, core.ErrExecutionNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return store.Execution{}, core.ErrExecutionNotFound
	}
	e, err := s.history.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Execution{}, core.ErrExecutionNotFound
	}
	return e, err
}

var reservedNames = map[string]bool{
	ConfigFile:      true,
	report.JSONFile: true,
	report.TextFile: true,
	report.HTMLFile: true,
}

// dataFileName is the name the data file is kept under. It keeps the
// original name so diagnostics refer to it, unless that clashes with a
// file the execution writes itself.
func dataFileName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || reservedNames[strings.ToLower(base)] {
		return "data" + strings.ToLower(filepath.Ext(base))
	}
	return base
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
