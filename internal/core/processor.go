package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/JonMunkholm/sage/internal/schema"
)

// Processor validates data files against a loaded configuration.
type Processor struct {
	cfg       *schema.Config
	eval      RuleEvaluator
	rep       Reporter
	threshold int
	limit     int
	scratch   string
	unzipMax  int64
}

// DefaultMaxExtractSize bounds the total uncompressed size of a ZIP package.
const DefaultMaxExtractSize int64 = 1 << 30

// Option configures a Processor.
type Option func(*Processor)

// WithThrottle sets the row count above which a table is large and the
// number of detailed diagnostics kept per rule on large tables.
func WithThrottle(threshold, limit int) Option {
	return func(p *Processor) {
		p.threshold = threshold
		p.limit = limit
	}
}

// WithScratchDir sets the parent directory for ZIP extraction.
// Defaults to the system temporary directory.
func WithScratchDir(dir string) Option {
	return func(p *Processor) {
		p.scratch = dir
	}
}

// WithExtractLimit sets the most bytes a ZIP package may expand to, summed
// over its members. Zero or less keeps the default.
func WithExtractLimit(n int64) Option {
	return func(p *Processor) {
		if n > 0 {
			p.unzipMax = n
		}
	}
}

// NewProcessor creates a Processor.
func NewProcessor(cfg *schema.Config, eval RuleEvaluator, rep Reporter, opts ...Option) *Processor {
	p := &Processor{
		cfg:       cfg,
		eval:      eval,
		rep:       rep,
		threshold: DefaultSmallFileThreshold,
		limit:     DefaultMaxErrorsPerRule,
		unzipMax:  DefaultMaxExtractSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates the file at path against the package or catalog called
// name. Each call starts from zero counts.
//
// Problems inside a file are reported and counted, never returned. The
// returned error is set only when the run could not start or had to stop:
// an unknown name, a file that does not fit the package, or a ZIP that
// cannot be opened. Such failures also count as one error in the Result.
func (p *Processor) Process(ctx context.Context, path, name string) (Result, error) {
	rs := NewRunState(NewThrottle(p.threshold, p.limit))
	start := time.Now()

	err := p.dispatch(ctx, rs, path, name)
	if err != nil {
		rs.AddErrors(1)
		p.rep.Error(err.Error(), Fields{File: filepath.Base(path), Err: err})
	}

	slog.Debug("validation finished",
		"file", filepath.Base(path),
		"name", name,
		"errors", rs.Errors(),
		"warnings", rs.Warnings(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rs.Result(), err
}

func (p *Processor) dispatch(ctx context.Context, rs *RunState, path, name string) error {
	base := filepath.Base(path)
	pkg, isPkg := p.cfg.Package(name)
	cat, isCat := p.cfg.Catalog(name)

	if !isPkg && !isCat {
		return fmt.Errorf("%w: %q", ErrUnknownName, name)
	}

	ft, _ := DetectFileType(path)
	if ft == "" {
		ft = "unknown"
	}
	p.rep.Message(fmt.Sprintf("Processing file: %s (type: %s)", base, ft))

	if !isPkg {
		p.rep.Message(fmt.Sprintf("Using catalog %q", name))
		p.processSingle(rs, path, name, cat)
		p.throttleSummary(rs)
		return nil
	}

	p.rep.Message(fmt.Sprintf("Using package %q (type: %s)", name, pkg.FileFormat.Type))

	switch pkg.FileFormat.Type {
	case schema.FileZIP:
		if ft != schema.FileZIP {
			return &ProcessingError{File: base, Err: fmt.Errorf("%w: package %q received a %s file", ErrNotZip, name, ft)}
		}
		return p.processZip(ctx, rs, path, name, pkg)

	case schema.FileCSV, schema.FileExcel:
		if len(pkg.Catalogs) != 1 {
			return fmt.Errorf("%w: package %q has %d catalogs", ErrPackageCardinality, name, len(pkg.Catalogs))
		}
		if ft != pkg.FileFormat.Type {
			return &ProcessingError{File: base, Err: fmt.Errorf("%w: package %q expects %s files, got %s",
				ErrFormatMismatch, name, pkg.FileFormat.Type, ft)}
		}
		key := pkg.Catalogs[0]
		cat, ok := p.cfg.Catalog(key)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCatalog, key)
		}
		p.rep.Message(fmt.Sprintf("Processing %s with catalog %q", base, key))
		p.processSingle(rs, path, key, cat)
		p.throttleSummary(rs)
		return nil

	default:
		return fmt.Errorf("%w: package %q has file type %q", ErrFormatMismatch, name, pkg.FileFormat.Type)
	}
}

// processSingle validates one file. Any failure is reported with the
// file's base name and counted as one error.
func (p *Processor) processSingle(rs *RunState, path, key string, cat *schema.Catalog) {
	base := filepath.Base(path)
	if err := p.validateFile(rs, path, base, key, cat); err != nil {
		p.fileFailed(rs, base, err)
	}
}

// validateFile loads, reconciles, coerces and validates one file, then
// registers its statistics and retains the table under key.
func (p *Processor) validateFile(rs *RunState, path, file, key string, cat *schema.Catalog) error {
	tbl, size, err := readTable(path, cat)
	if err != nil {
		return &ProcessingError{File: file, Err: err}
	}
	p.rep.Message(fmt.Sprintf("Processing catalog %q: %s", key, file))

	startErrors, startWarnings := rs.Errors(), rs.Warnings()

	if err := reconcile(rs, p.rep, cat, file, tbl); err != nil {
		return &ProcessingError{File: file, Err: err}
	}

	fc := &fileCheck{rs: rs, rep: p.rep, eval: p.eval, cat: cat, file: file, tbl: tbl}
	invalid, err := fc.coerceTypes()
	if err != nil {
		return &ProcessingError{File: file, Err: err}
	}
	if err := fc.validate(invalid); err != nil {
		return err
	}

	stats := FileStats{
		File:     file,
		Records:  tbl.Len(),
		Errors:   rs.Errors() - startErrors,
		Warnings: rs.Warnings() - startWarnings,
		Bytes:    size,
	}
	p.rep.Message(fmt.Sprintf("Summary for %s:\nTotal records: %d\nErrors: %d\nWarnings: %d\nSuccess rate: %.2f%%",
		file, stats.Records, stats.Errors, stats.Warnings, stats.SuccessRate()))
	p.rep.RegisterFileStats(stats)

	rs.addFile(stats)
	rs.Retain(key, tbl)
	return nil
}

func (p *Processor) fileFailed(rs *RunState, file string, err error) {
	rs.AddErrors(1)
	p.rep.Error(fmt.Sprintf("Error processing file %s: %v", file, err), Fields{File: file, Err: err})
	p.rep.RegisterFileStats(FileStats{File: file, Records: 0, Errors: 1})
}

func (p *Processor) processZip(ctx context.Context, rs *RunState, path, name string, pkg *schema.Package) error {
	p.rep.Message(fmt.Sprintf("Processing ZIP package: %s", filepath.Base(path)))

	dir, err := os.MkdirTemp(p.scratch, "sage-zip-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if err := extractZip(path, dir, p.unzipMax); err != nil {
		return &ProcessingError{File: filepath.Base(path), Err: fmt.Errorf("extracting ZIP: %w", err)}
	}

	for _, key := range pkg.Catalogs {
		if err := ctx.Err(); err != nil {
			return err
		}

		cat, ok := p.cfg.Catalog(key)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCatalog, key)
		}

		member := filepath.Join(dir, cat.Filename)
		if !filepath.IsLocal(cat.Filename) || !fileExists(member) {
			p.rep.RegisterMissingFile(cat.Filename, name)
			rs.AddErrors(1)
			p.rep.Error(fmt.Sprintf("Required file %q not found in ZIP package", cat.Filename),
				Fields{File: cat.Filename, Package: name})
			continue
		}

		if err := p.validateFile(rs, member, cat.Filename, key, cat); err != nil {
			p.fileFailed(rs, cat.Filename, err)
		}
	}

	packageRules(rs, p.rep, p.eval, name, pkg)

	res := rs.Result()
	p.rep.Message(fmt.Sprintf("Global Summary:\nTotal records: %d\nErrors: %d\nWarnings: %d",
		res.Records, res.Errors, res.Warnings))

	p.throttleSummary(rs)
	return nil
}

// throttleSummary lists every capped rule with the count seen when it was
// capped. Totals are exact even though detail was cut.
func (p *Processor) throttleSummary(rs *RunState) {
	capped := rs.Throttle().Summary()
	if len(capped) == 0 {
		return
	}

	p.rep.Message(fmt.Sprintf("Detail was limited for %d rules on large files", len(capped)))
	for _, c := range capped {
		f := Fields{Rule: c.Key.Rule}
		switch c.Key.Kind {
		case ScopeField, ScopeType:
			f.Field = c.Key.Scope
		default:
			f.File = c.Key.Scope
		}
		p.rep.Warning(fmt.Sprintf("Rule %q on %s %q: at least %d failures", c.Key.Rule, c.Key.Kind, c.Key.Scope, c.Count), f)
	}
	p.rep.Message("Error totals include every failure, including those not shown in detail")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// extractZip writes every regular file of the archive below dir. Entries
// that would land outside dir are rejected, and so is an archive whose
// members expand past limit bytes in total.
func extractZip(path, dir string, limit int64) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	remaining := limit
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !filepath.IsLocal(f.Name) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}
		if f.UncompressedSize64 > uint64(remaining) {
			return fmt.Errorf("%w: %s expands past %d bytes", ErrArchiveTooLarge, f.Name, limit)
		}
		n, err := extractMember(f, filepath.Join(dir, f.Name), remaining)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		remaining -= n
	}
	return nil
}

// extractMember copies at most limit bytes. The declared size in the header
// is not trusted.
func extractMember(f *zip.File, dest string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}

	src, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(src, limit+1))
	if err != nil {
		out.Close()
		return n, err
	}
	if n > limit {
		out.Close()
		return n, fmt.Errorf("%w: expands past the remaining %d bytes", ErrArchiveTooLarge, limit)
	}
	return n, out.Close()
}
