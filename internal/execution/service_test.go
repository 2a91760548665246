package execution

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sage/internal/config"
	"github.com/JonMunkholm/sage/internal/core"
	"github.com/JonMunkholm/sage/internal/metrics"
	"github.com/JonMunkholm/sage/internal/report"
	"github.com/JonMunkholm/sage/internal/store"
)

const ventasYAML = `
sage_yaml:
  name: Ventas
  description: ventas mensuales
  version: "1"
  author: test
catalogs:
  ventas:
    name: Ventas
    description: ventas
    filename: ventas.csv
    file_format: {type: CSV, delimiter: ",", header: true}
    fields:
      - {name: id, type: entero}
      - name: monto
        type: decimal
        validation_rules:
          - {name: positivo, description: monto positivo, rule: "monto > 0", severity: error}
packages:
  mensual:
    name: Mensual
    description: envio mensual
    file_format: {type: CSV}
    catalogs: [ventas]
`

type fakeStore struct {
	recorded []store.Execution
	err      error
}

func (f *fakeStore) Record(_ context.Context, e store.Execution) error {
	f.recorded = append(f.recorded, e)
	return f.err
}

func (f *fakeStore) Get(_ context.Context, id string) (store.Execution, error) {
	for _, e := range f.recorded {
		if e.ID == id {
			return e, nil
		}
	}
	return store.Execution{}, store.ErrNotFound
}

func validationConfig(t *testing.T) config.ValidationConfig {
	t.Helper()
	return config.ValidationConfig{
		ExecutionsDir:      t.TempDir(),
		SmallFileThreshold: 30,
		MaxErrorsPerRule:   10,
		MaxFileSize:        1 << 20,
		MaxConcurrent:      2,
		MaxWaitTime:        time.Second,
		Timeout:            time.Minute,
	}
}

func dataFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestService_Run(t *testing.T) {
	t.Parallel()

	cfg := validationConfig(t)
	history := &fakeStore{}
	m := metrics.New()
	svc := NewService(cfg, nil, WithStore(history), WithMetrics(m))

	data := dataFile(t, "ventas.csv", "id,monto\n1,10\n2,-5\n3,3\n")
	out, err := svc.Run(context.Background(), Request{Config: []byte(ventasYAML), DataPath: data, Method: "api"})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Result.Errors)
	assert.Equal(t, 3, out.Result.Records)
	assert.Equal(t, filepath.Join(cfg.ExecutionsDir, out.ID), out.Dir)

	rep := out.Report
	assert.Equal(t, "mensual", rep.Execution.Name, "name is resolved from the file")
	assert.Equal(t, ConfigFile, rep.Execution.ConfigFile)
	assert.Equal(t, "ventas.csv", rep.Execution.DataFile)
	assert.Equal(t, "api", rep.Execution.Method)
	assert.Equal(t, report.StatusFailed, rep.Summary.Status)

	for _, name := range []string{ConfigFile, "ventas.csv", report.JSONFile, report.TextFile, report.HTMLFile} {
		assert.FileExists(t, filepath.Join(out.Dir, name))
	}

	require.Len(t, history.recorded, 1)
	assert.Equal(t, out.ID, history.recorded[0].ID)
	assert.Equal(t, "Failed", history.recorded[0].Status)
	assert.Equal(t, 1, history.recorded[0].Errors)

	loaded, err := svc.Report(out.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary, loaded.Summary)

	rec, err := svc.Record(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Dir, rec.Directory)

	path, err := svc.ReportPath(out.ID, report.HTMLFile)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out.Dir, report.HTMLFile), path)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, w.Body.String(), `sage_executions_total{status="Failed"} 1`)
	assert.Contains(t, w.Body.String(), "sage_executions_in_flight 0")
}

func TestService_RunWithConfigPath(t *testing.T) {
	t.Parallel()

	svc := NewService(validationConfig(t), nil)
	cfgPath := dataFile(t, "ventas.yaml", ventasYAML)
	data := dataFile(t, "upload-123.tmp", "id,monto\n1,10\n")

	out, err := svc.Run(context.Background(), Request{
		ConfigPath: cfgPath,
		DataPath:   data,
		DataName:   "ventas.csv",
		Name:       "ventas",
	})
	require.NoError(t, err)

	assert.Zero(t, out.Result.Errors)
	assert.Equal(t, report.StatusSuccess, out.Report.Summary.Status)
	assert.Equal(t, "ventas.yaml", out.Report.Execution.ConfigFile)
	assert.Equal(t, "ventas", out.Report.Execution.Name)
	assert.FileExists(t, filepath.Join(out.Dir, "ventas.csv"))
}

func TestService_RunInvalidConfig(t *testing.T) {
	t.Parallel()

	svc := NewService(validationConfig(t), nil)
	data := dataFile(t, "ventas.csv", "id,monto\n1,10\n")

	out, err := svc.Run(context.Background(), Request{Config: []byte("catalogs: {}\n"), DataPath: data})
	require.NoError(t, err, "a bad configuration is reported, not returned")

	assert.Equal(t, 1, out.Result.Errors)
	assert.Equal(t, report.StatusFailed, out.Report.Summary.Status)
	require.NotEmpty(t, out.Report.Events)
	assert.Contains(t, out.Report.Events[0].Message, "Invalid configuration")
	assert.FileExists(t, filepath.Join(out.Dir, report.JSONFile))
}

func TestService_RunUnresolvedName(t *testing.T) {
	t.Parallel()

	svc := NewService(validationConfig(t), nil)
	data := dataFile(t, "entrega.zip", "PK")

	out, err := svc.Run(context.Background(), Request{Config: []byte(ventasYAML), DataPath: data})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result.Errors)
	assert.Empty(t, out.Report.Execution.Name)
}

func TestService_RunZipExpansionLimit(t *testing.T) {
	t.Parallel()

	yaml := ventasYAML + `
  envio:
    name: Envio
    description: envio comprimido
    file_format: {type: ZIP}
    catalogs: [ventas]
`
	path := filepath.Join(t.TempDir(), "envio.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("ventas.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("id,monto\n1,10\n2,20\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	cfg := validationConfig(t)
	cfg.MaxExtractSize = 16
	svc := NewService(cfg, nil)

	out, err := svc.Run(context.Background(), Request{Config: []byte(yaml), DataPath: path, Name: "envio"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result.Errors)
	require.NotEmpty(t, out.Report.Events)

	var found bool
	for _, e := range out.Report.Events {
		found = found || strings.Contains(e.Message, "size limit")
	}
	assert.True(t, found, "the report names the exceeded limit")
}

func TestService_RunRejected(t *testing.T) {
	t.Parallel()

	t.Run("file too large", func(t *testing.T) {
		cfg := validationConfig(t)
		cfg.MaxFileSize = 4
		svc := NewService(cfg, nil)

		_, err := svc.Run(context.Background(), Request{Config: []byte(ventasYAML), DataPath: dataFile(t, "ventas.csv", "id,monto\n")})
		require.ErrorIs(t, err, core.ErrFileTooLarge)

		entries, _ := os.ReadDir(cfg.ExecutionsDir)
		assert.Empty(t, entries, "no execution directory is created")
	})

	t.Run("no free slot", func(t *testing.T) {
		limiter := NewLimiter(1, 20*time.Millisecond)
		require.True(t, limiter.TryAcquire())
		defer limiter.Release()

		svc := NewService(validationConfig(t), limiter)
		_, err := svc.Run(context.Background(), Request{Config: []byte(ventasYAML), DataPath: dataFile(t, "ventas.csv", "id\n")})
		require.ErrorIs(t, err, core.ErrTooManyExecutions)
	})

	t.Run("missing data file", func(t *testing.T) {
		svc := NewService(validationConfig(t), nil)
		_, err := svc.Run(context.Background(), Request{Config: []byte(ventasYAML), DataPath: "/no/such/file.csv"})
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("no configuration", func(t *testing.T) {
		svc := NewService(validationConfig(t), nil)
		_, err := svc.Run(context.Background(), Request{DataPath: dataFile(t, "ventas.csv", "id\n")})
		require.Error(t, err)
	})
}

func TestService_HistoryFailureIsLogged(t *testing.T) {
	t.Parallel()

	svc := NewService(validationConfig(t), nil, WithStore(&fakeStore{err: errors.New("db down")}))
	out, err := svc.Run(context.Background(), Request{Config: []byte(ventasYAML), DataPath: dataFile(t, "ventas.csv", "id,monto\n1,1\n")})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
}

func TestService_Lookups(t *testing.T) {
	t.Parallel()

	svc := NewService(validationConfig(t), nil)

	_, err := svc.Report("not-a-uuid")
	require.ErrorIs(t, err, core.ErrExecutionNotFound)

	_, err = svc.Report("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	require.ErrorIs(t, err, core.ErrExecutionNotFound)

	_, err = svc.ReportPath("../etc", report.HTMLFile)
	require.ErrorIs(t, err, core.ErrExecutionNotFound)

	_, err = svc.Record(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	require.ErrorIs(t, err, core.ErrExecutionNotFound, "no history configured")

	withStore := NewService(validationConfig(t), nil, WithStore(&fakeStore{}))
	_, err = withStore.Record(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	require.ErrorIs(t, err, core.ErrExecutionNotFound)
}

func TestDataFileName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"ventas.csv":         "ventas.csv",
		"/tmp/up/Libro.XLSX": "Libro.XLSX",
		"report.json":        "data.json",
		"INPUT.yaml":         "data.yaml",
		"results.txt":        "data.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, dataFileName(in), in)
	}
}
