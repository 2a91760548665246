package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sage/internal/schema"
)

const validDoc = `
sage_yaml:
  name: ventas
  description: Validación de ventas
  version: "1.0"
  author: Equipo de datos

catalogs:
  productos:
    name: Productos
    description: Catálogo de productos
    filename: productos.csv
    file_format:
      type: CSV
      delimiter: ";"
      header: true
    fields:
      - name: codigo
        type: texto
        required: true
        unique: true
      - name: precio
        type: decimal
        validation_rules:
          - name: precio_positivo
            description: El precio debe ser positivo
            rule: precio > 0
            severity: Warning
  clientes:
    name: Clientes
    description: Catálogo de clientes
    filename: clientes.xlsx
    file_format:
      type: EXCEL
    fields:
      - name: id
        type: entero
    catalog_validation:
      - name: no_vacio
        description: Debe haber clientes
        rule: id > 0

packages:
  envio:
    name: Envío
    description: Paquete completo
    file_format:
      type: ZIP
    catalogs: [productos, clientes]
    package_validation:
      - name: ambos
        description: Ambos catálogos presentes
        rule: size(df) == 2
`

// ===== Parse Tests =====

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := schema.Parse([]byte(validDoc))
	require.NoError(t, err)

	assert.Equal(t, "ventas", cfg.Meta.Name)
	assert.Equal(t, []string{"productos", "clientes"}, cfg.CatalogKeys(), "document order is kept")
	assert.Equal(t, []string{"envio"}, cfg.PackageKeys())

	productos, ok := cfg.Catalog("productos")
	require.True(t, ok)
	assert.Equal(t, schema.FileCSV, productos.FileFormat.Type)
	assert.Equal(t, ';', productos.FileFormat.Comma())
	assert.True(t, productos.FileFormat.Header)
	assert.Equal(t, []string{"codigo", "precio"}, productos.FieldNames())
	assert.True(t, productos.Fields[0].Required)
	assert.True(t, productos.Fields[0].Unique)
	require.Len(t, productos.Fields[1].ValidationRules, 1)
	assert.Equal(t, schema.SeverityWarning, productos.Fields[1].ValidationRules[0].Severity)

	clientes, ok := cfg.Catalog("clientes")
	require.True(t, ok)
	assert.False(t, clientes.FileFormat.Header)
	assert.Equal(t, schema.SeverityError, clientes.CatalogValidation[0].Severity, "missing severity defaults to ERROR")

	envio, ok := cfg.Package("envio")
	require.True(t, ok)
	assert.Equal(t, schema.FileZIP, envio.FileFormat.Type)
	assert.Equal(t, []string{"productos", "clientes"}, envio.Catalogs)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "missing sections",
			doc:  "sage_yaml:\n  name: x\n  description: x\n  version: x\n  author: x\n",
			want: []string{`missing section "catalogs"`, `missing section "packages"`},
		},
		{
			name: "missing meta keys",
			doc:  "sage_yaml:\n  name: x\ncatalogs: {}\npackages: {}\n",
			want: []string{`sage_yaml: missing "author"`, `sage_yaml: missing "version"`},
		},
		{
			name: "csv without delimiter",
			doc: `sage_yaml: {name: x, description: x, version: x, author: x}
catalogs:
  c:
    name: c
    description: c
    filename: c.csv
    file_format: {type: CSV}
    fields: [{name: a, type: texto}]
packages: {}
`,
			want: []string{"catalog c: CSV files need a delimiter"},
		},
		{
			name: "multi catalog package must be zip",
			doc: `sage_yaml: {name: x, description: x, version: x, author: x}
catalogs:
  a: {name: a, description: a, filename: a.csv, file_format: {type: CSV, delimiter: ","}, fields: [{name: x, type: texto}]}
  b: {name: b, description: b, filename: b.csv, file_format: {type: CSV, delimiter: ","}, fields: [{name: x, type: texto}]}
packages:
  p: {name: p, description: p, file_format: {type: CSV}, catalogs: [a, b, c]}
`,
			want: []string{
				"package p: packages with several catalogs must be ZIP",
				`package p: references unknown catalog "c"`,
			},
		},
		{
			name: "missing catalog keys",
			doc: `sage_yaml: {name: x, description: x, version: x, author: x}
catalogs:
  c: {name: c, file_format: {type: EXCEL}}
packages: {}
`,
			want: []string{"catalog c: missing description, fields, filename"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := schema.Parse([]byte(tt.doc))
			require.ErrorIs(t, err, schema.ErrInvalidConfig)
			for _, want := range tt.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestParse_BadSeverity(t *testing.T) {
	t.Parallel()

	doc := `sage_yaml: {name: x, description: x, version: x, author: x}
catalogs:
  c:
    name: c
    description: c
    filename: c.xlsx
    file_format: {type: EXCEL}
    fields:
      - name: a
        type: texto
        validation_rules:
          - {name: r, description: r, rule: "true", severity: fatal}
packages: {}
`
	_, err := schema.Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid severity")
}

func TestParse_Syntax(t *testing.T) {
	t.Parallel()

	_, err := schema.Parse([]byte("sage_yaml: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

// ===== Load Tests =====

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o600))

	cfg, err := schema.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Catalogs, 2)

	_, err = schema.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// ===== Severity Tests =====

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    schema.Severity
		wantErr bool
	}{
		{"ERROR", schema.SeverityError, false},
		{"error", schema.SeverityError, false},
		{"", schema.SeverityError, false},
		{"Warning", schema.SeverityWarning, false},
		{"message", schema.SeverityMessage, false},
		{"info", "", true},
	}

	for _, tt := range tests {
		got, err := schema.ParseSeverity(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
