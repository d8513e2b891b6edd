package schemavalidation

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"devtype/internal/keymap"
	"devtype/internal/store"
)

type schemaCase struct {
	name         string
	schemaPath   string
	instancePath string
}

func TestSchemaValidation(t *testing.T) {
	repoRoot := repoRoot(t)
	cases := []schemaCase{
		{
			name:         "keymap-overlay",
			schemaPath:   filepath.Join(repoRoot, "internal", "keymap", "keymap-v1.schema.json"),
			instancePath: filepath.Join(repoRoot, "docs", "examples", "keymap.json"),
		},
		{
			name:         "predictions",
			schemaPath:   filepath.Join(repoRoot, "internal", "store", "predictions-v1.schema.json"),
			instancePath: filepath.Join(repoRoot, "docs", "examples", "predictions.json"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validateInstance(t, tc.schemaPath, tc.instancePath)
		})
	}
}

// The documented examples must also load through the packages that own
// the schemas.
func TestExamplesLoad(t *testing.T) {
	repoRoot := repoRoot(t)

	tables, err := keymap.LoadTables(filepath.Join(repoRoot, "docs", "examples", "keymap.json"))
	if err != nil {
		t.Fatalf("load keymap example: %v", err)
	}
	if len(tables.Rules()) == 0 {
		t.Error("keymap example produced no rules")
	}

	f, err := os.Open(filepath.Join(repoRoot, "docs", "examples", "predictions.json"))
	if err != nil {
		t.Fatalf("open predictions example: %v", err)
	}
	defer f.Close()

	preds, err := store.ParsePredictions(f)
	if err != nil {
		t.Fatalf("parse predictions example: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(preds))
	}
	if preds[1].GroundTruth == nil {
		t.Error("second line should carry a ground truth")
	}
}

func validateInstance(t *testing.T, schemaPath, instancePath string) {
	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}

	instanceData, err := os.ReadFile(instancePath)
	if err != nil {
		t.Fatalf("read instance: %v", err)
	}

	var instance any
	if err := json.Unmarshal(instanceData, &instance); err != nil {
		t.Fatalf("unmarshal instance: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaPath, bytes.NewReader(schemaData)); err != nil {
		t.Fatalf("add schema resource: %v", err)
	}
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	if err := schema.Validate(instance); err != nil {
		t.Fatalf("schema validation failed for %s: %v", filepath.Base(instancePath), err)
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to resolve caller path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
