// Package costtable loads the advancement cost table from a JSON file.
package costtable

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
)

const schemaURL = "charsheet://schemas/advancement-costs.json"

//go:embed schema.json
var schemaJSON []byte

type document struct {
	AdvancementCosts []advancement.CostBracket `json:"advancementCosts"`
}

// Load reads, validates, and builds a cost table from path.
func Load(path string) (*advancement.CostTable, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.CodeCostTableInvalid, "cost table path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cost table: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the cost table schema and builds the table.
func Parse(data []byte) (*advancement.CostTable, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCostTableInvalid, "decode cost table", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCostTableInvalid, "validate cost table", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCostTableInvalid, "decode cost table", err)
	}
	return advancement.NewCostTable(doc.AdvancementCosts)
}

// LoadOrDefault loads path, falling back to the built-in table when path is
// empty or the file cannot be used. Failures are reported through logf.
func LoadOrDefault(path string, logf func(format string, args ...any)) *advancement.CostTable {
	if strings.TrimSpace(path) == "" {
		return advancement.DefaultCostTable()
	}
	table, err := Load(path)
	if err != nil {
		if logf != nil {
			logf("cost table %s unavailable, using built-in table: %v", path, err)
		}
		return advancement.DefaultCostTable()
	}
	return table
}

// Marshal renders brackets in the cost table file format.
func Marshal(brackets []advancement.CostBracket) ([]byte, error) {
	return json.MarshalIndent(document{AdvancementCosts: brackets}, "", "  ")
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add cost table schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile cost table schema: %w", err)
	}
	return schema, nil
}
