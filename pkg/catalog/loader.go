package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueformat "cuelang.org/go/cue/format"
	"gopkg.in/yaml.v3"
)

// Format is a catalog serialization format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

//go:embed defaults/development.yaml
var developmentCatalog []byte

// Default returns the embedded development catalog.
func Default() (Definition, error) {
	def, err := Parse(developmentCatalog, FormatYAML)
	if err != nil {
		return Definition{}, fmt.Errorf("embedded catalog: %w", err)
	}
	return def, nil
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported catalog extension: %s", filepath.Ext(path))
	}
}

// Load reads, converts and validates a catalog file.
func Load(path string) (Definition, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Definition{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read catalog file: %w", err)
	}

	def, err := Parse(data, format)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a catalog in the given format and validates it.
func Parse(data []byte, format Format) (Definition, error) {
	var doc document

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Definition{}, fmt.Errorf("failed to parse catalog YAML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return Definition{}, fmt.Errorf("failed to parse catalog JSON: %w", err)
		}
	case FormatCUE:
		jsonData, err := evaluateCUE(data)
		if err != nil {
			return Definition{}, err
		}
		if err := json.Unmarshal(jsonData, &doc); err != nil {
			return Definition{}, fmt.Errorf("failed to decode CUE catalog: %w", err)
		}
	default:
		return Definition{}, fmt.Errorf("unsupported catalog format: %s", format)
	}

	if err := validate.Struct(&doc); err != nil {
		return Definition{}, fmt.Errorf("invalid catalog: %w", err)
	}

	def, err := doc.toDefinition()
	if err != nil {
		return Definition{}, fmt.Errorf("invalid catalog: %w", err)
	}

	if err := def.Validate(); err != nil {
		return Definition{}, fmt.Errorf("invalid catalog: %w", err)
	}

	return def, nil
}

// evaluateCUE compiles a CUE catalog and exports it as concrete JSON.
func evaluateCUE(data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename("catalog.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE catalog: %s", cueerrors.Details(err, nil))
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE catalog is not concrete: %s", cueerrors.Details(err, nil))
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE catalog: %w", err)
	}
	return out, nil
}

// Encode writes a definition in the given format.
func Encode(w io.Writer, def Definition, format Format) error {
	doc := fromDefinition(def)

	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode catalog YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode catalog YAML: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatCUE:
		out, err := encodeCUE(doc)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// encodeCUE renders a document as formatted CUE source.
func encodeCUE(doc *document) ([]byte, error) {
	v := cuecontext.New().Encode(doc)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode catalog CUE: %s", cueerrors.Details(err, nil))
	}
	out, err := cueformat.Node(v.Syntax(cue.Concrete(true)))
	if err != nil {
		return nil, fmt.Errorf("failed to format catalog CUE: %w", err)
	}
	return append(out, '\n'), nil
}
