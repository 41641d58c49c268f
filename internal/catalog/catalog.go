package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Well known annotation keys.
const (
	AnnotationTechnology = "technology"
	AnnotationCategory   = "category"
	AnnotationOthers     = "others"
)

// An inputSpec value lists typed workflow inputs. It is forwarded as one
// JSON object input mapping each name to its default.
const (
	InputSpecKey     = "inputSpec"
	InputSpecJSONKey = "inputSpecJson"
)

type inputSpecField struct {
	Name    string `yaml:"name"`
	Default any    `yaml:"default"`
}

// Value is one named input forwarded to the downstream workflow.
type Value struct {
	Name  string
	Value string
}

// Values keeps the document order of the `values` mapping.
type Values []Value

func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: values must be a mapping", node.Line)
	}
	out := make(Values, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if key.Value == InputSpecKey && val.Kind == yaml.SequenceNode {
			encoded, err := encodeInputSpec(val)
			if err != nil {
				return err
			}
			out = append(out, Value{Name: InputSpecJSONKey, Value: encoded})
			continue
		}
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", val.Line, key.Value)
		}
		out = append(out, Value{Name: key.Value, Value: val.Value})
	}
	*v = out
	return nil
}

// encodeInputSpec turns a list of {name, default} fields into a JSON object,
// keeping the list order.
func encodeInputSpec(node *yaml.Node) (string, error) {
	var fields []inputSpecField
	if err := node.Decode(&fields); err != nil {
		return "", fmt.Errorf("line %d: %s: %w", node.Line, InputSpecKey, err)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if f.Name == "" {
			return "", fmt.Errorf("line %d: %s field #%d has no name", node.Line, InputSpecKey, i)
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return "", err
		}
		def, err := json.Marshal(f.Default)
		if err != nil {
			return "", fmt.Errorf("line %d: %s field %q: %w", node.Line, InputSpecKey, f.Name, err)
		}
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.Write(name)
		buf.WriteString(": ")
		buf.Write(def)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Spec is one catalog entry: a downstream job to trigger.
type Spec struct {
	Key         string              `yaml:"key" validate:"required"`
	Name        string              `yaml:"name" validate:"required"`
	Owner       string              `yaml:"owner" validate:"required"`
	Repo        string              `yaml:"repo" validate:"required"`
	Version     string              `yaml:"version"`
	Ref         string              `yaml:"ref"`
	Annotations map[string][]string `yaml:"annotations"`
	Values      Values              `yaml:"values"`
}

// Document is the catalog file.
type Document struct {
	Jobs []Spec `yaml:"jobs"`
}

// Parse decodes and validates a catalog document. Every invalid entry is
// reported, not only the first one.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses the catalog at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

func (d *Document) Validate() error {
	v := validator.New()
	errs := make([]error, 0)
	seen := make(map[string]int, len(d.Jobs))
	for i := range d.Jobs {
		spec := &d.Jobs[i]
		if err := v.Struct(spec); err != nil {
			errs = append(errs, fmt.Errorf("job #%d (%q): %w", i, spec.Key, err))
		}
		if spec.Key == "" {
			continue
		}
		if first, ok := seen[spec.Key]; ok {
			errs = append(errs, fmt.Errorf("job #%d: key %q already used by job #%d", i, spec.Key, first))
			continue
		}
		seen[spec.Key] = i
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %v", utilerrors.NewAggregate(errs).Error())
	}
	return nil
}

// RefOr returns the ref to trigger the entry at: its explicit ref, else the
// tag of its version, else def.
func (s Spec) RefOr(def string) string {
	if s.Ref != "" {
		return s.Ref
	}
	if s.Version != "" {
		return "refs/tags/" + s.Version
	}
	return def
}
