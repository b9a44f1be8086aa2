// Package schema loads the declarative description of a raw batch file:
// its name pattern, stamp widths, and ordered column list.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document keys.
const (
	KeySampleFileName  = "SampleFileName"
	KeyDateStampWidth  = "LengthOfDateStampInFile"
	KeyTimeStampWidth  = "LengthOfTimeStampInFile"
	KeyColumns         = "ColName"
	KeyColumnCount     = "NumberofColumns"
	KeyFileNamePattern = "FileNamePattern"
)

// ConfigError reports a schema document that is missing a required key
// or carries a semantically invalid value.
type ConfigError struct {
	Key     string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("schema: %s", e.Message)
	}
	return fmt.Sprintf("schema %s: %s", e.Key, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Column is one declared column of a batch file.
type Column struct {
	Name string
	Type string // SQL type name, e.g. "Integer" or "varchar"
}

// Schema is the parsed, immutable form of a schema document.
type Schema struct {
	sampleFileName string
	prefix         string
	dateWidth      int
	timeWidth      int
	columns        []Column
	columnCount    int
	pattern        *regexp.Regexp
	warnings       []string
}

// Load reads and parses the schema document at path. JSON documents are
// accepted as-is since JSON is a subset of YAML.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("cannot read %s", path), Err: err}
	}
	return Parse(data)
}

// Parse parses a schema document.
func Parse(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Message: "malformed document", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ConfigError{Message: "document must be a mapping"}
	}

	fields := make(map[string]*yaml.Node)
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		fields[root.Content[i].Value] = root.Content[i+1]
	}

	s := &Schema{}
	var err error

	if s.sampleFileName, err = stringField(fields, KeySampleFileName); err != nil {
		return nil, err
	}
	if s.prefix, err = samplePrefix(s.sampleFileName); err != nil {
		return nil, err
	}

	if s.dateWidth, err = positiveIntField(fields, KeyDateStampWidth); err != nil {
		return nil, err
	}
	if s.timeWidth, err = positiveIntField(fields, KeyTimeStampWidth); err != nil {
		return nil, err
	}
	if s.columns, err = columnsField(fields); err != nil {
		return nil, err
	}
	if s.columnCount, err = positiveIntField(fields, KeyColumnCount); err != nil {
		return nil, err
	}

	expr := `^` + regexp.QuoteMeta(s.prefix) + `_\d+_\d+\.csv$`
	if node, ok := fields[KeyFileNamePattern]; ok {
		if node.Kind != yaml.ScalarNode || node.Value == "" {
			return nil, &ConfigError{Key: KeyFileNamePattern, Message: "must be a non-empty string"}
		}
		expr = `^(?:` + node.Value + `)$`
	}
	if s.pattern, err = regexp.Compile(expr); err != nil {
		return nil, &ConfigError{Key: KeyFileNamePattern, Message: "invalid regular expression", Err: err}
	}

	if s.columnCount != len(s.columns) {
		s.warnings = append(s.warnings, fmt.Sprintf(
			"%s is %d but %s lists %d columns; files are checked against %d",
			KeyColumnCount, s.columnCount, KeyColumns, len(s.columns), s.columnCount))
	}

	return s, nil
}

// samplePrefix returns everything before the trailing _<date>_<time> of
// the sample name, so a prefix may itself contain underscores.
func samplePrefix(name string) (string, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", &ConfigError{Key: KeySampleFileName, Message: fmt.Sprintf("%q is not of the form <prefix>_<date>_<time>", name)}
	}
	prefix := strings.Join(parts[:len(parts)-2], "_")
	if prefix == "" {
		return "", &ConfigError{Key: KeySampleFileName, Message: fmt.Sprintf("%q has an empty prefix", name)}
	}
	return prefix, nil
}

func stringField(fields map[string]*yaml.Node, key string) (string, error) {
	node, ok := fields[key]
	if !ok {
		return "", &ConfigError{Key: key, Message: "required key is missing"}
	}
	if node.Kind != yaml.ScalarNode || node.Value == "" {
		return "", &ConfigError{Key: key, Message: "must be a non-empty string"}
	}
	return node.Value, nil
}

func positiveIntField(fields map[string]*yaml.Node, key string) (int, error) {
	node, ok := fields[key]
	if !ok {
		return 0, &ConfigError{Key: key, Message: "required key is missing"}
	}
	var n int
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!int" {
		return 0, &ConfigError{Key: key, Message: fmt.Sprintf("must be an integer (got %q)", node.Value)}
	}
	if err := node.Decode(&n); err != nil {
		return 0, &ConfigError{Key: key, Message: "must be an integer", Err: err}
	}
	if n <= 0 {
		return 0, &ConfigError{Key: key, Message: fmt.Sprintf("must be positive (got %d)", n)}
	}
	return n, nil
}

func columnsField(fields map[string]*yaml.Node) ([]Column, error) {
	node, ok := fields[KeyColumns]
	if !ok {
		return nil, &ConfigError{Key: KeyColumns, Message: "required key is missing"}
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ConfigError{Key: KeyColumns, Message: "must be a mapping of column name to type"}
	}
	if len(node.Content) == 0 {
		return nil, &ConfigError{Key: KeyColumns, Message: "must declare at least one column"}
	}

	seen := make(map[string]bool, len(node.Content)/2)
	cols := make([]Column, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, typ := node.Content[i].Value, node.Content[i+1]
		if name == "" {
			return nil, &ConfigError{Key: KeyColumns, Message: fmt.Sprintf("column %d has an empty name", i/2)}
		}
		if seen[name] {
			return nil, &ConfigError{Key: KeyColumns, Message: fmt.Sprintf("duplicate column %q", name)}
		}
		if typ.Kind != yaml.ScalarNode || typ.Value == "" {
			return nil, &ConfigError{Key: KeyColumns, Message: fmt.Sprintf("column %q needs a type", name)}
		}
		seen[name] = true
		cols = append(cols, Column{Name: name, Type: typ.Value})
	}
	return cols, nil
}

// SampleFileName returns the example file name the schema was written for.
func (s *Schema) SampleFileName() string { return s.sampleFileName }

// Prefix returns the fixed leading part of conforming file names.
func (s *Schema) Prefix() string { return s.prefix }

// DateStampWidth returns the required length of the date stamp.
func (s *Schema) DateStampWidth() int { return s.dateWidth }

// TimeStampWidth returns the required length of the time stamp.
func (s *Schema) TimeStampWidth() int { return s.timeWidth }

// ColumnCount returns the number of header fields a file must have.
func (s *Schema) ColumnCount() int { return s.columnCount }

// Pattern returns the anchored file name expression.
func (s *Schema) Pattern() *regexp.Regexp { return s.pattern }

// Columns returns a copy of the declared columns in document order.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// ColumnNames returns the declared column names in document order.
func (s *Schema) ColumnNames() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}
	return out
}

// ColumnType returns the declared type of name.
func (s *Schema) ColumnType(name string) (string, bool) {
	for _, c := range s.columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

// Warnings returns non-fatal inconsistencies found while parsing.
func (s *Schema) Warnings() []string {
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
