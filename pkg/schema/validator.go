// Package schema performs structural validation of certificate JSON
// against the embedded backup and wipe schemas. It never interprets
// cryptographic validity; that belongs to the verifier.
package schema

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// CertTypeBackup and CertTypeWipe are the two supported certificate types.
const (
	CertTypeBackup = "backup"
	CertTypeWipe   = "wipe"
)

// acceptedVersions constrains certificate_version beyond the structural
// pattern check; certificates from a future major version are rejected.
var acceptedVersions = mustConstraint(">= 1.0.0, < 2.0.0")

// Result is the outcome of a structural validation pass.
type Result struct {
	Valid  bool
	Errors []string
}

// Validator holds the compiled backup and wipe certificate schemas.
type Validator struct {
	backup *jsonschema.Schema
	wipe   *jsonschema.Schema
}

// New compiles the embedded Draft 2020-12 schemas with format assertions
// enabled (created_at must be a real RFC 3339 timestamp).
func New() (*Validator, error) {
	backup, err := compile("schemas/backup_schema.json")
	if err != nil {
		return nil, err
	}
	wipe, err := compile("schemas/wipe_schema.json")
	if err != nil {
		return nil, err
	}
	return &Validator{backup: backup, wipe: wipe}, nil
}

func compile(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	url := "https://securewipe.schemas.local/" + name
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return compiled, nil
}

// Validate checks cert against the schema for certType. The certificate
// may be passed with or without its signature field; the signature block,
// when present, is itself structurally checked.
func (v *Validator) Validate(cert map[string]interface{}, certType string) (*Result, error) {
	var s *jsonschema.Schema
	switch certType {
	case CertTypeBackup:
		s = v.backup
	case CertTypeWipe:
		s = v.wipe
	default:
		return nil, fmt.Errorf("unsupported certificate type %q", certType)
	}

	res := &Result{Valid: true}
	if err := s.Validate(toPlain(cert)); err != nil {
		res.Valid = false
		res.Errors = flattenErrors(err)
	}

	if version, _ := cert["certificate_version"].(string); version != "" {
		if verr := checkVersion(version); verr != nil {
			res.Valid = false
			res.Errors = append(res.Errors, verr.Error())
		}
	}
	return res, nil
}

// ValidateAuto dispatches on the certificate's own cert_type field.
func (v *Validator) ValidateAuto(cert map[string]interface{}) (*Result, error) {
	certType, _ := cert["cert_type"].(string)
	if certType == "" {
		return nil, fmt.Errorf("certificate missing cert_type field")
	}
	return v.Validate(cert, certType)
}

func checkVersion(version string) error {
	parsed, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return fmt.Errorf("certificate_version %q is not a semantic version", version)
	}
	if !acceptedVersions.Check(parsed) {
		return fmt.Errorf("certificate_version %q outside accepted range %s", version, acceptedVersions)
	}
	return nil
}

// flattenErrors converts nested jsonschema validation errors into stable,
// human-readable "path: cause" strings.
func flattenErrors(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	seen := map[string]bool{}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "root"
			}
			msg := fmt.Sprintf("%s: %s", loc, e.Message)
			if !seen[msg] {
				seen[msg] = true
				out = append(out, msg)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}

// toPlain deep-copies a value into the generic form the jsonschema
// library expects (map[string]interface{} / []interface{} / primitives).
// Integer-valued floats survive as-is; the library treats them as integers.
func toPlain(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = toPlain(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = toPlain(val)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case int:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case int64, float64, bool, string, nil:
		return t
	default:
		return t
	}
}

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}
