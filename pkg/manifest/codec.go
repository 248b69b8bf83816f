// SPDX-License-Identifier: Apache-2.0
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/renameio"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
)

// DateLayout is how the manifest date is written: date, time and a numeric
// UTC offset.
const DateLayout = "2006-01-02T15:04:05-07:00"

// FilePerms is the mode of a saved manifest.
const FilePerms = 0o644

// dateLayouts are tried in order when reading a manifest. Older manifests
// carry no offset and are read as UTC.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

var dependencyType = cty.Object(map[string]cty.Type{
	"name":    cty.String,
	"version": cty.String,
	"source":  cty.String,
	"sha256":  cty.String,
})

// Load reads and parses the manifest at path.
func Load(path string) (*Descriptor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &perrors.ManifestError{Path: path, Reason: "manifest not found"}
		}
		return nil, perrors.IO("read", path, err)
	}
	return Parse(src, path)
}

// Parse decodes manifest source. filename is only used in diagnostics.
// Either a complete descriptor or a *errors.ManifestError is returned.
func Parse(src []byte, filename string) (*Descriptor, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &perrors.ManifestError{Path: filename, Reason: diags.Error()}
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, &perrors.ManifestError{Path: filename, Reason: diags.Error()}
	}

	r := &reader{attrs: attrs}
	d := &Descriptor{
		Name:                   r.str("name", false),
		Version:                r.str("version", false),
		EntryPoint:             r.str("entry_point", true),
		OutputBinary:           r.str("output_binary", true),
		SHA256:                 r.str("sha256", true),
		SupportedOS:            r.strList("supported_os"),
		SupportedArchitectures: r.strList("supported_architectures"),
		Dependencies:           r.dependencies(),
	}
	if s := r.str("date", false); s != "" && r.err == nil {
		d.Date, r.err = parseDate(s)
	}
	if r.err == nil {
		r.err = d.Validate()
	}
	if r.err != nil {
		var me *perrors.ManifestError
		if errors.As(r.err, &me) {
			me.Path = filename
		}
		return nil, r.err
	}
	return d, nil
}

// Serialize renders d as HCL. Strings are escaped by the HCL writer.
func Serialize(d *Descriptor) ([]byte, error) {
	deps := make([]cty.Value, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		deps = append(deps, cty.ObjectVal(map[string]cty.Value{
			"name":    cty.StringVal(dep.Name),
			"version": cty.StringVal(dep.Version),
			"source":  cty.StringVal(dep.Source),
			"sha256":  cty.StringVal(dep.SHA256),
		}))
	}
	depsVal := cty.ListValEmpty(dependencyType)
	if len(deps) > 0 {
		depsVal = cty.ListVal(deps)
	}

	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("name", cty.StringVal(d.Name))
	body.SetAttributeValue("version", cty.StringVal(d.Version))
	body.SetAttributeValue("entry_point", cty.StringVal(d.EntryPoint))
	body.SetAttributeValue("date", cty.StringVal(FormatDate(d.Date)))
	body.SetAttributeValue("output_binary", cty.StringVal(d.OutputBinary))
	body.SetAttributeValue("sha256", cty.StringVal(d.SHA256))
	body.AppendNewline()
	body.SetAttributeValue("supported_os", stringList(d.SupportedOS))
	body.SetAttributeValue("supported_architectures", stringList(d.SupportedArchitectures))
	body.AppendNewline()
	body.SetAttributeValue("dependencies", depsVal)

	return hclwrite.Format(f.Bytes()), nil
}

// Save stamps d with at, serialises it and atomically replaces path.
func Save(path string, d *Descriptor, at time.Time) error {
	d.Date = at.UTC().Truncate(time.Second)
	data, err := Serialize(d)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, FilePerms); err != nil {
		return perrors.IO("write", path, err)
	}
	return nil
}

// FormatDate renders t in DateLayout, normalised to UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fieldError("date", "unrecognised timestamp %q", s)
}

func stringList(items []string) cty.Value {
	if len(items) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(items))
	for i, s := range items {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}

// reader pulls typed values out of the manifest attributes, keeping the first
// error and turning every later call into a no-op.
type reader struct {
	attrs hcl.Attributes
	err   error
}

func (r *reader) value(key string, required bool) (cty.Value, bool) {
	if r.err != nil {
		return cty.NilVal, false
	}
	attr, ok := r.attrs[key]
	if !ok {
		if required {
			r.err = fieldError(key, "required key is missing")
		}
		return cty.NilVal, false
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		r.err = fieldError(key, "%s", diags.Error())
		return cty.NilVal, false
	}
	if val.IsNull() {
		if required {
			r.err = fieldError(key, "must not be null")
		}
		return cty.NilVal, false
	}
	return val, true
}

func (r *reader) str(key string, required bool) string {
	val, ok := r.value(key, required)
	if !ok {
		return ""
	}
	s, err := asString(val)
	if err != nil {
		r.err = fieldError(key, "%v", err)
	}
	return s
}

func (r *reader) strList(key string) []string {
	val, ok := r.value(key, false)
	if !ok {
		return nil
	}
	if !isSequence(val.Type()) {
		r.err = fieldError(key, "must be a list of strings")
		return nil
	}
	var out []string
	for i, elem := range val.AsValueSlice() {
		s, err := asString(elem)
		if err != nil {
			r.err = fieldError(fmt.Sprintf("%s[%d]", key, i), "%v", err)
			return nil
		}
		out = append(out, s)
	}
	return out
}

func (r *reader) dependencies() []Dependency {
	val, ok := r.value("dependencies", true)
	if !ok {
		return nil
	}
	if !isSequence(val.Type()) {
		r.err = fieldError("dependencies", "must be a list of objects")
		return nil
	}
	var out []Dependency
	for i, elem := range val.AsValueSlice() {
		dep, err := decodeDependency(i, elem)
		if err != nil {
			r.err = err
			return nil
		}
		out = append(out, dep)
	}
	return out
}

func decodeDependency(i int, val cty.Value) (Dependency, error) {
	ty := val.Type()
	if val.IsNull() || !(ty.IsObjectType() || ty.IsMapType()) {
		return Dependency{}, fieldError(depField(i, ""), "must be an object")
	}
	fields := val.AsValueMap()
	get := func(key string) (string, error) {
		v, ok := fields[key]
		if !ok || v.IsNull() {
			return "", fieldError(depField(i, key), "required key is missing")
		}
		s, err := asString(v)
		if err != nil {
			return "", fieldError(depField(i, key), "%v", err)
		}
		return s, nil
	}

	var dep Dependency
	var err error
	if dep.Name, err = get("name"); err != nil {
		return dep, err
	}
	if dep.Version, err = get("version"); err != nil {
		return dep, err
	}
	if dep.Source, err = get("source"); err != nil {
		return dep, err
	}
	if dep.SHA256, err = get("sha256"); err != nil {
		return dep, err
	}
	if dep.SHA256, err = integrity.Normalize(dep.SHA256); err != nil {
		return dep, fieldError(depField(i, "sha256"), "%v", err)
	}
	return dep, nil
}

func asString(val cty.Value) (string, error) {
	if !val.IsKnown() || val.IsNull() || val.Type() != cty.String {
		return "", fmt.Errorf("must be a string, got %s", val.Type().FriendlyName())
	}
	return val.AsString(), nil
}

func isSequence(ty cty.Type) bool {
	return ty.IsListType() || ty.IsTupleType() || ty.IsSetType()
}

func depField(i int, key string) string {
	if key == "" {
		return fmt.Sprintf("dependencies[%d]", i)
	}
	return fmt.Sprintf("dependencies[%d].%s", i, key)
}
