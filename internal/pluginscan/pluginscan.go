// Package pluginscan extracts plugin metadata declarations from Go source
// files without importing the packages they belong to (spec §4.3/§6: "a
// metadata record that can be extracted by syntactic parsing"). Both the
// Exchange Adapter loader and the Strategy plugin loader use it, so a
// broken import in one plugin file never prevents its siblings — or any
// other plugin kind — from being discovered.
package pluginscan

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Record is one plugin's declared metadata: a flat string map, since the
// field set differs slightly between exchange adapters and strategies
// (spec §4.3 vs §4.6). Callers decode the fields they expect.
type Record struct {
	File   string
	Fields map[string]string
}

// ScanDir walks dir for *.go files (excluding _test.go) and extracts every
// top-level `var <varName> = <Type>{...}` composite literal whose field
// values are all string/identifier constants, returning one Record per
// declaration found. Files that fail to parse are skipped, not fatal —
// the whole point is that one broken plugin cannot hide the others.
func ScanDir(dir, varName string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin dir %s: %w", dir, err)
	}

	var out []Record
	fset := token.NewFileSet()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		file, err := parser.ParseFile(fset, path, nil, parser.AllErrors)
		if err != nil {
			continue
		}
		rec, ok := extractRecord(file, varName)
		if !ok {
			continue
		}
		rec.File = path
		out = append(out, rec)
	}
	return out, nil
}

func extractRecord(file *ast.File, varName string) (Record, bool) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if name.Name != varName || i >= len(vs.Values) {
					continue
				}
				lit, ok := vs.Values[i].(*ast.CompositeLit)
				if !ok {
					continue
				}
				return Record{Fields: fieldsOf(lit)}, true
			}
		}
	}
	return Record{}, false
}

func fieldsOf(lit *ast.CompositeLit) map[string]string {
	fields := make(map[string]string)
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		fields[key.Name] = literalString(kv.Value)
	}
	return fields
}

// literalString renders a basic literal or identifier to its string form;
// anything more complex than that (a plugin computing its own metadata at
// init time) is out of scope for syntactic extraction and yields "".
func literalString(expr ast.Expr) string {
	switch v := expr.(type) {
	case *ast.BasicLit:
		switch v.Kind {
		case token.STRING:
			s, err := strconv.Unquote(v.Value)
			if err != nil {
				return v.Value
			}
			return s
		default:
			return v.Value
		}
	case *ast.Ident:
		return v.Name
	default:
		return ""
	}
}
