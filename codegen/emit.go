/*
 * Copyright 2023 ICON Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/icon-project/btp2/common/errors"

	"github.com/inkforge/inkforge/metadata"
)

// File is one rendered output document. Writing it to disk or elsewhere
// is the caller's concern.
type File struct {
	Name    string
	Content string
}

// Generator renders declaration and client binding files for one
// contract document. All referenced types are resolved up front so the
// declaration set is complete before any file is rendered.
type Generator struct {
	doc *metadata.Document
	r   *Resolver
}

func NewGenerator(doc *metadata.Document) *Generator {
	g := &Generator{
		doc: doc,
		r:   NewResolver(doc.Types),
	}
	g.resolveAll()
	return g
}

func (g *Generator) resolveAll() {
	for i := range g.doc.Spec.Constructors {
		for _, a := range g.doc.Spec.Constructors[i].Args {
			g.r.Resolve(a.Type.Type)
		}
	}
	for i := range g.doc.Spec.Messages {
		m := &g.doc.Spec.Messages[i]
		for _, a := range m.Args {
			g.r.Resolve(a.Type.Type)
		}
		if m.ReturnType != nil {
			g.r.Resolve(m.ReturnType.Type)
		}
	}
	for i := range g.doc.Spec.Events {
		for _, a := range g.doc.Spec.Events[i].Args {
			g.r.Resolve(a.Type.Type)
		}
	}
}

// Files renders every output document for the contract.
func (g *Generator) Files() ([]*File, error) {
	bindings, err := g.Bindings()
	if err != nil {
		return nil, err
	}
	return []*File{g.Types(), bindings}, nil
}

// Types renders the declaration file: one declaration per named
// interface or union, one payload interface per event, and the query
// and transaction method groupings.
func (g *Generator) Types() *File {
	b := &strings.Builder{}
	b.WriteString(g.banner())
	b.WriteString("\nexport interface TxReceipt {\n")
	b.WriteString("  txHash: string;\n")
	b.WriteString("  blockHash: string;\n")
	b.WriteString("  ok: boolean;\n")
	b.WriteString("}\n")
	if g.r.usedResult {
		if _, ok := g.r.lookupNamed("Result"); !ok {
			b.WriteString("\nexport type Result<T = any, E = any> = { Ok: T } | { Err: E };\n")
		}
	}
	for _, t := range g.r.Named() {
		b.WriteString("\n")
		g.renderDecl(b, t)
	}
	for i := range g.doc.Spec.Events {
		e := &g.doc.Spec.Events[i]
		b.WriteString("\n")
		renderDocs(b, e.Docs, "")
		fmt.Fprintf(b, "export interface %sEvent {\n", pascalCase(e.Label))
		for _, a := range e.Args {
			fmt.Fprintf(b, "  %s: %s;\n", a.Label, g.renderType(g.r.Resolve(a.Type.Type)))
		}
		b.WriteString("}\n")
	}
	b.WriteString("\n")
	g.renderMessageInterfaces(b)
	return &File{Name: "types.ts", Content: b.String()}
}

// Bindings renders a thin client class whose methods delegate to the
// development server endpoints.
func (g *Generator) Bindings() (*File, error) {
	name := pascalCase(g.doc.Name())
	if name == "" {
		return nil, errors.Errorf("not found contract name")
	}
	b := &strings.Builder{}
	b.WriteString(g.banner())
	fmt.Fprintf(b, "\nimport type { %s } from \"./types\";\n", strings.Join(g.importNames(), ", "))
	b.WriteString(`
export interface CallOptions {
  value?: string;
  gasLimit?: string;
  caller?: string;
}
`)
	fmt.Fprintf(b, "\nexport class %sContract {\n", name)
	b.WriteString(`  constructor(
    readonly address: string,
    readonly endpoint: string = "http://localhost:8080",
  ) {}

  private async query<T>(message: string, args: unknown[]): Promise<T> {
    const res = await fetch(` + "`${this.endpoint}/api/contracts/${this.address}/query`" + `, {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify({ message, args }),
    });
    if (!res.ok) {
      throw new Error(` + "`query ${message} failed: ${res.status}`" + `);
    }
    const body = await res.json();
    return body.output as T;
  }

  private async submit(message: string, args: unknown[], options?: CallOptions): Promise<TxReceipt> {
    const res = await fetch(` + "`${this.endpoint}/api/contracts/${this.address}/call`" + `, {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify({ message, args, ...options }),
    });
    if (!res.ok) {
      throw new Error(` + "`call ${message} failed: ${res.status}`" + `);
    }
    return (await res.json()) as TxReceipt;
  }
`)
	for i := range g.doc.Spec.Messages {
		m := &g.doc.Spec.Messages[i]
		b.WriteString("\n")
		renderDocs(b, m.Docs, "  ")
		labels := argLabels(m.Args)
		if m.Mutates {
			params := g.renderParams(m.Args)
			if params != "" {
				params += ", "
			}
			fmt.Fprintf(b, "  async %s(%soptions?: CallOptions): Promise<TxReceipt> {\n", methodName(m.Label), params)
			fmt.Fprintf(b, "    return this.submit(%q, [%s], options);\n  }\n", m.Label, labels)
		} else {
			fmt.Fprintf(b, "  async %s(%s): Promise<%s> {\n", methodName(m.Label), g.renderParams(m.Args), g.returnType(m))
			fmt.Fprintf(b, "    return this.query(%q, [%s]);\n  }\n", m.Label, labels)
		}
	}
	b.WriteString("}\n")
	return &File{
		Name:    strings.ToLower(g.doc.Name()) + ".ts",
		Content: b.String(),
	}, nil
}

func (g *Generator) banner() string {
	b := &strings.Builder{}
	b.WriteString("// Code generated by inkforge. DO NOT EDIT.\n")
	if name := g.doc.Name(); name != "" {
		src := name
		if v := g.doc.Contract.Version; v != "" {
			src += " " + v
		}
		if lang := g.doc.Source.Language; lang != "" {
			src += " (" + lang + ")"
		}
		fmt.Fprintf(b, "// source: %s\n", src)
	}
	return b.String()
}

func (g *Generator) renderDecl(b *strings.Builder, t *TSType) {
	switch t.Kind {
	case TSInterface:
		fmt.Fprintf(b, "export interface %s {\n", t.Name)
		for _, f := range t.Fields {
			fmt.Fprintf(b, "  %s: %s;\n", f.Name, g.renderType(f.Type))
		}
		b.WriteString("}\n")
	case TSUnion:
		if len(t.Variants) == 0 {
			fmt.Fprintf(b, "export type %s = never;\n", t.Name)
			return
		}
		fmt.Fprintf(b, "export type %s =\n", t.Name)
		for i, v := range t.Variants {
			end := "\n"
			if i == len(t.Variants)-1 {
				end = ";\n"
			}
			fmt.Fprintf(b, "  | %s%s", g.renderVariant(v), end)
		}
	}
}

func (g *Generator) renderVariant(v TSVariant) string {
	switch {
	case len(v.Fields) == 0:
		return fmt.Sprintf("{ %s: null }", v.Name)
	case len(v.Fields) == 1 && v.Fields[0].Name == "value":
		return fmt.Sprintf("{ %s: %s }", v.Name, g.renderType(v.Fields[0].Type))
	default:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = fmt.Sprintf("%s: %s", f.Name, g.renderType(f.Type))
		}
		return fmt.Sprintf("{ %s: { %s } }", v.Name, strings.Join(parts, "; "))
	}
}

// renderType prints a use-site type. The well-known Result union prints
// as a generic instantiation so the Ok and Err payload types survive;
// a contract-declared type named Result suppresses that.
func (g *Generator) renderType(t *TSType) string {
	switch t.Kind {
	case TSPrimitive, TSReference, TSInterface:
		return t.Name
	case TSUnion:
		if g.isGenericResult(t) {
			return fmt.Sprintf("Result<%s, %s>",
				g.renderType(t.Variants[0].Fields[0].Type),
				g.renderType(t.Variants[1].Fields[0].Type))
		}
		return t.Name
	case TSOptional:
		return g.renderType(t.Elem) + " | null"
	case TSOr:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = g.renderType(e)
		}
		return strings.Join(parts, " | ")
	case TSArray:
		return g.renderType(t.Elem) + "[]"
	case TSTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = g.renderType(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "any"
	}
}

func (g *Generator) isGenericResult(t *TSType) bool {
	if t.Kind != TSUnion || t.Name != "Result" ||
		len(t.Variants) != 2 ||
		t.Variants[0].Name != "Ok" || len(t.Variants[0].Fields) != 1 ||
		t.Variants[1].Name != "Err" || len(t.Variants[1].Fields) != 1 {
		return false
	}
	_, declared := g.r.lookupNamed("Result")
	return !declared
}

func (g *Generator) renderMessageInterfaces(b *strings.Builder) {
	name := pascalCase(g.doc.Name())
	if name == "" {
		name = "Contract"
	}
	fmt.Fprintf(b, "export interface %sQueries {\n", name)
	for i := range g.doc.Spec.Messages {
		m := &g.doc.Spec.Messages[i]
		if m.Mutates {
			continue
		}
		renderDocs(b, m.Docs, "  ")
		fmt.Fprintf(b, "  %s(%s): Promise<%s>;\n", methodName(m.Label), g.renderParams(m.Args), g.returnType(m))
	}
	b.WriteString("}\n")
	fmt.Fprintf(b, "\nexport interface %sTransactions {\n", name)
	for i := range g.doc.Spec.Messages {
		m := &g.doc.Spec.Messages[i]
		if !m.Mutates {
			continue
		}
		renderDocs(b, m.Docs, "  ")
		fmt.Fprintf(b, "  %s(%s): Promise<TxReceipt>;\n", methodName(m.Label), g.renderParams(m.Args))
	}
	b.WriteString("}\n")
}

func (g *Generator) renderParams(args []metadata.ArgSpec) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%s: %s", a.Label, g.renderType(g.r.Resolve(a.Type.Type)))
	}
	return strings.Join(parts, ", ")
}

func (g *Generator) returnType(m *metadata.MessageSpec) string {
	if m.ReturnType == nil {
		return "void"
	}
	return g.renderType(g.r.Resolve(m.ReturnType.Type))
}

// importNames lists the declared names the bindings file references,
// sorted. TxReceipt is always present for the submit path.
func (g *Generator) importNames() []string {
	seen := map[string]bool{"TxReceipt": true}
	for i := range g.doc.Spec.Messages {
		m := &g.doc.Spec.Messages[i]
		for _, a := range m.Args {
			g.collectRefs(g.r.Resolve(a.Type.Type), seen)
		}
		if !m.Mutates && m.ReturnType != nil {
			g.collectRefs(g.r.Resolve(m.ReturnType.Type), seen)
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Generator) collectRefs(t *TSType, seen map[string]bool) {
	switch t.Kind {
	case TSInterface:
		seen[t.Name] = true
	case TSUnion:
		seen[t.Name] = true
		if g.isGenericResult(t) {
			g.collectRefs(t.Variants[0].Fields[0].Type, seen)
			g.collectRefs(t.Variants[1].Fields[0].Type, seen)
		}
	case TSOptional, TSArray:
		g.collectRefs(t.Elem, seen)
	case TSOr, TSTuple:
		for _, e := range t.Elems {
			g.collectRefs(e, seen)
		}
	}
}

func renderDocs(b *strings.Builder, docs []string, indent string) {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		if d = strings.TrimSpace(d); d != "" {
			lines = append(lines, d)
		}
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString(indent + "/**\n")
	for _, l := range lines {
		b.WriteString(indent + " * " + l + "\n")
	}
	b.WriteString(indent + " */\n")
}

func argLabels(args []metadata.ArgSpec) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Label
	}
	return strings.Join(parts, ", ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// methodName renders a message label as a host-language method name.
// Trait message labels like "PSP22::transfer" flatten on the separator.
func methodName(label string) string {
	parts := strings.FieldsFunc(label, func(r rune) bool {
		return r == '_' || r == ':'
	})
	if len(parts) == 0 {
		return label
	}
	out := strings.ToLower(parts[0])
	for _, p := range parts[1:] {
		out += titleCase(p)
	}
	return out
}

func pascalCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ':' || r == ' '
	})
	out := ""
	for _, p := range parts {
		out += titleCase(p)
	}
	return out
}
