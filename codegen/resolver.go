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
	"strings"

	"github.com/icon-project/btp2/common/log"

	"github.com/inkforge/inkforge/metadata"
)

var cgLogger = log.New()

func init() {
	cgLogger.SetLevel(log.DebugLevel)
}

// Resolver maps registry type ids to target-language shapes.
// Resolution is total: ids absent from the registry and ids that refer
// back to themselves degrade to any instead of failing, since metadata
// is trusted but may be incomplete. A Resolver carries per-document
// state and is not safe for concurrent use.
type Resolver struct {
	reg        *metadata.TypeRegistry
	resolved   map[metadata.TypeID]*TSType
	inProgress map[metadata.TypeID]bool

	named      map[string]*TSType
	order      []string
	usedResult bool

	l log.Logger
}

func NewResolver(reg *metadata.TypeRegistry) *Resolver {
	return &Resolver{
		reg:        reg,
		resolved:   make(map[metadata.TypeID]*TSType),
		inProgress: make(map[metadata.TypeID]bool),
		named:      make(map[string]*TSType),
		l:          cgLogger,
	}
}

// Resolve returns the shape for the given type id. Results are memoized,
// so repeated references share one node. A cyclic reference resolves to
// any without being cached, only terminal resolutions enter the cache.
func (r *Resolver) Resolve(id metadata.TypeID) *TSType {
	if t, ok := r.resolved[id]; ok {
		return t
	}
	if r.inProgress[id] {
		r.l.Tracef("cycle at type id:%d, resolve to any", id)
		return tsAny()
	}
	r.inProgress[id] = true
	t := r.resolveDef(id)
	delete(r.inProgress, id)
	r.resolved[id] = t
	return t
}

func (r *Resolver) resolveDef(id metadata.TypeID) *TSType {
	d, ok := r.reg.Lookup(id)
	if !ok {
		r.l.Tracef("not found type id:%d, resolve to any", id)
		return tsAny()
	}
	if t := r.resolveWellKnown(d); t != nil {
		return t
	}
	switch d.Kind {
	case metadata.KindPrimitive:
		return resolvePrimitive(d.Primitive)
	case metadata.KindComposite:
		return r.resolveComposite(d)
	case metadata.KindVariant:
		return r.resolveVariant(d)
	case metadata.KindSequence:
		return r.resolveSequence(d)
	case metadata.KindArray:
		return r.resolveArray(d)
	case metadata.KindTuple:
		return r.resolveTuple(d)
	case metadata.KindCompact:
		// compact changes the wire encoding only
		return r.Resolve(d.Elem)
	case metadata.KindBitSequence:
		return tsReference("Uint8Array")
	default:
		return tsAny()
	}
}

// resolveWellKnown overrides recognized prelude paths. Nil means no
// override applies and the definition resolves structurally.
func (r *Resolver) resolveWellKnown(d *metadata.TypeDef) *TSType {
	path := d.PathString()
	switch path {
	case "Option":
		if inner, ok := d.FirstParam(); ok {
			return tsOptional(r.Resolve(inner))
		}
		return tsOr(tsAny(), tsPrimitive("null"))
	case "Result":
		// only a parameterized Result is shaped here, a bare Result
		// path falls through to its variant definition
		if d.Params != nil {
			r.usedResult = true
			return &TSType{
				Kind: TSUnion,
				Name: "Result",
				Variants: []TSVariant{
					{Name: "Ok", Fields: []TSField{{Name: "value", Type: r.resolveParam(d, 0)}}},
					{Name: "Err", Fields: []TSField{{Name: "error", Type: r.resolveParam(d, 1)}}},
				},
			}
		}
	case "String":
		return tsPrimitive("string")
	case "Vec", "BTreeMap", "BTreeSet":
		// containers keep their structural handling
	}
	switch {
	case strings.Contains(path, "AccountId"):
		return tsPrimitive("string")
	case strings.Contains(path, "Balance"):
		return bigNumeric()
	case strings.Contains(path, "Hash"):
		return tsOr(tsPrimitive("string"), tsReference("Uint8Array"))
	}
	return nil
}

func (r *Resolver) resolveParam(d *metadata.TypeDef, idx int) *TSType {
	if idx < len(d.Params) && d.Params[idx].Type != nil {
		return r.Resolve(*d.Params[idx].Type)
	}
	return tsAny()
}

func resolvePrimitive(p metadata.PrimitiveKind) *TSType {
	switch p {
	case metadata.PrimBool:
		return tsPrimitive("boolean")
	case metadata.PrimChar, metadata.PrimStr:
		return tsPrimitive("string")
	}
	switch bits := p.Bits(); {
	case bits > 0 && bits <= 32:
		return tsPrimitive("number")
	case bits > 32:
		// wide integers overflow a host number
		return bigNumeric()
	default:
		return tsPrimitive("any")
	}
}

func (r *Resolver) resolveComposite(d *metadata.TypeDef) *TSType {
	unnamed := true
	for _, f := range d.Fields {
		if f.Name != "" {
			unnamed = false
			break
		}
	}
	if unnamed {
		if len(d.Fields) == 1 {
			// newtype wrappers collapse to the wrapped type
			return r.Resolve(d.Fields[0].Type)
		}
		elems := make([]*TSType, len(d.Fields))
		for i, f := range d.Fields {
			elems[i] = r.Resolve(f.Type)
		}
		return tsTuple(elems...)
	}
	name := d.Name()
	if name == "" {
		name = fmt.Sprintf("Struct%d", len(d.Fields))
	}
	fields := make([]TSField, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = TSField{Name: f.Name, Type: r.Resolve(f.Type)}
	}
	t := &TSType{Kind: TSInterface, Name: name, Fields: fields}
	r.registerNamed(t)
	return t
}

func (r *Resolver) resolveVariant(d *metadata.TypeDef) *TSType {
	variants := make([]TSVariant, len(d.Variants))
	for i, v := range d.Variants {
		fields := make([]TSField, len(v.Fields))
		for j, f := range v.Fields {
			name := f.Name
			if name == "" {
				if len(v.Fields) == 1 {
					name = "value"
				} else {
					name = fmt.Sprintf("field%d", j)
				}
			}
			fields[j] = TSField{Name: name, Type: r.Resolve(f.Type)}
		}
		variants[i] = TSVariant{Name: v.Name, Fields: fields}
	}
	name := d.Name()
	if name == "" {
		name = fmt.Sprintf("Enum%d", len(d.Variants))
	}
	t := &TSType{Kind: TSUnion, Name: name, Variants: variants}
	r.registerNamed(t)
	return t
}

func (r *Resolver) resolveSequence(d *metadata.TypeDef) *TSType {
	elem := r.Resolve(d.Elem)
	if elem.isPrimitive("number") {
		// byte vectors cross the boundary as bytes or encoded text
		return byteBuffer()
	}
	return tsArray(elem)
}

func (r *Resolver) resolveArray(d *metadata.TypeDef) *TSType {
	elem := r.Resolve(d.Elem)
	if d.Len == 32 && elem.isPrimitive("number") {
		// hash-shaped arrays get the byte vector treatment
		return byteBuffer()
	}
	return tsArray(elem)
}

func (r *Resolver) resolveTuple(d *metadata.TypeDef) *TSType {
	if len(d.Tuple) == 0 {
		return tsPrimitive("void")
	}
	elems := make([]*TSType, len(d.Tuple))
	for i, id := range d.Tuple {
		elems[i] = r.Resolve(id)
	}
	return tsTuple(elems...)
}

// registerNamed records a declarable type for emission. A later type
// with the same name replaces the earlier declaration but keeps its
// position in the emission order.
func (r *Resolver) registerNamed(t *TSType) {
	if _, ok := r.named[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.named[t.Name] = t
}

// Named returns the declarable interface and union types in first-use
// order.
func (r *Resolver) Named() []*TSType {
	out := make([]*TSType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.named[name])
	}
	return out
}

func (r *Resolver) lookupNamed(name string) (*TSType, bool) {
	t, ok := r.named[name]
	return t, ok
}
