package pruner

import (
	"fmt"

	"github.com/platinummonkey/sprocket/pkg/identifier"
	"github.com/platinummonkey/sprocket/pkg/location"
	"github.com/platinummonkey/sprocket/pkg/schema"
)

// EmptyEnumError reports an enum that pruning stripped of all constants, or
// of the zero constant a proto3 enum must keep
type EmptyEnumError struct {
	Name     string
	Location location.Location
}

func (e *EmptyEnumError) Error() string {
	return fmt.Sprintf("%s: pruning leaves enum %s without a usable constant set", e.Location, e.Name)
}

// pruner carries the state of one prune run
type pruner struct {
	src    *schema.Schema
	rules  *identifier.Set
	marked []bool
	parent map[int]int
}

// Prune produces a new schema containing only the entities reachable from
// the rule set's includes and not excluded by it. When the rules keep
// everything, the input schema is returned unchanged.
func Prune(src *schema.Schema, rules *identifier.Set) (*schema.Schema, error) {
	if rules.IncludesEverything() {
		return src, nil
	}

	p := &pruner{
		src:    src,
		rules:  rules,
		marked: make([]bool, src.Len()),
		parent: parentIndex(src),
	}
	p.markReachable()
	return p.rebuild()
}

// parentIndex maps each nested declaration to its enclosing message
func parentIndex(src *schema.Schema) map[int]int {
	parents := make(map[int]int)
	for idx, t := range src.Types() {
		msg, ok := t.(*schema.MessageType)
		if !ok {
			continue
		}
		for _, nested := range msg.Nested {
			if childIdx, ok := src.IndexOf(nested.QualifiedName()); ok {
				parents[childIdx] = idx
			}
		}
	}
	return parents
}

// markReachable seeds the root set and walks type references transitively
func (p *pruner) markReachable() {
	var queue []int
	mark := func(idx int) {
		for idx >= 0 {
			if p.marked[idx] {
				return
			}
			p.marked[idx] = true
			queue = append(queue, idx)
			// enclosing messages survive as containers
			parentIdx, ok := p.parent[idx]
			if !ok {
				break
			}
			idx = parentIdx
		}
	}

	for idx, t := range p.src.Types() {
		if p.rules.IncludesType(t.QualifiedName()) {
			mark(idx)
		}
	}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]

		switch t := p.src.TypeAt(idx).(type) {
		case *schema.MessageType:
			for _, field := range t.AllFields() {
				if !p.rules.IncludesMember(t.Qualified, field.Name) {
					continue
				}
				if !field.Type.IsScalar() && field.Type.Index >= 0 {
					mark(field.Type.Index)
				}
			}
		case *schema.ServiceType:
			for _, rpc := range t.Rpcs {
				if !p.rules.IncludesMember(t.Qualified, rpc.Name) {
					continue
				}
				if rpc.Request.Index >= 0 {
					mark(rpc.Request.Index)
				}
				if rpc.Response.Index >= 0 {
					mark(rpc.Response.Index)
				}
			}
		}
	}
}

// survives reports whether an arena entry was marked
func (p *pruner) survives(name string) bool {
	idx, ok := p.src.IndexOf(name)
	return ok && p.marked[idx]
}

// rebuild clones the surviving declarations into a fresh schema
func (p *pruner) rebuild() (*schema.Schema, error) {
	var newFiles []*schema.ProtoFile
	var cloneErr error

	for _, file := range p.src.Files() {
		clone := &schema.ProtoFile{
			Pos:           file.Pos,
			PackageName:   file.PackageName,
			Syntax:        file.Syntax,
			Imports:       file.Imports,
			Options:       file.Options,
			Documentation: file.Documentation,
		}
		for _, t := range file.Types {
			kept := p.cloneType(t, file, &cloneErr)
			if kept != nil {
				clone.Types = append(clone.Types, kept)
			}
		}
		for _, svc := range file.Services {
			if kept := p.cloneService(svc); kept != nil {
				clone.Services = append(clone.Services, kept)
			}
		}
		if cloneErr != nil {
			return nil, cloneErr
		}
		if len(clone.Types) > 0 || len(clone.Services) > 0 {
			newFiles = append(newFiles, clone)
		}
	}

	out := schema.NewSchema(newFiles)
	for _, file := range newFiles {
		registerAll(out, file.Types, file)
		for _, svc := range file.Services {
			out.Register(svc, file)
		}
	}
	p.rebind(out)
	return out, nil
}

// cloneType clones a surviving message or enum, pruning its members.
// The first enum left empty aborts the pass through cloneErr.
func (p *pruner) cloneType(t schema.Type, file *schema.ProtoFile, cloneErr *error) schema.Type {
	if *cloneErr != nil || !p.survives(t.QualifiedName()) {
		return nil
	}

	switch decl := t.(type) {
	case *schema.MessageType:
		clone := &schema.MessageType{
			Name:            decl.Name,
			Qualified:       decl.Qualified,
			ReservedTags:    decl.ReservedTags,
			ReservedNames:   decl.ReservedNames,
			ExtensionRanges: decl.ExtensionRanges,
			Options:         decl.Options,
			Documentation:   decl.Documentation,
			Pos:             decl.Pos,
		}
		for _, field := range decl.Fields {
			if kept := p.cloneField(decl.Qualified, field); kept != nil {
				clone.Fields = append(clone.Fields, kept)
			}
		}
		for _, oneOf := range decl.OneOfs {
			oneOfClone := &schema.OneOf{
				Name:          oneOf.Name,
				Options:       oneOf.Options,
				Documentation: oneOf.Documentation,
				Pos:           oneOf.Pos,
			}
			for _, field := range oneOf.Fields {
				if kept := p.cloneField(decl.Qualified, field); kept != nil {
					oneOfClone.Fields = append(oneOfClone.Fields, kept)
				}
			}
			if len(oneOfClone.Fields) > 0 {
				clone.OneOfs = append(clone.OneOfs, oneOfClone)
			}
		}
		for _, nested := range decl.Nested {
			if kept := p.cloneType(nested, file, cloneErr); kept != nil {
				clone.Nested = append(clone.Nested, kept)
			}
		}
		return clone
	case *schema.EnumType:
		clone := &schema.EnumType{
			Name:          decl.Name,
			Qualified:     decl.Qualified,
			Options:       decl.Options,
			Documentation: decl.Documentation,
			Pos:           decl.Pos,
		}
		hadZero := false
		keptZero := false
		for _, constant := range decl.Constants {
			if constant.Tag == 0 {
				hadZero = true
			}
			if !p.rules.IncludesMember(decl.Qualified, constant.Name) {
				continue
			}
			if constant.Tag == 0 {
				keptZero = true
			}
			clone.Constants = append(clone.Constants, constant)
		}
		if len(clone.Constants) == 0 || (file.Syntax == schema.SyntaxProto3 && hadZero && !keptZero) {
			*cloneErr = &EmptyEnumError{Name: decl.Qualified, Location: decl.Pos}
			return nil
		}
		return clone
	}
	return nil
}

// cloneField clones one field when its member rule and referenced type
// both survived
func (p *pruner) cloneField(typeName string, field *schema.Field) *schema.Field {
	if !p.rules.IncludesMember(typeName, field.Name) {
		return nil
	}
	if !field.Type.IsScalar() && field.Type.Index >= 0 {
		target := p.src.TypeAt(field.Type.Index)
		if !p.survives(target.QualifiedName()) {
			return nil
		}
	}
	clone := *field
	return &clone
}

// cloneService clones a surviving service, dropping rpcs whose member rule
// was excluded or whose request or response type did not survive
func (p *pruner) cloneService(svc *schema.ServiceType) *schema.ServiceType {
	if !p.survives(svc.Qualified) {
		return nil
	}
	clone := &schema.ServiceType{
		Name:          svc.Name,
		Qualified:     svc.Qualified,
		Options:       svc.Options,
		Documentation: svc.Documentation,
		Pos:           svc.Pos,
	}
	for _, rpc := range svc.Rpcs {
		if !p.rules.IncludesMember(svc.Qualified, rpc.Name) {
			continue
		}
		if !p.refSurvives(rpc.Request) || !p.refSurvives(rpc.Response) {
			continue
		}
		rpcClone := *rpc
		clone.Rpcs = append(clone.Rpcs, &rpcClone)
	}
	return clone
}

// refSurvives reports whether a resolved reference's target was kept
func (p *pruner) refSurvives(ref schema.TypeRef) bool {
	if ref.IsScalar() {
		return true
	}
	if ref.Index < 0 {
		return false
	}
	return p.survives(p.src.TypeAt(ref.Index).QualifiedName())
}

// registerAll inserts cloned declarations into the new arena in
// declaration order
func registerAll(out *schema.Schema, types []schema.Type, file *schema.ProtoFile) {
	for _, t := range types {
		out.Register(t, file)
		if msg, ok := t.(*schema.MessageType); ok {
			registerAll(out, msg.Nested, file)
		}
	}
}

// rebind rewrites every arena index against the new schema
func (p *pruner) rebind(out *schema.Schema) {
	rebindRef := func(ref *schema.TypeRef) {
		if ref.IsScalar() || ref.Index < 0 {
			return
		}
		name := p.src.TypeAt(ref.Index).QualifiedName()
		if idx, ok := out.IndexOf(name); ok {
			ref.Index = idx
		}
	}

	for _, t := range out.Types() {
		switch decl := t.(type) {
		case *schema.MessageType:
			for _, field := range decl.AllFields() {
				rebindRef(&field.Type)
			}
		case *schema.ServiceType:
			for _, rpc := range decl.Rpcs {
				rebindRef(&rpc.Request)
				rebindRef(&rpc.Response)
			}
		}
	}
}
