package astparse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// EntityKind mirrors model.HMNNodeMetadata.EntityKind's vocabulary for the
// top-level units read_file chunking (spec §4.3) and HMN ingest (spec §4.4)
// both operate on.
type EntityKind string

const (
	EntityFunction  EntityKind = "function"
	EntityMethod    EntityKind = "method"
	EntityClass     EntityKind = "class"
	EntityStruct    EntityKind = "struct"
	EntityInterface EntityKind = "interface"
)

// Entity is one top-level function/class/type node found in a parsed file,
// carrying exactly the fields spec §4.3's read_file chunking requires:
// {kind, name, start_line, end_line}.
type Entity struct {
	Kind      EntityKind
	Name      string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
}

// ParseEntities parses content with the grammar for lang and returns its
// top-level function/class/type entities in source order. It returns
// errUnsupportedLanguage for languages without a grammar; callers fall back
// to fixed-line-count chunking in that case (spec §4.3 "non-parseable files
// fall back to fixed-line-count chunking").
func (p *Parser) ParseEntities(ctx context.Context, lang Language, content []byte) ([]Entity, error) {
	tree, err := p.Parse(ctx, lang, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	switch lang {
	case LangGo:
		return goEntities(root, content), nil
	case LangPython:
		return pythonEntities(root, content), nil
	case LangJavaScript, LangTypeScript:
		return jsEntities(root, content), nil
	case LangRust:
		return rustEntities(root, content), nil
	default:
		return nil, errUnsupportedLanguage(lang)
	}
}

func text(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(content)
}

func lines(n *sitter.Node) (start, end int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

func goEntities(root *sitter.Node, content []byte) []Entity {
	var out []Entity
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "function_declaration":
			name := text(n.ChildByFieldName("name"), content)
			if name == "" {
				continue
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityFunction, Name: name, StartLine: start, EndLine: end})

		case "method_declaration":
			name := text(n.ChildByFieldName("name"), content)
			recv := receiverTypeName(n.ChildByFieldName("receiver"), content)
			if name == "" {
				continue
			}
			qualified := name
			if recv != "" {
				qualified = recv + "." + name
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityMethod, Name: qualified, StartLine: start, EndLine: end})

		case "type_declaration":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				spec := n.NamedChild(j)
				if spec.Type() != "type_spec" {
					continue
				}
				name := text(spec.ChildByFieldName("name"), content)
				if name == "" {
					continue
				}
				kind := EntityStruct
				if typeNode := spec.ChildByFieldName("type"); typeNode != nil && typeNode.Type() == "interface_type" {
					kind = EntityInterface
				}
				start, end := lines(n)
				out = append(out, Entity{Kind: kind, Name: name, StartLine: start, EndLine: end})
			}
		}
	}
	return out
}

// receiverTypeName pulls the bare type name off a method receiver,
// stripping pointer and generic-parameter syntax (e.g. "(e *Engine[T])" ->
// "Engine").
func receiverTypeName(receiver *sitter.Node, content []byte) string {
	if receiver == nil {
		return ""
	}
	for i := 0; i < int(receiver.NamedChildCount()); i++ {
		param := receiver.NamedChild(i)
		typeNode := param.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		n := typeNode
		for n.Type() == "pointer_type" {
			n = n.ChildByFieldName("type")
			if n == nil {
				return ""
			}
		}
		if n.Type() == "generic_type" {
			n = n.ChildByFieldName("type")
		}
		return text(n, content)
	}
	return ""
}

func pythonEntities(root *sitter.Node, content []byte) []Entity {
	var out []Entity
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "function_definition":
			name := text(n.ChildByFieldName("name"), content)
			if name == "" {
				continue
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityFunction, Name: name, StartLine: start, EndLine: end})

		case "class_definition":
			className := text(n.ChildByFieldName("name"), content)
			if className == "" {
				continue
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityClass, Name: className, StartLine: start, EndLine: end})

			body := n.ChildByFieldName("body")
			if body == nil {
				continue
			}
			for j := 0; j < int(body.NamedChildCount()); j++ {
				member := body.NamedChild(j)
				if member.Type() != "function_definition" {
					continue
				}
				methodName := text(member.ChildByFieldName("name"), content)
				if methodName == "" {
					continue
				}
				mStart, mEnd := lines(member)
				out = append(out, Entity{
					Kind:      EntityMethod,
					Name:      fmt.Sprintf("%s.%s", className, methodName),
					StartLine: mStart,
					EndLine:   mEnd,
				})
			}
		}
	}
	return out
}

func jsEntities(root *sitter.Node, content []byte) []Entity {
	var out []Entity
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "function_declaration":
			name := text(n.ChildByFieldName("name"), content)
			if name == "" {
				continue
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityFunction, Name: name, StartLine: start, EndLine: end})

		case "class_declaration":
			className := text(n.ChildByFieldName("name"), content)
			if className == "" {
				continue
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityClass, Name: className, StartLine: start, EndLine: end})

			body := n.ChildByFieldName("body")
			if body == nil {
				continue
			}
			for j := 0; j < int(body.NamedChildCount()); j++ {
				member := body.NamedChild(j)
				if member.Type() != "method_definition" {
					continue
				}
				methodName := text(member.ChildByFieldName("name"), content)
				if methodName == "" {
					continue
				}
				mStart, mEnd := lines(member)
				out = append(out, Entity{
					Kind:      EntityMethod,
					Name:      fmt.Sprintf("%s.%s", className, methodName),
					StartLine: mStart,
					EndLine:   mEnd,
				})
			}
		}
	}
	return out
}

func rustEntities(root *sitter.Node, content []byte) []Entity {
	var out []Entity
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "function_item":
			name := text(n.ChildByFieldName("name"), content)
			if name == "" {
				continue
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityFunction, Name: name, StartLine: start, EndLine: end})

		case "struct_item":
			name := text(n.ChildByFieldName("name"), content)
			if name == "" {
				continue
			}
			start, end := lines(n)
			out = append(out, Entity{Kind: EntityStruct, Name: name, StartLine: start, EndLine: end})

		case "impl_item":
			typeName := text(n.ChildByFieldName("type"), content)
			body := n.ChildByFieldName("body")
			if typeName == "" || body == nil {
				continue
			}
			for j := 0; j < int(body.NamedChildCount()); j++ {
				member := body.NamedChild(j)
				if member.Type() != "function_item" {
					continue
				}
				methodName := text(member.ChildByFieldName("name"), content)
				if methodName == "" {
					continue
				}
				mStart, mEnd := lines(member)
				out = append(out, Entity{
					Kind:      EntityMethod,
					Name:      fmt.Sprintf("%s.%s", typeName, methodName),
					StartLine: mStart,
					EndLine:   mEnd,
				})
			}
		}
	}
	return out
}
