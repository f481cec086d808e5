package astparse

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

// Reference is one occurrence of a symbol name found while walking a parsed
// file. IsDefinition distinguishes a binding occurrence (function/class
// name, assignment target, parameter) from a use (spec §4.3 find_references:
// "for Python files, walks the syntax tree and classifies each occurrence as
// definition or reference").
type Reference struct {
	Line         int
	IsDefinition bool
}

// FindReferencesPython is the syntax-tree-based path find_references takes
// for Python files; other languages use the word-boundary regex fallback
// implemented in the code service itself, per spec §4.3.
func (p *Parser) FindReferencesPython(ctx context.Context, content []byte, symbol string) ([]Reference, error) {
	tree, err := p.Parse(ctx, LangPython, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var out []Reference
	var walk func(n, parent *sitter.Node)
	walk = func(n, parent *sitter.Node) {
		if n.Type() == "identifier" && text(n, content) == symbol {
			out = append(out, Reference{
				Line:         int(n.StartPoint().Row) + 1,
				IsDefinition: isPythonDefinitionOccurrence(n, parent),
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), n)
		}
	}
	walk(tree.RootNode(), nil)
	return out, nil
}

func isPythonDefinitionOccurrence(n, parent *sitter.Node) bool {
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "function_definition", "class_definition":
		return parent.ChildByFieldName("name") == n
	case "parameters", "typed_parameter", "default_parameter":
		return true
	case "assignment":
		return parent.ChildByFieldName("left") == n
	case "for_statement":
		return parent.ChildByFieldName("left") == n
	default:
		return false
	}
}
