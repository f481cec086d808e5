package astparse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// CallSite is one call expression found inside an entity's body. Qualifier
// is the left-hand side of a dotted/selector call (e.g. "pkg" in
// "pkg.Func()", "obj" in "obj.Method()"), empty for a bare call. Callee is
// the bare function/method name. Resolving Qualifier+Callee into
// internal/external/stdlib/local is the hierarchical memory network's job
// (spec §4.4 step 3), not this package's.
type CallSite struct {
	Qualifier string
	Callee    string
	Line      int
}

var callNodeType = map[Language]string{
	LangGo:         "call_expression",
	LangPython:     "call",
	LangJavaScript: "call_expression",
	LangTypeScript: "call_expression",
	LangRust:       "call_expression",
}

// CallsInRange walks every call expression whose start line falls within
// [startLine, endLine] (an entity's source span) and returns its callee.
func (p *Parser) CallsInRange(ctx Language, tree *sitter.Node, content []byte, startLine, endLine int) []CallSite {
	target, ok := callNodeType[ctx]
	if !ok {
		return nil
	}

	var out []CallSite
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		row := int(n.StartPoint().Row) + 1
		if row < startLine || row > endLine {
			// A node starting after the span holds no call inside it; a node
			// starting before it may enclose the span, so it is still walked.
			if row > endLine {
				return
			}
		}

		if n.Type() == target && row >= startLine {
			if cs, ok := parseCallSite(ctx, n, content); ok {
				cs.Line = row
				out = append(out, cs)
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree)
	return out
}

func parseCallSite(lang Language, call *sitter.Node, content []byte) (CallSite, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return CallSite{}, false
	}

	switch fn.Type() {
	case "identifier":
		return CallSite{Callee: text(fn, content)}, true

	case "selector_expression": // Go: pkg.Func / obj.Method
		operand := text(fn.ChildByFieldName("operand"), content)
		field := text(fn.ChildByFieldName("field"), content)
		if field == "" {
			return CallSite{}, false
		}
		return CallSite{Qualifier: operand, Callee: field}, true

	case "attribute": // Python: obj.method / module.func
		obj := text(fn.ChildByFieldName("object"), content)
		attr := text(fn.ChildByFieldName("attribute"), content)
		if attr == "" {
			return CallSite{}, false
		}
		return CallSite{Qualifier: obj, Callee: attr}, true

	case "member_expression": // JS/TS: obj.method
		obj := text(fn.ChildByFieldName("object"), content)
		prop := text(fn.ChildByFieldName("property"), content)
		if prop == "" {
			return CallSite{}, false
		}
		return CallSite{Qualifier: obj, Callee: prop}, true

	case "field_expression": // Rust: obj.method()
		value := text(fn.ChildByFieldName("value"), content)
		field := text(fn.ChildByFieldName("field"), content)
		if field == "" {
			return CallSite{}, false
		}
		return CallSite{Qualifier: value, Callee: field}, true

	case "scoped_identifier": // Rust: module::func
		full := text(fn, content)
		parts := strings.Split(full, "::")
		if len(parts) < 2 {
			return CallSite{Callee: full}, true
		}
		return CallSite{Qualifier: strings.Join(parts[:len(parts)-1], "::"), Callee: parts[len(parts)-1]}, true

	default:
		return CallSite{}, false
	}
}
