package treesitter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/xonecas/refscope/internal/decl"
)

// langForExt returns the tree-sitter language for a file extension, or nil.
func langForExt(ext string) *sitter.Language {
	switch ext {
	case ".go":
		return golang.GetLanguage()
	default:
		return nil
	}
}

// Supported returns true if the file extension has a tree-sitter grammar.
func Supported(path string) bool {
	return langForExt(strings.ToLower(filepath.Ext(path))) != nil
}

// ParseFile reads and parses a file into a declaration index.
func ParseFile(ctx context.Context, path string) (*decl.FileIndex, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSource(ctx, path, src)
}

// ParseSource parses source bytes into a declaration index. Unsupported
// languages produce an empty index.
func ParseSource(ctx context.Context, path string, src []byte) (*decl.FileIndex, error) {
	lang := langForExt(strings.ToLower(filepath.Ext(path)))
	if lang == nil {
		return decl.NewFileIndex(path, "", nil), nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	pkg, decls := extractGo(tree.RootNode(), src)
	return decl.NewFileIndex(path, pkg, decls), nil
}

// extractGo walks the top level of a Go syntax tree. Only whole top-level
// declarations become ranges; const and var blocks are tagged Unclassified.
func extractGo(root *sitter.Node, src []byte) (string, []decl.Declaration) {
	var (
		pkg   string
		decls []decl.Declaration
	)
	count := int(root.ChildCount())

	for i := 0; i < count; i++ {
		child := root.Child(i)
		switch child.Type() {
		case "package_clause":
			// package_identifier is a named child, not a field.
			if nc := child.NamedChild(0); nc != nil && nc.Type() == "package_identifier" {
				pkg = content(nc, src)
			}

		case "import_declaration":
			decls = append(decls, span(child, decl.KindImport, ""))

		case "function_declaration":
			decls = append(decls, span(child, decl.KindFunction, fieldContent(child, "name", src)))

		case "method_declaration":
			decls = append(decls, span(child, decl.KindMethod, methodName(child, src)))

		case "type_declaration":
			decls = append(decls, span(child, decl.KindType, firstTypeName(child, src)))

		case "const_declaration", "var_declaration":
			decls = append(decls, span(child, decl.KindUnclassified, ""))
		}
	}
	return pkg, decls
}

// methodName returns Recv.Name, with pointer and type parameters stripped
// from the receiver. Receivers that are not a plain type name yield Name.
func methodName(node *sitter.Node, src []byte) string {
	name := fieldContent(node, "name", src)
	receiver := node.ChildByFieldName("receiver")
	if receiver == nil || receiver.NamedChildCount() != 1 {
		return name
	}
	param := receiver.NamedChild(0)
	if param.Type() != "parameter_declaration" {
		return name
	}
	t := param.ChildByFieldName("type")
	if t != nil && t.Type() == "pointer_type" {
		t = t.NamedChild(0)
	}
	if t != nil && t.Type() == "generic_type" {
		t = t.ChildByFieldName("type")
	}
	if t == nil || t.Type() != "type_identifier" {
		return name
	}
	return content(t, src) + "." + name
}

// firstTypeName returns the name of the first spec in a type declaration,
// grouped or not.
func firstTypeName(node *sitter.Node, src []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "type_spec", "type_alias":
			return fieldContent(child, "name", src)
		}
	}
	return ""
}

// helpers

func span(node *sitter.Node, kind decl.Kind, name string) decl.Declaration {
	return decl.Declaration{
		Kind:      kind,
		StartLine: int(node.StartPoint().Row),
		EndLine:   int(node.EndPoint().Row),
		Name:      name,
	}
}

func fieldContent(node *sitter.Node, field string, src []byte) string {
	if f := node.ChildByFieldName(field); f != nil {
		return content(f, src)
	}
	return ""
}

func content(node *sitter.Node, src []byte) string {
	return node.Content(src)
}
