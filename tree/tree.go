// Package tree defines the detailed program tree the Node Compiler consumes:
// an abstract syntax tree whose nodes already carry resolved types, scopes,
// symbols, cast paths, parent-chain indices, and argument-adjustment
// descriptors, per §6's input contract. The lexer, parser, and semantic
// analyser that produce this tree are explicitly out of scope for this
// module (§1) — this package only defines the tree's shape, plus a small
// JSON-based loader (Load) standing in for whatever out-of-scope frontend
// hands a tree to this backend.
package tree

import (
	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/typesys"
)

// Node is the base interface every tree node implements.
type Node interface {
	// Pos returns the source position this node was parsed from, for
	// diagnostics. Every node in a detailed tree carries one (§6).
	Pos() diag.Position
}

// Statement is a node that performs an action but produces no value.
type Statement interface {
	Node
	statementNode()
}

// Expression is a node that produces a value, and has a resolved type.
type Expression interface {
	Node
	expressionNode()
	// Type returns the expression's resolved type, as attached by semantic
	// analysis.
	Type() *typesys.Type
}

// base is embedded by every concrete node to supply Pos() and the
// appropriate marker method via further embedding.
type base struct {
	Position diag.Position
}

// Pos returns the node's source position.
func (b base) Pos() diag.Position { return b.Position }

// exprBase is embedded by expression nodes.
type exprBase struct {
	base
	ResolvedType *typesys.Type
}

func (exprBase) expressionNode() {}

// Type returns the expression's resolved type.
func (e exprBase) Type() *typesys.Type { return e.ResolvedType }

// stmtBase is embedded by statement nodes.
type stmtBase struct {
	base
}

func (stmtBase) statementNode() {}

// Root is one independently-compilable root tree handed to the Module
// Driver (§4.9): typically one source file's top level, already
// dependency-ordered relative to its Requires by whatever assembled the
// compilation unit.
type Root struct {
	// ID uniquely identifies this root within the compilation (used for the
	// driver's visited-set cycle guard).
	ID string
	// Requires lists the IDs of roots that must be compiled first.
	Requires []string
	Body     *Program
}

// Program is the root node of one tree: an ordered list of top-level statements.
type Program struct {
	base
	Statements []Statement
}

// Block represents a brace-delimited sequence of statements. Declaring a
// variable inside a Block binds it for exactly that block's lifetime (§4.4
// ordering guarantee).
type Block struct {
	base
	Statements []Statement
}

func (*Block) statementNode() {}

// ExpressionStatement wraps an expression used as a statement. The Node
// Compiler pushes a Temporary scope frame around it (§4.8).
type ExpressionStatement struct {
	stmtBase
	Expression Expression
}
