package tree

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alta-lang/altac-codegen/diag"
	"github.com/alta-lang/altac-codegen/typesys"
)

// wireNode is the on-disk JSON shape for one tree node: a discriminator
// plus its kind-specific payload. This is the interchange format between
// this backend and whatever out-of-scope frontend assembled the detailed
// tree (§1's lexer/parser/semantic-analysis collaborators); it is
// deliberately small, covering the node kinds a frontend is most likely to
// emit directly rather than desugar away. Richer fixtures in this repo's
// own tests are built directly as Go struct literals instead of round-
// tripped through JSON, which is the normal way a codegen backend's test
// suite is written.
type wireNode struct {
	Kind string          `json:"kind"`
	Pos  diag.Position   `json:"pos"`
	Data json.RawMessage `json:"data"`
}

// Load parses a JSON-encoded detailed tree from r into a Root. It is the
// concrete boundary named in SPEC_FULL.md §1: this module's CLI reads a
// tree file instead of source text, because parsing source text is out of
// this module's scope.
func Load(r io.Reader) (*Root, error) {
	var wire struct {
		ID       string          `json:"id"`
		Requires []string        `json:"requires"`
		Body     json.RawMessage `json:"body"`
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("tree: decoding root: %w", err)
	}

	body, err := decodeProgram(wire.Body)
	if err != nil {
		return nil, fmt.Errorf("tree: decoding body: %w", err)
	}

	return &Root{ID: wire.ID, Requires: wire.Requires, Body: body}, nil
}

func decodeProgram(raw json.RawMessage) (*Program, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Kind != "Program" {
		return nil, fmt.Errorf("expected Program node, got %q", w.Kind)
	}
	var payload struct {
		Statements []json.RawMessage `json:"statements"`
	}
	if err := json.Unmarshal(w.Data, &payload); err != nil {
		return nil, err
	}
	stmts := make([]Statement, 0, len(payload.Statements))
	for _, s := range payload.Statements {
		stmt, err := decodeStatement(s)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return &Program{base: base{Position: w.Pos}, Statements: stmts}, nil
}

func decodeBlock(raw json.RawMessage) (*Block, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Kind != "Block" {
		return nil, fmt.Errorf("expected Block node, got %q", w.Kind)
	}
	var payload struct {
		Statements []json.RawMessage `json:"statements"`
	}
	if err := json.Unmarshal(w.Data, &payload); err != nil {
		return nil, err
	}
	stmts := make([]Statement, 0, len(payload.Statements))
	for _, s := range payload.Statements {
		stmt, err := decodeStatement(s)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return &Block{base: base{Position: w.Pos}, Statements: stmts}, nil
}

func decodeStatement(raw json.RawMessage) (Statement, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	switch w.Kind {
	case "ExpressionStatement":
		var payload struct {
			Expression json.RawMessage `json:"expression"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		expr, err := decodeExpression(payload.Expression)
		if err != nil {
			return nil, err
		}
		return &ExpressionStatement{stmtBase: stmtBase{base{w.Pos}}, Expression: expr}, nil

	case "VariableDefinition":
		var payload struct {
			Name     string          `json:"name"`
			Type     *typesys.Type   `json:"type"`
			Value    json.RawMessage `json:"value"`
			IsGlobal bool            `json:"isGlobal"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		var value Expression
		if len(payload.Value) > 0 && string(payload.Value) != "null" {
			v, err := decodeExpression(payload.Value)
			if err != nil {
				return nil, err
			}
			value = v
		}
		return &VariableDefinition{
			stmtBase: stmtBase{base{w.Pos}},
			Name:     payload.Name,
			Type:     payload.Type,
			Value:    value,
			IsGlobal: payload.IsGlobal,
		}, nil

	case "ReturnStatement":
		var payload struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		var value Expression
		if len(payload.Value) > 0 && string(payload.Value) != "null" {
			v, err := decodeExpression(payload.Value)
			if err != nil {
				return nil, err
			}
			value = v
		}
		return &ReturnStatement{stmtBase: stmtBase{base{w.Pos}}, Value: value}, nil

	case "Block":
		return decodeBlock(raw)

	default:
		return nil, fmt.Errorf("tree: unsupported statement kind %q in wire format", w.Kind)
	}
}

func decodeExpression(raw json.RawMessage) (Expression, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	switch w.Kind {
	case "IntegerLiteral":
		var payload struct {
			Value int64         `json:"value"`
			Type  *typesys.Type `json:"type"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		return &IntegerLiteral{exprBase: exprBase{base{w.Pos}, payload.Type}, Value: payload.Value}, nil

	case "BooleanLiteral":
		var payload struct {
			Value bool          `json:"value"`
			Type  *typesys.Type `json:"type"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		return &BooleanLiteral{exprBase: exprBase{base{w.Pos}, payload.Type}, Value: payload.Value}, nil

	case "StringLiteral":
		var payload struct {
			Value string        `json:"value"`
			Type  *typesys.Type `json:"type"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		return &StringLiteral{exprBase: exprBase{base{w.Pos}, payload.Type}, Value: payload.Value}, nil

	case "Identifier":
		var payload struct {
			Value  string        `json:"value"`
			Type   *typesys.Type `json:"type"`
			Symbol Symbol        `json:"symbol"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		return &Identifier{exprBase: exprBase{base{w.Pos}, payload.Type}, Value: payload.Value, Symbol: payload.Symbol}, nil

	case "InfixExpression":
		var payload struct {
			Operator string          `json:"operator"`
			Left     json.RawMessage `json:"left"`
			Right    json.RawMessage `json:"right"`
			Type     *typesys.Type   `json:"type"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		left, err := decodeExpression(payload.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpression(payload.Right)
		if err != nil {
			return nil, err
		}
		return &InfixExpression{exprBase: exprBase{base{w.Pos}, payload.Type}, Operator: payload.Operator, Left: left, Right: right}, nil

	case "PrefixExpression":
		var payload struct {
			Operator string          `json:"operator"`
			Right    json.RawMessage `json:"right"`
			Type     *typesys.Type   `json:"type"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		right, err := decodeExpression(payload.Right)
		if err != nil {
			return nil, err
		}
		return &PrefixExpression{exprBase: exprBase{base{w.Pos}, payload.Type}, Operator: payload.Operator, Right: right}, nil

	case "CallExpression":
		var payload struct {
			Function  json.RawMessage   `json:"function"`
			Arguments []json.RawMessage `json:"arguments"`
			Type      *typesys.Type     `json:"type"`
		}
		if err := json.Unmarshal(w.Data, &payload); err != nil {
			return nil, err
		}
		fn, err := decodeExpression(payload.Function)
		if err != nil {
			return nil, err
		}
		args := make([]Argument, 0, len(payload.Arguments))
		for _, a := range payload.Arguments {
			expr, err := decodeExpression(a)
			if err != nil {
				return nil, err
			}
			args = append(args, Argument{Single: expr})
		}
		return &CallExpression{exprBase: exprBase{base{w.Pos}, payload.Type}, Function: fn, Arguments: args}, nil

	default:
		return nil, fmt.Errorf("tree: unsupported expression kind %q in wire format", w.Kind)
	}
}
