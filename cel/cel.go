// Package cel builds document mutations from CEL expressions, so updates can be written
// declaratively, e.g. {"val": "doc.val + 3.0"}. JSON numbers are doubles in CEL.
package cel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/cel-go/cel"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sharedcode/doctxn"
)

// ErrGuardFailed is returned by a mutation whose guard expression evaluated to false.
var ErrGuardFailed = errors.New("guard expression is false")

// Evaluator struct contains the CEL expression & the cel program used to evaluate expression vs. a document.
type Evaluator struct {
	Name       string
	Expression string
	program    cel.Program
}

// NewEvaluator compiles expression against a single variable, doc, holding the document.
func NewEvaluator(name string, expression string) (*Evaluator, error) {
	if name == "" {
		return nil, fmt.Errorf("name can't be empty string")
	}
	if expression == "" {
		return nil, fmt.Errorf("expression can't be empty string")
	}

	env, err := cel.NewEnv(
		// The document is a JSON object.
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %v", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression %s: %v", name, issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %v", err)
	}
	return &Evaluator{
		Name:       name,
		Expression: expression,
		program:    p,
	}, nil
}

// Evaluate runs the expression against doc and returns the result in its JSON shape
// (float64, string, bool, nil, []any or map[string]any).
func (e *Evaluator) Evaluate(doc map[string]any) (any, error) {
	out, _, err := e.program.Eval(map[string]any{
		"doc": doc,
	})
	if err != nil {
		return nil, fmt.Errorf("error evaluating CEL expression %s: %v", e.Name, err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return nil, fmt.Errorf("error ConvertToNative, got err: %v", err)
	}
	v, ok := nv.(*structpb.Value)
	if !ok {
		return nil, fmt.Errorf("error converting to JSON value, nv: %v", nv)
	}
	return v.AsInterface(), nil
}

// EvaluateBool runs a predicate expression against doc.
func (e *Evaluator) EvaluateBool(doc map[string]any) (bool, error) {
	v, err := e.Evaluate(doc)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression %s returned %T, expected bool", e.Name, v)
	}
	return b, nil
}

// NewMutation returns a mutation setting each field of assignments to its expression's
// value. Every expression sees the document as fetched, so assignments do not observe one
// another. When guard is not empty it must hold or the mutation fails with ErrGuardFailed.
func NewMutation(assignments map[string]string, guard string) (doctxn.Mutation, error) {
	if len(assignments) == 0 {
		return nil, fmt.Errorf("at least one assignment is required")
	}
	fields := make([]string, 0, len(assignments))
	for f := range assignments {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	evaluators := make([]*Evaluator, len(fields))
	for i, f := range fields {
		if f == doctxn.FieldID || f == doctxn.FieldRev {
			return nil, fmt.Errorf("field %s can't be assigned", f)
		}
		e, err := NewEvaluator(f, assignments[f])
		if err != nil {
			return nil, err
		}
		evaluators[i] = e
	}
	var g *Evaluator
	if guard != "" {
		var err error
		if g, err = NewEvaluator("guard", guard); err != nil {
			return nil, err
		}
	}

	return func(_ context.Context, doc doctxn.Document) (doctxn.Document, error) {
		if g != nil {
			ok, err := g.EvaluateBool(doc)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrGuardFailed, g.Expression)
			}
		}
		values := make([]any, len(evaluators))
		for i, e := range evaluators {
			v, err := e.Evaluate(doc)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		for i, f := range fields {
			doc[f] = values[i]
		}
		return nil, nil
	}, nil
}
