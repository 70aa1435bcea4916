package recordstore

import (
	"errors"
	"fmt"
	"strings"
)

// Filter operators accepted in [operator, value] conditions.
const (
	OpEq      = "="
	OpNe      = "!="
	OpLt      = "<"
	OpLe      = "<="
	OpGt      = ">"
	OpGe      = ">="
	OpLike    = "like"
	OpNotLike = "not like"
	OpIn      = "in"
	OpNotIn   = "not in"
	OpIs      = "is"
)

var operators = map[string]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
	OpLike: true, OpNotLike: true, OpIn: true, OpNotIn: true, OpIs: true,
}

// ErrInvalidCondition is returned for malformed filter values.
var ErrInvalidCondition = errors.New("invalid filter condition")

// Condition is a parsed DirectCall filter.
type Condition struct {
	Operator string
	Value    any
}

// ParseCondition interprets a parameter value: a scalar means equality, a
// two-element [operator, value] list carries an explicit operator. For "in"
// and "not in" the value must be a non-empty list. For "is" the value must
// be "set" or "not set".
func ParseCondition(value any) (Condition, error) {
	list, ok := value.([]any)
	if !ok {
		if _, isMap := value.(map[string]any); isMap {
			return Condition{}, fmt.Errorf("%w: objects are not filter values", ErrInvalidCondition)
		}
		return Condition{Operator: OpEq, Value: value}, nil
	}
	if len(list) != 2 {
		return Condition{}, fmt.Errorf("%w: expected [operator, value], got %d elements", ErrInvalidCondition, len(list))
	}

	opStr, ok := list[0].(string)
	if !ok {
		return Condition{}, fmt.Errorf("%w: operator must be a string", ErrInvalidCondition)
	}
	op := strings.ToLower(strings.Join(strings.Fields(opStr), " "))
	if op == "<>" {
		op = OpNe
	}
	if !operators[op] {
		return Condition{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, opStr)
	}

	cond := Condition{Operator: op, Value: list[1]}
	switch op {
	case OpIn, OpNotIn:
		values, ok := list[1].([]any)
		if !ok || len(values) == 0 {
			return Condition{}, fmt.Errorf("%w: %s needs a non-empty list", ErrInvalidCondition, op)
		}
	case OpIs:
		s, _ := list[1].(string)
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "set" && s != "not set" {
			return Condition{}, fmt.Errorf("%w: is expects \"set\" or \"not set\"", ErrInvalidCondition)
		}
		cond.Value = s
	}
	return cond, nil
}
