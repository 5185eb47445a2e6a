package condition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/template"
)

var (
	ErrUnknownOperator = errors.New("unknown condition operator")
	ErrUnknownLogic    = errors.New("unknown condition combinator")
)

// Node evaluates a condition list. A false result halts traversal below the node.
type Node struct{}

func (n *Node) Execute(_ context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	config, err := protocol.Config[*models.ConditionConfig](node)
	if err != nil {
		return false, err
	}

	return Evaluate(config, execution.Variables)
}

// Evaluate combines every predicate with the configured operator.
// An empty list is true under "and" and false under "or".
func Evaluate(config *models.ConditionConfig, variables map[string]any) (bool, error) {
	logic := config.Operator
	if logic == "" {
		logic = models.LogicAnd
	}

	if logic != models.LogicAnd && logic != models.LogicOr {
		return false, fmt.Errorf("%w: %q", ErrUnknownLogic, logic)
	}

	for _, condition := range config.Conditions {
		ok, err := evaluateOne(condition, variables)
		if err != nil {
			return false, err
		}

		if logic == models.LogicAnd && !ok {
			return false, nil
		}

		if logic == models.LogicOr && ok {
			return true, nil
		}
	}

	return logic == models.LogicAnd, nil
}

func evaluateOne(condition models.Condition, variables map[string]any) (bool, error) {
	actual, found := template.Lookup(variables, condition.Field)
	if !found {
		actual = nil
	}

	switch condition.Operator {
	case models.OperatorEquals:
		return equal(actual, condition.Value), nil
	case models.OperatorNotEquals:
		return !equal(actual, condition.Value), nil
	case models.OperatorGreaterThan:
		cmp, ok := compare(actual, condition.Value)
		return ok && cmp > 0, nil
	case models.OperatorLessThan:
		cmp, ok := compare(actual, condition.Value)
		return ok && cmp < 0, nil
	case models.OperatorContains:
		return contains(actual, condition.Value), nil
	case models.OperatorStartsWith:
		return actual != nil && strings.HasPrefix(template.Stringify(actual), template.Stringify(condition.Value)), nil
	case models.OperatorEndsWith:
		return actual != nil && strings.HasSuffix(template.Stringify(actual), template.Stringify(condition.Value)), nil
	case models.OperatorIsEmpty:
		return isEmpty(actual), nil
	case models.OperatorIsNotEmpty:
		return !isEmpty(actual), nil
	default:
		return false, fmt.Errorf("%w: %q on field %s", ErrUnknownOperator, condition.Operator, condition.Field)
	}
}

// equal compares as numbers only when at least one operand is not a string.
func equal(a, b any) bool {
	if !isString(a) || !isString(b) {
		if x, ok := toNumber(a); ok {
			if y, ok := toNumber(b); ok {
				return x == y
			}
		}
	}

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if reflect.DeepEqual(a, b) {
		return true
	}

	if isScalar(a) && isScalar(b) {
		return template.Stringify(a) == template.Stringify(b)
	}

	return false
}

// compare orders numbers numerically and strings lexically. Mixed or missing operands do not compare.
func compare(a, b any) (int, bool) {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	x, okA := a.(string)
	y, okB := b.(string)

	if okA && okB {
		return strings.Compare(x, y), true
	}

	return 0, false
}

func contains(container, element any) bool {
	if container == nil {
		return false
	}

	if s, ok := container.(string); ok {
		return strings.Contains(s, template.Stringify(element))
	}

	value := reflect.ValueOf(container)

	switch value.Kind() {
	case reflect.Slice, reflect.Array:
		for i := range value.Len() {
			if equal(value.Index(i).Interface(), element) {
				return true
			}
		}
	case reflect.Map:
		if value.Type().Key().Kind() == reflect.String {
			return value.MapIndex(reflect.ValueOf(template.Stringify(element)).Convert(value.Type().Key())).IsValid()
		}
	}

	return false
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	if s, ok := value.(string); ok {
		return s == ""
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len() == 0
	default:
		return false
	}
}

func isString(value any) bool {
	_, ok := value.(string)
	return ok
}

func isScalar(value any) bool {
	switch value.(type) {
	case string, bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}
