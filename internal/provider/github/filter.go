package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// eventFilter is a jq query that is evaluated on the JSON payload of a
// webhook event. Events for that the query evaluates to false are not
// forwarded.
type eventFilter struct {
	query *gojq.Query
}

func newEventFilter(jqQuery string) (*eventFilter, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, err
	}

	return &eventFilter{query: query}, nil
}

func (f *eventFilter) String() string {
	return f.query.String()
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errs []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errs
		}

		if err, isErr := res.(error); isErr {
			errs = append(errs, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		fmt.Fprintf(&result, "error %d: %s", i, err)
	}

	return result.String()
}

// Match returns true if the query evaluates to true for the JSON document
// payload.
// An error is returned if the query does not evaluate to exactly one bool
// value.
func (f *eventFilter) Match(ctx context.Context, payload []byte) (bool, error) {
	var evUn any

	if len(payload) == 0 {
		return false, errors.New("event payload is empty")
	}

	err := json.Unmarshal(payload, &evUn)
	if err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errs := goJQIterToSlice(f.query.RunWithContext(ctx, evUn))
	if len(errs) != 0 {
		return false, fmt.Errorf("json query returned errors, query: %q, errors: %s", f, errString(errs))
	}

	if len(result) != 1 {
		return false, fmt.Errorf("json query returned %d results, expected 1, query: %q, result: '%+v'", len(result), f, result)
	}

	val, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result[0], result[0], f,
		)
	}

	return val, nil
}
