package analysis

import (
    "errors"
    "testing"
)

func TestParseToleratesFences(t *testing.T) {
    exp, err := Parse("```json\n{\"error_type\":\"TypeError\",\"simple_explanation\":\"a\",\"solution\":\"b\",\"learning_points\":[\"c\",\"d\"]}\n```")
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    if exp.ErrorType != "TypeError" || len(exp.LearningPoints) != 2 {
        t.Fatalf("unexpected: %+v", exp)
    }
}

func TestValidateRejects(t *testing.T) {
    cases := map[string]map[string]any{
        "missing_solution":   {"error_type": "E", "simple_explanation": "s"},
        "blank_error_type":   {"error_type": "  ", "simple_explanation": "s", "solution": "x"},
        "non_string_field":   {"error_type": 3.0, "simple_explanation": "s", "solution": "x"},
        "points_not_array":   {"error_type": "E", "simple_explanation": "s", "solution": "x", "learning_points": "scope"},
        "points_not_strings": {"error_type": "E", "simple_explanation": "s", "solution": "x", "learning_points": []any{1.0}},
    }
    for name, m := range cases {
        t.Run(name, func(t *testing.T) {
            if _, err := Validate(m); !errors.Is(err, ErrMalformed) {
                t.Fatalf("expected ErrMalformed, got %v", err)
            }
        })
    }
}

func TestValidateMissingListsFieldsInOrder(t *testing.T) {
    _, err := Validate(map[string]any{})
    if err == nil || err.Error() != "analysis: malformed explanation: missing error_type, simple_explanation, solution" {
        t.Fatalf("unexpected error: %v", err)
    }
}

func TestValidateKeepsFieldsVerbatim(t *testing.T) {
    exp, err := Validate(map[string]any{
        "error_type":         " NameError ",
        "simple_explanation": "x is not defined.\n",
        "solution":           "  define x first",
    })
    if err != nil {
        t.Fatalf("validate: %v", err)
    }
    if exp.ErrorType != " NameError " || exp.SimpleExplanation != "x is not defined.\n" || exp.Solution != "  define x first" {
        t.Fatalf("fields were altered: %+v", exp)
    }
}
