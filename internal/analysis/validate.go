package analysis

import (
    "encoding/json"
    "errors"
    "fmt"
    "sort"
    "strings"

    "codetutor/voicedebug/internal/types"
)

// ErrMalformed means the answer does not match the Explanation schema.
var ErrMalformed = errors.New("analysis: malformed explanation")

// Parse decodes a model answer loosely and validates it. Code fences around
// the JSON are tolerated.
func Parse(content string) (types.Explanation, error) {
    raw := strings.TrimSpace(content)
    raw = strings.TrimPrefix(raw, "```json")
    raw = strings.TrimPrefix(raw, "```")
    raw = strings.TrimSuffix(raw, "```")
    var m map[string]any
    if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &m); err != nil {
        return types.Explanation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
    }
    return Validate(m)
}

// Validate checks the required fields. learning_points may be missing or
// empty but must hold only strings when present.
func Validate(m map[string]any) (types.Explanation, error) {
    var e types.Explanation
    var missing []string
    for key, dst := range map[string]*string{
        "error_type":         &e.ErrorType,
        "simple_explanation": &e.SimpleExplanation,
        "solution":           &e.Solution,
    } {
        s := toString(m[key])
        if strings.TrimSpace(s) == "" {
            missing = append(missing, key)
            continue
        }
        *dst = s
    }
    if len(missing) > 0 {
        sort.Strings(missing)
        return types.Explanation{}, fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
    }

    e.LearningPoints = []string{}
    switch lp := m["learning_points"].(type) {
    case nil:
    case []any:
        for i, v := range lp {
            s, ok := v.(string)
            if !ok {
                return types.Explanation{}, fmt.Errorf("%w: learning_points[%d] is not a string", ErrMalformed, i)
            }
            e.LearningPoints = append(e.LearningPoints, s)
        }
    default:
        return types.Explanation{}, fmt.Errorf("%w: learning_points is not an array", ErrMalformed)
    }
    return e, nil
}

func toString(v any) string {
    if v == nil {
        return ""
    }
    if s, ok := v.(string); ok {
        return s
    }
    return ""
}
