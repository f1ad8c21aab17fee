package analysis

import (
    "fmt"

    "codetutor/voicedebug/internal/orchestrator"
)

const systemPrompt = "You are a patient programming tutor. Reply with a single JSON object only."

// BuildPrompt renders the tutoring instructions for one request.
func BuildPrompt(in orchestrator.AnalysisRequest) string {
    level := in.SkillLevel
    if level == "" {
        level = "beginner"
    }
    return fmt.Sprintf(`You are a friendly programming tutor helping a %[1]s programmer.

Analyze this %[2]s code and identify any errors or potential issues:

`+"```"+`%[2]s
%[3]s
`+"```"+`

Please provide:
1. A clear identification of any errors or issues
2. A beginner-friendly explanation in simple terms
3. Step-by-step solution with code examples
4. Key learning points to remember

Focus on being encouraging and educational rather than just providing fixes.
If the code looks correct, explain what it does and suggest improvements.

Respond with a JSON object with these keys:
"error_type" (string, type of error or "No errors found" if the code is correct),
"simple_explanation" (string, beginner-friendly explanation of the issue),
"solution" (string, step-by-step solution with code examples),
"learning_points" (array of strings, key concepts to remember).`, level, in.Language, in.Code)
}
