// Package command maps spoken transcripts to session actions.
//
// Matching is case-insensitive substring search in a fixed priority order, so
// control words always win over dictation: saying "clear" while dictating code
// clears the buffer. That is a known limitation of the voice grammar.
package command

import "strings"

// Kind tags an Action.
type Kind int

const (
	Analyze Kind = iota + 1
	Clear
	RepeatExplanation
	AppendCodeLine
)

func (k Kind) String() string {
	switch k {
	case Analyze:
		return "analyze"
	case Clear:
		return "clear"
	case RepeatExplanation:
		return "repeat_explanation"
	case AppendCodeLine:
		return "append_code_line"
	default:
		return "unknown"
	}
}

// Action is one interpreted command. Text is only set for AppendCodeLine.
type Action struct {
	Kind Kind
	Text string
}

// Interpret turns a transcript into an Action. hasExplanation gates the
// "explain again" command; without one the phrase is dictated as code.
func Interpret(transcript string, hasExplanation bool) Action {
	lower := strings.ToLower(transcript)
	switch {
	case strings.Contains(lower, "analyze") || strings.Contains(lower, "help"):
		return Action{Kind: Analyze}
	case strings.Contains(lower, "clear"):
		return Action{Kind: Clear}
	case strings.Contains(lower, "explain again") && hasExplanation:
		return Action{Kind: RepeatExplanation}
	default:
		return Action{Kind: AppendCodeLine, Text: transcript}
	}
}
