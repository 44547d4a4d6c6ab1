package model

// AnswerKind tags the shape of a stored answer.
type AnswerKind string

const (
	AnswerKindSingle AnswerKind = "single"
	AnswerKindMulti  AnswerKind = "multi"
)

// Answer is the tagged union of a single selected option or a set of
// selected options for multi-choice questions. Exactly one of Value or
// Values is meaningful, depending on Kind.
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Value  string     `json:"value,omitempty"`
	Values []string   `json:"values,omitempty"`
}

// SingleAnswer builds a single-choice answer.
func SingleAnswer(value string) Answer {
	return Answer{Kind: AnswerKindSingle, Value: value}
}

// MultiAnswer builds a multi-choice answer.
func MultiAnswer(values ...string) Answer {
	return Answer{Kind: AnswerKindMulti, Values: values}
}

// IsEmpty reports whether no option was selected at all.
func (a Answer) IsEmpty() bool {
	switch a.Kind {
	case AnswerKindSingle:
		return a.Value == ""
	case AnswerKindMulti:
		return len(a.Values) == 0
	}
	return true
}
