package models

import "strings"

// ViewMode selects which materialized view family the backend reads from.
type ViewMode string

const (
	ViewStandard           ViewMode = "standard"
	ViewAttachmentFiltered ViewMode = "attachment_filtered"
)

// FilterKey identifies a single report fetch.
type FilterKey struct {
	ExperimentTracker string   `json:"experiment_tracker" yaml:"experiment_tracker"`
	Subject           string   `json:"subject" yaml:"subject"`
	GradeLevel        string   `json:"grade_level,omitempty" yaml:"grade_level,omitempty"`
	QuestionType      string   `json:"question_type,omitempty" yaml:"question_type,omitempty"`
	ViewMode          ViewMode `json:"view_mode,omitempty" yaml:"view_mode,omitempty"`
}

// Normalize trims whitespace and folds the default view mode to empty so that
// equivalent keys share one signature.
func (k FilterKey) Normalize() FilterKey {
	k.ExperimentTracker = strings.TrimSpace(k.ExperimentTracker)
	k.Subject = strings.TrimSpace(k.Subject)
	k.GradeLevel = strings.TrimSpace(k.GradeLevel)
	k.QuestionType = strings.TrimSpace(k.QuestionType)
	k.ViewMode = ViewMode(strings.TrimSpace(string(k.ViewMode)))
	if k.ViewMode == ViewStandard {
		k.ViewMode = ""
	}
	return k
}

// Signature returns the canonical string form of the key, e.g.
// "exp-A|ela|5|mcq|". Empty optional fields keep their slot. A literal "|"
// or "%" inside a field is written as "%7C" or "%25" so distinct keys never
// share a signature.
func (k FilterKey) Signature() string {
	n := k.Normalize()
	return strings.Join([]string{
		fieldEscaper.Replace(n.ExperimentTracker),
		fieldEscaper.Replace(n.Subject),
		fieldEscaper.Replace(n.GradeLevel),
		fieldEscaper.Replace(n.QuestionType),
		fieldEscaper.Replace(string(n.ViewMode)),
	}, "|")
}

var (
	fieldEscaper   = strings.NewReplacer("%", "%25", "|", "%7C")
	fieldUnescaper = strings.NewReplacer("%25", "%", "%7C", "|", "%7c", "|")
)

// ParseSignature reverses Signature. Missing trailing slots are treated as empty.
func ParseSignature(sig string) FilterKey {
	parts := strings.SplitN(sig, "|", 5)
	for len(parts) < 5 {
		parts = append(parts, "")
	}
	for i := range parts {
		parts[i] = fieldUnescaper.Replace(parts[i])
	}
	return FilterKey{
		ExperimentTracker: parts[0],
		Subject:           parts[1],
		GradeLevel:        parts[2],
		QuestionType:      parts[3],
		ViewMode:          ViewMode(parts[4]),
	}.Normalize()
}

// String renders the key for logs and tables.
func (k FilterKey) String() string {
	n := k.Normalize()
	s := n.ExperimentTracker + "/" + n.Subject
	if n.GradeLevel != "" {
		s += " grade=" + n.GradeLevel
	}
	if n.QuestionType != "" {
		s += " type=" + n.QuestionType
	}
	if n.ViewMode != "" {
		s += " view=" + string(n.ViewMode)
	}
	return s
}
