package pipeline

import "encoding/json"

// Draft carries the subject and the per-stage results accumulated as the
// pipeline runs. Stages read earlier results from it and record their own.
type Draft struct {
	SubjectKey string
	Results    map[string]json.RawMessage
}

// NewDraft constructs an empty draft for the given normalized subject key.
func NewDraft(subjectKey string) *Draft {
	return &Draft{
		SubjectKey: subjectKey,
		Results:    map[string]json.RawMessage{},
	}
}

// Result returns the recorded output of a stage, or false when the stage
// has not produced one.
func (d *Draft) Result(stage string) (json.RawMessage, bool) {
	if d == nil || d.Results == nil {
		return nil, false
	}
	result, ok := d.Results[stage]
	return result, ok
}

// SetResult records a stage output on the draft.
func (d *Draft) SetResult(stage string, result json.RawMessage) {
	if d.Results == nil {
		d.Results = map[string]json.RawMessage{}
	}
	d.Results[stage] = result
}

// Clone returns a deep copy safe to hand to other goroutines.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	clone := &Draft{
		SubjectKey: d.SubjectKey,
		Results:    make(map[string]json.RawMessage, len(d.Results)),
	}
	for stage, result := range d.Results {
		buf := make(json.RawMessage, len(result))
		copy(buf, result)
		clone.Results[stage] = buf
	}
	return clone
}
