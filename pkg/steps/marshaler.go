package steps

import (
	"encoding/json"
	"sort"
)

// stepFactories maps the "name" discriminator to a constructor for the
// matching step shape. This is the single source of truth for the step
// vocabulary on the wire.
var stepFactories = map[string]func() Step{
	"domain":       func() Step { return &DomainStep{} },
	"filter":       func() Step { return &FilterStep{} },
	"select":       func() Step { return &SelectStep{} },
	"delete":       func() Step { return &DeleteStep{} },
	"rename":       func() Step { return &RenameStep{} },
	"sort":         func() Step { return &SortStep{} },
	"top":          func() Step { return &TopStep{} },
	"aggregate":    func() Step { return &AggregateStep{} },
	"argmax":       func() Step { return &ArgmaxStep{} },
	"argmin":       func() Step { return &ArgminStep{} },
	"concatenate":  func() Step { return &ConcatenateStep{} },
	"convert":      func() Step { return &ConvertStep{} },
	"cumsum":       func() Step { return &CumSumStep{} },
	"custom":       func() Step { return &CustomStep{} },
	"dateextract":  func() Step { return &DateExtractStep{} },
	"duplicate":    func() Step { return &DuplicateStep{} },
	"duration":     func() Step { return &DurationStep{} },
	"evolution":    func() Step { return &EvolutionStep{} },
	"fillna":       func() Step { return &FillnaStep{} },
	"formula":      func() Step { return &FormulaStep{} },
	"fromdate":     func() Step { return &FromDateStep{} },
	"ifthenelse":   func() Step { return &IfThenElseStep{} },
	"join":         func() Step { return &JoinStep{} },
	"append":       func() Step { return &AppendStep{} },
	"lowercase":    func() Step { return &LowercaseStep{} },
	"uppercase":    func() Step { return &UppercaseStep{} },
	"percentage":   func() Step { return &PercentageStep{} },
	"pivot":        func() Step { return &PivotStep{} },
	"unpivot":      func() Step { return &UnpivotStep{} },
	"rank":         func() Step { return &RankStep{} },
	"replace":      func() Step { return &ReplaceStep{} },
	"rollup":       func() Step { return &RollupStep{} },
	"split":        func() Step { return &SplitStep{} },
	"statistics":   func() Step { return &StatisticsStep{} },
	"substring":    func() Step { return &SubstringStep{} },
	"text":         func() Step { return &TextStep{} },
	"todate":       func() Step { return &ToDateStep{} },
	"uniquegroups": func() Step { return &UniqueGroupsStep{} },
	"waterfall":    func() Step { return &WaterfallStep{} },
}

// StepNames returns every step kind of the vocabulary, sorted.
func StepNames() []string {
	names := make([]string, 0, len(stepFactories))
	for name := range stepFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalStep decodes a single step object, dispatching on its "name"
// discriminator.
func UnmarshalStep(b []byte) (Step, error) {
	head := struct {
		Name string `json:"name"`
	}{}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, NewUnmarshalError("step", string(b))
	}
	if head.Name == "" {
		return nil, NewUnmarshalError("step", string(b))
	}

	factory, ok := stepFactories[head.Name]
	if !ok {
		return nil, NewUnknownStepError(head.Name)
	}

	step := factory()
	if err := json.Unmarshal(b, step); err != nil {
		return nil, NewUnmarshalError(head.Name+" step", string(b))
	}

	return step, nil
}

// MarshalStep encodes a step with its "name" discriminator included.
func MarshalStep(s Step) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	fields["name"] = s.Name()

	return json.Marshal(fields)
}

func (p *Pipeline) UnmarshalJSON(b []byte) error {
	// accept both a bare step list and a {"steps": [...]} wrapper
	raws := []json.RawMessage{}
	if err := json.Unmarshal(b, &raws); err != nil {
		wrapper := struct {
			Steps []json.RawMessage `json:"steps"`
		}{}
		if err := json.Unmarshal(b, &wrapper); err != nil || wrapper.Steps == nil {
			return NewUnmarshalError("pipeline", string(b))
		}
		raws = wrapper.Steps
	}

	pipeline := make(Pipeline, 0, len(raws))
	for _, raw := range raws {
		step, err := UnmarshalStep(raw)
		if err != nil {
			return err
		}
		pipeline = append(pipeline, step)
	}

	*p = pipeline

	return nil
}

func (p Pipeline) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(p))
	for _, step := range p {
		b, err := MarshalStep(step)
		if err != nil {
			return nil, err
		}
		raws = append(raws, b)
	}
	return json.Marshal(raws)
}

func (p Pipeline) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}

// UnmarshalJSON decodes an ifthenelse step, recognizing a nested
// ifthenelse object in the else branch (else-if chains).
func (s *IfThenElseStep) UnmarshalJSON(b []byte) error {
	shadow := struct {
		NewColumn string          `json:"newColumn"`
		If        Condition       `json:"if"`
		Then      any             `json:"then"`
		Else      json.RawMessage `json:"else"`
	}{}
	if err := json.Unmarshal(b, &shadow); err != nil {
		return NewUnmarshalError("ifthenelse step", string(b))
	}

	s.NewColumn = shadow.NewColumn
	s.If = shadow.If
	s.Then = shadow.Then
	s.Else = nil

	if len(shadow.Else) == 0 {
		return nil
	}

	// a nested else-if branch is an object carrying an "if" key
	branch := map[string]json.RawMessage{}
	if err := json.Unmarshal(shadow.Else, &branch); err == nil {
		if _, nested := branch["if"]; nested {
			inner := &IfThenElseStep{}
			if err := json.Unmarshal(shadow.Else, inner); err != nil {
				return err
			}
			s.Else = inner
			return nil
		}
	}

	var value any
	if err := json.Unmarshal(shadow.Else, &value); err != nil {
		return NewUnmarshalError("ifthenelse else branch", string(shadow.Else))
	}
	s.Else = value

	return nil
}
