package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlWorkflow mirrors the workflow document structure.
type yamlWorkflow struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Version     string         `yaml:"version"`
	Variables   map[string]any `yaml:"variables"`
	OnError     string         `yaml:"on_error"`
	Triggers    []yamlTrigger  `yaml:"triggers"`
	Steps       []yamlStep     `yaml:"steps"`
}

type yamlTrigger struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

type yamlStep struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	Action          string         `yaml:"action"`
	Parameters      map[string]any `yaml:"parameters"`
	DependsOn       []string       `yaml:"depends_on"`
	Condition       string         `yaml:"condition"`
	ContinueOnError bool           `yaml:"continue_on_error"`
	Timeout         string         `yaml:"timeout"`
	Retry           *yamlRetry     `yaml:"retry"`
}

type yamlRetry struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	Backoff      string  `yaml:"backoff"`
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

// Parse converts a YAML workflow document into a Workflow definition.
// It fails with a *ParseError on malformed syntax, unknown keys, unknown
// value types, or missing required fields (id, name, steps). Graph-level
// problems such as dangling dependencies and cycles are reported by
// Validate, not here.
func Parse(data []byte) (*Workflow, error) {
	// First pass keeps the node tree so errors can carry line numbers.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Message: "invalid YAML syntax", Err: err}
	}

	// Strict decode: a mistyped key (say "retries:" for "retry:") must not
	// silently drop the field it was meant to set.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc yamlWorkflow
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ParseError{Message: "failed to decode workflow structure", Err: err}
	}

	if doc.ID == "" {
		return nil, &ParseError{Message: "workflow 'id' field is required", Line: fieldLine(&root, "id")}
	}
	if doc.Name == "" {
		return nil, &ParseError{Message: "workflow 'name' field is required", Line: fieldLine(&root, "name")}
	}
	if len(doc.Steps) == 0 {
		return nil, &ParseError{Message: "workflow must contain at least one step", Line: fieldLine(&root, "steps")}
	}

	policy := ErrorPolicyAbort
	switch doc.OnError {
	case "", string(ErrorPolicyAbort):
	case string(ErrorPolicyContinue):
		policy = ErrorPolicyContinue
	default:
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid on_error policy %q: must be 'abort' or 'continue'", doc.OnError),
			Line:    fieldLine(&root, "on_error"),
		}
	}

	w := &Workflow{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Version:     doc.Version,
		Variables:   doc.Variables,
		OnError:     policy,
		CreatedAt:   time.Now(),
	}

	for _, t := range doc.Triggers {
		typ := TriggerType(t.Type)
		if !typ.Valid() {
			return nil, &ParseError{
				Message: fmt.Sprintf("invalid trigger type %q: must be one of: manual, schedule, webhook, event", t.Type),
				Line:    fieldLine(&root, "triggers"),
			}
		}
		w.Triggers = append(w.Triggers, Trigger{Type: typ, Config: t.Config})
	}

	seen := make(map[string]bool, len(doc.Steps))
	for i := range doc.Steps {
		step, err := parseStep(&doc.Steps[i], stepLine(&root, i))
		if err != nil {
			return nil, err
		}
		if seen[step.ID] {
			return nil, &ParseError{
				Message: fmt.Sprintf("duplicate step id %q", step.ID),
				Line:    stepLine(&root, i),
				StepID:  step.ID,
			}
		}
		seen[step.ID] = true
		w.Steps = append(w.Steps, step)
	}

	w.index()
	return w, nil
}

// ParseFile reads a workflow document from disk and delegates to Parse.
func ParseFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return Parse(data)
}

// validStepID reports whether id can be referenced from condition
// expressions and {{steps.<id>...}} placeholders: a letter or underscore
// followed by letters, digits, or underscores.
func validStepID(id string) bool {
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return len(id) > 0
}

// parseStep converts one YAML step entry into a Step.
func parseStep(s *yamlStep, line int) (*Step, error) {
	if s.ID == "" {
		return nil, &ParseError{Message: "step 'id' field is required and must be non-empty", Line: line}
	}
	if !validStepID(s.ID) {
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid step id %q: must start with a letter or underscore and contain only letters, digits, and underscores", s.ID),
			Line:    line,
			StepID:  s.ID,
		}
	}
	if s.Action == "" {
		return nil, &ParseError{Message: "step 'action' field is required and must be non-empty", Line: line, StepID: s.ID}
	}

	step := &Step{
		ID:              s.ID,
		Name:            s.Name,
		Action:          s.Action,
		Parameters:      s.Parameters,
		DependsOn:       s.DependsOn,
		Condition:       s.Condition,
		ContinueOnError: s.ContinueOnError,
	}

	if s.Timeout != "" {
		timeout, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, &ParseError{
				Message: fmt.Sprintf("invalid timeout %q: must be a Go duration (e.g. '30s', '5m')", s.Timeout),
				Line:    line,
				StepID:  s.ID,
				Err:     err,
			}
		}
		step.Timeout = timeout
	}

	if s.Retry != nil {
		retry, err := parseRetry(s.Retry, s.ID, line)
		if err != nil {
			return nil, err
		}
		step.Retry = retry
	}

	return step, nil
}

// parseRetry validates retry configuration.
func parseRetry(r *yamlRetry, stepID string, line int) (*RetryPolicy, error) {
	if r.MaxAttempts <= 0 {
		return nil, &ParseError{
			Message: "retry.max_attempts must be a positive integer",
			Line:    line,
			StepID:  stepID,
		}
	}

	policy := &RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Multiplier:  r.Multiplier,
	}

	switch r.Backoff {
	case "", string(BackoffConstant):
		policy.Backoff = BackoffConstant
	case string(BackoffLinear):
		policy.Backoff = BackoffLinear
	case string(BackoffExponential):
		policy.Backoff = BackoffExponential
	default:
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid retry.backoff %q: must be one of: constant, linear, exponential", r.Backoff),
			Line:    line,
			StepID:  stepID,
		}
	}

	if r.InitialDelay != "" {
		delay, err := time.ParseDuration(r.InitialDelay)
		if err != nil {
			return nil, &ParseError{
				Message: fmt.Sprintf("invalid retry.initial_delay %q: must be a Go duration", r.InitialDelay),
				Line:    line,
				StepID:  stepID,
				Err:     err,
			}
		}
		policy.InitialDelay = delay
	}

	if r.MaxDelay != "" {
		delay, err := time.ParseDuration(r.MaxDelay)
		if err != nil {
			return nil, &ParseError{
				Message: fmt.Sprintf("invalid retry.max_delay %q: must be a Go duration", r.MaxDelay),
				Line:    line,
				StepID:  stepID,
				Err:     err,
			}
		}
		policy.MaxDelay = delay
	}

	return policy, nil
}

// fieldLine finds the line number of a top-level field in the document.
func fieldLine(root *yaml.Node, field string) int {
	mapping := documentMapping(root)
	if mapping == nil {
		return 0
	}
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		if mapping.Content[i].Value == field {
			return mapping.Content[i].Line
		}
	}
	return 0
}

// stepLine finds the line number of the i-th entry in the steps sequence.
func stepLine(root *yaml.Node, index int) int {
	mapping := documentMapping(root)
	if mapping == nil {
		return 0
	}
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		if key.Value == "steps" && value.Kind == yaml.SequenceNode && index < len(value.Content) {
			return value.Content[index].Line
		}
	}
	return 0
}

// documentMapping returns the root mapping node of a parsed document.
func documentMapping(root *yaml.Node) *yaml.Node {
	if root == nil || root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	node := root.Content[0]
	if node.Kind != yaml.MappingNode {
		return nil
	}
	return node
}
