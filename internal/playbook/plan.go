package playbook

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Terminal is the synthetic end marker of every plan.
const Terminal = "__end__"

// stepIDPattern keeps step ids usable as checkpoint file name components.
var stepIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// errorSuffix marks the checkpoint of a failed step.
const errorSuffix = "_error"

// Required top-level keys of a playbook document.
var requiredKeys = []string{"name", "steps", "edges"}

// Step is one declared step.
type Step struct {
	ID     string         `json:"id" yaml:"id"`
	Impl   string         `json:"impl" yaml:"impl"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Edge is one declared transition between steps.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Spec is a validated playbook document.
type Spec struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Plan is a compiled playbook ready for execution.
type Plan struct {
	spec      Spec
	entry     string
	index     map[string]int
	next      map[string]string
	synthetic []Edge
}

// Name returns the playbook name.
func (p *Plan) Name() string {
	return p.spec.Name
}

// Spec returns the original declarations.
func (p *Plan) Spec() Spec {
	return p.spec
}

// Entry returns the id of the first step to execute.
func (p *Plan) Entry() string {
	return p.entry
}

// Step returns the declaration of the step with the given id.
func (p *Plan) Step(id string) (Step, bool) {
	i, ok := p.index[id]
	if !ok {
		return Step{}, false
	}
	return p.spec.Steps[i], true
}

// Next returns the successor of a step along the primary walk: a step id
// or Terminal. It returns "" for unknown ids.
func (p *Plan) Next(id string) string {
	return p.next[id]
}

// Edges returns the declared edges followed by the synthetic edges to
// Terminal.
func (p *Plan) Edges() []Edge {
	out := make([]Edge, 0, len(p.spec.Edges)+len(p.synthetic))
	out = append(out, p.spec.Edges...)
	return append(out, p.synthetic...)
}

// StepIDs returns all step ids in declaration order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.spec.Steps))
	for i, s := range p.spec.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Walk returns the step ids visited from the entry to Terminal, in order.
func (p *Plan) Walk() []string {
	var ids []string
	for id := p.entry; id != Terminal && id != ""; id = p.next[id] {
		ids = append(ids, id)
	}
	return ids
}

// Parse decodes a YAML (or JSON) playbook document and compiles it.
func Parse(data []byte) (*Plan, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, specErr("", fmt.Sprintf("malformed document: %v", err))
	}
	if raw == nil {
		return nil, specErr("", "empty document")
	}
	return Compile(raw)
}

// Compile validates a decoded playbook document and builds its Plan.
// Every rejection is a *SpecError.
func Compile(raw map[string]any) (*Plan, error) {
	for _, k := range requiredKeys {
		if _, ok := raw[k]; !ok {
			return nil, specErr(k, "required key is missing")
		}
	}

	name, ok := raw["name"].(string)
	if !ok {
		return nil, specErr("name", "must be a string")
	}
	rawSteps, ok := raw["steps"].([]any)
	if !ok {
		return nil, specErr("steps", "must be a sequence")
	}
	rawEdges, ok := raw["edges"].([]any)
	if !ok {
		return nil, specErr("edges", "must be a sequence")
	}

	steps, err := decodeSteps(rawSteps)
	if err != nil {
		return nil, err
	}
	edges, err := decodeEdges(rawEdges)
	if err != nil {
		return nil, err
	}

	return build(Spec{Name: name, Steps: steps, Edges: edges})
}

// CompileSpec validates an already typed Spec, e.g. one built in code.
func CompileSpec(spec Spec) (*Plan, error) {
	raw := map[string]any{
		"name":  spec.Name,
		"steps": make([]any, len(spec.Steps)),
		"edges": make([]any, len(spec.Edges)),
	}
	for i, s := range spec.Steps {
		m := map[string]any{"id": s.ID, "impl": s.Impl}
		if s.Params != nil {
			m["params"] = s.Params
		}
		raw["steps"].([]any)[i] = m
	}
	for i, e := range spec.Edges {
		raw["edges"].([]any)[i] = map[string]any{"from": e.From, "to": e.To}
	}
	return Compile(raw)
}

func decodeSteps(rawSteps []any) ([]Step, error) {
	if len(rawSteps) == 0 {
		return nil, specErr("steps", "at least one step is required")
	}
	seen := make(map[string]bool, len(rawSteps))
	steps := make([]Step, 0, len(rawSteps))
	for i, rs := range rawSteps {
		path := fmt.Sprintf("steps[%d]", i)
		m, ok := asMap(rs)
		if !ok {
			return nil, specErr(path, "must be a mapping")
		}
		id, ok := m["id"].(string)
		if !ok || id == "" {
			return nil, specErr(path+".id", "must be a non-empty string")
		}
		if id == Terminal {
			return nil, specErr(path+".id", fmt.Sprintf("%q is reserved", Terminal))
		}
		if err := checkStepID(path+".id", id); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, specErr(path+".id", fmt.Sprintf("duplicate step id %q", id))
		}
		impl, ok := m["impl"].(string)
		if !ok || impl == "" {
			return nil, specErr(path+".impl", "must be a non-empty string")
		}
		var params map[string]any
		if rp, present := m["params"]; present && rp != nil {
			params, ok = asMap(rp)
			if !ok {
				return nil, specErr(path+".params", "must be a mapping")
			}
		}
		if params == nil {
			params = map[string]any{}
		}
		seen[id] = true
		steps = append(steps, Step{ID: id, Impl: impl, Params: params})
	}
	return steps, nil
}

// checkStepID rejects ids that cannot name a checkpoint inside the run
// directory, or that collide with the checkpoint of a failed step.
func checkStepID(path, id string) error {
	if !stepIDPattern.MatchString(id) || id == "." || id == ".." {
		return specErr(path, fmt.Sprintf("%q must contain only letters, digits, '_', '.' and '-'", id))
	}
	if strings.HasSuffix(id, errorSuffix) {
		return specErr(path, fmt.Sprintf("%q must not end in %q", id, errorSuffix))
	}
	return nil
}

func decodeEdges(rawEdges []any) ([]Edge, error) {
	edges := make([]Edge, 0, len(rawEdges))
	for i, re := range rawEdges {
		path := fmt.Sprintf("edges[%d]", i)
		m, ok := asMap(re)
		if !ok {
			return nil, specErr(path, "must be a mapping")
		}
		from, okFrom := m["from"].(string)
		to, okTo := m["to"].(string)
		if !okFrom || !okTo {
			return nil, specErr(path, "requires string 'from' and 'to'")
		}
		edges = append(edges, Edge{From: from, To: to})
	}
	return edges, nil
}

// build checks edge endpoints, derives the primary walk and rejects cycles.
func build(spec Spec) (*Plan, error) {
	p := &Plan{
		spec:  spec,
		entry: spec.Steps[0].ID,
		index: make(map[string]int, len(spec.Steps)),
		next:  make(map[string]string, len(spec.Steps)),
	}
	for i, s := range spec.Steps {
		p.index[s.ID] = i
	}

	for i, e := range spec.Edges {
		_, fromOK := p.index[e.From]
		_, toOK := p.index[e.To]
		if !fromOK || !toOK {
			return nil, specErr(fmt.Sprintf("edges[%d]", i),
				fmt.Sprintf("references undeclared step: %s -> %s", e.From, e.To))
		}
		if _, set := p.next[e.From]; !set {
			p.next[e.From] = e.To
		}
	}

	for _, s := range spec.Steps {
		if _, set := p.next[s.ID]; !set {
			p.next[s.ID] = Terminal
			p.synthetic = append(p.synthetic, Edge{From: s.ID, To: Terminal})
		}
	}

	visited := make(map[string]bool, len(spec.Steps))
	for id := p.entry; id != Terminal; id = p.next[id] {
		if visited[id] {
			return nil, specErr("edges", fmt.Sprintf("cycle through step %q never reaches the end", id))
		}
		visited[id] = true
	}

	return p, nil
}

// asMap accepts both map[string]any and the map[any]any form produced for
// mappings with non-string keys.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return maps.Clone(m), true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[fmt.Sprint(k)] = e
		}
		return out, true
	}
	return nil, false
}
