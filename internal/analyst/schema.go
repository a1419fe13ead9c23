package analyst

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// MaxPlanSteps bounds the length of any plan accepted from the model.
const MaxPlanSteps = 8

// planWire is the Plan JSON shape exchanged with the model.
type planWire struct {
	Plan []string `json:"plan" jsonschema:"minItems=1,maxItems=8"`
}

// replanWire is the Replan JSON shape. Which optional field is required
// depends on status and is checked after schema validation.
type replanWire struct {
	Status        string   `json:"status" jsonschema:"enum=done,enum=continue"`
	FinalResponse string   `json:"final_response,omitempty"`
	NewPlan       []string `json:"new_plan,omitempty" jsonschema:"maxItems=8"`
}

var (
	schemasOnce  sync.Once
	planSchema   *gojsonschema.Schema
	replanSchema *gojsonschema.Schema
	schemasErr   error
)

// reflectSchema derives a draft-07 JSON Schema from a Go type. Fields
// without omitempty are required and unknown properties are rejected.
func reflectSchema(v any) (*gojsonschema.Schema, error) {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = "http://json-schema.org/draft-07/schema#"

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
}

func loadSchemas() error {
	schemasOnce.Do(func() {
		if planSchema, schemasErr = reflectSchema(&planWire{}); schemasErr != nil {
			return
		}
		replanSchema, schemasErr = reflectSchema(&replanWire{})
	})
	return schemasErr
}

// decodeStrict checks that raw is exactly one bare JSON object (no fences,
// no surrounding prose), validates it against schema and decodes it into out.
func decodeStrict(raw string, schema func() *gojsonschema.Schema, out any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.New("empty output")
	}
	if strings.HasPrefix(trimmed, "```") {
		return errors.New("output is wrapped in a markdown fence")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return errors.New("output is not a bare JSON object")
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var obj json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if rest := strings.TrimSpace(trimmed[dec.InputOffset():]); rest != "" {
		return fmt.Errorf("unexpected text after JSON object: %q", truncate(rest, 40))
	}

	if err := loadSchemas(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	result, err := schema().Validate(gojsonschema.NewBytesLoader(obj))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("shape mismatch: %s", strings.Join(msgs, "; "))
	}

	d := json.NewDecoder(bytes.NewReader(obj))
	d.DisallowUnknownFields()
	if err := d.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func stepsFromWire(items []string, field string) (Plan, error) {
	plan := make(Plan, 0, len(items))
	for i, s := range items {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%s[%d] is empty", field, i)
		}
		plan = append(plan, Step(strings.TrimSpace(s)))
	}
	return plan, nil
}

// ParsePlan parses the Planner wire shape {"plan": [...]}.
func ParsePlan(raw string) (PlanResult, error) {
	var w planWire
	if err := decodeStrict(raw, func() *gojsonschema.Schema { return planSchema }, &w); err != nil {
		return PlanResult{}, err
	}
	steps, err := stepsFromWire(w.Plan, "plan")
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Steps: steps}, nil
}

// EncodePlan renders a plan in the Planner wire shape.
func EncodePlan(p Plan) (string, error) {
	b, err := json.Marshal(planWire{Plan: p.Strings()})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseReplan parses the Replanner wire shape. "done" requires a non-empty
// final_response, "continue" requires new_plan.
func ParseReplan(raw string) (ReplanResult, error) {
	var w replanWire
	if err := decodeStrict(raw, func() *gojsonschema.Schema { return replanSchema }, &w); err != nil {
		return nil, err
	}

	switch w.Status {
	case "done":
		if strings.TrimSpace(w.FinalResponse) == "" {
			return nil, errors.New(`status "done" requires a non-empty final_response`)
		}
		return Done{FinalResponse: strings.TrimSpace(w.FinalResponse)}, nil
	case "continue":
		if w.NewPlan == nil {
			return nil, errors.New(`status "continue" requires new_plan`)
		}
		steps, err := stepsFromWire(w.NewPlan, "new_plan")
		if err != nil {
			return nil, err
		}
		return Continue{NewPlan: steps}, nil
	default:
		return nil, fmt.Errorf("unknown status %q", w.Status)
	}
}

// EncodeReplan renders a decision in the Replanner wire shape.
func EncodeReplan(r ReplanResult) (string, error) {
	var w replanWire
	switch v := r.(type) {
	case Done:
		w = replanWire{Status: "done", FinalResponse: v.FinalResponse}
	case Continue:
		w = replanWire{Status: "continue", NewPlan: v.NewPlan.Strings()}
	default:
		return "", fmt.Errorf("unknown replan result %T", r)
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return runePrefix(s, n) + "..."
}
