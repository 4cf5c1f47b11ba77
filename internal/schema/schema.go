package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	compileOnce sync.Once
	compiled    map[models.PageType]*jsonschema.Schema
	compileErr  error
)

// ForPageType returns the JSON Schema (as a generic map) describing the
// extraction payload of a page type, or nil when the type has none.
func ForPageType(t models.PageType) map[string]any {
	switch t {
	case models.PageTypeBasicInfo:
		return basicInfoSchema()
	case models.PageTypeParentRecord:
		return parentRecordSchema()
	case models.PageTypeHealthEducation:
		return healthEducationSchema()
	default:
		return nil
	}
}

// Validate checks an extraction payload against the schema for its page type.
// Page types without a schema always validate.
func Validate(t models.PageType, data []byte) error {
	compileOnce.Do(compileAll)
	if compileErr != nil {
		return compileErr
	}
	s, ok := compiled[t]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s payload does not match schema: %w", t, err)
	}
	return nil
}

func compileAll() {
	compiled = make(map[models.PageType]*jsonschema.Schema)
	for _, t := range []models.PageType{models.PageTypeBasicInfo, models.PageTypeParentRecord, models.PageTypeHealthEducation} {
		b, err := json.Marshal(ForPageType(t))
		if err != nil {
			compileErr = fmt.Errorf("marshal schema %s: %w", t, err)
			return
		}
		name := string(t) + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema %s: %w", t, err)
			return
		}
		s, err := compiler.Compile(name)
		if err != nil {
			compileErr = fmt.Errorf("compile schema %s: %w", t, err)
			return
		}
		compiled[t] = s
	}
}

func basicInfoSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":       nullable("string"),
			"id_number":  nullable("string"),
			"birth_date": nullable("string"),
		},
	}
}

func parentRecordSchema() map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"題目":  map[string]any{"type": "string"},
			"類別":  nullable("string"),
			"結果":  map[string]any{"enum": []any{"是", "否", "未勾選", nil}},
			"是警訊": nullable("boolean"),
		},
		"required": []string{"題目"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"age_stage":       ageStageProp(),
			"visit_number":    visitNumberProp(),
			"record_date":     nullable("string"),
			"checklist_items": map[string]any{"type": "array", "items": item},
			"parent_notes":    nullable("string"),
		},
	}
}

func healthEducationSchema() map[string]any {
	assessment := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"主題":  map[string]any{"type": "string"},
			"已做到": nullable("boolean"),
			"未做到": nullable("boolean"),
		},
		"required": []string{"主題"},
	}
	guidanceItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"內容": map[string]any{"type": "string"},
			"已勾": nullable("boolean"),
		},
		"required": []string{"內容"},
	}
	group := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"主題": map[string]any{"type": "string"},
			"重點": nullable("string"),
			"項目": map[string]any{"type": "array", "items": guidanceItem},
		},
		"required": []string{"主題"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"age_stage":         ageStageProp(),
			"visit_number":      visitNumberProp(),
			"guidance_date":     nullable("string"),
			"parent_assessment": map[string]any{"type": "array", "items": assessment},
			"doctor_guidance":   map[string]any{"type": "array", "items": group},
			"hospital_code":     nullable("string"),
			"doctor_name":       nullable("string"),
			"relationship":      nullable("string"),
		},
	}
}

func nullable(typ string) map[string]any {
	return map[string]any{"type": []string{typ, "null"}}
}

func ageStageProp() map[string]any {
	return map[string]any{"type": []string{"string", "integer", "null"}}
}

func visitNumberProp() map[string]any {
	return map[string]any{"type": []string{"integer", "null"}, "minimum": 0}
}
