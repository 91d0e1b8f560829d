package extraction

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// ResponseSchema describes the JSON the LLM must return. Every call builds a
// fresh tree because a resolved schema may not share nodes.
func ResponseSchema() *jsonschema.Schema {
	entity := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name", "entityType", "description", "confidence", "isNew"},
		Properties: map[string]*jsonschema.Schema{
			"name":        {Type: "string", MinLength: jsonschema.Ptr(1)},
			"entityType":  {Type: "string"},
			"description": {Type: "string"},
			"confidence":  confidenceSchema(),
			"isNew":       {Type: "boolean"},
		},
	}
	fact := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"subject", "predicate", "object", "objectIsEntity", "confidence"},
		Properties: map[string]*jsonschema.Schema{
			"subject":        {Type: "string"},
			"predicate":      {Type: "string", MinLength: jsonschema.Ptr(1)},
			"object":         {Type: "string", MinLength: jsonschema.Ptr(1)},
			"objectIsEntity": {Type: "boolean"},
			"confidence":     confidenceSchema(),
		},
	}
	return &jsonschema.Schema{
		Title:    "card_knowledge",
		Type:     "object",
		Required: []string{"entities", "facts"},
		Properties: map[string]*jsonschema.Schema{
			"entities": {Type: "array", Items: entity},
			"facts":    {Type: "array", Items: fact},
		},
	}
}

func confidenceSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:    "number",
		Minimum: jsonschema.Ptr(0.0),
		Maximum: jsonschema.Ptr(1.0),
	}
}

type llmEntity struct {
	Name        string  `json:"name"`
	EntityType  string  `json:"entityType"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	IsNew       bool    `json:"isNew"`
}

type llmFact struct {
	Subject        string  `json:"subject"`
	Predicate      string  `json:"predicate"`
	Object         string  `json:"object"`
	ObjectIsEntity bool    `json:"objectIsEntity"`
	Confidence     float64 `json:"confidence"`
}

type llmOutput struct {
	Entities []llmEntity `json:"entities"`
	Facts    []llmFact   `json:"facts"`
}
