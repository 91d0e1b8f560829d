package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core/common"
	"github.com/agenthands/cardgraph/internal/core/infer"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/llm"
)

const defaultLLMConfidence = 0.7

// Result is what one LLM extraction produced. Err is set whenever something
// went wrong, including when a partial result was salvaged.
type Result struct {
	Entities  []model.ExtractedEntity
	Facts     []model.ExtractedFact
	Validated bool
	Err       error
}

func (r Result) Len() int {
	return len(r.Entities) + len(r.Facts)
}

type Extractor struct {
	LLM         llm.Caller
	Prompt      string
	MaxEntities int
	MaxDomains  int
	Timeout     time.Duration

	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

func NewExtractor(caller llm.Caller, prompt string, cfg config.ExtractionConfig, timeout time.Duration) (*Extractor, error) {
	schema := ResponseSchema()
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve extraction schema: %w", err)
	}
	if prompt == "" {
		prompt = config.DefaultPrompts().Extraction
	}
	return &Extractor{
		LLM:         caller,
		Prompt:      prompt,
		MaxEntities: cfg.MaxPromptEntities,
		MaxDomains:  cfg.MaxPromptDomains,
		Timeout:     timeout,
		schema:      schema,
		resolved:    resolved,
	}, nil
}

// ExtractWithLLM asks the LLM for entities and facts in card. It never
// returns an error directly: failures leave an empty Result with Err set.
func (e *Extractor) ExtractWithLLM(ctx context.Context, card model.Card, existing []model.Entity, domains []model.Domain) Result {
	empty := Result{Entities: []model.ExtractedEntity{}, Facts: []model.ExtractedFact{}}

	resp := e.LLM.Call(ctx, llm.Request{
		Prompt:  e.buildPrompt(card, existing, domains),
		Schema:  e.schema,
		Timeout: e.Timeout,
	})
	if !resp.Success {
		empty.Err = fmt.Errorf("llm extraction failed: %s", resp.Error)
		return empty
	}

	out, validated, err := e.decode(resp.Content)
	if out == nil {
		empty.Err = err
		return empty
	}

	res := convert(*out, card)
	res.Validated = validated
	res.Err = err
	return res
}

// decode validates content against the schema. When that fails it falls back
// to lenient parsing and reports the validation error alongside the output.
func (e *Extractor) decode(content string) (*llmOutput, bool, error) {
	raw, ok := common.ExtractJSONObject(content)
	var validationErr error
	if ok {
		var instance any
		if err := json.Unmarshal([]byte(raw), &instance); err != nil {
			validationErr = fmt.Errorf("llm response is not valid JSON: %w", err)
		} else if err := e.resolved.Validate(instance); err != nil {
			validationErr = fmt.Errorf("llm response failed schema validation: %w", err)
		} else {
			var out llmOutput
			if err := json.Unmarshal([]byte(raw), &out); err == nil {
				return &out, true, nil
			}
		}
	} else {
		validationErr = errors.New("llm response contains no JSON object")
	}

	out, err := common.ParseJSON[llmOutput](content)
	if err != nil {
		return nil, false, fmt.Errorf("%w; best-effort parse failed: %v", validationErr, err)
	}
	return &out, false, validationErr
}

func (e *Extractor) buildPrompt(card model.Card, existing []model.Entity, domains []model.Domain) string {
	var known strings.Builder
	for i, ent := range existing {
		if e.MaxEntities > 0 && i >= e.MaxEntities {
			break
		}
		fmt.Fprintf(&known, "- %s (%s)\n", ent.Name, ent.EntityType)
	}
	if known.Len() == 0 {
		known.WriteString("(none)\n")
	}

	var names []string
	for i, d := range domains {
		if e.MaxDomains > 0 && i >= e.MaxDomains {
			break
		}
		names = append(names, d.Name)
	}
	domainList := "(none)"
	if len(names) > 0 {
		domainList = strings.Join(names, ", ")
	}

	return fmt.Sprintf(e.Prompt, card.Title, card.Description, strings.TrimRight(known.String(), "\n"), domainList)
}

func convert(out llmOutput, card model.Card) Result {
	res := Result{Entities: []model.ExtractedEntity{}, Facts: []model.ExtractedFact{}}

	for _, le := range out.Entities {
		name := strings.TrimSpace(le.Name)
		if name == "" {
			continue
		}
		res.Entities = append(res.Entities, model.ExtractedEntity{
			Name:        name,
			EntityType:  infer.Resolve(name, le.EntityType),
			Description: strings.TrimSpace(le.Description),
			Confidence:  clampConfidence(le.Confidence),
			SourceField: model.FieldDescription,
			Method:      model.MethodLLM,
		})
	}

	for _, lf := range out.Facts {
		predicate := model.NormalizePredicate(lf.Predicate)
		object := strings.TrimSpace(lf.Object)
		if predicate == "" || object == "" {
			continue
		}
		subject := strings.TrimSpace(lf.Subject)
		if isCardReference(subject, card) {
			subject = ""
		}
		objectType := ""
		if !lf.ObjectIsEntity {
			objectType = "text"
		}
		res.Facts = append(res.Facts, model.ExtractedFact{
			Subject:        subject,
			Predicate:      predicate,
			Object:         object,
			ObjectIsEntity: lf.ObjectIsEntity,
			ObjectType:     objectType,
			Confidence:     clampConfidence(lf.Confidence),
			SourceField:    model.FieldDescription,
			Method:         model.MethodLLM,
		})
	}
	return res
}

func isCardReference(subject string, card model.Card) bool {
	switch strings.ToLower(subject) {
	case "", "card", "this card", "the card":
		return true
	}
	return strings.EqualFold(subject, strings.TrimSpace(card.Title))
}

func clampConfidence(c float64) float64 {
	switch {
	case c <= 0:
		return defaultLLMConfidence
	case c > 1:
		return 1
	default:
		return c
	}
}
