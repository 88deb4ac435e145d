package detection

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// Pipeline runs the three detection stages over a document and
// resolves surviving spans into entities. Output is deterministic
// given the same text and ModelVersion.
type Pipeline struct {
	NER          NERModel
	ModelVersion string
	Logger       *slog.Logger
}

// NewPipeline builds a Pipeline. ner may be a NoopNERModel when no
// inference backend is configured.
func NewPipeline(ner NERModel, modelVersion string, logger *slog.Logger) *Pipeline {
	return &Pipeline{NER: ner, ModelVersion: modelVersion, Logger: logger}
}

// Result is the pipeline's output for one document.
type Result struct {
	Spans    []Span
	Entities []Entity
}

// Detect runs stage 1 (pattern + secrets), conditionally stage 2 (ML
// escalation), then stage 3 (context enhancement), and resolves the
// surviving spans into entities.
func (p *Pipeline) Detect(ctx context.Context, text string) Result {
	stage1 := RunPatternDetectors(text)
	stage1 = append(stage1, RunSecretDetectors(text)...)
	stage1 = mergeOverlaps(stage1)

	spans := stage1
	if ShouldEscalate(stage1) {
		stage2 := RunNER(ctx, p.NER, p.ModelVersion, text, p.Logger)
		spans = mergeOverlaps(append(append([]Span{}, stage1...), stage2...))
	}

	spans = EnhanceContext(text, spans)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	return Result{
		Spans:    spans,
		Entities: resolveEntities(spans),
	}
}

// mergeOverlaps collapses overlapping spans of the same entity type,
// keeping the highest-confidence span among the overlapping set.
func mergeOverlaps(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := append([]Span{}, spans...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var merged []Span
	for _, s := range sorted {
		overlapped := false
		for i := range merged {
			m := &merged[i]
			if m.EntityType != s.EntityType {
				continue
			}
			if s.Start < m.End && m.Start < s.End {
				overlapped = true
				if s.Confidence > m.Confidence {
					*m = s
				}
				break
			}
		}
		if !overlapped {
			merged = append(merged, s)
		}
	}
	return merged
}

// resolveEntities groups spans by normalized type and value, recording
// mention count, peak confidence, and positions for evidence retrieval.
func resolveEntities(spans []Span) []Entity {
	type key struct{ typ, val string }
	index := map[key]*Entity{}
	var order []key

	for _, s := range spans {
		k := key{typ: s.EntityType, val: normalizeValue(s.Value)}
		e, ok := index[k]
		if !ok {
			e = &Entity{Type: s.EntityType, Value: k.val}
			index[k] = e
			order = append(order, k)
		}
		e.Count++
		if s.Confidence > e.MaxConf {
			e.MaxConf = s.Confidence
		}
		e.Positions = append(e.Positions, [2]int{s.Start, s.End})
	}

	entities := make([]Entity, 0, len(order))
	for _, k := range order {
		entities = append(entities, *index[k])
	}
	return entities
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}
