package detection

import (
	"context"
	"log/slog"
	"sync"
)

// chunkSize and chunkOverlap bound Stage 2 ML escalation input:
// chunks of at most 4000 characters with 200 characters of overlap,
// so entities straddling a boundary appear whole in one chunk.
const (
	chunkSize    = 4000
	chunkOverlap = 200
)

// NERModel is the Stage 2 ML escalation boundary. A real deployment
// backs this with PII-BERT/PHI-BERT inference; this tree ships the
// noop implementation below since model inference has no place to run
// here.
type NERModel interface {
	// Infer returns entity spans found in chunk, with Start/End relative
	// to the start of chunk (the caller offsets them back into the
	// original document).
	Infer(ctx context.Context, chunk string, modelVersion string) ([]Span, error)
}

// NoopNERModel reports ML escalation unavailable and returns no spans.
// It logs the unavailability exactly once per process, matching the
// stated failure semantics: "ML unavailability causes Stage 2 to be
// skipped (logged once per process)".
type NoopNERModel struct {
	logger *slog.Logger
	once   sync.Once
}

// NewNoopNERModel builds a NoopNERModel that logs through logger.
func NewNoopNERModel(logger *slog.Logger) *NoopNERModel {
	return &NoopNERModel{logger: logger}
}

func (m *NoopNERModel) Infer(ctx context.Context, chunk string, modelVersion string) ([]Span, error) {
	m.once.Do(func() {
		m.logger.Warn("ML escalation unavailable, stage 2 skipped for remainder of process")
	})
	return nil, nil
}

// ShouldEscalate decides whether Stage 2 should run over spans found
// by Stage 1: escalate when any span has confidence below 0.85 in an
// ML-beneficial type, or when no NAME-class span was found at all.
func ShouldEscalate(stage1 []Span) bool {
	sawName := false
	for _, s := range stage1 {
		if s.EntityType == "NAME" {
			sawName = true
		}
		if MLBeneficialTypes[s.EntityType] && s.Confidence < 0.85 {
			return true
		}
	}
	return !sawName
}

// chunkText splits text into overlapping windows of at most chunkSize
// runes, returning each chunk with its starting byte offset in text so
// returned spans line up with the byte-offset spans stage 1 emits.
func chunkText(text string) []struct {
	text   string
	offset int
} {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []struct {
			text   string
			offset int
		}{{text: text, offset: 0}}
	}

	// byteAt[i] is the byte offset where rune i starts.
	byteAt := make([]int, len(runes)+1)
	b := 0
	for i, r := range runes {
		byteAt[i] = b
		b += len(string(r))
	}
	byteAt[len(runes)] = b

	var chunks []struct {
		text   string
		offset int
	}
	step := chunkSize - chunkOverlap
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, struct {
			text   string
			offset int
		}{text: text[byteAt[start]:byteAt[end]], offset: byteAt[start]})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// RunNER chunks text and runs model over each chunk, offsetting
// returned spans back into document coordinates. A chunk whose
// inference fails is skipped (logged by the caller) rather than
// aborting the whole document.
func RunNER(ctx context.Context, model NERModel, modelVersion string, text string, logger *slog.Logger) []Span {
	var spans []Span
	for _, c := range chunkText(text) {
		found, err := model.Infer(ctx, c.text, modelVersion)
		if err != nil {
			logger.Warn("ner chunk inference failed", "error", err, "offset", c.offset)
			continue
		}
		for _, s := range found {
			s.Start += c.offset
			s.End += c.offset
			s.EntityType = NormalizeType(s.EntityType)
			s.Source = "ner"
			spans = append(spans, s)
		}
	}
	return spans
}
