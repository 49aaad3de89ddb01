// Package ner implements the statistical extractor: a token
// classification model served through ONNX Runtime, with a wordpiece
// tokenizer in front and BIO decoding behind. When the model or
// tokenizer cannot be loaded the extractor stays usable in a degraded
// mode backed by heuristics, so the pipeline never loses the
// statistical channel entirely.
package ner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/config"
	"github.com/tripdesk/tripdesk/internal/model"
)

// defaultLabels is the CoNLL-2003 BIO tag order used by the bundled
// token classification export. A model trained with a different label
// map needs this table swapped, not the decoder.
var defaultLabels = []string{
	"O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC",
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime initializes the ONNX Runtime environment exactly once
// per process.
func initRuntime() error {
	ortInitOnce.Do(func() {
		if p := config.SharedLibraryPath(); p != "" {
			ort.SetSharedLibraryPath(p)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Extractor runs statistical entity extraction. Safe for concurrent
// use: the runtime session is guarded by a mutex since ONNX Runtime
// sessions are not concurrency-safe per call.
type Extractor struct {
	cfg         config.NER
	tk          *tokenizer.Tokenizer
	session     *ort.DynamicAdvancedSession
	labels      []string
	gazetteer   map[string]struct{}
	gazMatchers []gazMatcher
	log         *zap.Logger

	mu        sync.Mutex
	available bool
}

// New loads the tokenizer and model session. Load failures are
// reported through the logger and Available, never as a construction
// error: the extractor degrades to heuristics instead.
func New(cfg config.Config, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	gazetteer := cfg.GazetteerSet()
	e := &Extractor{
		cfg:         cfg.NER,
		labels:      defaultLabels,
		gazetteer:   gazetteer,
		gazMatchers: compileGazetteer(gazetteer),
		log:         log,
	}

	if cfg.NER.ModelPath == "" || cfg.NER.TokenizerPath == "" {
		log.Warn("ner model not configured, statistical extractor degraded")
		return e
	}
	if err := e.load(); err != nil {
		log.Warn("ner model unavailable, statistical extractor degraded", zap.Error(err))
		return e
	}
	e.available = true
	return e
}

func (e *Extractor) load() error {
	tk, err := pretrained.FromFile(e.cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("loading tokenizer %s: %w", e.cfg.TokenizerPath, err)
	}

	if err := initRuntime(); err != nil {
		return fmt.Errorf("initializing onnx runtime: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(e.cfg.ModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		nil)
	if err != nil {
		return fmt.Errorf("opening model %s: %w", e.cfg.ModelPath, err)
	}

	e.tk = tk
	e.session = session
	return nil
}

// Available reports whether the model-backed path is live.
func (e *Extractor) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

// Close releases the runtime session. The extractor degrades to
// heuristics afterwards rather than erroring.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		e.available = false
		return err
	}
	return nil
}

// Extract returns the categorized entity set for text. Model failures
// mid-flight degrade to the heuristic path for this and subsequent
// calls. Extract never fails the pipeline.
func (e *Extractor) Extract(ctx context.Context, text string) model.EntitySet {
	var set model.EntitySet

	if e.Available() {
		spans, err := e.infer(ctx, text)
		if err != nil {
			e.log.Warn("ner inference failed, degrading to heuristics", zap.Error(err))
			e.mu.Lock()
			e.available = false
			e.mu.Unlock()
		} else {
			set = categorize(spans)
		}
	}
	if !e.Available() {
		set = e.heuristics(text)
	}

	// The gazetteer backstops locations on both paths, keeping the
	// original-case occurrence from the text. A known destination the
	// model missed is still a location.
	for _, g := range e.gazMatchers {
		if occ := g.re.FindString(text); occ != "" {
			set.Locations = appendUnique(set.Locations, occ)
		}
	}
	return postProcess(set)
}

// postProcess trims every entry, drops entries of length one or less,
// and deduplicates within each category.
func postProcess(set model.EntitySet) model.EntitySet {
	clean := func(in []string) []string {
		var out []string
		for _, v := range in {
			v = strings.TrimSpace(v)
			if len([]rune(v)) <= 1 {
				continue
			}
			out = appendUnique(out, v)
		}
		return out
	}
	set.Persons = clean(set.Persons)
	set.Locations = clean(set.Locations)
	set.Dates = clean(set.Dates)
	set.Money = clean(set.Money)
	set.Numbers = clean(set.Numbers)
	set.Organizations = clean(set.Organizations)
	set.Miscellaneous = clean(set.Miscellaneous)
	return set
}

// span is one decoded entity: its text and BIO category.
type span struct {
	text       string
	category   string
	confidence float64
}

// infer runs tokenization, the model forward pass, and BIO decoding.
func (e *Extractor) infer(ctx context.Context, text string) ([]span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	en, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}
	seqLen := len(en.Ids)
	if seqLen == 0 {
		return nil, nil
	}
	if e.cfg.MaxSequenceLength > 0 && seqLen > e.cfg.MaxSequenceLength {
		seqLen = e.cfg.MaxSequenceLength
	}

	ids := make([]int64, seqLen)
	mask := make([]int64, seqLen)
	for i := 0; i < seqLen; i++ {
		ids[i] = int64(en.Ids[i])
		mask[i] = int64(en.AttentionMask[i])
	}

	shape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("building input tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attention, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("building attention tensor: %w", err)
	}
	defer attention.Destroy()

	outputs := []ort.Value{nil}
	e.mu.Lock()
	session := e.session
	if session == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("session closed")
	}
	err = session.Run([]ort.Value{inputIDs, attention}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("running model: %w", err)
	}
	logitsT, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected logits tensor type %T", outputs[0])
	}
	defer logitsT.Destroy()

	return e.decode(text, en, logitsT.GetData(), seqLen), nil
}

// decode turns per-token logits into entity spans. Tokens below the
// confidence threshold break the current span the same way an O tag
// does, so a low-confidence middle never glues two entities together.
func (e *Extractor) decode(text string, en *tokenizer.Encoding, logits []float32, seqLen int) []span {
	numLabels := len(e.labels)
	if numLabels == 0 || len(logits) < seqLen*numLabels {
		return nil
	}

	var spans []span
	var cur *span
	flush := func() {
		if cur != nil && strings.TrimSpace(cur.text) != "" {
			spans = append(spans, *cur)
		}
		cur = nil
	}

	for i := 0; i < seqLen; i++ {
		if i < len(en.SpecialTokenMask) && en.SpecialTokenMask[i] == 1 {
			flush()
			continue
		}
		probs := softmax(logits[i*numLabels : (i+1)*numLabels])
		best, conf := argmax(probs)
		label := e.labels[best]
		if label == "O" || conf < e.cfg.ConfidenceThreshold {
			flush()
			continue
		}

		cat := label[strings.Index(label, "-")+1:]
		piece := tokenText(text, en, i)
		if strings.HasPrefix(label, "B-") || cur == nil || cur.category != cat {
			flush()
			cur = &span{text: piece, category: cat, confidence: conf}
			continue
		}
		cur.text = joinPieces(cur.text, piece)
		if conf < cur.confidence {
			cur.confidence = conf
		}
	}
	flush()
	return spans
}

// tokenText recovers a token's surface form, preferring the original
// text slice via offsets over the wordpiece token string.
func tokenText(text string, en *tokenizer.Encoding, i int) string {
	if i < len(en.Offsets) && len(en.Offsets[i]) == 2 {
		start, end := en.Offsets[i][0], en.Offsets[i][1]
		if start >= 0 && end <= len(text) && start < end {
			return text[start:end]
		}
	}
	if i < len(en.Tokens) {
		return strings.TrimPrefix(en.Tokens[i], "##")
	}
	return ""
}

// joinPieces appends a wordpiece continuation, merging "##" pieces
// without a space.
func joinPieces(acc, piece string) string {
	if strings.HasPrefix(piece, "##") {
		return acc + strings.TrimPrefix(piece, "##")
	}
	return acc + " " + piece
}

// categorize maps decoded BIO categories onto the entity set. Label
// names cover both CoNLL-style and OntoNotes-style models.
func categorize(spans []span) model.EntitySet {
	var set model.EntitySet
	for _, s := range spans {
		v := strings.TrimSpace(s.text)
		if v == "" {
			continue
		}
		switch s.category {
		case "PER", "PERSON":
			set.Persons = appendUnique(set.Persons, titleCase(v))
		case "LOC", "GPE", "FAC":
			set.Locations = appendUnique(set.Locations, titleCase(v))
		case "DATE", "TIME":
			set.Dates = appendUnique(set.Dates, v)
		case "MONEY":
			set.Money = appendUnique(set.Money, v)
		case "CARDINAL", "QUANTITY", "NUM":
			set.Numbers = appendUnique(set.Numbers, v)
		case "ORG":
			set.Organizations = appendUnique(set.Organizations, v)
		default:
			set.Miscellaneous = appendUnique(set.Miscellaneous, v)
		}
	}
	return set
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	max := float64(logits[0])
	for _, l := range logits[1:] {
		if float64(l) > max {
			max = float64(l)
		}
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(probs []float64) (int, float64) {
	best, bestP := 0, probs[0]
	for i, p := range probs[1:] {
		if p > bestP {
			best, bestP = i+1, p
		}
	}
	return best, bestP
}
