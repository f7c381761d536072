// Package wake implements robust wake-phrase detection over noisy
// speech-to-text output.
//
// A [Detector] holds the configured wake phrase plus a set of normalized
// variations (aliases, known misspellings) and tests each transcription with
// four strategies in strict priority order:
//
//  1. Exact: any input token equal to a variation.
//  2. Fuzzy: edit-similarity between tokens and variations, gated on a shared
//     first letter and a minimum token length, with a blacklist of common
//     words that are confusable with typical wake phrases.
//  3. Phonetic: Soundex-style 4-character codes, compared against codes
//     precomputed for every variation.
//  4. Multi-word: edit-similarity of the whole input against variations that
//     contain internal whitespace, catching wake phrases the transcriber
//     split across words.
//
// Exact and fuzzy run first because they are the higher-precision strategies;
// phonetic and multi-word trade precision for recall against transcription
// drift. The first strategy to hit wins.
//
// All methods are safe for concurrent use: Detect holds a read lock while a
// controller goroutine may add variations through AddVariation.
package wake

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// Method identifies which strategy produced a detection.
type Method string

const (
	MethodExact     Method = "exact"
	MethodFuzzy     Method = "fuzzy"
	MethodPhonetic  Method = "phonetic"
	MethodMultiword Method = "multiword"

	// MethodNone is the zero Method, reported when nothing matched.
	MethodNone Method = ""
)

// phoneticConfidence is the fixed confidence assigned to phonetic matches.
// A code collision is strong evidence but never as certain as string
// similarity, so it scores below exact and above the fuzzy threshold floor.
const phoneticConfidence = 0.8

// defaultThreshold is the minimum edit-similarity for fuzzy and multi-word
// matches when no threshold is configured.
const defaultThreshold = 0.6

// longTokenMinSimilarity is the similarity floor applied to tokens longer
// than six characters, where the base threshold admits too many near-misses.
const longTokenMinSimilarity = 0.75

// fuzzyBlacklist lists common words that are edit-close to typical wake
// phrases and must never trigger a fuzzy match.
var fuzzyBlacklist = map[string]struct{}{
	"important":   {},
	"department":  {},
	"compartment": {},
	"treatment":   {},
	"argument":    {},
	"document":    {},
	"movement":    {},
	"moment":      {},
	"parent":      {},
	"apparent":    {},
	"statement":   {},
	"element":     {},
	"agreement":   {},
	"improvement": {},
	"development": {},
	"government":  {},
}

var wordRe = regexp.MustCompile(`\w+`)

// Detection is the outcome of a single Detect call.
type Detection struct {
	// Detected reports whether any strategy matched.
	Detected bool

	// Method identifies the winning strategy, MethodNone when Detected is
	// false.
	Method Method

	// Matched is the input token (exact, fuzzy, phonetic) or the variation
	// (multiword) that produced the match. Empty when Detected is false.
	Matched string

	// Confidence is the match confidence in [0, 1]: 1.0 for exact matches,
	// the similarity score for fuzzy and multiword, a fixed 0.8 for
	// phonetic. Zero when Detected is false.
	Confidence float64
}

// Status is a point-in-time snapshot of a Detector's configuration, intended
// for diagnostics endpoints and the wake-word self-test.
type Status struct {
	WakeWord   string   `json:"wake_word"`
	Threshold  float64  `json:"similarity_threshold"`
	Phonetic   bool     `json:"phonetic_matching"`
	Variations []string `json:"variations"`
	Codes      []string `json:"phonetic_codes,omitempty"`
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithThreshold sets the minimum edit-similarity for fuzzy and multi-word
// matches. Default: 0.6.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) { d.threshold = threshold }
}

// WithPhonetic enables or disables the phonetic strategy. Default: enabled.
func WithPhonetic(enabled bool) Option {
	return func(d *Detector) { d.phonetic = enabled }
}

// WithVariations seeds additional wake-phrase variations. Values are
// normalized (lowercased, trimmed); duplicates collapse.
func WithVariations(variations ...string) Option {
	return func(d *Detector) {
		for _, v := range variations {
			d.addVariationLocked(v)
		}
	}
}

// Detector matches transcriptions against a wake phrase and its variations.
type Detector struct {
	mu sync.RWMutex

	wakeWord  string
	threshold float64
	phonetic  bool

	variations map[string]struct{}
	codes      map[string]struct{}
}

// New creates a Detector for the given wake phrase. The normalized phrase
// itself is always part of the variation set.
func New(wakeWord string, opts ...Option) *Detector {
	d := &Detector{
		wakeWord:   normalize(wakeWord),
		threshold:  defaultThreshold,
		phonetic:   true,
		variations: make(map[string]struct{}),
		codes:      make(map[string]struct{}),
	}
	d.addVariationLocked(d.wakeWord)
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect runs the strategy cascade over text and returns the first hit.
// It is a pure read over the profile; the zero Detection means no match.
func (d *Detector) Detect(text string) Detection {
	norm := normalize(text)
	if norm == "" {
		return Detection{}
	}
	tokens := wordRe.FindAllString(norm, -1)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if det, ok := d.exactMatch(tokens); ok {
		return det
	}
	if det, ok := d.fuzzyMatch(tokens); ok {
		return det
	}
	if d.phonetic {
		if det, ok := d.phoneticMatch(tokens); ok {
			return det
		}
	}
	if det, ok := d.multiwordMatch(norm); ok {
		return det
	}
	return Detection{}
}

// AddVariation adds a normalized variation (and its phonetic code when
// phonetic matching is enabled) to the live profile. Re-adding an existing
// variation is a no-op.
func (d *Detector) AddVariation(variation string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addVariationLocked(variation)
}

// Contains reports whether word normalizes to a known variation. The session
// layer uses it for the token-level command extraction fallback.
func (d *Detector) Contains(word string) bool {
	norm := normalize(word)
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.variations[norm]
	return ok
}

// WakeWord returns the normalized primary wake phrase.
func (d *Detector) WakeWord() string { return d.wakeWord }

// Status returns a snapshot of the detector configuration. Variations and
// codes are sorted for stable output.
func (d *Detector) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Status{
		WakeWord:   d.wakeWord,
		Threshold:  d.threshold,
		Phonetic:   d.phonetic,
		Variations: make([]string, 0, len(d.variations)),
	}
	for v := range d.variations {
		s.Variations = append(s.Variations, v)
	}
	sort.Strings(s.Variations)

	if d.phonetic {
		s.Codes = make([]string, 0, len(d.codes))
		for c := range d.codes {
			s.Codes = append(s.Codes, c)
		}
		sort.Strings(s.Codes)
	}
	return s
}

// addVariationLocked inserts a normalized variation and its phonetic code.
// Must be called with d.mu held (or before the Detector is shared).
func (d *Detector) addVariationLocked(variation string) {
	norm := normalize(variation)
	if norm == "" {
		return
	}
	if _, ok := d.variations[norm]; ok {
		return
	}
	d.variations[norm] = struct{}{}
	if clean := stripNonAlpha(norm); clean != "" {
		d.codes[soundexCode(clean)] = struct{}{}
	}
}

func (d *Detector) exactMatch(tokens []string) (Detection, bool) {
	for _, tok := range tokens {
		if _, ok := d.variations[tok]; ok {
			return Detection{Detected: true, Method: MethodExact, Matched: tok, Confidence: 1.0}, true
		}
	}
	return Detection{}, false
}

func (d *Detector) fuzzyMatch(tokens []string) (Detection, bool) {
	var (
		bestScore float64
		bestToken string
	)

	for _, tok := range tokens {
		if _, blocked := fuzzyBlacklist[tok]; blocked {
			continue
		}
		if len(tok) < 4 {
			continue
		}

		minScore := d.threshold
		if len(tok) > 6 && minScore < longTokenMinSimilarity {
			minScore = longTokenMinSimilarity
		}

		for v := range d.variations {
			if len(v) < 4 || v[0] != tok[0] {
				continue
			}
			score := editSimilarity(tok, v)
			if score > bestScore && score >= minScore {
				bestScore = score
				bestToken = tok
			}
		}
	}

	if bestScore >= d.threshold {
		return Detection{Detected: true, Method: MethodFuzzy, Matched: bestToken, Confidence: bestScore}, true
	}
	return Detection{}, false
}

func (d *Detector) phoneticMatch(tokens []string) (Detection, bool) {
	for _, tok := range tokens {
		if len(tok) < 3 {
			continue
		}
		clean := stripNonAlpha(tok)
		if clean == "" {
			continue
		}
		if _, ok := d.codes[soundexCode(clean)]; ok {
			return Detection{Detected: true, Method: MethodPhonetic, Matched: tok, Confidence: phoneticConfidence}, true
		}
	}
	return Detection{}, false
}

func (d *Detector) multiwordMatch(norm string) (Detection, bool) {
	clean := strings.Join(wordRe.FindAllString(norm, -1), " ")

	for v := range d.variations {
		if !strings.Contains(v, " ") {
			continue
		}
		if score := editSimilarity(clean, v); score >= d.threshold {
			return Detection{Detected: true, Method: MethodMultiword, Matched: v, Confidence: score}, true
		}
	}
	return Detection{}, false
}

// editSimilarity returns a normalized edit-similarity ratio in [0, 1]:
// 1 minus the Levenshtein distance divided by the longer string's length.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}

// normalize lowercases and trims surrounding whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// stripNonAlpha removes everything outside [a-z] from an already-lowercased
// string.
func stripNonAlpha(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
