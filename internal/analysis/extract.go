package analysis

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/nyashahama/sepet-backend/internal/triage"
)

// errMalformedDecision is returned by decodeDecision when a candidate is not
// a decision-shaped object. It never leaves this file.
var errMalformedDecision = errors.New("analysis: malformed decision text")

var (
	riskKeys    = []string{"alerta_risco", "risk_flag", "riskFlag"}
	opinionKeys = []string{"parecer_ia", "opinion"}

	// highRiskMarkers are matched case-insensitively by the heuristic tier.
	highRiskMarkers = []string{"high risk", "high-risk", "alto risco"}

	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n?(.*?)```")
)

// tier is one recovery strategy. It reports false when it cannot produce a
// decision from the text.
type tier func(text string) (triage.Decision, bool)

// tiers are tried in order; the last one always succeeds.
var tiers = []tier{
	parseDirect,
	parseFenced,
	parseBraced,
	inferHeuristic,
}

// Extract recovers a decision from arbitrary engine output. It never fails:
// when no structure can be found the heuristic tier decides from the prose.
func Extract(text string) triage.Decision {
	for _, t := range tiers {
		if d, ok := t(text); ok {
			return d
		}
	}
	// Unreachable while inferHeuristic is last.
	d, _ := inferHeuristic(text)
	return d
}

// ─── TIERS ────────────────────────────────────────────────────────────────────

func parseDirect(text string) (triage.Decision, bool) {
	d, err := decodeDecision(text)
	return d, err == nil
}

func parseFenced(text string) (triage.Decision, bool) {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if d, err := decodeDecision(m[1]); err == nil {
			return d, true
		}
	}
	return triage.Decision{}, false
}

// maxBracedAttempts caps how many candidates parseBraced decodes.
const maxBracedAttempts = 32

// parseBraced tries every balanced {...} region that mentions a risk key,
// shortest first.
func parseBraced(text string) (triage.Decision, bool) {
	keyEnd := riskKeyEnds(text)

	var candidates []string
	for _, span := range balancedSpans(text) {
		if keyEnd[span[0]] <= span[1] {
			candidates = append(candidates, text[span[0]:span[1]])
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) < len(candidates[j]) })
	if len(candidates) > maxBracedAttempts {
		candidates = candidates[:maxBracedAttempts]
	}

	for _, c := range candidates {
		if d, err := decodeDecision(c); err == nil {
			return d, true
		}
	}
	return triage.Decision{}, false
}

func inferHeuristic(text string) (triage.Decision, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	return triage.Decision{
		RiskFlag: containsAny(lower, highRiskMarkers),
		Opinion:  trimmed,
	}, true
}

// ─── DECODING ─────────────────────────────────────────────────────────────────

// decodeDecision parses raw as a JSON object carrying a boolean-coercible
// risk field and a non-empty opinion field.
func decodeDecision(raw string) (triage.Decision, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return triage.Decision{}, errMalformedDecision
	}

	flag, ok := lookupBool(obj, riskKeys)
	if !ok {
		return triage.Decision{}, errMalformedDecision
	}
	opinion, ok := lookupText(obj, opinionKeys)
	if !ok {
		return triage.Decision{}, errMalformedDecision
	}
	return triage.Decision{RiskFlag: flag, Opinion: opinion}, nil
}

func lookupBool(obj map[string]any, keys []string) (bool, bool) {
	for _, k := range keys {
		if b, ok := coerceBool(obj[k]); ok {
			return b, true
		}
	}
	return false, false
}

func lookupText(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

func coerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		switch b {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "sim", "1":
			return true, true
		case "false", "no", "não", "nao", "0":
			return false, true
		}
	}
	return false, false
}

// ─── SCANNING ─────────────────────────────────────────────────────────────────

// balancedSpans returns the [start, end) bounds of every {...} region in
// one pass. Quotes only open strings inside a region, so prose outside any
// braces cannot hide them. Unterminated regions are skipped.
func balancedSpans(text string) [][2]int {
	var (
		spans    [][2]int
		open     []int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = len(open) > 0
		case '{':
			open = append(open, i)
		case '}':
			if n := len(open); n > 0 {
				spans = append(spans, [2]int{open[n-1], i + 1})
				open = open[:n-1]
			}
		}
	}
	return spans
}

// riskKeyEnds maps each offset i to the smallest end offset of a risk key
// starting at or after i, or len(text)+1 when there is none. A span
// [s, e) contains a key exactly when riskKeyEnds[s] <= e.
func riskKeyEnds(text string) []int {
	none := len(text) + 1
	ends := make([]int, len(text)+1)
	for i := range ends {
		ends[i] = none
	}
	for _, k := range riskKeys {
		for off := 0; ; {
			idx := strings.Index(text[off:], k)
			if idx < 0 {
				break
			}
			start := off + idx
			if end := start + len(k); end < ends[start] {
				ends[start] = end
			}
			off = start + 1
		}
	}
	for i := len(text) - 1; i >= 0; i-- {
		if ends[i+1] < ends[i] {
			ends[i] = ends[i+1]
		}
	}
	return ends
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
