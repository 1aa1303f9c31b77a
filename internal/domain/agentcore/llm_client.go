package agentcore

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ResponseFormat requests structured output (e.g. JSON) from the model.
// The LLM client forwards it verbatim; it is not interpreted by the core.
type ResponseFormat struct {
	Type   string // e.g. "json_object"
	Schema map[string]interface{}
}

// ToolDefinition is the wire-shape of one tool handed to the LLM: name,
// description and argument schema, without any behavior attached.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// LLMClient is the single operation the spec allows: ask. Implementations
// must distinguish token-limit-exceeded from other failures by returning
// a *TokenLimitError. Per the re-architecture target in the design notes,
// this could instead be modeled as an explicit Ok|TokenLimit|Fatal result
// variant; Go's idiom for that is a sentinel error type recovered with
// errors.As, which is what TokenLimitError below is for.
type LLMClient interface {
	// Ask issues one model turn. tools and format may be nil/zero.
	Ask(ctx context.Context, messages []Message, tools []ToolDefinition, format *ResponseFormat) (Message, error)
	// MaxTokens reports the model's context window, used by the
	// compression service and memory manager to size targets.
	MaxTokens() int
}

// TokenLimitError is the typed failure the LLM client surfaces when the
// underlying transport reports the context window was exceeded.
type TokenLimitError struct {
	Info TokenInfo
}

func (e *TokenLimitError) Error() string {
	return "token limit exceeded"
}

// tokenLimitKeywords are the provider-agnostic keywords the raw transport
// error text is checked against. Grounded on the teacher's
// IsContextOverflowError (internal/domain/service/overflow_detect.go),
// which instead pattern-matches whole provider-specific phrases; the
// spec mandates the keyword+two-integers heuristic below as the
// fallback every provider ought to have a typed error in front of.
var tokenLimitKeywords = []string{"token", "context", "length", "limit"}

// integerPattern finds runs of digits; DetectTokenLimit then keeps only
// those parsing to >= 2000, per spec section 4.4.
var integerPattern = regexp.MustCompile(`\d+`)

// DetectTokenLimit inspects a raw transport error's text for the
// keyword-plus-two-integers->=2000 pattern described in spec section 4.4.
// If found, the smaller integer is interpreted as max and the larger as
// current. Returns nil if the text does not match.
func DetectTokenLimit(errText string) *TokenLimitError {
	lower := strings.ToLower(errText)

	hasKeyword := false
	for _, kw := range tokenLimitKeywords {
		if strings.Contains(lower, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return nil
	}

	// Only the first two integers in the text are considered — a request
	// id or timestamp appearing later must not get mistaken for current/max.
	matches := integerPattern.FindAllString(errText, -1)
	if len(matches) > 2 {
		matches = matches[:2]
	}
	var candidates []int
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if n >= 2000 {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) < 2 {
		return nil
	}

	sort.Ints(candidates)
	smallest := candidates[0]
	largest := candidates[len(candidates)-1]
	if smallest == largest {
		return nil
	}

	return &TokenLimitError{Info: TokenInfo{Current: largest, Max: smallest}}
}
