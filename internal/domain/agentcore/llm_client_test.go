package agentcore

import "testing"

func TestDetectTokenLimit_MatchesKeywordAndTwoIntegers(t *testing.T) {
	err := DetectTokenLimit("Error: This model's maximum context length is 8192 tokens, but you requested 9000 tokens")
	if err == nil {
		t.Fatalf("expected a TokenLimitError")
	}
	if err.Info.Max != 8192 || err.Info.Current != 9000 {
		t.Errorf("got (current=%d, max=%d), want (current=9000, max=8192)", err.Info.Current, err.Info.Max)
	}
}

func TestDetectTokenLimit_NoKeyword(t *testing.T) {
	err := DetectTokenLimit("request failed with code 8192 and 9000")
	if err != nil {
		t.Errorf("expected nil without a token-limit keyword, got %+v", err)
	}
}

func TestDetectTokenLimit_OnlyOneLargeInteger(t *testing.T) {
	err := DetectTokenLimit("context length exceeded: 9000")
	if err != nil {
		t.Errorf("expected nil with only one integer >= 2000, got %+v", err)
	}
}

func TestDetectTokenLimit_IntegersBelowThreshold(t *testing.T) {
	err := DetectTokenLimit("token limit: 100 vs 200")
	if err != nil {
		t.Errorf("expected nil when both integers are below 2000, got %+v", err)
	}
}

// Regression: a third large integer elsewhere in the text (a request id,
// a timestamp) must not be pulled into the current/max calculation —
// only the first two matched integers count.
func TestDetectTokenLimit_IgnoresThirdLargeInteger(t *testing.T) {
	err := DetectTokenLimit("context length exceeded: max 8192, current 9000 (request_id=99999999)")
	if err == nil {
		t.Fatalf("expected a TokenLimitError")
	}
	if err.Info.Max != 8192 || err.Info.Current != 9000 {
		t.Errorf("got (current=%d, max=%d), want (current=9000, max=8192)", err.Info.Current, err.Info.Max)
	}
}

func TestDetectTokenLimit_UnrelatedError(t *testing.T) {
	err := DetectTokenLimit("connection reset by peer")
	if err != nil {
		t.Errorf("expected nil for an unrelated error, got %+v", err)
	}
}
