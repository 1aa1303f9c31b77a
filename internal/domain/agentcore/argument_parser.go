package agentcore

import "encoding/json"

// JSONArgumentParser parses a tool call's raw arguments field, which may
// arrive already structured (map[string]interface{}) or as a JSON string
// the model emitted verbatim.
type JSONArgumentParser struct{}

// Parse implements ArgumentParser.
func (JSONArgumentParser) Parse(raw interface{}) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case string:
		if v == "" {
			return map[string]interface{}{}, nil
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var out map[string]interface{}
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
