package correction

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// UnspecifiedIssues is the feedback used when the verifier's reply carries no usable issues text.
const UnspecifiedIssues = "Unspecified issues detected"

// verdictSchema describes the reply the verifier is asked for.
const verdictSchema = `{
  "type": "object",
  "properties": {
    "ok": {"type": "boolean"},
    "issues": {"type": "string"}
  },
  "required": ["ok"]
}`

//nolint:gochecknoglobals // Compiled once, read-only
var verdictSchemaLoader = gojsonschema.NewStringLoader(verdictSchema)

// Verdict is the interpreted verifier reply.
type Verdict struct {
	Raw    string   `json:"raw"`
	Issues string   `json:"issues,omitempty"`
	Errors []string `json:"errors,omitempty"` // why the reply was not a valid verdict
	OK     bool     `json:"ok"`
	Parsed bool     `json:"parsed"` // reply held a JSON object
	Valid  bool     `json:"valid"`  // that object matched the verdict schema
}

// Feedback is the issues text handed to the correction template. Any JSON object with a
// non-blank string "issues" supplies it, whether or not the rest of the reply is valid.
func (v Verdict) Feedback() string {
	if v.Parsed && strings.TrimSpace(v.Issues) != "" {
		return v.Issues
	}
	return UnspecifiedIssues
}

// Passed reports whether the verifier explicitly accepted the answer.
// Only a schema-valid reply with "ok": true counts.
func (v Verdict) Passed() bool {
	return v.Valid && v.OK
}

// ParseVerdict extracts the first JSON object from raw (tolerating prose and code fences
// around it) and validates it against the verdict schema. It never fails; a reply with no
// JSON object yields Parsed == false, an object that misses the schema yields Valid == false.
func ParseVerdict(raw string) Verdict {
	verdict := Verdict{Raw: raw}

	object, ok := firstJSONObject(raw)
	if !ok {
		verdict.Errors = []string{"no JSON object in verifier reply"}
		return verdict
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(object), &doc); err != nil {
		verdict.Errors = []string{err.Error()}
		return verdict
	}
	verdict.Parsed = true
	verdict.Issues, _ = doc["issues"].(string)

	result, err := gojsonschema.Validate(verdictSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		verdict.Errors = []string{err.Error()}
		return verdict
	}
	if !result.Valid() {
		for _, resultErr := range result.Errors() {
			verdict.Errors = append(verdict.Errors, resultErr.String())
		}
		return verdict
	}

	verdict.Valid = true
	verdict.OK, _ = doc["ok"].(bool)
	return verdict
}

// firstJSONObject returns the first balanced {...} span of s, skipping braces inside strings.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
