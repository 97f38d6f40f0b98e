package fabric

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedInput reports that no extraction strategy could recover a record.
	ErrMalformedInput = errors.New("malformed model output")

	// ErrEmptyInput reports blank model output. It matches ErrMalformedInput as well.
	ErrEmptyInput = fmt.Errorf("%w: empty input", ErrMalformedInput)
)

// Strategy names the cascade step that produced an Extraction.
type Strategy string

const (
	StrategyStrict    Strategy = "strict"
	StrategyLiteral   Strategy = "literal"
	StrategySubstring Strategy = "substring"
	StrategyDegraded  Strategy = "degraded"
)

// Sentinel values used for degraded records.
const (
	UnknownValue              = "unknown"
	UnparsedEmbellishmentNote = "Could not parse response"
)

// Extraction is the result of ExtractRecord. It is always usable: when Degraded is true the Fields
// hold the sentinel values and Err explains why every strategy failed.
type Extraction struct {
	Fields   FabricFields `json:"fields"`
	Strategy Strategy     `json:"strategy"`
	Degraded bool         `json:"degraded"`

	// Cleaned is the text after wrapper noise was stripped.
	Cleaned string `json:"cleaned"`

	Err error `json:"-"`
}

type recordStrategy struct {
	name  Strategy
	parse func(cleaned string) (map[string]any, error)
}

var recordStrategies = []recordStrategy{
	{name: StrategyStrict, parse: parseStrictObject},
	{name: StrategyLiteral, parse: parseLiteralMapping},
	{name: StrategySubstring, parse: parseObjectSubstring},
}

// ExtractRecord recovers the fabric fields from a model response that is supposed to be a JSON
// object. Strategies are tried in order (strict JSON, literal mapping, first-brace-to-last-brace
// substring) and the first success wins. It never fails: when nothing parses, the degraded
// sentinel is returned.
func ExtractRecord(raw string) Extraction {
	cleaned := CleanModelText(raw)
	if cleaned == "" {
		return degradedExtraction(cleaned, ErrEmptyInput)
	}

	errs := []error{ErrMalformedInput}
	for _, s := range recordStrategies {
		m, err := s.parse(cleaned)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		return Extraction{
			Fields:   fieldsFromMap(m),
			Strategy: s.name,
			Cleaned:  cleaned,
		}
	}
	return degradedExtraction(cleaned, errors.Join(errs...))
}

// DegradedFields returns the placeholder fields used when a response cannot be parsed.
func DegradedFields() FabricFields {
	return FabricFields{
		Material:                 UnknownValue,
		Texture:                  UnknownValue,
		Colors:                   []string{UnknownValue},
		Embellishments:           false,
		EmbellishmentDescription: UnparsedEmbellishmentNote,
	}
}

func degradedExtraction(cleaned string, err error) Extraction {
	return Extraction{
		Fields:   DegradedFields(),
		Strategy: StrategyDegraded,
		Degraded: true,
		Cleaned:  cleaned,
		Err:      err,
	}
}

// CleanModelText strips the wrapping models tend to put around JSON: surrounding whitespace, one
// pair of matching quotes, a fenced code block, then one more pair of quotes.
func CleanModelText(raw string) string {
	s := strings.TrimSpace(raw)
	s = unquoteOnce(s)
	s = stripFence(s)
	s = strings.TrimSpace(s)
	s = unquoteOnce(s)
	return s
}

func unquoteOnce(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first != last {
		return s
	}
	switch first {
	case '"', '\'':
		return s[1 : len(s)-1]
	case '`':
		// Leave fences for stripFence.
		if strings.HasPrefix(s, "``") {
			return s
		}
		return s[1 : len(s)-1]
	}
	return s
}

// stripFence removes an opening ``` line and a closing ``` line when they are the first and last
// non-blank lines of s.
func stripFence(s string) string {
	lines := strings.Split(s, "\n")
	first, last := -1, -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if first == -1 {
			first = i
		}
		last = i
	}
	if first == -1 || first == last {
		return s
	}
	if !isFenceLine(lines[first]) || !isFenceLine(lines[last]) {
		return s
	}
	return strings.Join(lines[first+1:last], "\n")
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func parseStrictObject(s string) (map[string]any, error) {
	return decodeJSONObject([]byte(s))
}

func parseObjectSubstring(s string) (map[string]any, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found (len=%d)", len(s))
	}
	return decodeJSONObject([]byte(s[start : end+1]))
}
