package consent

import "strings"

var positiveKeywords = []string{
	"yes", "yep", "ok", "okay", "sure", "agree", "agreed", "confirm",
	"go ahead", "sounds good",
	"да", "ок", "согласен", "согласна", "подтверждаю",
}

var negativeKeywords = []string{
	"no", "nope", "decline", "cancel", "stop", "don't", "do not",
	"нет", "отмена", "отказ", "не надо",
}

// ParseResponse interprets a free-form reply to a consent prompt. Returns
// true/false for a recognized grant/refusal, nil when unrecognized so the
// caller can re-ask.
func ParseResponse(message string) *bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return nil
	}
	words := tokenize(lower)

	if matchesAny(lower, words, negativeKeywords) {
		v := false
		return &v
	}
	if matchesAny(lower, words, positiveKeywords) {
		v := true
		return &v
	}
	return nil
}

// Single-word keywords match whole tokens only, so "now" is not read as
// "no"; multi-word keywords match as substrings.
func matchesAny(lower string, words map[string]struct{}, keywords []string) bool {
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		if _, ok := words[kw]; ok {
			return true
		}
	}
	return false
}

func tokenize(lower string) map[string]struct{} {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':':
			return true
		}
		return false
	})
	words := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		words[f] = struct{}{}
	}
	return words
}
