package objection

import "strings"

// Type is the coarse category of a counterpart objection.
type Type string

const (
	TypePrice      Type = "price"
	TypeTiming     Type = "timing"
	TypeNeed       Type = "need"
	TypeTrust      Type = "trust"
	TypeCompetitor Type = "competitor"
	TypeOther      Type = "other"
)

// Keyword tables checked in order; the first matching category wins.
var categories = []struct {
	t        Type
	keywords []string
}{
	{TypePrice, []string{
		"expensive", "too much", "cost", "price", "cheaper", "budget",
		"дорого", "цена", "стоимость", "дешевле",
	}},
	{TypeTiming, []string{
		"not now", "later", "next quarter", "next year", "busy", "no time",
		"не сейчас", "позже", "некогда",
	}},
	{TypeNeed, []string{
		"don't need", "do not need", "no need", "works fine", "already have",
		"не нужно", "не надо", "и так работает",
	}},
	{TypeTrust, []string{
		"scam", "trust", "guarantee", "proof", "references", "case stud",
		"не верю", "гарантии", "докажите",
	}},
	{TypeCompetitor, []string{
		"competitor", "another vendor", "other company", "alternative",
		"конкурент", "другая компания", "уже работаем с",
	}},
}

// Classify inspects the message for objection markers. Returns the matched
// category and true, or TypeOther and false when nothing matches. TypeOther
// is never produced as a positive match: callers that want to record an
// objection regardless pass the message through with the false result.
func Classify(message string) (Type, bool) {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return TypeOther, false
	}
	for _, cat := range categories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.t, true
			}
		}
	}
	return TypeOther, false
}
