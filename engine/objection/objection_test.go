package objection

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		message string
		want    Type
		matched bool
	}{
		{"That's way too expensive for us", TypePrice, true},
		{"Это слишком дорого", TypePrice, true},
		{"Not now, maybe next quarter", TypeTiming, true},
		{"We don't need this, everything works fine", TypeNeed, true},
		{"Sounds like a scam, can you show references?", TypeTrust, true},
		{"We already talk to another vendor", TypeCompetitor, true},
		{"Уже работаем с другой платформой", TypeCompetitor, true},
		{"Tell me more about the integration", TypeOther, false},
		{"", TypeOther, false},
	}
	for _, tc := range cases {
		got, matched := Classify(tc.message)
		if got != tc.want || matched != tc.matched {
			t.Errorf("Classify(%q) = %s, %v; want %s, %v", tc.message, got, matched, tc.want, tc.matched)
		}
	}
}

func TestClassifyFirstCategoryWins(t *testing.T) {
	t.Parallel()

	// Price markers outrank timing markers when both appear.
	got, matched := Classify("too expensive and also not now")
	if got != TypePrice || !matched {
		t.Fatalf("got %s, %v; want price, true", got, matched)
	}
}
