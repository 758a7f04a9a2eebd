package mapper

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	CategoryGeneral   = "general"
	SkillBeginner     = "beginner"
	SkillAllLevels    = "all_levels"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// Details is what free text reveals about a workshop.
type Details struct {
	Category        string
	SkillLevel      string
	MaxParticipants *int
	PriceCents      *int64
}

type keywordRule struct {
	value string
	re    *regexp.Regexp
}

// rule matches any keyword at the start of a word, so "painting" hits
// "paint" but "start" does not hit "art".
func rule(value string, keywords ...string) keywordRule {
	return keywordRule{value: value, re: regexp.MustCompile(`\b(?:` + strings.Join(keywords, "|") + `)`)}
}

// Order matters: the first matching rule wins.
var categoryRules = []keywordRule{
	rule("pottery", "pottery", "ceramic", "clay", "wheel throwing"),
	rule("painting", "paint", "canvas", "watercolou?r", "acrylic", "art\\b"),
	rule("woodworking", "wood", "carpentry"),
	rule("jewelry", "jewel", "beading"),
	rule("cooking", "cook", "baking", "culinary"),
	rule("music", "music", "guitar", "piano"),
	rule("fitness", "fitness", "yoga", "workout"),
	rule("crafts", "craft", "diy"),
	rule("wellness", "massage", "spa\\b", "beauty"),
	rule("consultation", "consult", "appointment", "session"),
}

var skillRules = []keywordRule{
	rule(SkillAdvanced, "advanced", "expert", "master"),
	rule(SkillIntermediate, "intermediate", "level 2"),
	rule(SkillAllLevels, "all levels", "any level"),
}

var (
	participantsRe = regexp.MustCompile(`(\d+)\s*(?:people|participants|students|max|limit|group)`)
	priceRe        = regexp.MustCompile(`\$(\d+)(?:\.(\d{2}))?`)
)

func Extract(title, description string) Details {
	text := strings.ToLower(title + " " + description)
	d := Details{Category: CategoryGeneral, SkillLevel: SkillBeginner}

	for _, r := range categoryRules {
		if r.re.MatchString(text) {
			d.Category = r.value
			break
		}
	}
	for _, r := range skillRules {
		if r.re.MatchString(text) {
			d.SkillLevel = r.value
			break
		}
	}
	if m := participantsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			d.MaxParticipants = &n
		}
	}
	if m := priceRe.FindStringSubmatch(text); m != nil {
		if cents, ok := parseCents(m[1], m[2]); ok {
			d.PriceCents = &cents
		}
	}
	return d
}

func parseCents(whole, frac string) (int64, bool) {
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, false
	}
	var cents int64
	if frac != "" {
		cents, _ = strconv.ParseInt(frac, 10, 64)
	}
	return dollars*100 + cents, true
}
