package extract

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"visibility-backend/internal/visibility"
)

var (
	listItemRE = regexp.MustCompile(`^\s*(?:#{1,6}\s*)?(?:\*\*)?(\d{1,2})[.)]\s+`)
	sentenceRE = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

var positiveWords = map[string]struct{}{
	"best": {}, "great": {}, "excellent": {}, "leading": {}, "popular": {}, "recommended": {},
	"recommend": {}, "reliable": {}, "top": {}, "strong": {}, "easy": {}, "trusted": {},
	"powerful": {}, "favorite": {}, "innovative": {}, "robust": {}, "good": {}, "solid": {},
	"love": {}, "standout": {}, "intuitive": {}, "affordable": {}, "excels": {}, "praised": {},
}

var negativeWords = map[string]struct{}{
	"expensive": {}, "poor": {}, "bad": {}, "limited": {}, "lacking": {}, "lacks": {},
	"difficult": {}, "complicated": {}, "criticized": {}, "outdated": {}, "slow": {},
	"worse": {}, "worst": {}, "issues": {}, "complaints": {}, "avoid": {}, "weak": {},
	"buggy": {}, "clunky": {}, "overpriced": {}, "steep": {}, "drawbacks": {},
}

// Heuristic extracts mentions by name matching, positions from numbered lists (or the
// order of first mention when the answer has no list), and sentiment from a small lexicon
// applied to the sentences that name each entity.
type Heuristic struct{}

// Extract implements Extractor.
func (Heuristic) Extract(ctx context.Context, text string, target Target) (visibility.TaskResult, error) {
	if err := ctx.Err(); err != nil {
		return visibility.TaskResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return visibility.TaskResult{}, ErrEmptyText
	}

	names := target.Names()
	found := make(map[string]int, len(names))
	for _, n := range names {
		if idx := firstIndex(text, n); idx >= 0 {
			found[n] = idx
		}
	}
	positions := listPositions(text, found)
	if len(positions) == 0 {
		positions = mentionOrder(found)
	}

	res := visibility.TaskResult{
		Sentiment:            visibility.SentimentNeutral,
		CompetitorsMentioned: map[string]visibility.Mention{},
		Response:             text,
	}
	brandKey := visibility.NormalizeName(target.Brand)
	for n := range found {
		sentiment := sentimentFor(text, n)
		pos := positionPtr(positions, n)
		if visibility.NormalizeName(n) == brandKey {
			res.BrandMentioned = true
			res.BrandPosition = pos
			res.Sentiment = sentiment
			continue
		}
		res.CompetitorsMentioned[n] = visibility.Mention{Position: pos, Sentiment: sentiment}
	}
	return res, nil
}

func positionPtr(positions map[string]int, name string) *int {
	p, ok := positions[name]
	if !ok || p < 1 {
		return nil
	}
	return &p
}

// firstIndex finds name in text on word boundaries, ignoring case.
func firstIndex(text, name string) int {
	if strings.TrimSpace(name) == "" {
		return -1
	}
	lowerText := strings.ToLower(text)
	needle := strings.ToLower(strings.TrimSpace(name))
	from := 0
	for {
		i := strings.Index(lowerText[from:], needle)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(needle)
		if boundaryBefore(lowerText, start) && boundaryAfter(lowerText, end) {
			return start
		}
		from = start + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// listPositions ranks entities by the numbered list item in which they first appear.
func listPositions(text string, found map[string]int) map[string]int {
	out := map[string]int{}
	for _, line := range strings.Split(text, "\n") {
		m := listItemRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 {
			continue
		}
		for n := range found {
			if _, done := out[n]; done {
				continue
			}
			if firstIndex(line, n) >= 0 {
				out[n] = num
			}
		}
	}
	return out
}

func mentionOrder(found map[string]int) map[string]int {
	names := make([]string, 0, len(found))
	for n := range found {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if found[names[i]] != found[names[j]] {
			return found[names[i]] < found[names[j]]
		}
		return names[i] < names[j]
	})
	out := make(map[string]int, len(names))
	for i, n := range names {
		out[n] = i + 1
	}
	return out
}

func sentimentFor(text, name string) visibility.Sentiment {
	score := 0
	for _, sentence := range sentenceRE.FindAllString(text, -1) {
		if firstIndex(sentence, name) < 0 {
			continue
		}
		for _, w := range strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
			return !unicode.IsLetter(r)
		}) {
			if _, ok := positiveWords[w]; ok {
				score++
			}
			if _, ok := negativeWords[w]; ok {
				score--
			}
		}
	}
	switch {
	case score > 0:
		return visibility.SentimentPositive
	case score < 0:
		return visibility.SentimentNegative
	default:
		return visibility.SentimentNeutral
	}
}

var _ Extractor = Heuristic{}
