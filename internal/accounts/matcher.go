package accounts

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/AndresPaulino/parking-garage-report/internal/report"
)

// Confidence tiers for the best match.
const (
	StatusConfident = "confident_match"
	StatusProbable  = "probable_match"
	StatusUncertain = "uncertain_match"
	StatusNoMatch   = "no_match"

	// confidentThreshold is the score at which a match can be acted on
	// without review; probableThreshold still warrants a second look.
	confidentThreshold = 0.8
	probableThreshold  = 0.7

	// fuzzyFloor discards similarity matches too weak to be worth listing.
	fuzzyFloor = 0.6

	// maxMatches caps the candidate list per query.
	maxMatches = 5
)

// Match is one candidate pairing of a query with a portal account.
type Match struct {
	Account    report.Account `json:"account"`
	Strategy   string         `json:"strategy"`
	Confidence float64        `json:"confidence"`
}

// Result is the full outcome for one query name.
type Result struct {
	Query        string  `json:"query"`
	BusinessName string  `json:"business_name"`
	Matches      []Match `json:"matches"`
	Status       string  `json:"status"`
}

// Best returns the top candidate, or false when nothing matched.
func (r Result) Best() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

// Matcher matches query names against a fixed account roster.
type Matcher struct {
	accounts   []report.Account
	normalized []string
}

// NewMatcher prepares a matcher over the given roster. Normalized forms are
// computed once up front since every query scans the whole roster.
func NewMatcher(accountList []report.Account) *Matcher {
	m := &Matcher{
		accounts:   accountList,
		normalized: make([]string, len(accountList)),
	}
	for i, account := range accountList {
		m.normalized[i] = Normalize(account.Name)
	}
	return m
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	billingPrefix = regexp.MustCompile(`^\d+\s*-\s*`)

	accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize lowercases a name, folds accented letters to their base form,
// collapses whitespace, and strips a leading numeric billing prefix such as
// "4141 - ".
func Normalize(name string) string {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(accentFolder, cleaned); err == nil {
		cleaned = folded
	}
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	return billingPrefix.ReplaceAllString(cleaned, "")
}

// ExtractBusinessName takes the portion of a roster entry before the contact
// suffix: "CSLL - John Smith" yields the normalized form of "CSLL".
func ExtractBusinessName(name string) string {
	business, _, _ := strings.Cut(name, " - ")
	return Normalize(business)
}

// Match scores the query against every roster account and returns the top
// candidates sorted by confidence. Substring containment in either direction
// gets a boosted score; everything else falls through to plain similarity.
func (m *Matcher) Match(query string) Result {
	business := ExtractBusinessName(query)
	result := Result{
		Query:        query,
		BusinessName: business,
		Status:       StatusNoMatch,
	}
	if business == "" {
		return result
	}

	best := make(map[string]Match, len(m.accounts))
	consider := func(candidate Match) {
		prior, seen := best[candidate.Account.ID]
		if !seen || candidate.Confidence > prior.Confidence {
			best[candidate.Account.ID] = candidate
		}
	}

	for i, account := range m.accounts {
		clean := m.normalized[i]
		score := similarity(business, clean)
		if strings.Contains(clean, business) || strings.Contains(business, clean) {
			consider(Match{
				Account:    account,
				Strategy:   "exact_substring",
				Confidence: min(1.0, score*1.2),
			})
		}
		if score >= fuzzyFloor {
			consider(Match{
				Account:    account,
				Strategy:   "fuzzy_match",
				Confidence: score,
			})
		}
	}

	matches := make([]Match, 0, len(best))
	for _, candidate := range best {
		matches = append(matches, candidate)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Account.Name < matches[j].Account.Name
	})
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	result.Matches = matches

	if len(matches) > 0 {
		switch top := matches[0]; {
		case top.Confidence >= confidentThreshold:
			result.Status = StatusConfident
		case top.Confidence >= probableThreshold:
			result.Status = StatusProbable
		default:
			result.Status = StatusUncertain
		}
	}
	return result
}

// similarity is the Ratcliff/Obershelp ratio: twice the total length of the
// recursively matched common substrings over the combined length.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	matched := commonLength(ra, rb)
	return 2 * float64(matched) / float64(len(ra)+len(rb))
}

func commonLength(a, b []rune) int {
	startA, startB, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += commonLength(a[:startA], b[:startB])
	total += commonLength(a[startA+size:], b[startB+size:])
	return total
}

func longestCommonSubstring(a, b []rune) (startA, startB, size int) {
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prevDiag := 0
		for j := 1; j <= len(b); j++ {
			diag := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prevDiag + 1
				if lengths[j] > size {
					size = lengths[j]
					startA = i - size
					startB = j - size
				}
			} else {
				lengths[j] = 0
			}
			prevDiag = diag
		}
	}
	return startA, startB, size
}
