package normalization

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of normalizing one raw venue name.
//
// Normalized is the canonical comparison key. RinkIdentifier and YearContext
// are side-channel signals extracted before any destructive rewriting; they are
// never folded back into Normalized.
type Result struct {
	Normalized     string `json:"normalized"`
	RinkIdentifier string `json:"rink_identifier,omitempty"`
	YearContext    string `json:"year_context,omitempty"`
}

var (
	// Matches a rink/sheet/ice-pad identifier: a facility word, then a real
	// separator (whitespace or "#"), then a one-to-two digit number or a
	// single letter. The separator is mandatory so plural facility words
	// ("Rinks", "Pads") are never split into word + letter. The letter class
	// excludes the compass letters n/s/e/w: those are directional suffixes
	// ("Anaheim Ice East" -> "anaheim ice e") and stripping them would merge
	// distinct venues. "rnk" is included so that an abbreviated rink token
	// cannot survive the first pass and reappear as "rink N" after
	// abbreviation expansion, which would break idempotency.
	rinkPattern = regexp.MustCompile(`(?i)\b(rink|rnk|sheet|pad|ice|arena)(?:\s*#\s*|\s+)([0-9]{1,2}|[a-df-mo-rt-vx-z])\b`)

	yearPattern       = regexp.MustCompile(`\b(?:19|20)[0-9]{2}\b`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	punctPattern      = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// facilityAbbreviations expands common facility-type shorthand. Matched on
// word boundaries only; every value is a fixed point of the whole pipeline.
var facilityAbbreviations = map[string]string{
	"ctr":  "center",
	"cntr": "center",
	"ctrs": "centers",
	"rnk":  "rink",
	"rnks": "rinks",
	"ip":   "ice palace",
	"rec":  "recreation",
	"mem":  "memorial",
	"twp":  "township",
}

// compassDirections collapses spelled-out directions to USPS single-letter form.
var compassDirections = map[string]string{
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
	"northeast": "ne",
	"northwest": "nw",
	"southeast": "se",
	"southwest": "sw",
}

// sponsorAliases rewrites sponsor/brand spellings to one canonical form.
// Keys are matched as whole phrases after lowercasing and abbreviation
// expansion, so "Toyota Sports Ctr" lands on the same spelling as "TSPC".
var sponsorAliases = []struct {
	pattern   *regexp.Regexp
	canonical string
}{
	{phrase(`ylice`), "yorba linda ice"},
	{phrase(`yl ice`), "yorba linda ice"},
	{phrase(`tspc`), "toyota sports performance center"},
	{phrase(`toyota sports center`), "toyota sports performance center"},
	{phrase(`toyota performance center`), "toyota sports performance center"},
	{phrase(`gpi`), "great park ice"},
	{phrase(`aii`), "anaheim ice"},
}

var stopWords = map[string]bool{
	"the": true,
	"a":   true,
	"an":  true,
	"at":  true,
	"in":  true,
	"on":  true,
}

// cleaner strips emoji, symbol modifiers and control/format runes that show
// up in scraped schedule cells, and folds accented letters to their base
// form ("Paséo" -> "Paseo") by decomposing and dropping combining marks.
var cleaner = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(mergedRangeTable),
	norm.NFC,
)

func phrase(p string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + p + `\b`)
}

// Normalize converts a raw venue name into its canonical comparison key.
// It is a pure function: deterministic, total and idempotent on Normalized.
func Normalize(raw string) Result {
	text := raw

	// Side-channel extraction happens first so later rewriting cannot
	// destroy the rink/year context.
	text, rink := extractRinkIdentifier(text)
	text, year := extractYearContext(text)

	text = strings.ToLower(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	text = stripNonPrintable(text)
	text = strings.NewReplacer("(", " ", ")", " ", "/", " ", "\\", " ").Replace(text)

	text = expandWordTable(text, facilityAbbreviations)
	text = expandWordTable(text, compassDirections)

	for _, alias := range sponsorAliases {
		text = alias.pattern.ReplaceAllString(text, alias.canonical)
	}

	// Expansion can materialize a rink token ("aii 2" -> "anaheim ice 2"),
	// so a second stripping pass keeps the pipeline idempotent. The first
	// extraction wins for the side channel.
	text, lateRink := extractRinkIdentifier(text)
	if rink == "" {
		rink = lateRink
	}

	text = punctPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	text = removeStopWords(text)

	return Result{
		Normalized:     text,
		RinkIdentifier: rink,
		YearContext:    year,
	}
}

// extractRinkIdentifier removes every rink/sheet/pad token from the text and
// returns the first one in canonical lowercase "word id" form.
func extractRinkIdentifier(text string) (string, string) {
	var identifier string
	matches := rinkPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		word := strings.ToLower(matches[0][1])
		if word == "rnk" {
			word = "rink"
		}
		identifier = word + " " + strings.ToLower(matches[0][2])
	}
	return rinkPattern.ReplaceAllString(text, " "), identifier
}

// extractYearContext removes every 4-digit year token and returns the first.
func extractYearContext(text string) (string, string) {
	year := yearPattern.FindString(text)
	return yearPattern.ReplaceAllString(text, " "), year
}

func stripNonPrintable(text string) string {
	out, _, err := transform.String(cleaner, text)
	if err != nil {
		return text
	}
	return out
}

func expandWordTable(text string, table map[string]string) string {
	words := strings.Fields(text)
	for i, word := range words {
		if expansion, ok := table[word]; ok {
			words[i] = expansion
		}
	}
	return strings.Join(words, " ")
}

func removeStopWords(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, word := range words {
		if !stopWords[word] {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}

// mergedRangeTable covers symbol, control and format runes in one table so a
// single runes.Remove transformer handles them all.
var mergedRangeTable = rangeTableUnion(
	unicode.So, // emoji and other symbols
	unicode.Sk, // modifier symbols
	unicode.Cc, // control
	unicode.Cf, // format (zero-width joiners etc.)
	unicode.Co, // private use
	unicode.Cs, // surrogates
)

type unionTable []*unicode.RangeTable

func (u unionTable) Contains(r rune) bool {
	for _, table := range u {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}

func rangeTableUnion(tables ...*unicode.RangeTable) runes.Set {
	return unionTable(tables)
}
