package classify

import (
	"math"
	"net/url"
	"strings"
	"time"

	"learntrail.dev/internal/sources"
)

// ResourceType buckets a resource by its content format.
type ResourceType string

const (
	TypeVideo         ResourceType = "video"
	TypeArticle       ResourceType = "article"
	TypeCourse        ResourceType = "course"
	TypeBook          ResourceType = "book"
	TypeTutorial      ResourceType = "tutorial"
	TypeDocumentation ResourceType = "documentation"
	TypeRepository    ResourceType = "repository"
	TypeOther         ResourceType = "other"
)

// Difficulty is the detected audience level of a resource.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyUnspecified  Difficulty = "unspecified"
)

// Pricing is the detected cost model of a resource.
type Pricing string

const (
	PricingFree     Pricing = "free"
	PricingFreemium Pricing = "freemium"
	PricingPremium  Pricing = "premium"
	PricingUnknown  Pricing = "unknown"
)

// Resource is a candidate annotated with type, difficulty, pricing, quality
// score and canonical URL. Immutable once produced.
type Resource struct {
	sources.RawCandidate

	Type          ResourceType
	Difficulty    Difficulty
	Pricing       Pricing
	QualityScore  int
	NormalizedURL string
}

var videoHosts = map[string]bool{
	"youtube.com":     true,
	"youtu.be":        true,
	"vimeo.com":       true,
	"twitch.tv":       true,
	"dailymotion.com": true,
}

var repositoryHosts = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
}

var documentationHosts = map[string]bool{
	"developer.mozilla.org": true,
	"devdocs.io":            true,
	"pkg.go.dev":            true,
}

var courseHosts = map[string]bool{
	"udemy.com":       true,
	"coursera.org":    true,
	"edx.org":         true,
	"pluralsight.com": true,
	"udacity.com":     true,
	"khanacademy.org": true,
	"skillshare.com":  true,
	"educative.io":    true,
}

var bookHosts = map[string]bool{
	"amazon.com":    true,
	"oreilly.com":   true,
	"manning.com":   true,
	"packtpub.com":  true,
	"goodreads.com": true,
	"leanpub.com":   true,
	"nostarch.com":  true,
	"apress.com":    true,
	"bookshop.org":  true,
}

var tutorialKeywords = []string{
	"tutorial",
	"guide",
	"how to",
	"how-to",
	"step-by-step",
	"step by step",
	"walkthrough",
}

var beginnerKeywords = []string{
	"beginner",
	"introduction",
	"intro to",
	"basics",
	"fundamentals",
	"getting started",
	"from scratch",
	"101",
	"novice",
	"first steps",
}

var advancedKeywords = []string{
	"advanced",
	"expert",
	"deep dive",
	"in-depth",
	"internals",
	"mastering",
	"optimization",
	"production-grade",
	"under the hood",
}

var intermediateKeywords = []string{
	"intermediate",
	"practical",
	"beyond the basics",
	"next level",
	"real-world",
}

var prerequisiteKeywords = []string{
	"prerequisite",
	"assumes knowledge",
	"assumes familiarity",
	"familiarity with",
	"experience with",
	"you should know",
	"you should already",
}

var alwaysFreeHosts = map[string]bool{
	"youtube.com":           true,
	"youtu.be":              true,
	"github.com":            true,
	"gitlab.com":            true,
	"developer.mozilla.org": true,
	"freecodecamp.org":      true,
	"khanacademy.org":       true,
	"wikipedia.org":         true,
	"dev.to":                true,
}

var premiumKeywords = []string{
	"paid",
	"purchase",
	"buy now",
	"subscription",
	"premium",
	"pricing",
	"$",
}

var freemiumHosts = map[string]bool{
	"coursera.org":   true,
	"edx.org":        true,
	"codecademy.com": true,
	"educative.io":   true,
	"datacamp.com":   true,
	"medium.com":     true,
}

var freeKeywords = []string{
	"free",
	"open source",
	"open-source",
	"no cost",
}

// hostReputation maps known hosts to a reputation term between 10 and 15.
// Unknown hosts score the neutral 5.
var hostReputation = map[string]int{
	"developer.mozilla.org": 15,
	"github.com":            14,
	"coursera.org":          14,
	"freecodecamp.org":      14,
	"edx.org":               13,
	"khanacademy.org":       13,
	"oreilly.com":           13,
	"stackoverflow.com":     13,
	"youtube.com":           12,
	"pluralsight.com":       12,
	"udacity.com":           12,
	"udemy.com":             11,
	"vimeo.com":             10,
	"medium.com":            10,
	"dev.to":                10,
}

// Classify turns a raw candidate into a typed, scored resource with a
// canonical URL. Pure and deterministic: equal inputs yield equal outputs.
func Classify(raw sources.RawCandidate) Resource {
	text := strings.ToLower(raw.Title + " " + raw.Description)
	host := hostOf(raw.URL)
	return Resource{
		RawCandidate:  raw,
		Type:          detectType(raw, text, host),
		Difficulty:    detectDifficulty(text),
		Pricing:       detectPricing(text, host),
		QualityScore:  qualityScore(raw, host),
		NormalizedURL: NormalizeURL(raw.URL),
	}
}

// ClassifyBatch maps Classify over candidates, preserving order.
func ClassifyBatch(raws []sources.RawCandidate) []Resource {
	out := make([]Resource, len(raws))
	for i := range raws {
		out[i] = Classify(raws[i])
	}
	return out
}

// detectType applies the type rules in precedence order; the first match wins.
func detectType(raw sources.RawCandidate, text, host string) ResourceType {
	switch {
	case videoHosts[host]:
		return TypeVideo
	case repositoryHosts[host]:
		return TypeRepository
	case isDocumentation(raw.URL, host):
		return TypeDocumentation
	case courseHosts[host]:
		return TypeCourse
	case strings.Contains(text, "book") || strings.Contains(text, "isbn") || bookHosts[host]:
		return TypeBook
	case containsAny(text, tutorialKeywords):
		return TypeTutorial
	case raw.DurationMinutes > 0 && raw.DurationMinutes < 30:
		return TypeArticle
	default:
		return TypeOther
	}
}

func isDocumentation(rawURL, host string) bool {
	if documentationHosts[host] {
		return true
	}
	if strings.HasPrefix(host, "docs.") || strings.HasSuffix(host, ".readthedocs.io") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "/docs") ||
		strings.Contains(path, "/documentation") ||
		strings.Contains(path, "/reference")
}

// detectDifficulty counts keyword hits per level. Beginner wins ties against
// advanced; a text with no level keywords falls back to counting
// prerequisite-style phrases (none of those reads as beginner too).
func detectDifficulty(text string) Difficulty {
	beginner := countMatches(text, beginnerKeywords)
	advanced := countMatches(text, advancedKeywords)
	intermediate := countMatches(text, intermediateKeywords)

	switch {
	case beginner > 0 && beginner >= advanced:
		return DifficultyBeginner
	case advanced > 0 && advanced > beginner:
		return DifficultyAdvanced
	case intermediate > 0:
		return DifficultyIntermediate
	}

	prereqs := countMatches(text, prerequisiteKeywords)
	switch {
	case prereqs == 0:
		return DifficultyBeginner
	case prereqs > 3:
		return DifficultyAdvanced
	default:
		return DifficultyIntermediate
	}
}

// detectPricing applies the pricing rules in precedence order.
func detectPricing(text, host string) Pricing {
	switch {
	case alwaysFreeHosts[host]:
		return PricingFree
	case containsAny(text, premiumKeywords):
		return PricingPremium
	case freemiumHosts[host]:
		return PricingFreemium
	case containsAny(text, freeKeywords):
		return PricingFree
	default:
		return PricingUnknown
	}
}

// qualityScore sums four weighted terms; each missing input substitutes a
// neutral value, so the result always lands in [0,100].
func qualityScore(raw sources.RawCandidate, host string) int {
	score := 0.0

	// rating: up to 40, neutral 20
	if raw.Rating > 0 {
		score += (math.Min(raw.Rating, 5) / 5) * 40
	} else {
		score += 20
	}

	// popularity: up to 25 on a log10 scale saturating at 10^6, neutral 10
	popularity := raw.ViewCount
	if popularity == 0 {
		popularity = raw.Stars
	}
	if popularity > 0 {
		score += math.Min(math.Log10(float64(popularity))/6, 1) * 25
	} else {
		score += 10
	}

	// recency: up to 20 with a 3-year linear decay, neutral 10
	when := raw.PublishedAt
	if when == nil {
		when = raw.LastUpdated
	}
	if when != nil {
		// Future dates (clock skew, bad source metadata) read as brand new,
		// not as a bonus beyond the term's weight.
		ageYears := time.Since(*when).Hours() / (24 * 365)
		score += math.Min(math.Max(0, 1-ageYears/3), 1) * 20
	} else {
		score += 10
	}

	// platform reputation: 10-15 for known hosts, 5 otherwise
	if rep, ok := hostReputation[host]; ok {
		score += float64(rep)
	} else {
		score += 5
	}

	return int(math.Round(score))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
