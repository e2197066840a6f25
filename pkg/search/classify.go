package search

import (
	"strings"
)

var academicDomains = []string{
	"arxiv", "pubmed", "scholar", "jstor", "semantic",
	"researchgate", "springer", "nature", "science",
	"ieee", "acm.org", "doi.org",
}

var officialDomains = []string{
	"gov", "who.int", "un.org", "worldbank", "imf.org",
	"oecd.org", "wef.org", "europa.eu", "cdc.gov",
}

var newsDomains = []string{
	"reuters", "bbc", "nytimes", "guardian", "wsj",
	"bloomberg", "apnews", "cnbc", "economist",
}

// ClassifyTier buckets a URL into a reliability tier by domain matching.
// Unrecognized domains fall back to the web tier.
func ClassifyTier(url string) Tier {
	lower := strings.ToLower(url)
	if containsAny(lower, academicDomains) {
		return TierAcademic
	}
	if containsAny(lower, officialDomains) {
		return TierOfficial
	}
	if containsAny(lower, newsDomains) {
		return TierNews
	}
	return TierWeb
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
