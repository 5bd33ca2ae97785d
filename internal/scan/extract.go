package scan

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

const minReferenceLength = 5

var (
	// Order matters: absolute references first, then quoted site-relative ones.
	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)https?:\\?/\\?/[^\s"')<]+\.js(?:\?[^\s"')<]*)?`),
		regexp.MustCompile(`"(\\?/[^\s"]+\.js(?:\?[^\s"]*)?)"`),
		regexp.MustCompile(`'(\\?/[^\s']+\.js(?:\?[^\s']*)?)'`),
	}
	evalWorkerPattern = regexp.MustCompile(`(?i)"evalWorkerURL"\s*:\s*"([^"]+)"`)
	jsOnly            = harvest.ResourceFilter{Suffix: ".js"}
)

// ExtractURLs finds JavaScript references in text and returns them normalized
// against origin, without repeats, in first-seen order.
func ExtractURLs(text, origin string) []string {
	var found []string
	for _, re := range referencePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := m[0]
			if len(m) > 1 && m[1] != "" {
				raw = m[1]
			}
			if len(raw) < minReferenceLength {
				continue
			}
			resource, err := harvest.NormalizeResource(raw, origin)
			if err != nil || !jsOnly.Match(resource) {
				continue
			}
			found = append(found, resource)
		}
	}
	return harvest.Unique(found)
}

// ExtractEvalWorkers returns the normalized evalWorkerURL values in text.
// These scripts are only ever evaluated dynamically and must not be shipped.
func ExtractEvalWorkers(text, origin string) []string {
	var found []string
	for _, m := range evalWorkerPattern.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(m[1])
		if len(raw) < minReferenceLength {
			continue
		}
		resource, err := harvest.NormalizeResource(raw, origin)
		if err != nil {
			continue
		}
		found = append(found, resource)
	}
	return harvest.Unique(found)
}
