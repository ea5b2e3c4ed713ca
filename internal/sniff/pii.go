package sniff

import (
	"regexp"
	"strings"

	"github.com/csvpilot/csvpilot/internal/domain"
)

// piiConfidenceFloor is the threshold above which a column is flagged.
const piiConfidenceFloor = 0.3

// nameMatchConfidence is assigned when a column name matches a vocabulary.
const nameMatchConfidence = 0.8

// piiTypes fixes the evaluation order so detection is deterministic.
var piiTypes = []domain.PIIType{
	domain.PIITypeEmail,
	domain.PIITypePhone,
	domain.PIITypeName,
	domain.PIITypeAddress,
}

// piiVocab lists column-name fragments per PII type, matched against the
// lowercased column name.
var piiVocab = map[domain.PIIType][]string{
	domain.PIITypeEmail: {"email", "e-mail", "mail"},
	domain.PIITypePhone: {"phone", "mobile", "telephone", "tel", "cell", "fax"},
	domain.PIITypeName: {
		"name", "firstname", "first_name", "lastname", "last_name",
		"fullname", "full_name", "surname",
	},
	domain.PIITypeAddress: {
		"address", "street", "city", "zip", "postal", "postcode",
		"country", "state",
	},
}

// piiPatterns match individual sample values per PII type.
var piiPatterns = map[domain.PIIType]*regexp.Regexp{
	domain.PIITypeEmail:   regexp.MustCompile(`^[\w.%+-]+@[\w-]+\.[\w.-]{2,}$`),
	domain.PIITypePhone:   regexp.MustCompile(`^\+?[\d][\d\s().-]{6,18}[\d]$`),
	domain.PIITypeName:    regexp.MustCompile(`^[A-Z][a-z]+(?: [A-Z][a-z]+)+$`),
	domain.PIITypeAddress: regexp.MustCompile(`^\d+\s+[A-Za-z].*$`),
}

// DetectPII flags each column by first matching its lowercased name against
// the vocabularies (confidence 0.8), then testing sample values against the
// per-type patterns; a match ratio above 0.3 that beats the current
// confidence overrides the verdict. Columns below the 0.3 floor stay
// unflagged with type "other".
func DetectPII(columns []string, rows [][]string) map[string]domain.PIIFlag {
	flags := make(map[string]domain.PIIFlag, len(columns))

	for idx, column := range columns {
		flag := domain.PIIFlag{Type: domain.PIITypeOther}

		lower := strings.ToLower(column)
		for _, t := range piiTypes {
			if matchesVocab(lower, piiVocab[t]) {
				flag.Type = t
				flag.Confidence = nameMatchConfidence
				break
			}
		}

		values := columnValues(rows, idx)
		for _, t := range piiTypes {
			ratio := matchRatio(values, piiPatterns[t])
			if ratio > piiConfidenceFloor && ratio > flag.Confidence {
				flag.Type = t
				flag.Confidence = ratio
			}
		}

		flag.IsPII = flag.Confidence > piiConfidenceFloor
		flags[column] = flag
	}

	return flags
}

func matchesVocab(lower string, vocab []string) bool {
	for _, term := range vocab {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func columnValues(rows [][]string, idx int) []string {
	var values []string
	for _, row := range rows {
		if idx < len(row) && row[idx] != "" {
			values = append(values, row[idx])
		}
	}
	return values
}

func matchRatio(values []string, pattern *regexp.Regexp) float64 {
	if len(values) == 0 {
		return 0
	}
	matched := 0
	for _, v := range values {
		if pattern.MatchString(v) {
			matched++
		}
	}
	return float64(matched) / float64(len(values))
}
