package kyc

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/quantra/internal/domain"
)

var (
	documentNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`),
		regexp.MustCompile(`\d{9,12}`),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
		regexp.MustCompile(`\d{4}[/-]\d{1,2}[/-]\d{1,2}`),
	}
)

// nameLines is how many leading lines are searched for a name.
const nameLines = 5

// ParseFields extracts structured fields from OCR text. Fields that are not
// found are left out; rawText is always set.
func ParseFields(text string) map[string]string {
	fields := map[string]string{domain.FieldRawText: text}

	if v := firstMatch(documentNumberPatterns, text); v != "" {
		fields[domain.FieldDocumentNumber] = v
	}
	if v := parseName(text); v != "" {
		fields[domain.FieldName] = v
	}
	if dates := allMatches(datePatterns, text); len(dates) > 0 {
		fields[domain.FieldDateOfBirth] = dates[0]
		fields[domain.FieldExpiryDate] = dates[len(dates)-1]
	}
	return fields
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// allMatches returns every match of the first pattern that matches at all.
func allMatches(patterns []*regexp.Regexp, text string) []string {
	for _, re := range patterns {
		if m := re.FindAllString(text, -1); len(m) > 0 {
			return m
		}
	}
	return nil
}

func parseName(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > nameLines {
		lines = lines[:nameLines]
	}
	for _, line := range lines {
		if len(strings.Fields(line)) >= 2 {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// InformationMatches reports whether the claimed document number appears in
// the extracted one, ignoring case.
func InformationMatches(claimed, extracted string) bool {
	return strings.Contains(strings.ToLower(extracted), strings.ToLower(claimed))
}
