package utils

import (
	"regexp"
	"strings"
)

var subjectPrefixRegex = regexp.MustCompile(`(?i)^(Re|Fwd|Fw|Aw|Sv)(\[\d+\])?:\s*`)

// NormalizeEmailSubject strips reply/forward prefixes and collapses whitespace.
// Clients chain prefixes ("Re: Fwd: Re[2]: ..."), so stripping repeats until
// the subject is stable.
func NormalizeEmailSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for subjectPrefixRegex.MatchString(subject) {
		subject = subjectPrefixRegex.ReplaceAllString(subject, "")
		subject = strings.TrimSpace(subject)
	}
	subject = strings.Join(strings.Fields(subject), " ")
	return strings.ToLower(subject)
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// ExtractEmailAddress pulls the bare address out of a "Name <addr>" form.
func ExtractEmailAddress(address string) string {
	address = strings.TrimSpace(address)
	if strings.Contains(address, "<") && strings.Contains(address, ">") {
		startIdx := strings.LastIndex(address, "<") + 1
		endIdx := strings.LastIndex(address, ">")
		if startIdx > 0 && endIdx > startIdx {
			address = address[startIdx:endIdx]
		}
	}
	return strings.TrimSpace(address)
}

func ExtractDomainFromEmail(email string) string {
	if email == "" {
		return ""
	}

	email = ExtractEmailAddress(email)

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(parts[1]))
}

func IsStringInSlice(s string, slice []string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// ContainsFold reports whether the slice holds s under case-insensitive compare.
func ContainsFold(slice []string, s string) bool {
	for _, v := range slice {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// UniqueEmailsFold deduplicates addresses case-insensitively, preserving the
// first-seen spelling.
func UniqueEmailsFold(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	unique := make([]string, 0, len(emails))

	for _, email := range emails {
		key := strings.ToLower(strings.TrimSpace(email))
		if key == "" {
			continue
		}
		if _, exists := seen[key]; !exists {
			seen[key] = struct{}{}
			unique = append(unique, strings.TrimSpace(email))
		}
	}

	return unique
}
