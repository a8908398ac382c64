package convo

import (
	"regexp"
	"strconv"
	"strings"
)

// Platforms is the fixed ordered menu of supported trading platforms. Menu
// digits 1-6 map positionally onto this list.
var Platforms = []string{
	"XYZ Options",
	"ABC Index",
	"Binex",
	"Quotex Pro",
	"Platform 5",
	"Platform 6",
}

// MatchPlatform finds the platform a free-text message refers to. Name
// substring matches are checked across the whole list before menu digits,
// and the first hit in list order wins either way.
func MatchPlatform(message string) (string, bool) {
	lowered := strings.ToLower(message)
	for _, platform := range Platforms {
		if strings.Contains(lowered, strings.ToLower(platform)) {
			return platform, true
		}
	}
	for i, platform := range Platforms {
		if strings.Contains(message, strconv.Itoa(i+1)) {
			return platform, true
		}
	}
	return "", false
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// AcceptableName reports whether the trimmed message can be taken as the
// client's name: 2-100 characters and not composed entirely of digits.
func AcceptableName(message string) (string, bool) {
	name := strings.TrimSpace(message)
	if len(name) < 2 || len(name) > 100 {
		return "", false
	}
	if digitsOnly.MatchString(name) {
		return "", false
	}
	return name, true
}
