// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package hashtag extracts #tags from free-form post text.
package hashtag

import (
	"regexp"
	"strings"
)

// tagPattern matches a # followed by one or more letters, digits or
// underscores in any script, so "#çiçek" and "#2026hasat" both qualify.
var tagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// Extract returns the tags found in s, lowercased, without the leading #,
// deduplicated and in first-seen order. It never returns nil.
// Example: "Ekim #Domates, #domates #bahçe" → ["domates", "bahçe"]
func Extract(s string) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, m := range tagPattern.FindAllStringSubmatch(s, -1) {
		tag := strings.ToLower(m[1])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
