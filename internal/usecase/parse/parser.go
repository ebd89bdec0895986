// Package parse turns raw synthesis text into structured explanation
// bullets. Deterministic and pure: same input, same bullets.
package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
)

const (
	// maxBullets bounds the explanation length.
	maxBullets = 5
	// minLineLen drops stray punctuation and noise lines.
	minLineLen = 10
)

var (
	bulletMarkerRegex = regexp.MustCompile(`^[\x{2022}\-\*]\s*`)
	enumerationRegex  = regexp.MustCompile(`^\d+[\.\)]\s*`)
	citationRegex     = regexp.MustCompile(`\[(\d+)\]`)
)

// Parse splits raw synthesis output into at most 5 bullets. Leading
// bullet markers and enumerations are stripped, short lines dropped,
// original order kept. Citation markers [n] stay in the display text;
// their ids are collected into CitedIDs, deduplicated and sorted.
func Parse(raw string) []domain.Bullet {
	bullets := make([]domain.Bullet, 0, maxBullets)

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cleaned := bulletMarkerRegex.ReplaceAllString(line, "")
		cleaned = enumerationRegex.ReplaceAllString(cleaned, "")
		if utf8.RuneCountInString(cleaned) <= minLineLen {
			continue
		}

		bullets = append(bullets, domain.Bullet{
			Text:     cleaned,
			CitedIDs: citedIDs(cleaned),
		})
		if len(bullets) == maxBullets {
			break
		}
	}

	return bullets
}

// ClampCitations drops cited ids outside 1..sourceCount. Out-of-range
// markers stay in the bullet text; only the structured ids are dropped.
func ClampCitations(bullets []domain.Bullet, sourceCount int) []domain.Bullet {
	for i, b := range bullets {
		kept := b.CitedIDs[:0]
		for _, id := range b.CitedIDs {
			if id >= 1 && id <= sourceCount {
				kept = append(kept, id)
			}
		}
		bullets[i].CitedIDs = kept
	}
	return bullets
}

// citedIDs extracts [n] markers as a sorted, deduplicated id list.
func citedIDs(text string) []int {
	seen := make(map[int]struct{})
	for _, m := range citationRegex.FindAllStringSubmatch(text, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || id < 1 {
			continue
		}
		seen[id] = struct{}{}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
