package app

import "strings"

// fragmentDelimiters split a clinical note into candidate phenotype
// phrases before the conjunction pass.
const fragmentDelimiters = ".;,\n!?"

// splitFreeText breaks a clinical note into phenotype-sized fragments:
// sentence and list delimiters first, then the conjunction "and" inside each
// piece. Fragments are trimmed; empty ones are dropped.
func splitFreeText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(fragmentDelimiters, r)
	})

	var fragments []string
	for _, piece := range pieces {
		for _, frag := range splitConjunction(piece) {
			frag = strings.TrimSpace(frag)
			if frag != "" {
				fragments = append(fragments, frag)
			}
		}
	}
	return fragments
}

// splitConjunction splits on the standalone word "and", case-insensitive.
// Substring hits inside words ("candida") are left alone.
func splitConjunction(piece string) []string {
	words := strings.Fields(piece)
	var out []string
	var current []string
	for _, w := range words {
		if strings.EqualFold(w, "and") {
			if len(current) > 0 {
				out = append(out, strings.Join(current, " "))
				current = current[:0]
			}
			continue
		}
		current = append(current, w)
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}
