package domain

// TermKind classifies how a search term was extracted from the post.
type TermKind string

const (
	TermFullText     TermKind = "full_text"
	TermQuotedPhrase TermKind = "quoted_phrase"
	TermHashtag      TermKind = "hashtag"
	TermCapitalized  TermKind = "capitalized_term"
)

// QueryTerm is one extracted search term.
type QueryTerm struct {
	Term string
	Kind TermKind
}

// SearchQuery is an ordered list of terms; insertion order is priority
// order, extraction caps the length.
type SearchQuery []QueryTerm

// Terms returns the raw term strings in priority order.
func (q SearchQuery) Terms() []string {
	out := make([]string, len(q))
	for i, t := range q {
		out[i] = t.Term
	}
	return out
}
