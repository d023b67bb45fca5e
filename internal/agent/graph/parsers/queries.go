package parsers

import "fmt"

// Queries are the two query forms produced by the shared query generation call.
type Queries struct {
	// Keyword is a short title-style query for title-indexed providers.
	Keyword string
	// Natural is a self-contained question for web and semantic providers.
	Natural string
}

// ParseQueries reads {"keyword_query": ..., "natural_query": ...}. A missing form
// is filled from the other one; both missing is an error.
func ParseQueries(content string) (Queries, error) {
	obj, err := extractObject("query_parser", content)
	if err != nil {
		return Queries{}, err
	}
	q := Queries{
		Keyword: field(obj, "keyword_query"),
		Natural: field(obj, "natural_query"),
	}
	switch {
	case q.Keyword == "" && q.Natural == "":
		return Queries{}, fmt.Errorf("reply has neither keyword_query nor natural_query: %q", snippet(content))
	case q.Keyword == "":
		q.Keyword = q.Natural
	case q.Natural == "":
		q.Natural = q.Keyword
	}
	return q, nil
}
