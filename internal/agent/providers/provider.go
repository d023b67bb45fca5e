// Package providers holds the external search sources retrieval can consult.
package providers

import (
	"context"
	"sort"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// QueryStyle is the query form a provider expects.
type QueryStyle int

const (
	// KeywordQuery is a short title-style query for title-indexed sources.
	KeywordQuery QueryStyle = iota
	// NaturalQuery is a self-contained question for web and semantic sources.
	NaturalQuery
)

// Document is one search hit.
type Document struct {
	Title   string
	URL     string
	Content string
}

// Provider searches one external source. Search may return zero documents.
type Provider interface {
	Name() string
	Style() QueryStyle
	Search(ctx context.Context, query string) ([]Document, error)
}

// Registry maps provider names to implementations.
type Registry map[string]Provider

func NewRegistry(ps ...Provider) Registry {
	r := Registry{}
	for _, p := range ps {
		r[p.Name()] = p
	}
	return r
}

// Select returns the providers named in names, in name order.
// An unknown name is a configuration error.
func (r Registry) Select(names []string) ([]Provider, error) {
	out := make([]Provider, 0, len(names))
	for _, n := range names {
		p, ok := r[n]
		if !ok {
			return nil, errx.Configuration("unknown search provider %q", n)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Names lists the registered providers.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for n := range r {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
