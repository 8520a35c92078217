package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Page is one page of a list response following the nextLink convention.
type Page[T any] struct {
	Items    []T    `json:"value"`
	NextLink string `json:"nextLink"`
}

// Pager walks a paged collection. Callers loop while More() and call
// NextPage.
type Pager[T any] struct {
	pl       Pipeline
	nextLink string
	done     bool
}

// NewPager starts a pager at the given list URL.
func NewPager[T any](pl Pipeline, firstLink string) *Pager[T] {
	return &Pager[T]{pl: pl, nextLink: firstLink}
}

// More reports whether another page is available.
func (p *Pager[T]) More() bool {
	return !p.done
}

// NextPage fetches the next page. Calling it after the last page returns
// an error.
func (p *Pager[T]) NextPage(ctx context.Context) (Page[T], error) {
	if p.done {
		return Page[T]{}, fmt.Errorf("no more pages")
	}

	req, err := NewRequest(ctx, http.MethodGet, p.nextLink)
	if err != nil {
		return Page[T]{}, err
	}
	resp, err := p.pl.Do(req)
	if err != nil {
		return Page[T]{}, err
	}
	defer resp.Body.Close()

	if !HasStatusCode(resp, http.StatusOK) {
		return Page[T]{}, NewResponseError(resp)
	}

	var page Page[T]
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page[T]{}, fmt.Errorf("failed to decode page: %w", err)
	}

	if page.NextLink == "" {
		p.done = true
	} else {
		p.nextLink = p.resolve(page.NextLink)
	}
	return page, nil
}

// resolve handles services that return nextLink relative to the endpoint.
func (p *Pager[T]) resolve(link string) string {
	next, err := url.Parse(link)
	if err != nil || next.IsAbs() {
		return link
	}
	base, err := url.Parse(p.nextLink)
	if err != nil {
		return link
	}
	return base.ResolveReference(next).String()
}
