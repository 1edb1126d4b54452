package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/screwyprof/stakeledger/web/ledger"
)

// setPaginationLinks adds a GitHub-style Link header when there is somewhere to go
func setPaginationLinks[T any](w http.ResponseWriter, page ledger.Page[T], baseURL *url.URL) {
	if header := buildPaginationLinks(page, baseURL); header != "" {
		w.Header().Set("Link", header)
	}
}

// buildPaginationLinks creates GitHub-style Link header for pagination navigation
func buildPaginationLinks[T any](page ledger.Page[T], baseURL *url.URL) string {
	var links []string

	// Keep the other query parameters (filters) in every link
	u := *baseURL
	query := u.Query()

	if page.HasPrevious() {
		query.Set("page", fmt.Sprintf("%d", page.Number-1))
		query.Set("per_page", fmt.Sprintf("%d", page.Size))
		u.RawQuery = query.Encode()
		links = append(links, fmt.Sprintf(`<%s>; rel="prev"`, u.String()))
	}

	if page.HasNext() {
		query.Set("page", fmt.Sprintf("%d", page.Number+1))
		query.Set("per_page", fmt.Sprintf("%d", page.Size))
		u.RawQuery = query.Encode()
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, u.String()))
	}

	// No "first"/"last": "last" would need a count query
	return strings.Join(links, ", ")
}
