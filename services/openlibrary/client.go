// Package openlibrary resolves book metadata from the Open Library books API.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/campushq/backend/core/library"
)

const defaultBaseURL = "https://openlibrary.org/api/books"

type Client struct {
	baseURL string
	http    *http.Client
}

var _ library.MetadataFinder = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

type bookData struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Cover struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
}

func (c *Client) LookupISBN(ctx context.Context, isbn string) (library.BookMeta, error) {
	q := make(url.Values)
	q.Set("bibkeys", "ISBN:"+isbn)
	q.Set("format", "json")
	q.Set("jscmd", "data")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return library.BookMeta{}, errors.Wrap(err, "building ISBN lookup request")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return library.BookMeta{}, errors.Wrap(err, "querying Open Library")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return library.BookMeta{}, errors.Errorf("Open Library responded %d", res.StatusCode)
	}

	var payload map[string]bookData
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return library.BookMeta{}, errors.Wrap(err, "decoding Open Library response")
	}

	data, ok := payload[fmt.Sprintf("ISBN:%s", isbn)]
	if !ok || data.Title == "" {
		return library.BookMeta{}, library.ErrISBNNotFound
	}

	meta := library.BookMeta{Title: data.Title}
	authors := make([]string, 0, len(data.Authors))
	for _, a := range data.Authors {
		authors = append(authors, a.Name)
	}
	meta.Author = strings.Join(authors, ", ")
	if len(data.Publishers) > 0 {
		meta.Publisher = data.Publishers[0].Name
	}
	switch {
	case data.Cover.Medium != "":
		meta.CoverURL = data.Cover.Medium
	case data.Cover.Large != "":
		meta.CoverURL = data.Cover.Large
	default:
		meta.CoverURL = data.Cover.Small
	}
	return meta, nil
}
