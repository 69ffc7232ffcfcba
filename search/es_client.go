package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"multiblog-api/models"
)

// ES mirrors posts into an index. The store stays the source of truth:
// searches return ids only and callers load the records themselves.
type ES struct {
	Client *es8.Client
	Index  string
}

func New(esURL, index string) (*ES, error) {
	es, err := es8.NewClient(es8.Config{Addresses: []string{esURL}, Transport: &http.Transport{}})
	if err != nil {
		return nil, err
	}
	return &ES{Client: es, Index: index}, nil
}

const mapping = `{
  "mappings": {
    "properties": {
      "id":         {"type":"long"},
      "author_id":  {"type":"long"},
      "author":     {"type":"keyword"},
      "title":      {"type":"text", "fields": {"keyword": {"type":"keyword"}}},
      "content":    {"type":"text"},
      "tags":       {"type":"keyword"},
      "created_at": {"type":"date"},
      "updated_at": {"type":"date"}
    }
  }
}`

// EnsureIndex creates the index with its mapping unless it already exists.
func (e *ES) EnsureIndex(ctx context.Context) error {
	res, err := e.Client.Indices.Exists([]string{e.Index}, e.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	res, err = e.Client.Indices.Create(e.Index,
		e.Client.Indices.Create.WithContext(ctx),
		e.Client.Indices.Create.WithBody(strings.NewReader(mapping)))
	if err != nil {
		return err
	}
	return drain(res)
}

type document struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Author    string    `json:"author"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *ES) IndexPost(ctx context.Context, p models.Post) error {
	b, err := json.Marshal(document{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Author:    p.Author.Username,
		Title:     p.Title,
		Content:   p.Content,
		Tags:      p.Tags,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	})
	if err != nil {
		return err
	}
	res, err := e.Client.Index(e.Index, bytes.NewReader(b),
		e.Client.Index.WithContext(ctx),
		e.Client.Index.WithDocumentID(strconv.FormatInt(p.ID, 10)))
	if err != nil {
		return err
	}
	return drain(res)
}

func (e *ES) DeletePost(ctx context.Context, id int64) error {
	res, err := e.Client.Delete(e.Index, strconv.FormatInt(id, 10), e.Client.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil
	}
	return drain(res)
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// SearchIDs runs a case-insensitive title substring match combined with an
// exact tag match, newest first.
func (e *ES) SearchIDs(ctx context.Context, f models.PostFilter) ([]int64, error) {
	filters := []any{}
	if f.Keyword != "" {
		filters = append(filters, map[string]any{
			"wildcard": map[string]any{
				"title.keyword": map[string]any{
					"value":            "*" + wildcardEscaper.Replace(f.Keyword) + "*",
					"case_insensitive": true,
				},
			},
		})
	}
	if f.Tag != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"tags": f.Tag}})
	}
	body := map[string]any{
		"from":    f.Offset,
		"size":    f.Limit,
		"_source": false,
		"query":   map[string]any{"bool": map[string]any{"filter": filters}},
		"sort":    []any{map[string]any{"created_at": "desc"}, map[string]any{"id": "desc"}},
	}
	return e.searchIDs(ctx, body)
}

// RelatedIDs finds posts sharing a tag, excluding the post itself.
func (e *ES) RelatedIDs(ctx context.Context, tags []string, excludeID int64, size int) ([]int64, error) {
	body := map[string]any{
		"size":    size,
		"_source": false,
		"query": map[string]any{
			"bool": map[string]any{
				"must_not": []any{
					map[string]any{"term": map[string]any{"_id": strconv.FormatInt(excludeID, 10)}},
				},
				"should": []any{
					map[string]any{"terms": map[string]any{"tags": tags}},
				},
				"minimum_should_match": 1,
			},
		},
		"sort": []any{map[string]any{"created_at": "desc"}, map[string]any{"id": "desc"}},
	}
	return e.searchIDs(ctx, body)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ES) searchIDs(ctx context.Context, body map[string]any) ([]int64, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.Index),
		e.Client.Search.WithBody(bytes.NewReader(b)))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.String())
	}
	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	ids := make([]int64, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func drain(res *esapi.Response) error {
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch: %s", res.String())
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
