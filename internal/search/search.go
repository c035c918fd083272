package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/tipline/tipline/internal/models"
)

const TipIndex = "tips"

type Client struct {
	es    *elasticsearch.Client
	index string
}

func NewClient(url, user, password string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch: %s", res.Status())
	}

	return &Client{es: es, index: TipIndex}, nil
}

type tipDoc struct {
	ID       string  `json:"id"`
	AuthorID string  `json:"author_id"`
	Match    string  `json:"match"`
	Pick     string  `json:"pick"`
	Odds     float64 `json:"odds"`
	Analysis string  `json:"analysis"`
}

func (c *Client) IndexTip(ctx context.Context, tip *models.Tip) error {
	doc := tipDoc{
		ID:       tip.ID.String(),
		AuthorID: tip.AuthorID.String(),
		Match:    tip.Match,
		Pick:     tip.Pick,
		Odds:     tip.Odds,
		Analysis: tip.Analysis,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := c.es.Index(c.index, bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.ID),
	)
	if err != nil {
		return fmt.Errorf("index tip: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index tip: %s", res.Status())
	}
	return nil
}

func (c *Client) DeleteTip(ctx context.Context, id string) error {
	res, err := c.es.Delete(c.index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete tip: %w", err)
	}
	defer res.Body.Close()
	// 404 is fine, the doc may never have been indexed
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete tip: %s", res.Status())
	}
	return nil
}

type Results struct {
	Total int64    `json:"total"`
	IDs   []string `json:"ids"`
}

func (c *Client) SearchTips(ctx context.Context, rawQ string, from, size int) (*Results, error) {
	q := strings.TrimSpace(rawQ)
	if q == "" {
		return &Results{IDs: []string{}}, nil
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if from < 0 {
		from = 0
	}

	query := map[string]any{
		"from": from,
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"match^2", "pick", "analysis"},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search tips: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search tips: %s: %s", res.Status(), raw)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("search tips: decode: %w", err)
	}

	out := &Results{Total: parsed.Hits.Total.Value, IDs: make([]string, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.IDs = append(out.IDs, h.ID)
	}
	return out, nil
}
