// internal/search/query.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pmc-registration/internal/workflow"
)

const maxPageSize = 50

// Query narrows a search. Empty filters match everything.
type Query struct {
	Text          string
	Stages        []workflow.Stage
	PositionTypes []workflow.PositionType
	From          int
	Size          int
}

type Result struct {
	Total int64      `json:"total"`
	Items []Document `json:"items"`
}

// ForRole limits q to the position types role handles.
func ForRole(q Query, role workflow.Role) Query {
	allowed := workflow.ResponsibleFor(role)
	if len(q.PositionTypes) == 0 {
		q.PositionTypes = allowed
		return q
	}
	var keep []workflow.PositionType
	for _, pt := range q.PositionTypes {
		for _, a := range allowed {
			if pt == a {
				keep = append(keep, pt)
			}
		}
	}
	// nothing overlaps; an impossible filter keeps the result empty
	if keep == nil {
		keep = []workflow.PositionType{"-"}
	}
	q.PositionTypes = keep
	return q
}

func buildQuery(q Query) map[string]interface{} {
	must := []interface{}{}
	filter := []interface{}{}

	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"applicationNumber^3", "applicationNumber.text^2", "fullName^2", "email", "mobile", "certificateNumber"},
				"type":   "best_fields",
			},
		})
	}
	if len(q.Stages) > 0 {
		stages := make([]int, len(q.Stages))
		for i, s := range q.Stages {
			stages[i] = int(s)
		}
		filter = append(filter, map[string]interface{}{"terms": map[string]interface{}{"currentStage": stages}})
	}
	if len(q.PositionTypes) > 0 {
		filter = append(filter, map[string]interface{}{"terms": map[string]interface{}{"positionType": q.PositionTypes}})
	}
	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must, "filter": filter},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"updatedAt": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs q against the projection.
func (x *Index) Search(ctx context.Context, q Query) (*Result, error) {
	if q.Size <= 0 || q.Size > maxPageSize {
		q.Size = maxPageSize
	}
	if q.From < 0 {
		q.From = 0
	}
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, err
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.index),
		x.client.Search.WithBody(bytes.NewReader(body)),
		x.client.Search.WithFrom(q.From),
		x.client.Search.WithSize(q.Size),
		x.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s: %s", ErrSearchFailed, res.Status(), readBody(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchFailed, err)
	}
	out := &Result{Total: parsed.Hits.Total.Value, Items: make([]Document, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.Items = append(out.Items, h.Source)
	}
	return out, nil
}
