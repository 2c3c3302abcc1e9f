package qdrant

import (
	"encoding/json"
	"fmt"
	"sort"

	"ragchat/internal/models"
)

// collectionInfo is the part of GET /collections/{name} we read. Counts moved and became
// optional across Qdrant releases, and vectors is either one config or a map of named ones.
type collectionInfo struct {
	PointsCount  *int `json:"points_count"`
	VectorsCount *int `json:"vectors_count"`
	Config       struct {
		Params struct {
			Vectors json.RawMessage `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

// vectorLayout says how vectors are addressed in a collection. An empty name is the default vector.
type vectorLayout struct {
	name     string
	distance string
}

func (l vectorLayout) pointVector(v []float32) any {
	if l.name == "" {
		return v
	}
	return map[string][]float32{l.name: v}
}

func (l vectorLayout) queryVector(v []float32) any {
	if l.name == "" {
		return v
	}
	return map[string]any{"name": l.name, "vector": v}
}

func (c collectionInfo) normalize(name string) (models.CollectionInfo, vectorLayout, error) {
	info := models.CollectionInfo{Name: name}
	switch {
	case c.PointsCount != nil:
		info.PointCount = *c.PointsCount
	case c.VectorsCount != nil:
		info.PointCount = *c.VectorsCount
	}

	params, vectorName, err := parseVectors(c.Config.Params.Vectors)
	if err != nil {
		return models.CollectionInfo{}, vectorLayout{}, fmt.Errorf("%w: collection %s: %v", models.ErrVectorStore, name, err)
	}
	info.VectorSize = params.Size
	info.Distance = params.Distance
	if info.Distance == "" {
		info.Distance = models.DistanceCosine
	}
	return info, vectorLayout{name: vectorName, distance: info.Distance}, nil
}

// parseVectors returns the params of the vector used for search and its name.
// With named vectors the first name in sorted order is used.
func parseVectors(raw json.RawMessage) (vectorParams, string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return vectorParams{}, "", nil
	}

	var single vectorParams
	if err := json.Unmarshal(raw, &single); err == nil && single.Size > 0 {
		return single, "", nil
	}

	var named map[string]vectorParams
	if err := json.Unmarshal(raw, &named); err != nil {
		return vectorParams{}, "", fmt.Errorf("unrecognized vectors config: %s", raw)
	}
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	if len(names) == 0 {
		return vectorParams{}, "", nil
	}
	sort.Strings(names)
	// the unnamed default vector is stored under ""
	return named[names[0]], names[0], nil
}
