package server

import (
	"time"

	"ragchat/internal/models"
)

type ErrorResponse struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UploadResponse struct {
	Message        string `json:"message"`
	DocumentID     string `json:"document_id"`
	CollectionName string `json:"collection_name"`
	DocumentCount  int    `json:"document_count"`
	ChunkCount     int    `json:"chunk_count"`
}

type CollectionSummary struct {
	Name         string `json:"name"`
	VectorsCount int    `json:"vectors_count"`
}

type CollectionsResponse struct {
	Collections []CollectionSummary `json:"collections"`
}

type CollectionConfig struct {
	VectorSize int    `json:"vector_size"`
	Distance   string `json:"distance"`
}

type CollectionInfoResponse struct {
	Name         string           `json:"name"`
	VectorsCount int              `json:"vectors_count"`
	Config       CollectionConfig `json:"config"`
}

// ChatRequest is the body of POST /chat. MaxResults is a pointer so an absent value can take the default.
type ChatRequest struct {
	Query          string `json:"query"`
	CollectionName string `json:"collection_name"`
	MaxResults     *int   `json:"max_results"`
	Model          string `json:"model"`
}

type SearchResult struct {
	PageContent string  `json:"page_content"`
	PageNumber  *int    `json:"page_number,omitempty"`
	Source      string  `json:"source,omitempty"`
	Score       float32 `json:"score"`
}

type ChatResponse struct {
	Answer         string         `json:"answer"`
	Query          string         `json:"query"`
	CollectionName string         `json:"collection_name"`
	SearchResults  []SearchResult `json:"search_results"`
	ModelUsed      string         `json:"model_used"`
}

type QuestionsResponse struct {
	Questions []string `json:"questions"`
}

type DocumentResponse struct {
	ID             string    `json:"id"`
	CollectionName string    `json:"collection_name"`
	Filename       string    `json:"filename"`
	DocumentCount  int       `json:"document_count"`
	ChunkCount     int       `json:"chunk_count"`
	FileSize       int64     `json:"file_size"`
	UploadDate     time.Time `json:"upload_date"`
	StoragePath    string    `json:"storage_path"`
}

type DocumentListResponse struct {
	DocDetails   []DocumentResponse `json:"doc_details"`
	TotalRecords int                `json:"TotalRecords"`
}

func toDocumentResponse(d models.Document) DocumentResponse {
	return DocumentResponse(d)
}

func toSearchResults(hits []models.Hit) []SearchResult {
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = SearchResult{PageContent: h.Chunk.Content, Source: h.Chunk.Source, Score: h.Score}
		if h.Chunk.PageNumber > 0 {
			page := h.Chunk.PageNumber
			out[i].PageNumber = &page
		}
	}
	return out
}
