package models

import "time"

// TextUnit is one extracted unit of a source document: a page, slide, sheet or section.
// PageNumber is 1-based; 0 means the loader has no notion of pages.
type TextUnit struct {
	Content    string
	PageNumber int
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string `json:"page_content"`
	PageNumber int    `json:"page_number,omitempty"`
	Source     string `json:"source,omitempty"`
	ChunkID    int    `json:"chunk_id"`
}

// Point is a chunk paired with its embedding, the unit written to a vector index.
type Point struct {
	ID     string
	Vector []float32
	Chunk  Chunk
}

// Hit is one search result. Hits returned by an index are always ordered best first.
type Hit struct {
	Chunk Chunk
	Score float32
}

// CollectionInfo is the normalized description of a vector collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"vectors_count"`
	VectorSize int    `json:"vector_size"`
	Distance   string `json:"distance"`
}

// IndexResult is what the indexing pipeline reports after a successful run.
type IndexResult struct {
	CollectionName string
	UnitCount      int
	ChunkCount     int
}

// Answer is a grounded response. NoAnswer is set when retrieval found nothing to ground on.
type Answer struct {
	Query      string
	Collection string
	Model      string
	Text       string
	Citations  []Hit
	NoAnswer   bool
}

// Document is the registry record of one indexed upload.
type Document struct {
	ID             string    `json:"id"`
	CollectionName string    `json:"collection_name"`
	Filename       string    `json:"filename"`
	DocumentCount  int       `json:"document_count"`
	ChunkCount     int       `json:"chunk_count"`
	FileSize       int64     `json:"file_size"`
	UploadDate     time.Time `json:"upload_date"`
	StoragePath    string    `json:"storage_path"`
}
