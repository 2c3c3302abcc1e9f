package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrEmptyDocument       = errors.New("document has no extractable text")
	ErrUnreadableDocument  = errors.New("document could not be read")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrCollectionNotFound  = errors.New("collection not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrEmbeddingFailure    = errors.New("embedding failure")
	ErrGenerationFailure   = errors.New("generation failure")
	ErrVectorStore         = errors.New("vector store failure")
)

// EmbeddingError reports which batch of an embedding request failed.
type EmbeddingError struct {
	Batch int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("failed to embed batch %d: %v", e.Batch, e.Err)
}

func (e *EmbeddingError) Unwrap() []error { return []error{ErrEmbeddingFailure, e.Err} }

// GenerationError wraps a failed LLM call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() []error { return []error{ErrGenerationFailure, e.Err} }

// CollectionNotFound returns an error naming the missing collection.
func CollectionNotFound(name string) error {
	return fmt.Errorf("%w: '%s'", ErrCollectionNotFound, name)
}

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidParameter, "invalid_parameter"},
	{ErrEmptyDocument, "empty_document"},
	{ErrUnreadableDocument, "unreadable_document"},
	{ErrUnsupportedFileType, "unsupported_file_type"},
	{ErrFileTooLarge, "file_too_large"},
	{ErrCollectionNotFound, "collection_not_found"},
	{ErrDocumentNotFound, "document_not_found"},
	{ErrEmbeddingFailure, "embedding_failure"},
	{ErrGenerationFailure, "generation_failure"},
	{ErrVectorStore, "vector_store_failure"},
}

// Kind maps an error to a stable, machine-readable kind.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsCallerError reports whether err was caused by bad input rather than a failing dependency.
func IsCallerError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidParameter),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrUnreadableDocument),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrCollectionNotFound),
		errors.Is(err, ErrDocumentNotFound):
		return true
	}
	return false
}
