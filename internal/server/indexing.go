package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"ragchat/internal/helper"
	"ragchat/internal/models"
	"ragchat/internal/parser"
	"ragchat/internal/rag"
)

func (s *Server) tooLarge() error {
	limit := s.Config.Upload.MaxSizeBytes
	return fmt.Errorf("%w: file size exceeds %.1f MB limit", models.ErrFileTooLarge, float64(limit)/(1024*1024))
}

// upload validates the file before anything is written, keeps a copy in storage, indexes it and
// records it. The stored copy is removed again if indexing or recording fails.
func (s *Server) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return fail(c, fmt.Errorf("%w: a file is required", models.ErrInvalidParameter), "")
	}
	if err := s.checkExtension(file.Filename); err != nil {
		return fail(c, err, "")
	}
	if file.Size > s.Config.Upload.MaxSizeBytes {
		return fail(c, s.tooLarge(), "")
	}

	f, err := file.Open()
	if err != nil {
		return fail(c, err, "Failed to open file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fail(c, err, "Failed to read file")
	}
	if len(data) == 0 {
		return fail(c, fmt.Errorf("%w: %s is empty", models.ErrEmptyDocument, file.Filename), "")
	}
	if err := parser.CheckContent(file.Filename, data); err != nil {
		return fail(c, err, "")
	}

	req := rag.IndexRequest{
		Data:       data,
		Filename:   file.Filename,
		Collection: param(c, "collection_name"),
	}
	if req.ChunkSize, err = intParam(c, "chunk_size", s.Config.RAG.ChunkSize); err != nil {
		return fail(c, err, "")
	}
	if req.ChunkOverlap, err = intParam(c, "chunk_overlap", s.Config.RAG.ChunkOverlap); err != nil {
		return fail(c, err, "")
	}
	if err := s.checkChunking(req.ChunkSize, req.ChunkOverlap); err != nil {
		return fail(c, err, "")
	}

	storagePath, err := helper.SaveUpload(s.Config.Upload.StorageDir, file.Filename, data, time.Now())
	if err != nil {
		return fail(c, err, "File storage error")
	}
	removeStored := func() {
		if err := os.Remove(storagePath); err != nil {
			log.Warn().Err(err).Str("path", storagePath).Msg("Failed to remove stored upload")
		}
	}

	res, err := s.Indexer.Index(c.UserContext(), req)
	if err != nil {
		removeStored()
		return fail(c, err, "Error processing document")
	}

	doc, err := rag.RecordDocument(c.UserContext(), s.Documents, models.Document{
		CollectionName: res.CollectionName,
		Filename:       file.Filename,
		DocumentCount:  res.UnitCount,
		ChunkCount:     res.ChunkCount,
		FileSize:       int64(len(data)),
		StoragePath:    storagePath,
	})
	if err != nil {
		removeStored()
		return fail(c, err, "Error saving document record")
	}

	return c.Status(fiber.StatusOK).JSON(UploadResponse{
		Message:        "Document successfully indexed and saved",
		DocumentID:     doc.ID,
		CollectionName: res.CollectionName,
		DocumentCount:  res.UnitCount,
		ChunkCount:     res.ChunkCount,
	})
}

func (s *Server) checkExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.Config.Upload.AllowedExtensions {
		if ext == strings.ToLower(allowed) && parser.Supported(filename) {
			return nil
		}
	}
	names := make([]string, len(s.Config.Upload.AllowedExtensions))
	for i, allowed := range s.Config.Upload.AllowedExtensions {
		names[i] = strings.ToUpper(strings.TrimPrefix(allowed, "."))
	}
	return fmt.Errorf("%w: only %s files are allowed", models.ErrUnsupportedFileType, strings.Join(names, ", "))
}

func (s *Server) checkChunking(size, overlap int) error {
	r := s.Config.RAG
	if size < r.MinChunkSize || size > r.MaxChunkSize {
		return fmt.Errorf("%w: chunk_size must be between %d and %d", models.ErrInvalidParameter, r.MinChunkSize, r.MaxChunkSize)
	}
	if overlap < 0 || overlap > r.MaxChunkOverlap || overlap >= size {
		return fmt.Errorf("%w: chunk_overlap must be between 0 and %d and smaller than chunk_size", models.ErrInvalidParameter, r.MaxChunkOverlap)
	}
	return nil
}

func (s *Server) listCollections(c *fiber.Ctx) error {
	infos, err := s.Index.List(c.UserContext())
	if err != nil {
		return fail(c, err, "Failed to list collections")
	}
	out := CollectionsResponse{Collections: make([]CollectionSummary, len(infos))}
	for i, info := range infos {
		out.Collections[i] = CollectionSummary{Name: info.Name, VectorsCount: info.PointCount}
	}
	return c.JSON(out)
}

func (s *Server) collectionInfo(c *fiber.Ctx) error {
	info, err := s.Index.Describe(c.UserContext(), c.Params("name"))
	if err != nil {
		return fail(c, err, "Failed to get collection info")
	}
	return c.JSON(CollectionInfoResponse{
		Name:         info.Name,
		VectorsCount: info.PointCount,
		Config:       CollectionConfig{VectorSize: info.VectorSize, Distance: info.Distance},
	})
}

// deleteCollection succeeds whether or not the collection exists.
func (s *Server) deleteCollection(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := s.Index.DeleteCollection(c.UserContext(), name); err != nil {
		return fail(c, err, "Failed to delete collection")
	}
	log.Info().Str("collection", name).Msg("Deleted collection")
	return c.JSON(MessageResponse{Message: fmt.Sprintf("Collection '%s' successfully deleted", name)})
}

// param reads a value from the query string, falling back to the multipart form.
func param(c *fiber.Ctx, key string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return c.FormValue(key)
}

func intParam(c *fiber.Ctx, key string, def int) (int, error) {
	v := param(c, key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidParameter, key)
	}
	return n, nil
}
