// Package server exposes indexing, chat and document registry endpoints over HTTP.
package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"ragchat/internal/config"
	"ragchat/internal/models"
	"ragchat/internal/rag"
)

// DocumentRegistry stores one record per indexed upload.
type DocumentRegistry interface {
	rag.DocumentStore
	List(ctx context.Context, limit, offset int) ([]models.Document, error)
	Count(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id string) (models.Document, error)
	Delete(ctx context.Context, id string) (models.Document, error)
}

type Deps struct {
	Config    *config.Config
	Index     rag.VectorIndex
	Indexer   *rag.Indexer
	Retriever *rag.Retriever
	Documents DocumentRegistry
}

type Server struct {
	app *fiber.App
	Deps
}

func New(deps Deps) *Server {
	s := &Server{Deps: deps}
	s.app = fiber.New(fiber.Config{
		AppName: "ragchat " + deps.Config.Server.Version,
		// bodies past this limit never reach a handler; errorHandler reports them as oversize uploads
		BodyLimit:             int(deps.Config.Upload.MaxSizeBytes)*2 + 1<<20,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New())
	s.app.Use(logger.New())

	s.app.Get("/", s.health)

	indexing := s.app.Group("/indexing")
	indexing.Post("/upload", s.upload)
	indexing.Get("/collections", s.listCollections)
	indexing.Get("/collections/:name", s.collectionInfo)
	indexing.Delete("/collections/:name", s.deleteCollection)

	chat := s.app.Group("/chat")
	chat.Post("/", s.chat)
	chat.Get("/:collection/sample", s.sampleQuestions)

	files := s.app.Group("/files")
	files.Get("/", s.listFiles)
	files.Get("/:id", s.getFile)
	files.Delete("/:id", s.deleteFile)

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	log.Info().Str("addr", addr).Str("vector_store", s.Config.VectorStore.Type).Msg("Server starting")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Message: "RagChat API is running",
		Version: s.Config.Server.Version,
	})
}

// errorHandler renders errors that escape a handler, mostly routing errors raised by fiber itself.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code == fiber.StatusRequestEntityTooLarge {
		return fail(c, s.tooLarge(), "")
	}
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Kind: "http_error", Detail: fe.Message})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Kind: "internal", Detail: "Internal server error"})
}

// fail maps err to a status and writes it. Infrastructure failures are logged and answered with
// the generic message so dependency details stay out of responses.
func fail(c *fiber.Ctx, err error, generic string) error {
	status := statusFor(err)
	kind := models.Kind(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("kind", kind).Str("method", c.Method()).Str("path", c.Path()).Msg(generic)
		return c.Status(status).JSON(ErrorResponse{Kind: kind, Detail: generic})
	}
	log.Debug().Err(err).Str("kind", kind).Str("path", c.Path()).Msg("Request rejected")
	return c.Status(status).JSON(ErrorResponse{Kind: kind, Detail: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrCollectionNotFound), errors.Is(err, models.ErrDocumentNotFound):
		return fiber.StatusNotFound
	case models.IsCallerError(err):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}
