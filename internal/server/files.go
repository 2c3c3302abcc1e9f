package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"ragchat/internal/models"
)

const maxPageSize = 100

func (s *Server) listFiles(c *fiber.Ctx) error {
	page, err := intParam(c, "page_number", 1)
	if err != nil {
		return fail(c, err, "")
	}
	size, err := intParam(c, "page_size", 10)
	if err != nil {
		return fail(c, err, "")
	}
	if page < 1 {
		return fail(c, fmt.Errorf("%w: page_number starts from 1", models.ErrInvalidParameter), "")
	}
	if size < 1 || size > maxPageSize {
		return fail(c, fmt.Errorf("%w: page_size must be between 1 and %d", models.ErrInvalidParameter, maxPageSize), "")
	}

	docs, err := s.Documents.List(c.UserContext(), size, (page-1)*size)
	if err != nil {
		return fail(c, err, "Error fetching documents")
	}
	total, err := s.Documents.Count(c.UserContext())
	if err != nil {
		return fail(c, err, "Error fetching documents")
	}

	out := DocumentListResponse{DocDetails: make([]DocumentResponse, len(docs)), TotalRecords: total}
	for i, d := range docs {
		out.DocDetails[i] = toDocumentResponse(d)
	}
	return c.JSON(out)
}

func (s *Server) getFile(c *fiber.Ctx) error {
	doc, err := s.Documents.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err, "Error fetching document")
	}
	return c.JSON(toDocumentResponse(doc))
}

func (s *Server) deleteFile(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.Documents.Delete(c.UserContext(), id); err != nil {
		return fail(c, err, "Error deleting document")
	}
	return c.JSON(MessageResponse{Message: fmt.Sprintf("Document %s deleted successfully", id)})
}
