package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"ragchat/internal/models"
	"ragchat/internal/rag"
)

func (s *Server) chat(c *fiber.Ctx) error {
	var body ChatRequest
	if err := c.BodyParser(&body); err != nil {
		return fail(c, fmt.Errorf("%w: malformed request body", models.ErrInvalidParameter), "")
	}

	req := rag.AnswerRequest{Query: body.Query, Collection: body.CollectionName, Model: body.Model}
	if body.MaxResults != nil {
		req.K = *body.MaxResults
		if req.K == 0 {
			return fail(c, fmt.Errorf("%w: max_results must be at least 1", models.ErrInvalidParameter), "")
		}
	}
	// rejected here so invalid requests never reach retrieval
	if err := s.Retriever.Validate(&req); err != nil {
		return fail(c, err, "")
	}

	answer, err := s.Retriever.Answer(c.UserContext(), req)
	if err != nil {
		return fail(c, err, "Internal server error")
	}
	if answer.NoAnswer {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Kind: "no_answer", Detail: models.NoAnswerText})
	}

	return c.JSON(ChatResponse{
		Answer:         answer.Text,
		Query:          answer.Query,
		CollectionName: answer.Collection,
		SearchResults:  toSearchResults(answer.Citations),
		ModelUsed:      answer.Model,
	})
}

func (s *Server) sampleQuestions(c *fiber.Ctx) error {
	limit, err := intParam(c, "limit", s.Config.RAG.SampleQuestions)
	if err != nil {
		return fail(c, err, "")
	}
	questions, err := s.Retriever.SampleQuestions(c.UserContext(), c.Params("collection"), limit)
	if err != nil {
		return fail(c, err, "Failed to generate sample questions")
	}
	return c.JSON(QuestionsResponse{Questions: questions})
}
