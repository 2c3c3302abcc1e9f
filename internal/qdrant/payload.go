package qdrant

import "ragchat/internal/models"

func toPayload(c models.Chunk) map[string]any {
	p := map[string]any{
		models.PayloadText:    c.Content,
		models.PayloadSource:  c.Source,
		models.PayloadChunkID: c.ChunkID,
	}
	if c.PageNumber > 0 {
		p[models.PayloadPage] = c.PageNumber
	}
	return p
}

func fromPayload(p map[string]any) models.Chunk {
	var c models.Chunk
	c.Content, _ = p[models.PayloadText].(string)
	c.Source, _ = p[models.PayloadSource].(string)
	if v, ok := p[models.PayloadPage].(float64); ok {
		c.PageNumber = int(v)
	}
	if v, ok := p[models.PayloadChunkID].(float64); ok {
		c.ChunkID = int(v)
	}
	return c
}
