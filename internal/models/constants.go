package models

const (
	ContextSeparator = "\n\n---\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	// payload keys stored next to every vector
	PayloadText    = "text"
	PayloadPage    = "page"
	PayloadSource  = "source"
	PayloadChunkID = "chunk_id"

	NoAnswerText = "No relevant information found for this query."
)

var (
	SystemPromptTemplate = `You are a helpful assistant that answers questions using only the document context provided below.

Guidelines:
- Answer strictly from the context. Do not use outside knowledge.
- When a passage carries a page number, cite it, for example "(page 3)".
- If the context does not contain enough information to answer, say clearly that the document does not provide sufficient information.
- Keep the answer concise and well structured.

Context:
%s`

	SampleQuestionsPromptTemplate = `Based on the following document excerpt, generate %d interesting and specific questions a reader could ask about it.
Return only the questions, one per line, without numbering.

Excerpt:
%s`
)
