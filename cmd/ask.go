package main

import (
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/models"
	"ragchat/internal/rag"
)

var (
	askK     int
	askModel string
)

var askCmd = &cobra.Command{
	Use:   "ask <collection> <query>",
	Short: "Answer a question from an indexed collection",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askK, "k", 0, "number of chunks to retrieve (config default when 0)")
	askCmd.Flags().StringVar(&askModel, "model", "", "chat model (config default when empty)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := newApplication(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	answer, err := app.retriever.Answer(cmd.Context(), rag.AnswerRequest{
		Collection: args[0],
		Query:      strings.Join(args[1:], " "),
		K:          askK,
		Model:      askModel,
	})
	if err != nil {
		return err
	}
	if answer.NoAnswer {
		cmd.Println(models.NoAnswerText)
		return nil
	}

	cmd.Printf("%s\n\n", answer.Text)
	cmd.Println("Sources:")
	for i, hit := range answer.Citations {
		cmd.Printf("[%d] page %d %s (score %.3f)\n", i+1, hit.Chunk.PageNumber, hit.Chunk.Source, hit.Score)
	}
	return nil
}
