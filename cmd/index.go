package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ragchat/internal/helper"
	"ragchat/internal/models"
	"ragchat/internal/rag"
)

var (
	indexCollection string
	indexChunkSize  int
	indexOverlap    int
	indexDryRun     bool
)

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a local document and record it",
	Long: `Parses, chunks and embeds a local document into a vector collection, then records it
in the document registry. With --dry-run the chunks are printed and nothing is embedded or stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "collection name (derived from the filename when empty)")
	indexCmd.Flags().IntVar(&indexChunkSize, "chunk-size", 0, "chunk size in characters (config default when 0)")
	indexCmd.Flags().IntVar(&indexOverlap, "chunk-overlap", -1, "chunk overlap in characters (config default when negative)")
	indexCmd.Flags().BoolVar(&indexDryRun, "dry-run", false, "print chunks without embedding or storing them")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	req := rag.IndexRequest{
		Data:         data,
		Filename:     filepath.Base(path),
		Collection:   indexCollection,
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	}
	if indexChunkSize > 0 {
		req.ChunkSize = indexChunkSize
	}
	if indexOverlap >= 0 {
		req.ChunkOverlap = indexOverlap
	}

	if indexDryRun {
		collection, chunks, err := rag.NewIndexer(nil, nil, cfg).Preview(req)
		if err != nil {
			return err
		}
		cmd.Printf("collection: %s, chunks: %d\n", collection, len(chunks))
		helper.PrettyPrint(chunks)
		return nil
	}

	app, err := newApplication(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.indexer.Index(cmd.Context(), req)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	doc, err := rag.RecordDocument(cmd.Context(), app.documents, models.Document{
		CollectionName: res.CollectionName,
		Filename:       req.Filename,
		DocumentCount:  res.UnitCount,
		ChunkCount:     res.ChunkCount,
		FileSize:       int64(len(data)),
		StoragePath:    abs,
	})
	if err != nil {
		return err
	}
	cmd.Printf("indexed %s into %s: %d units, %d chunks (document %s)\n", req.Filename, res.CollectionName, res.UnitCount, res.ChunkCount, doc.ID)
	return nil
}
