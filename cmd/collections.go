package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	exportCollection string
	exportPath       string
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List vector collections",
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

var deleteCollectionCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a vector collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteCollection,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a chromem collection to an encrypted file",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportCollection, "collection", "", "collection to export")
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "destination file")
	_ = exportCmd.MarkFlagRequired("collection")
	_ = exportCmd.MarkFlagRequired("output")
	collectionsCmd.AddCommand(deleteCollectionCmd, exportCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, _ []string) error {
	app, err := newApplication(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	infos, err := app.index.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		cmd.Println("No collections found.")
		return nil
	}
	for _, info := range infos {
		cmd.Printf("%-40s %8d points  dim %-5d %s\n", info.Name, info.PointCount, info.VectorSize, info.Distance)
	}
	return nil
}

func runDeleteCollection(cmd *cobra.Command, args []string) error {
	app, err := newApplication(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.index.DeleteCollection(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("Collection '%s' successfully deleted\n", args[0])
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	app, err := newApplication(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.chromem == nil {
		return errors.New("export is only available with the chromem vector store")
	}
	if err := app.chromem.Export(cmd.Context(), exportCollection, exportPath); err != nil {
		return err
	}
	cmd.Printf("Exported %s to %s\n", exportCollection, exportPath)
	return nil
}
