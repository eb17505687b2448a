// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/explainer-engine/internal/storage"
)

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Inspect stored videos",
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored videos, newest first",
	RunE:  runVideosList,
}

func runVideosList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.List(context.Background(), limit)
	if err != nil {
		return err
	}
	return formatRecords(os.Stdout, recs, jsonOutput)
}

func formatRecords(w io.Writer, recs []storage.Record, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No videos stored.")
		return nil
	}

	fmt.Fprintf(w, "%-20s  %-36s  %-30s  %-8s  %s\n", "Saved", "ID", "Query", "Duration", "Path")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, r := range recs {
		fmt.Fprintf(w, "%-20s  %-36s  %-30s  %-8s  %s\n",
			r.SavedAt.Local().Format("2006-01-02 15:04:05"), r.Video.ID, clip(r.Query, 30),
			r.Video.Duration.Round(time.Second), r.Video.Path)
	}
	fmt.Fprintf(w, "\n%d videos\n", len(recs))
	return nil
}

var videosShowCmd = &cobra.Command{
	Use:   "show [query...]",
	Short: "Show the latest video stored for a query",
	Long: `Show prints the most recent video saved for the exact query text. The
query must match what was passed to explain, including case and spacing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVideosShow,
}

func runVideosShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Lookup(context.Background(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Printf("%-10s  %s\n", "Query", rec.Query)
	fmt.Printf("%-10s  %s\n", "Key", rec.Key)
	return printVideo(os.Stdout, rec.Video, false)
}

func openStorage() (*storage.FileStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.NewFileStore(cfg.Storage, storage.WithLogger(logger))
}

func init() {
	videosListCmd.Flags().Int("limit", 20, "maximum videos to list (0 = all)")
	videosListCmd.Flags().Bool("json", false, "output as JSON")
	videosShowCmd.Flags().Bool("json", false, "output as JSON")

	videosCmd.AddCommand(videosListCmd)
	videosCmd.AddCommand(videosShowCmd)

	rootCmd.AddCommand(videosCmd)
}
