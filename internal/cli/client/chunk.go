package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atedays1/ate-days-homebase-sub000/internal/config"
	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/extract"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

// ChunkView is one chunk in a chunking preview.
type ChunkView struct {
	Index          int     `json:"chunk_index" yaml:"chunk_index"`
	Type           string  `json:"chunk_type" yaml:"chunk_type"`
	HeadingContext *string `json:"heading_context,omitempty" yaml:"heading_context,omitempty"`
	PageNumber     *int    `json:"page_number,omitempty" yaml:"page_number,omitempty"`
	Length         int     `json:"length" yaml:"length"`
	Content        string  `json:"content" yaml:"content"`
}

// ChunkPreview is the chunk command output for one document.
type ChunkPreview struct {
	Document     string      `json:"document" yaml:"document"`
	ContentType  string      `json:"content_type" yaml:"content_type"`
	ChunkSize    int         `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int         `json:"chunk_overlap" yaml:"chunk_overlap"`
	Chunks       []ChunkView `json:"chunks" yaml:"chunks"`
}

// ChunkCmd creates the chunk command, a dry run of extraction and chunking.
func ChunkCmd() *cobra.Command {
	var (
		format       string
		outFile      string
		chunkSize    int
		chunkOverlap int
	)

	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Preview how a document is chunked",
		Long:  "Extracts and chunks a local document without storing it, printing the chunks as JSON or YAML.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("invalid format %q (use json or yaml)", format)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			chunkCfg := cfg.ChunkConfig()
			if cmd.Flags().Changed("chunk-size") {
				chunkCfg.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				chunkCfg.ChunkOverlap = chunkOverlap
			}

			preview, err := previewChunks(cmd, args[0], chunkCfg, cfg.MaxUploadBytes)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := writePreview(w, preview, format); err != nil {
				return err
			}
			if outFile != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d chunks to %s\n", len(preview.Chunks), outFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the preview to a file instead of stdout")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Target chunk size in characters (default from HOMEBASE_CHUNK_SIZE)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Characters carried over between chunks (default from HOMEBASE_CHUNK_OVERLAP)")

	return cmd
}

func previewChunks(cmd *cobra.Command, path string, chunkCfg service.ChunkConfig, maxBytes int64) (*ChunkPreview, error) {
	contentType, err := domain.ContentTypeFromFilename(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := extract.ReadAll(f, maxBytes)
	if err != nil {
		return nil, err
	}

	extraction, err := extract.New().Extract(cmd.Context(), contentType, data)
	if err != nil {
		return nil, err
	}

	chunker := service.NewChunker(chunkCfg)
	records := chunker.ChunkPages(extraction.Text, extraction.Pages)
	return buildPreview(filepath.Base(path), contentType, chunker.Config(), records), nil
}

func buildPreview(name string, contentType domain.ContentType, cfg service.ChunkConfig, records []domain.ChunkRecord) *ChunkPreview {
	preview := &ChunkPreview{
		Document:     name,
		ContentType:  string(contentType),
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Chunks:       make([]ChunkView, 0, len(records)),
	}
	for _, r := range records {
		preview.Chunks = append(preview.Chunks, ChunkView{
			Index:          r.ChunkIndex,
			Type:           r.ChunkType.String(),
			HeadingContext: r.HeadingContext,
			PageNumber:     r.PageNumber,
			Length:         len([]rune(r.Content)),
			Content:        r.Content,
		})
	}
	return preview
}

func writePreview(w io.Writer, preview *ChunkPreview, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(preview); err != nil {
			return err
		}
		return enc.Close()
	}
	return writeJSON(w, preview)
}
