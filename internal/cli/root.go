// Package cli implements the isore command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isore/isore/heif"
	"github.com/isore/isore/internal/config"
	"github.com/isore/isore/internal/output"
)

// app holds the global flags and the state derived from them.
type app struct {
	outputFormat string
	verbose      bool
	configPath   string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand returns the isore command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "isore",
		Short: "Inspect and decode HEIF image files",
		Long: `isore reads HEIF files (.heic, .heif, .avif) and resolves their items:
where their bytes are, which properties describe them, how they refer to
each other. Uncompressed images, image grids, Exif and XMP items can be
decoded.

Commands:
  tree      Print the box tree
  items     List items and their locations
  props     List the properties of an item
  refs      List the references of an item
  extract   Write the raw bytes of an item
  decode    Decode an item`,
		Version:       "0.1.0-dev",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.outputFormat, "output", "o", "", "output format ("+strings.Join(output.Formats, ", ")+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default isore-config.yaml)")

	root.AddCommand(
		newTreeCommand(a),
		newItemsCommand(a),
		newPropsCommand(a),
		newRefsCommand(a),
		newExtractCommand(a),
		newDecodeCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.outputFormat != "" {
		cfg.OutputFormat = a.outputFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := cfg.Level()
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// open reads and parses a HEIF file.
func (a *app) open(path string) (*heif.File, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if limit := a.cfg.MaxFileSize; limit > 0 && stat.Size() > limit {
		return nil, fmt.Errorf("%s is %d bytes, larger than max_file_size %d", path, stat.Size(), limit)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	a.logger.Debug("opened file", "path", path, "size", len(buf))

	f, err := heif.Open(buf, heif.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func parseItemID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return uint32(id), nil
}

// itemArg returns the item named by args[i], or the primary item.
func itemArg(f *heif.File, args []string, i int) (uint32, error) {
	if len(args) > i {
		return parseItemID(args[i])
	}
	id, ok := f.Meta().PrimaryItemID()
	if !ok {
		return 0, fmt.Errorf("%w: no item given and the file has no primary item", heif.ErrNotFound)
	}
	return id, nil
}
