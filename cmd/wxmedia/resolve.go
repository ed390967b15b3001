package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// resolveOutput is how a resolved item is printed.
type resolveOutput struct {
	Kind       string `json:"kind"`
	Key        string `json:"key"`
	Found      bool   `json:"found"`
	Format     string `json:"format,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Path       string `json:"path,omitempty"`
	Output     string `json:"output,omitempty"`
}

func newResolveCmd(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one media item and write it to a file",
	}
	cmd.PersistentFlags().StringVarP(&out, "out", "o", "", "write the payload here ('-' for stdout)")

	kinds := []struct {
		kind  types.Kind
		use   string
		short string
	}{
		{types.KindAvatar, "avatar <username>", "Resolve a contact avatar"},
		{types.KindEmoji, "emoji <md5>", "Resolve an emoji by content digest"},
		{types.KindVoice, "voice <imgPath>", "Transcode a voice clip to mp3"},
		{types.KindVideo, "video <id>", "Locate a stored video or its poster"},
	}
	for _, k := range kinds {
		cmd.AddCommand(&cobra.Command{
			Use:   k.use,
			Short: k.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return runResolve(c, g, out, k.kind, args[0], "")
			},
		})
	}

	var msgSvrID string
	image := &cobra.Command{
		Use:   "image <imgPath>",
		Short: "Resolve a chat image as JPEG",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runResolve(c, g, out, types.KindChatImage, args[0], msgSvrID)
		},
	}
	image.Flags().StringVar(&msgSvrID, "msg-svr-id", "", "message server id, to include the recorded big image")
	cmd.AddCommand(image)

	cmd.AddCommand(&cobra.Command{
		Use:   "path <wcf://...>",
		Short: "Map a virtual path to its on-disk candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			paths, err := resource.NewLayout(cfg.Resource.Root).Alternatives(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), strings.Join(paths, "\n"))
			return nil
		},
	})
	return cmd
}

func runResolve(c *cobra.Command, g *globals, out string, kind types.Kind, key, msgSvrID string) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	// One-shot lookups never answer decode requests.
	cfg.API.CodecResponder.Enabled = false
	logger, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	ctx := c.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			logger.Warn("closing", zap.Error(err))
		}
	}()

	var res types.MediaResult
	if kind == types.KindChatImage {
		res, err = a.resolver.ImageForMessage(ctx, key, msgSvrID)
	} else {
		res, err = a.resolver.Resolve(ctx, types.MediaRequest{Kind: kind, PrimaryKey: key})
	}
	if err != nil {
		return err
	}

	report := resolveOutput{
		Kind:       kind.String(),
		Key:        key,
		Found:      res.Found(),
		Format:     string(res.Format),
		Bytes:      len(res.Payload),
		DurationMS: res.DurationMS,
		Path:       res.Path,
	}
	if res.Found() && len(res.Payload) > 0 && out != "" {
		if out == "-" {
			_, err := c.OutOrStdout().Write(res.Payload)
			return err
		}
		if err := os.WriteFile(out, res.Payload, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		report.Output = out
	}
	if err := writeJSON(c.OutOrStdout(), report); err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("%s %q: %w", kind, key, types.ErrNotFound)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
