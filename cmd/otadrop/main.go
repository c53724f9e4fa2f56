package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/OTADrop/internal/bootstrap"
	"github.com/dharsanguruparan/OTADrop/internal/config"
	"github.com/dharsanguruparan/OTADrop/internal/ipa"
	"github.com/dharsanguruparan/OTADrop/internal/logging"
	"github.com/dharsanguruparan/OTADrop/internal/manifest"
	"github.com/dharsanguruparan/OTADrop/internal/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "otadrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otadrop",
		Short: "OTADrop over-the-air distribution CLI",
		Long: `OTADrop turns iOS application archives into itms-services install links.
The CLI inspects archives, renders install manifests offline and runs the HTTP service.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newInspectCmd(),
		newManifestCmd(),
		newServeCmd(),
	)
	return cmd
}

type inspectOutput struct {
	File     string            `json:"file"`
	Size     string            `json:"size"`
	InfoPath string            `json:"info_plist"`
	Format   string            `json:"plist_format"`
	Metadata model.AppMetadata `json:"metadata"`
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.ipa>",
		Short: "Print the application metadata of an archive as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}
			bundle, err := ipa.Inspect(data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inspectOutput{
				File:     args[0],
				Size:     humanize.IBytes(uint64(len(data))),
				InfoPath: bundle.InfoPath,
				Format:   bundle.Format,
				Metadata: bundle.Metadata,
			})
		},
	}
}

func newManifestCmd() *cobra.Command {
	var archiveURL string
	var out string
	cmd := &cobra.Command{
		Use:   "manifest <file.ipa>",
		Short: "Render the install manifest for an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := ipa.ExtractFile(args[0])
			if err != nil {
				return err
			}
			doc, err := manifest.Generate(meta, archiveURL)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			if err := os.WriteFile(out, doc, 0o644); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", out, humanize.IBytes(uint64(len(doc))))
			return nil
		},
	}
	cmd.Flags().StringVar(&archiveURL, "url", "", "Public URL the archive will be downloaded from")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the manifest to this file instead of stdout")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Address = addr
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			logging.Init(log)
			return bootstrap.Serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides OTADROP_ADDRESS)")
	return cmd
}
