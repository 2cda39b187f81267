package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandeepkandula/treesync/config"
	"github.com/sandeepkandula/treesync/sync"
)

// pairSeparator splits an msync argument into source and destination.
const pairSeparator = ":::"

// storesFunc builds the store opener for a validated config.
type storesFunc func(ctx context.Context, cfg *config.Config) (sync.StoreOpener, error)

func defaultStores(ctx context.Context, cfg *config.Config) (sync.StoreOpener, error) {
	client, err := config.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return sync.NewS3Opener(client), nil
}

type app struct {
	v         *viper.Viper
	newStores storesFunc
	cfg       *config.Config
}

func newRootCmd(newStores storesFunc) *cobra.Command {
	a := &app{v: viper.New(), newStores: newStores}

	root := &cobra.Command{
		Use:   "treesync",
		Short: "Synchronize a local directory tree with an S3 prefix",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogger(cmd.ErrOrStderr(), verbose)
		},
	}

	pf := root.PersistentFlags()
	pf.SortFlags = false
	pf.String("region", "", "Object store region (AWS_REGION)")
	pf.String("endpoint", "", "S3-compatible endpoint URL (AWS_HOST)")
	pf.IntP("workers", "w", config.DefaultWorkers, "Concurrent transfers")
	pf.Duration("timeout", 0, "Deadline per transfer, 0 for none")
	pf.String("content-type", "", `Upload content type, "auto" to sniff (default application/octet-stream)`)
	pf.StringP("config", "c", "", "Config file")
	pf.String("env-file", config.DefaultEnvFile, "Dotenv file loaded before reading the environment")
	pf.BoolP("verbose", "v", false, "Debug logging")

	for key, flag := range map[string]string{
		"region":       "region",
		"endpoint":     "endpoint",
		"workers":      "workers",
		"timeout":      "timeout",
		"content_type": "content-type",
	} {
		// Only fails for a nil flag, and every name above is registered.
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		a.lsCmd(),
		a.getCmd(),
		a.putCmd(),
		a.syncCmd(),
		a.msyncCmd(),
	)
	return root
}

// stores loads and validates the config, then opens the object store.
func (a *app) stores(cmd *cobra.Command) (sync.StoreOpener, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(a.v, envFile, configFile)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return a.newStores(cmd.Context(), cfg)
}

func (a *app) lsCmd() *cobra.Command {
	var human bool
	cmd := &cobra.Command{
		Use:   "ls <s3://bucket/prefix>",
		Short: "List objects and prefixes one level below a remote address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			stores, err := a.stores(cmd)
			if err != nil {
				return err
			}
			ep, entries, err := sync.List(cmd.Context(), stores, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for obj, err := range entries {
				if err != nil {
					return fmt.Errorf("%w: %w", sync.ErrRemote, err)
				}
				uri := sync.Scheme + ep.Bucket + "/" + obj.Key
				if obj.Dir {
					fmt.Fprintf(out, "dir %s\n", uri)
					continue
				}
				size := strconv.FormatInt(obj.Size, 10)
				if human {
					size = humanize.Bytes(uint64(obj.Size))
				}
				fmt.Fprintf(out, "%s %s %s %s\n", obj.LastModified.UTC().Format(time.RFC3339), obj.ETag, size, uri)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&human, "human", "H", false, "Human readable sizes")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <s3://bucket/key> <local-path>",
		Short: "Download one object to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			stores, err := a.stores(cmd)
			if err != nil {
				return err
			}
			n, err := sync.Get(cmd.Context(), stores, args[0], args[1])
			if err != nil {
				return err
			}
			slog.Info("get", "src", args[0], "dst", args[1], "size", humanize.Bytes(uint64(n)))
			return nil
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file> <s3://bucket/key>",
		Short: "Upload one local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			stores, err := a.stores(cmd)
			if err != nil {
				return err
			}
			key, n, err := sync.Put(cmd.Context(), stores, args[0], args[1], a.cfg.ContentType)
			if err != nil {
				return err
			}
			slog.Info("put", "src", args[0], "key", key, "size", humanize.Bytes(uint64(n)))
			return nil
		},
	}
}

type syncFlags struct {
	dryRun       bool
	exclude      []string
	checkUploads bool
}

func (f *syncFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print actions without making changes")
	cmd.Flags().StringArrayVar(&f.exclude, "exclude", nil, "Skip paths matching this glob (repeatable, ** supported)")
	cmd.Flags().BoolVar(&f.checkUploads, "skip-unchanged-uploads", false, "Skip uploads whose remote digest already matches")
}

func (a *app) options(f *syncFlags, stores sync.StoreOpener, src, dst string) sync.Options {
	return sync.Options{
		Src:             src,
		Dst:             dst,
		Stores:          stores,
		Workers:         a.cfg.Workers,
		TransferTimeout: a.cfg.TransferTimeout,
		ContentType:     a.cfg.ContentType,
		DryRun:          f.dryRun,
		Exclude:         f.exclude,
		CheckUploads:    f.checkUploads,
	}
}

func (a *app) syncCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync <source> <dest>",
		Short: "Synchronize a local tree and a remote prefix (one side must be s3://)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			stores, err := a.stores(cmd)
			if err != nil {
				return err
			}
			_, err = sync.Sync(cmd.Context(), a.options(&f, stores, args[0], args[1]))
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) msyncCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "msync <source:::dest>...",
		Short: "Run several independent syncs sharing one client",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			stores, err := a.stores(cmd)
			if err != nil {
				return err
			}

			var errs []error
			for _, pair := range args {
				if cmd.Context().Err() != nil {
					errs = append(errs, cmd.Context().Err())
					break
				}
				src, dst, ok := strings.Cut(pair, pairSeparator)
				if !ok {
					err := fmt.Errorf("%w: %q is not source%sdest", sync.ErrInvalidAddress, pair, pairSeparator)
					slog.Error("msync", "pair", pair, "error", err)
					errs = append(errs, err)
					continue
				}
				if _, err := sync.Sync(cmd.Context(), a.options(&f, stores, src, dst)); err != nil {
					slog.Error("msync", "src", src, "dst", dst, "error", err)
					errs = append(errs, err)
				}
			}

			if len(errs) > 0 {
				return fmt.Errorf("%d of %d pairs failed: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
