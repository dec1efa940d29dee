// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// squashfuse mounts a latticefs archive image as a read-only FUSE
// filesystem, and provides inspect/verify subcommands for examining an
// image without mounting it.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/latticefs/squashfuse/internal/archive"
	"github.com/latticefs/squashfuse/internal/config"
	"github.com/latticefs/squashfuse/internal/fuse"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("a subcommand is required")
	}

	switch args[0] {
	case "mount":
		return runMount(args[1:])
	case "verify":
		return runVerify(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `squashfuse — mount, inspect, and verify latticefs archive images.

Usage:
  squashfuse mount --image <path> --mountpoint <dir> [flags]
  squashfuse inspect --image <path>
  squashfuse verify --image <path> --sidecar <path>

Run "squashfuse <subcommand> --help" for flags specific to a subcommand.
`)
}

func runMount(args []string) error {
	flagSet := pflag.NewFlagSet("squashfuse mount", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML config file (default: $LATTICEFS_CONFIG)")
	imagePath := flagSet.String("image", "", "path to the archive image")
	mountpoint := flagSet.String("mountpoint", "", "directory to mount the archive onto")
	allowOther := flagSet.Bool("allow-other", false, "allow other users to access the mount")
	pageCacheSlots := flagSet.Int("page-cache-slots", 0, "page-cache slot count (0 uses the config/default)")
	fragmentCacheSlots := flagSet.Int("fragment-cache-slots", 0, "fragment-cache slot count (0 uses the config/default)")
	logLevel := flagSet.String("log-level", "", "debug, info, warn, or error")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *imagePath != "" {
		cfg.ImagePath = *imagePath
	}
	if *mountpoint != "" {
		cfg.Mountpoint = *mountpoint
	}
	if *allowOther {
		cfg.AllowOther = true
	}
	if *pageCacheSlots > 0 {
		cfg.PageCacheSlots = *pageCacheSlots
	}
	if *fragmentCacheSlots > 0 {
		cfg.FragmentCacheSlots = *fragmentCacheSlots
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	img, err := archive.Open(cfg.ImagePath, archive.Options{
		PageCacheSlots:     cfg.PageCacheSlots,
		FragmentCacheSlots: cfg.FragmentCacheSlots,
		ReadaheadBlocks:    cfg.ReadaheadBlocks,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer img.Close()

	server, err := fuse.Mount(fuse.Options{
		Mountpoint: cfg.Mountpoint,
		Archive:    img,
		AllowOther: cfg.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	logger.Info("unmounting", "mountpoint", cfg.Mountpoint)
	return server.Unmount()
}

func runInspect(args []string) error {
	flagSet := pflag.NewFlagSet("squashfuse inspect", pflag.ContinueOnError)
	imagePath := flagSet.String("image", "", "path to the archive image")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *imagePath == "" {
		return fmt.Errorf("--image is required")
	}

	img, err := archive.Open(*imagePath, archive.Options{})
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer img.Close()

	sb := img.Superblock()
	fmt.Printf("block_size:        %d\n", sb.BlockSize)
	fmt.Printf("block_log:         %d\n", sb.BlockLog)
	fmt.Printf("compression:       %s\n", sb.Compression)
	fmt.Printf("inode_table_start: %d\n", sb.InodeTableStart)
	fmt.Printf("dir_table_start:   %d\n", sb.DirTableStart)
	fmt.Printf("inode_count:       %d\n", sb.InodeCount)
	return nil
}

func runVerify(args []string) error {
	flagSet := pflag.NewFlagSet("squashfuse verify", pflag.ContinueOnError)
	imagePath := flagSet.String("image", "", "path to the archive image")
	sidecarPath := flagSet.String("sidecar", "", "path to the BLAKE3 digest sidecar file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *imagePath == "" || *sidecarPath == "" {
		return fmt.Errorf("--image and --sidecar are required")
	}

	img, err := archive.Open(*imagePath, archive.Options{})
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer img.Close()

	data, err := os.ReadFile(*sidecarPath)
	if err != nil {
		return fmt.Errorf("reading sidecar: %w", err)
	}
	sidecar, err := archive.LoadSidecar(data)
	if err != nil {
		return err
	}

	failures := 0
	if err := walkFiles(img, img.Directory().Root(), "", func(name string, inode *archive.Inode) {
		if err := img.VerifyFile(inode, sidecar); err != nil {
			fmt.Printf("FAIL %s: %v\n", name, err)
			failures++
		}
	}); err != nil {
		return err
	}

	if failures > 0 {
		return fmt.Errorf("%d file(s) failed verification", failures)
	}
	fmt.Println("verify: all blocks matched their digests")
	return nil
}

func walkFiles(img *archive.Archive, ref archive.InodeRef, prefix string, visit func(name string, inode *archive.Inode)) error {
	entries, err := img.Directory().List(ref)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := prefix + entry.Name
		if entry.IsDir {
			if err := walkFiles(img, entry.Dir, name+"/", visit); err != nil {
				return err
			}
			continue
		}
		inode, err := img.Inode(entry.Inode)
		if err != nil {
			return fmt.Errorf("reading inode for %s: %w", name, err)
		}
		visit(name, inode)
	}
	return nil
}

func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		return config.LoadFile(explicitPath)
	}
	if os.Getenv("LATTICEFS_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
