// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nishisan-dev/n-drive/internal/client"
	"github.com/nishisan-dev/n-drive/internal/config"
	"github.com/nishisan-dev/n-drive/internal/logging"
)

// requestTimeout limita cada par request/response no servidor.
const requestTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", "/etc/ndrive/client.yaml", "path to client config file")
	recursive := flag.Bool("recursive", false, "delete directory contents recursively (rmdir)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	// Context com cancelamento via signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, aborting", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger, args[0], args[1:], *recursive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ndrive-client [flags] <command> [args]

Commands:
  register                          create the account from the config file
  ls [directory-id]                 list a directory (root when omitted)
  tree                              list every directory of the user
  files                             list every file of the user
  mkdir <name> [parent-id]          create a directory
  rename <directory-id> <new-name>  rename a directory
  rmdir <directory-id>              delete a directory (see -recursive)
  put <path> [directory-id]         upload a file
  get <file-id> <path>              download a file
  rm <file-id>                      delete a file
  mv <target-dir-id> <file-id>...   move files ("root" moves to the root)

Flags:
`)
	flag.PrintDefaults()
}

func run(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, command string, args []string, recursive bool) error {
	c, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// register é o único comando que roda sem login.
	if command == "register" {
		userID, err := c.CreateAccount(cfg.Client.Username, cfg.Client.Password, cfg.Client.Email)
		if err != nil {
			return err
		}
		fmt.Printf("account created: %s (id %s)\n", cfg.Client.Username, userID)
		return nil
	}

	login, err := c.Login(cfg.Client.Username, cfg.Client.Password)
	if err != nil {
		return err
	}
	logger.Debug("authenticated", "user_id", login.UserID)

	if err := dispatch(c, command, args, recursive); err != nil {
		return err
	}
	return c.Logout()
}

func dispatch(c *client.Client, command string, args []string, recursive bool) error {
	switch command {
	case "ls":
		directoryID := ""
		if len(args) > 0 {
			directoryID = args[0]
		}
		return runList(c, directoryID)

	case "tree":
		dirs, err := c.ListDirectories()
		if err != nil {
			return err
		}
		for _, d := range dirs {
			parent := d.ParentDirectoryID
			if parent == "" {
				parent = "(root)"
			}
			fmt.Printf("%-36s  parent=%-36s  %s\n", d.DirectoryID, parent, d.DirectoryName)
		}
		return nil

	case "files":
		files, err := c.ListFiles()
		if err != nil {
			return err
		}
		for _, f := range files {
			state := "complete"
			if !f.IsComplete {
				state = "uploading"
			}
			fmt.Printf("%-36s  %10d  %-9s  %s\n", f.FileID, f.FileSize, state, f.FileName)
		}
		return nil

	case "mkdir":
		if len(args) < 1 {
			return fmt.Errorf("mkdir: directory name is required")
		}
		parentID := ""
		if len(args) > 1 {
			parentID = args[1]
		}
		dir, err := c.CreateDirectory(args[0], parentID)
		if err != nil {
			return err
		}
		fmt.Printf("directory created: %s (id %s)\n", dir.DirectoryName, dir.DirectoryID)
		return nil

	case "rename":
		if len(args) < 2 {
			return fmt.Errorf("rename: directory id and new name are required")
		}
		dir, err := c.RenameDirectory(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("directory renamed: %s (id %s)\n", dir.DirectoryName, dir.DirectoryID)
		return nil

	case "rmdir":
		if len(args) < 1 {
			return fmt.Errorf("rmdir: directory id is required")
		}
		if err := c.DeleteDirectory(args[0], recursive); err != nil {
			return err
		}
		fmt.Printf("directory deleted: %s\n", args[0])
		return nil

	case "put":
		if len(args) < 1 {
			return fmt.Errorf("put: file path is required")
		}
		directoryID := ""
		if len(args) > 1 {
			directoryID = args[1]
		}
		start := time.Now()
		fileID, err := c.UploadFile(args[0], directoryID)
		if err != nil {
			return err
		}
		fmt.Printf("uploaded %s (id %s) in %s\n", args[0], fileID, time.Since(start).Round(time.Millisecond))
		return nil

	case "get":
		if len(args) < 2 {
			return fmt.Errorf("get: file id and destination path are required")
		}
		start := time.Now()
		info, err := c.DownloadFile(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("downloaded %s (%d bytes) to %s in %s\n",
			info.FileName, info.FileSize, args[1], time.Since(start).Round(time.Millisecond))
		return nil

	case "rm":
		if len(args) < 1 {
			return fmt.Errorf("rm: file id is required")
		}
		if err := c.DeleteFile(args[0]); err != nil {
			return err
		}
		fmt.Printf("file deleted: %s\n", args[0])
		return nil

	case "mv":
		if len(args) < 2 {
			return fmt.Errorf("mv: target directory id and at least one file id are required")
		}
		target := args[0]
		if target == "root" {
			target = ""
		}
		moved, err := c.MoveFiles(args[1:], target)
		if err != nil {
			return err
		}
		fmt.Printf("moved %d file(s)\n", moved)
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runList(c *client.Client, directoryID string) error {
	contents, err := c.DirectoryContents(directoryID)
	if err != nil {
		return err
	}
	for _, d := range contents.Directories {
		fmt.Printf("%-36s  %10s  %s/\n", d.DirectoryID, "-", d.DirectoryName)
	}
	for _, f := range contents.Files {
		fmt.Printf("%-36s  %10d  %s\n", f.FileID, f.FileSize, f.FileName)
	}
	return nil
}

// connect disca com retry e exponential backoff conforme a config.
func connect(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) (*client.Client, error) {
	opts := client.Options{Timeout: requestTimeout, Logger: logger}

	var lastErr error
	for attempt := 0; attempt < cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt, cfg.Retry.InitialDelay, cfg.Retry.MaxDelay)
			logger.Info("retrying connection", "attempt", attempt+1, "delay", delay)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		c, err := client.Dial(ctx, cfg.Server.Address, opts)
		if err == nil {
			logger.Debug("connected", "server", cfg.Server.Address)
			return c, nil
		}

		lastErr = err
		logger.Warn("connection attempt failed", "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("all %d connection attempts failed, last error: %w", cfg.Retry.MaxAttempts, lastErr)
}

// calculateBackoff calcula o delay com exponential backoff capped.
func calculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt-1)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
