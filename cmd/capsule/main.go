/*
Copyright 2026 The Capsule Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coldwax/capsule/buildinfo"
	"github.com/coldwax/capsule/capsule"
	"github.com/coldwax/capsule/cfg"
	"github.com/coldwax/capsule/config"
	"github.com/coldwax/capsule/logger"
	"github.com/coldwax/capsule/slogru"
)

var (
	capsulesDir = flag.String("capsules", "capsules", "Directory of capsule configuration files (*.json)")
	mimePath    = flag.String("mimetypes", "mime-types.toml", "Mime type table, relative to -capsules")
	logLevel    = flag.Int("loglevel", int(slog.LevelInfo), "Logging verbosity")
	version     = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flag]...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.Version)
		return
	}

	uuid.EnableRandPool()

	cfg.LogLevel = *logLevel
	opts := slog.HandlerOptions{Level: slog.Level(*logLevel)}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &opts)))
	slog.SetLogLoggerLevel(slog.Level(*logLevel))

	confs, err := loadCapsules(*capsulesDir)
	if err != nil {
		slogru.WithError(err).Error("Failed to load capsules")
		os.Exit(1)
	}
	if len(confs) == 0 {
		slogru.WithField("dir", *capsulesDir).Error("No capsule configurations found")
		os.Exit(1)
	}

	mimeTablePath := *mimePath
	if !filepath.IsAbs(mimeTablePath) {
		mimeTablePath = filepath.Join(*capsulesDir, mimeTablePath)
	}

	var conf cfg.Config
	conf.FillDefaults()

	slogru.WithFields(slogru.Fields{"version": buildinfo.Version, "capsules": len(confs)}).Info("Starting")

	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-sigs:
			slogru.Info("Received termination signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	serverSoftware := "capsule/" + buildinfo.Version

	listeners := make([]*capsule.Listener, 0, len(confs))
	for _, c := range confs {
		root := logger.New(c.Listen)
		log, err := root.AsLogs(c.AccessLog, c.ErrorLog)
		if err != nil {
			slogru.WithFields(slogru.Fields{"listen": c.Listen}).WithError(err).Error("Failed to open capsule logs")
			os.Exit(1)
		}

		listener, err := capsule.NewListener(c, &conf, serverSoftware, mimeTablePath, log)
		if err != nil {
			slogru.WithFields(slogru.Fields{"listen": c.Listen}).WithError(err).Error("Failed to start capsule")
			os.Exit(1)
		}
		listeners = append(listeners, listener)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Serve(ctx); err != nil {
				slogru.WithFields(slogru.Fields{"listen": c.Listen}).WithError(err).Error("Capsule stopped")
			}
		}()
	}

	wg.Wait()

	for _, l := range listeners {
		l.Close()
	}
}

func loadCapsules(dir string) ([]*capsule.Conf, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var confs []*capsule.Conf
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		c, err := config.Load(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		confs = append(confs, c)
	}
	return confs, nil
}
