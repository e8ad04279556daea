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

package slogru

import (
	"log/slog"
	"os"

	"github.com/coldwax/capsule/cfg"
)

func new(fields ...slog.Attr) *Logger {
	logLevel := slog.Level(cfg.LogLevel)

	opts := slog.HandlerOptions{Level: logLevel}
	if logLevel == slog.LevelDebug {
		opts.AddSource = true
	}

	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(os.Stderr, &opts).WithAttrs(fields)),
	}
}
