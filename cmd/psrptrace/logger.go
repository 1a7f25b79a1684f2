package main

import (
	"io"
	"log/slog"

	"github.com/smnsjas/go-psrptrace/config"
	internallog "github.com/smnsjas/go-psrptrace/internal/log"
)

func buildLogger(cfg *config.Config, level string) (*slog.Logger, io.Closer, error) {
	return internallog.New(internallog.Options{
		Level:  level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}
