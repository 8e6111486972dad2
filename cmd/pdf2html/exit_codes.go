package main

import (
	"errors"
	"os"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/pipeline"
)

// Exit codes follow Unix conventions: 0 success, 1 general, 2 usage.
const (
	ExitSuccess  = 0
	ExitGeneral  = 1
	ExitUsage    = 2
	ExitIO       = 3
	ExitAccess   = 4
	ExitDocument = 5
)

func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch pipeline.KindOf(err) {
	case pipeline.KindInvalidConfig:
		return ExitUsage
	case pipeline.KindEncryptionPassword, pipeline.KindCopyProtected:
		return ExitAccess
	case pipeline.KindMalformedState, pipeline.KindInterpreter, pipeline.KindFontProcessing:
		return ExitDocument
	}
	switch {
	case errors.Is(err, ErrUsage), errors.Is(err, config.ErrInvalid), errors.Is(err, config.ErrConfigParse):
		return ExitUsage
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return ExitIO
	case errors.Is(err, interp.ErrTrace):
		return ExitDocument
	}
	return ExitGeneral
}
