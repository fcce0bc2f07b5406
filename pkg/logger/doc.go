// Package logger provides structured logging for shotprobe on top of zerolog.
//
// Components receive a Logger through their constructors and derive
// per-attempt loggers with WithField/WithFields:
//
//	log := logger.GetLogger().WithField("component", "resolver")
//	log.InfoWithFields("Found image", map[string]interface{}{
//	    "code": code,
//	    "url":  imageURL,
//	})
//
// When the interactive UI owns the terminal, build the logger with
// NewWithOutput(cfg, io.Discard) so entries only go to cfg.File.
package logger
