package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/job"
)

func newRegistry(logger *slog.Logger) *job.Registry {
	return job.MustRegistry(
		job.Bind(importMCQ(logger)),
	)
}

// importMCQ validates an MCQ import request and hands it off. Parsing the
// uploaded file is owned by the question service.
func importMCQ(logger *slog.Logger) func(context.Context, job.MCQImport) error {
	return func(ctx context.Context, p job.MCQImport) error {
		if strings.TrimSpace(p.FileID) == "" {
			return jobq.Permanentf("mcq import: fileId is required")
		}
		logger.InfoContext(ctx, "mcq import accepted",
			slog.String("file_id", p.FileID),
			slog.String("uploaded_by", p.UploadedBy),
			slog.Bool("overwrite", p.Overwrite),
		)
		return nil
	}
}
