// Package postlink attaches a copy-link control to every post of a social
// timeline, exactly once, while the timeline keeps mutating under it.
//
// A Session binds one document to one platform: it scans the page, follows
// mutations through the scheduler, applies settings changes and delivers
// control activations to action sinks. The Augmenter runs Sessions in live
// Chrome tabs; AnnotateHTML runs one pass over saved markup.
package postlink

import (
	"github.com/hazyhaar/postlink/internal/pipeline"
	"github.com/hazyhaar/postlink/internal/scheduler"
)

// BatchOptions filters batches before processing. Re-exported from internal.
type BatchOptions = pipeline.BatchOptions

// BatchResult summarizes a batch. Re-exported from internal.
type BatchResult = pipeline.BatchResult

// Result is the outcome of one post. Re-exported from internal.
type Result = pipeline.Result

// PipelineStats are cumulative pipeline counters. Re-exported from internal.
type PipelineStats = pipeline.Stats

// SchedulerConfig controls mutation throttling and rechecks. Re-exported
// from internal.
type SchedulerConfig = scheduler.Config
