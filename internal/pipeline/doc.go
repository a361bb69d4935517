// Package pipeline orchestrates the per-frame detection → track → zone flow.
//
// It wires a tracking.Tracker and a zones.Index together, optionally behind
// a Detector and a FrameSource for video input, and hands every processed
// frame to a ResultSink (analytics, metrics, websocket broadcast). The
// pipeline owns no domain logic; it delegates to those packages.
//
// A FramePipeline is driven by one goroutine. Callers that share one across
// HTTP handlers serialise access themselves.
package pipeline
