// Package ingest orchestrates the per-file pipeline: detect the format,
// dispatch to the matching parser, validate the canonical records, and
// merge them into a session aggregate. Files are independent, so a
// malformed file yields a failed FileResult without disturbing the rest
// of a batch, and batch ingestion may parse files concurrently while the
// aggregate serializes the merges.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/annolens/annolens-agent/internal/annotation"
	"github.com/annolens/annolens-agent/internal/detect"
	"github.com/annolens/annolens-agent/internal/merge"
	"github.com/annolens/annolens-agent/internal/parsers"
	"github.com/annolens/annolens-agent/internal/validate"
)

// UnknownFormatError reports a file no detector tier could identify.
// It is not fatal to a batch; callers surface it to the user with the
// detector's reason.
type UnknownFormatError struct {
	Reason string
}

func (e *UnknownFormatError) Error() string {
	return "unknown file type: " + e.Reason
}

// File is one named input payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileResult reports what ingestion did with one file.
type FileResult struct {
	Filename   string             `json:"filename"`
	Type       string             `json:"type"`
	Confidence detect.Confidence  `json:"confidence"`
	Reason     string             `json:"reason,omitempty"`
	Records    int                `json:"records"`
	Pipelines  []string           `json:"pipelines,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Error      string             `json:"error,omitempty"`

	err error
}

// Err returns the underlying ingestion failure, if any.
func (r FileResult) Err() error { return r.err }

// Service runs the ingestion pipeline. It holds no per-file state and is
// safe for concurrent use.
type Service struct {
	logger *slog.Logger
}

// NewService returns an ingestion service. logger may be nil.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// IngestFile runs one file through detect → parse → validate → merge.
func (s *Service) IngestFile(agg *merge.Aggregate, file File) FileResult {
	verdict := detect.Detect(file.Data, file.Name, file.ContentType)
	result := FileResult{
		Filename:   file.Name,
		Type:       verdict.Type,
		Confidence: verdict.Confidence,
		Reason:     verdict.Reason,
	}

	if verdict.Type == detect.TypeUnknown {
		result.err = &UnknownFormatError{Reason: verdict.Reason}
		result.Error = result.err.Error()
		s.logWarn("file not identified", "filename", file.Name, "reason", verdict.Reason)
		return result
	}

	var warnings []string
	var err error

	switch verdict.Type {
	case annotation.PipelinePersonTracking:
		var records []annotation.PersonTrackingRecord
		records, warnings, err = parseAndValidatePerson(file.Data)
		if err == nil {
			agg.MergePersonTracking(records)
			result.Records = len(records)
			result.Pipelines = []string{annotation.PipelinePersonTracking}
		}

	case annotation.PipelineFaceAnalysis:
		var records []annotation.FaceAnnotation
		records, warnings, err = parseAndValidateFaces(file.Data)
		if err == nil {
			agg.MergeFaceAnalysis(records)
			result.Records = len(records)
			result.Pipelines = []string{annotation.PipelineFaceAnalysis}
		}

	case annotation.PipelineSpeechRecognition:
		var cues []annotation.SpeechCue
		cues, warnings, err = parseAndValidateSpeech(file.Data)
		if err == nil {
			agg.MergeSpeechRecognition(cues)
			result.Records = len(cues)
			result.Pipelines = []string{annotation.PipelineSpeechRecognition}
		}

	case annotation.PipelineSpeakerDiarization:
		var segments []annotation.SpeakerSegment
		segments, warnings, err = parseAndValidateSpeakers(file.Data)
		if err == nil {
			agg.MergeSpeakerDiarization(segments)
			result.Records = len(segments)
			result.Pipelines = []string{annotation.PipelineSpeakerDiarization}
		}

	case annotation.PipelineSceneDetection:
		var segments []annotation.SceneSegment
		segments, warnings, err = parseAndValidateScenes(file.Data)
		if err == nil {
			agg.MergeSceneDetection(segments)
			result.Records = len(segments)
			result.Pipelines = []string{annotation.PipelineSceneDetection}
		}

	case detect.TypeCompleteResults:
		result.Records, result.Pipelines, warnings, err = s.ingestBundle(agg, file.Data)

	default:
		err = fmt.Errorf("detector returned unroutable type %q", verdict.Type)
	}

	result.Warnings = warnings
	agg.AddWarnings(file.Name, warnings)

	if err != nil {
		result.err = err
		result.Error = err.Error()
		s.logWarn("file ingestion failed", "filename", file.Name, "type", verdict.Type, "error", err)
		return result
	}

	s.logInfo("file ingested",
		"filename", file.Name,
		"type", verdict.Type,
		"confidence", verdict.Confidence,
		"records", result.Records,
		"warnings", len(warnings),
	)
	return result
}

// ingestBundle fans a complete-results bundle out into one merge per
// contained pipeline block, preserving document order.
func (s *Service) ingestBundle(agg *merge.Aggregate, data []byte) (int, []string, []string, error) {
	bundle, warnings, err := parsers.ParseBundle(data)
	if err != nil {
		return 0, nil, warnings, err
	}

	agg.SetVideoInfo(bundle.VideoInfo)

	total := 0
	var pipelines []string
	for _, block := range bundle.Blocks {
		var vw []string
		switch block.Pipeline {
		case annotation.PipelinePersonTracking:
			block.Person, vw = validate.PersonTracking(block.Person)
			agg.MergePersonTracking(block.Person)
			total += len(block.Person)
		case annotation.PipelineFaceAnalysis:
			block.Faces, vw = validate.FaceAnnotations(block.Faces)
			agg.MergeFaceAnalysis(block.Faces)
			total += len(block.Faces)
		case annotation.PipelineSpeechRecognition:
			block.Speech, vw = validate.SpeechCues(block.Speech)
			agg.MergeSpeechRecognition(block.Speech)
			total += len(block.Speech)
		case annotation.PipelineSpeakerDiarization:
			block.Speakers, vw = validate.SpeakerSegments(block.Speakers)
			agg.MergeSpeakerDiarization(block.Speakers)
			total += len(block.Speakers)
		case annotation.PipelineSceneDetection:
			block.Scenes, vw = validate.SceneSegments(block.Scenes)
			agg.MergeSceneDetection(block.Scenes)
			total += len(block.Scenes)
		}
		warnings = append(warnings, vw...)
		pipelines = append(pipelines, block.Pipeline)
	}
	return total, pipelines, warnings, nil
}

// IngestBatch ingests files concurrently with up to workers parsers in
// flight. Results are returned in input order. Cancelling the context
// discards unstarted work; files already merged stay merged.
func (s *Service) IngestBatch(ctx context.Context, agg *merge.Aggregate, files []File, workers int) []FileResult {
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	results := make([]FileResult, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = s.IngestFile(agg, files[idx])
			}
		}()
	}

	for i := range files {
		select {
		case <-ctx.Done():
			results[i] = FileResult{
				Filename: files[i].Name,
				Type:     detect.TypeUnknown,
				Error:    ctx.Err().Error(),
				err:      ctx.Err(),
			}
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func parseAndValidatePerson(data []byte) ([]annotation.PersonTrackingRecord, []string, error) {
	records, warnings, err := parsers.ParsePersonTracking(data)
	if err != nil {
		return nil, warnings, err
	}
	records, vw := validate.PersonTracking(records)
	return records, append(warnings, vw...), nil
}

func parseAndValidateFaces(data []byte) ([]annotation.FaceAnnotation, []string, error) {
	records, warnings, err := parsers.ParseFaceAnnotations(data)
	if err != nil {
		return nil, warnings, err
	}
	records, vw := validate.FaceAnnotations(records)
	return records, append(warnings, vw...), nil
}

func parseAndValidateSpeech(data []byte) ([]annotation.SpeechCue, []string, error) {
	cues, warnings, err := parsers.ParseWebVTT(data)
	if err != nil {
		return nil, warnings, err
	}
	cues, vw := validate.SpeechCues(cues)
	return cues, append(warnings, vw...), nil
}

func parseAndValidateSpeakers(data []byte) ([]annotation.SpeakerSegment, []string, error) {
	segments, warnings, err := parsers.ParseRTTM(data)
	if err != nil {
		return nil, warnings, err
	}
	segments, vw := validate.SpeakerSegments(segments)
	return segments, append(warnings, vw...), nil
}

func parseAndValidateScenes(data []byte) ([]annotation.SceneSegment, []string, error) {
	segments, warnings, err := parsers.ParseScenes(data)
	if err != nil {
		return nil, warnings, err
	}
	segments, vw := validate.SceneSegments(segments)
	return segments, append(warnings, vw...), nil
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
