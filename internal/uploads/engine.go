package uploads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"yotoup/internal/audio"
	"yotoup/internal/models"
	"yotoup/internal/shared"
	"yotoup/internal/yoto"
)

// ContentClient is the slice of the Yoto API the engine needs. Satisfied by
// *yoto.Client; tests use fakes.
type ContentClient interface {
	UploadSlot(ctx context.Context, sha string, filename string) (*yoto.UploadSlot, error)
	PutAudio(ctx context.Context, uploadURL string, audio []byte, mimeType string) error
	AwaitTranscode(ctx context.Context, uploadID string, loudnorm bool) (*yoto.Transcode, error)
	GetCard(ctx context.Context, cardID string) (*models.Card, error)
	UpdateCard(ctx context.Context, card *models.Card) (*models.Card, error)
}

// TranscodeCache is an optional lookaside cache of completed transcodes
// keyed by content hash.
type TranscodeCache interface {
	Get(sha string) (*yoto.Transcode, error)
	Put(sha string, transcode *yoto.Transcode) error
}

// Job is one unit of work: a single file within a session.
type Job struct {
	SessionID  string
	FileID     string
	PlaylistID string
}

// batchClaim is the per-session batch-normalization barrier. The claiming
// worker closes done after storing err; the claim stays until finalization
// so a late worker never re-runs normalization.
type batchClaim struct {
	done chan struct{}
	err  error
}

// Engine is the worker pool that drains the shared job queue and runs every
// file through the pipeline: normalize, analyze, remote upload and
// transcode, track creation, and exactly-once session finalization.
type Engine struct {
	registry  *Registry
	client    ContentClient
	processor audio.Processor
	cache     TranscodeCache
	logger    *log.Logger

	queue   chan Job
	workers int
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	claims   map[string]*batchClaim
	results  map[string]map[string]models.Track
}

// NewEngine creates an engine with the given worker count. cache may be nil.
func NewEngine(registry *Registry, client ContentClient, processor audio.Processor, cache TranscodeCache, workers int, logger *log.Logger) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{
		registry:  registry,
		client:    client,
		processor: processor,
		cache:     cache,
		logger:    shared.WithLogger(logger, "component", "engine"),
		queue:     make(chan Job, 256),
		workers:   workers,
		inflight:  make(map[string]struct{}),
		claims:    make(map[string]*batchClaim),
		results:   make(map[string]map[string]models.Track),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or the
// queue is closed.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-e.queue:
					if !ok {
						return
					}
					e.process(ctx, job)
				}
			}
		}()
	}
}

// Close stops accepting jobs and waits for in-flight work to drain.
func (e *Engine) Close() {
	close(e.queue)
	e.wg.Wait()
}

// Enqueue submits a job without blocking the caller.
func (e *Engine) Enqueue(job Job) {
	select {
	case e.queue <- job:
	default:
		// Queue full; hand off asynchronously so registration never blocks.
		go func() { e.queue <- job }()
	}
}

// beginWork inserts the job into the in-flight set; false means another
// worker already holds it.
func (e *Engine) beginWork(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.inflight[key]; exists {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) finishWork(key string) {
	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()
}

// process runs the per-file pipeline for one dequeued job.
func (e *Engine) process(ctx context.Context, job Job) {
	key := job.SessionID + "/" + job.FileID
	if !e.beginWork(key) {
		e.logger.Warn("file already in flight, skipping", "session", job.SessionID, "file", job.FileID)
		return
	}
	defer e.finishWork(key)

	if e.registry.Stopped(job.SessionID) {
		return
	}

	session, err := e.registry.Get(job.SessionID)
	if err != nil {
		return
	}
	file := session.File(job.FileID)
	if file == nil || file.State.Terminal() {
		return
	}
	cfg := session.Config

	if file.TempPath == "" {
		e.Fail(ctx, job, shared.ErrMissingTempFile)
		return
	}

	if cfg.NormalizeBatch {
		if err := e.ensureBatch(ctx, job.SessionID, cfg.TargetLUFS); err != nil {
			// FailAll already marked every file in the batch.
			return
		}
		// Reload: the barrier rewrote temp paths.
		session, err = e.registry.Get(job.SessionID)
		if err != nil {
			return
		}
		file = session.File(job.FileID)
		if file == nil || file.State.Terminal() {
			return
		}
	} else if cfg.Normalize {
		if e.registry.Stopped(job.SessionID) {
			return
		}
		e.registry.MarkStep(job.SessionID, job.FileID, models.FileNormalizing)

		outputDir := filepath.Join(filepath.Dir(file.TempPath), "normalized")
		outputs, err := e.processor.Normalize(ctx, []string{file.TempPath}, outputDir, cfg.TargetLUFS, false)
		if err != nil {
			e.Fail(ctx, job, err)
			return
		}
		if outputs[0] != file.TempPath {
			os.Remove(file.TempPath)
		}
		e.registry.SetTempPath(job.SessionID, job.FileID, outputs[0])
		file.TempPath = outputs[0]
	}

	if e.registry.Stopped(job.SessionID) {
		return
	}
	if cfg.AnalyzeIntroOutro {
		e.registry.MarkStep(job.SessionID, job.FileID, models.FileAnalyzing)
		if _, err := e.processor.Analyze(ctx, file.TempPath, cfg.SegmentSeconds, cfg.SimilarityThreshold); err != nil {
			// Analysis is advisory; a failure never sinks the file.
			e.logger.Warn("analysis failed", "file", file.Filename, "err", err)
		}
	}

	if e.registry.Stopped(job.SessionID) {
		return
	}
	e.registry.MarkStep(job.SessionID, job.FileID, models.FileYotoUploading)
	transcode, err := e.uploadRemote(ctx, file)
	if err != nil {
		e.Fail(ctx, job, err)
		return
	}

	if e.registry.Stopped(job.SessionID) {
		return
	}
	e.registry.MarkStep(job.SessionID, job.FileID, models.FileCreatingTrack)

	title := file.OriginalTitle
	if title == "" {
		title = stem(file.Filename)
	}
	e.storeTrack(job.SessionID, job.FileID, models.Track{
		Title:    title,
		TrackURL: "yoto:#" + transcode.SHA256,
		Type:     "audio",
		Format:   transcode.Format,
		Duration: transcode.Duration,
	})

	os.Remove(file.TempPath)
	e.registry.MarkDone(job.SessionID, job.FileID)
	e.logger.Info("file processed", "session", job.SessionID, "file", file.Filename)
	e.finish(ctx, job)
}

// Fail marks the file errored and still reports it finished so the session
// can finalize around it. Also used by the orchestrator for failures before
// a file ever reaches the queue.
func (e *Engine) Fail(ctx context.Context, job Job, err error) {
	e.logger.Error("file failed", "session", job.SessionID, "file", job.FileID, "err", err)
	e.registry.MarkError(job.SessionID, job.FileID, err.Error())
	e.finish(ctx, job)
}

// finish removes the file from the session's work-list and runs
// finalization when it was the last one.
func (e *Engine) finish(ctx context.Context, job Job) {
	_, finalize, err := e.registry.FinishFile(job.SessionID, job.FileID)
	if err != nil {
		return
	}
	if finalize {
		e.finalize(ctx, job.SessionID, job.PlaylistID)
	}
}

// ensureBatch runs the batch-normalization barrier for the session. The
// first worker in claims it and normalizes every file whose temp path is
// known; everyone else blocks until the claim resolves and shares its
// outcome.
func (e *Engine) ensureBatch(ctx context.Context, sessionID string, targetLUFS float64) error {
	e.mu.Lock()
	claim, ok := e.claims[sessionID]
	if ok {
		e.mu.Unlock()
		select {
		case <-claim.done:
			return claim.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	claim = &batchClaim{done: make(chan struct{})}
	e.claims[sessionID] = claim
	e.mu.Unlock()

	claim.err = e.runBatch(ctx, sessionID, targetLUFS)
	close(claim.done)
	return claim.err
}

// runBatch normalizes every file in the session with a known temp path and
// rewrites their paths to the normalized outputs.
func (e *Engine) runBatch(ctx context.Context, sessionID string, targetLUFS float64) error {
	session, err := e.registry.Get(sessionID)
	if err != nil {
		return err
	}

	var fileIDs []string
	var inputs []string
	for _, file := range session.Files {
		if file.TempPath != "" && !file.State.Terminal() {
			fileIDs = append(fileIDs, file.FileID)
			inputs = append(inputs, file.TempPath)
		}
	}
	if len(inputs) == 0 {
		return nil
	}

	for _, fileID := range fileIDs {
		e.registry.MarkStep(sessionID, fileID, models.FileNormalizing)
	}

	outputDir := filepath.Join(filepath.Dir(inputs[0]), "normalized")
	outputs, err := e.processor.Normalize(ctx, inputs, outputDir, targetLUFS, true)
	if err != nil {
		message := fmt.Sprintf("batch normalization failed: %v", err)
		e.registry.FailAll(sessionID, message)
		return fmt.Errorf("%s", message)
	}

	paths := make(map[string]string, len(fileIDs))
	for i, fileID := range fileIDs {
		paths[fileID] = outputs[i]
		if outputs[i] != inputs[i] {
			os.Remove(inputs[i])
		}
	}
	e.registry.UpdateTempPaths(sessionID, paths)
	return nil
}

// uploadRemote pushes the file's bytes to the content store and waits for
// the remote transcode, consulting the hash cache first.
func (e *Engine) uploadRemote(ctx context.Context, file *models.UploadFileStatus) (*yoto.Transcode, error) {
	sha, data, err := yoto.HashFile(file.TempPath)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if cached, err := e.cache.Get(sha); err == nil && cached != nil {
			e.logger.Debug("transcode cache hit", "file", file.Filename, "sha", sha)
			return cached, nil
		}
	}

	slot, err := e.client.UploadSlot(ctx, sha, file.Filename)
	if err != nil {
		return nil, err
	}
	if slot.UploadURL != "" {
		if err := e.client.PutAudio(ctx, slot.UploadURL, data, ""); err != nil {
			return nil, err
		}
	}

	transcode, err := e.client.AwaitTranscode(ctx, slot.UploadID, false)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(sha, transcode); err != nil {
			e.logger.Warn("failed to cache transcode", "sha", sha, "err", err)
		}
	}
	return transcode, nil
}

func (e *Engine) storeTrack(sessionID, fileID string, track models.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.results[sessionID] == nil {
		e.results[sessionID] = make(map[string]models.Track)
	}
	e.results[sessionID][fileID] = track
}

// finalize appends the session's completed tracks to the playlist in
// registration order and flips the session into its done state. Reached by
// exactly one worker per session.
func (e *Engine) finalize(ctx context.Context, sessionID, playlistID string) {
	session, err := e.registry.Get(sessionID)
	if err != nil {
		return
	}

	e.mu.Lock()
	byFile := e.results[sessionID]
	delete(e.results, sessionID)
	delete(e.claims, sessionID)
	e.mu.Unlock()

	// Registration order, not completion order.
	var tracks []models.Track
	for _, file := range session.Files {
		if track, ok := byFile[file.FileID]; ok {
			tracks = append(tracks, track)
		}
	}

	if len(tracks) == 0 {
		e.registry.MarkFinalized(sessionID, nil)
		return
	}

	card, err := e.client.GetCard(ctx, playlistID)
	if err != nil {
		e.registry.MarkFinalizeError(sessionID, fmt.Sprintf("failed to read playlist: %v", err))
		return
	}
	card.EnsureContent()

	var newKeys []string
	switch session.Config.Mode {
	case models.ModeTracks:
		key := card.NextChapterKey()
		chapter := models.Chapter{Key: key, Title: "New Uploads"}
		for i, track := range tracks {
			track.Key = fmt.Sprintf("%02d", i+1)
			chapter.Tracks = append(chapter.Tracks, track)
		}
		card.Content.Chapters = append(card.Content.Chapters, chapter)
		newKeys = []string{key}
	default:
		for _, track := range tracks {
			key := card.NextChapterKey()
			track.Key = "01"
			card.Content.Chapters = append(card.Content.Chapters, models.Chapter{
				Key:    key,
				Title:  track.Title,
				Tracks: []models.Track{track},
			})
			newKeys = append(newKeys, key)
		}
	}

	if _, err := e.client.UpdateCard(ctx, card); err != nil {
		e.registry.MarkFinalizeError(sessionID, fmt.Sprintf("failed to update playlist: %v", err))
		return
	}

	e.registry.MarkFinalized(sessionID, newKeys)
	e.logger.Info("session finalized", "session", sessionID, "playlist", playlistID, "chapters", len(newKeys))
}

// stem strips the extension from a filename for use as a track title.
func stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
