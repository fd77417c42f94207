package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/tubepilot/backend/internal/credentials"
	"github.com/tubepilot/backend/internal/logging"
	"github.com/tubepilot/backend/internal/metadata"
	"github.com/tubepilot/backend/internal/metrics"
	"github.com/tubepilot/backend/internal/models"
	"github.com/tubepilot/backend/internal/storage"
	"github.com/tubepilot/backend/internal/thumbnail"
	"github.com/tubepilot/backend/internal/youtube"
)

const sniffLength = 3072

// MetadataGenerator drafts metadata from free text.
type MetadataGenerator interface {
	Generate(ctx context.Context, contextText string) (models.GeneratedMetadata, error)
}

// ThumbnailGenerator extracts a frame from a staged video or publishes a supplied image.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, videoPath string) (thumbnail.Ref, error)
	Publish(ctx context.Context, path string) (thumbnail.Ref, error)
}

// Indexer stores generated metadata for future grounding.
type Indexer interface {
	Remember(ctx context.Context, videoID string, meta models.GeneratedMetadata) error
}

// Records persists the video lifecycle.
type Records interface {
	Create(ctx context.Context, video models.Video) error
	MarkUploaded(ctx context.Context, videoID, youtubeVideoID string) error
	MarkFailed(ctx context.Context, videoID, reason string) error
}

// Credentials hands out a usable Google token for a user.
type Credentials interface {
	Ensure(ctx context.Context, userID string) (*oauth2.Token, error)
}

// Publisher performs the platform calls for one user.
type Publisher interface {
	InsertVideo(ctx context.Context, upload youtube.Upload, media io.Reader) (string, error)
	SetThumbnail(ctx context.Context, videoID string, image io.Reader) error
	ResolveCategory(ctx context.Context, name, fallback string) string
}

// PublisherFactory builds a Publisher bound to one user's token.
type PublisherFactory func(ctx context.Context, token *oauth2.Token) (Publisher, error)

// Options tunes a Pipeline.
type Options struct {
	ScratchDir        string
	MaxVideoBytes     int64
	DefaultPrivacy    string
	DefaultCategoryID string
	Language          string
	UploadTimeout     time.Duration
	// AuthURL is returned with authentication failures so clients can re-consent.
	AuthURL string
}

// Pipeline publishes one upload end to end.
type Pipeline struct {
	metadata   MetadataGenerator
	thumbnails ThumbnailGenerator
	indexer    Indexer
	records    Records
	creds      Credentials
	publishers PublisherFactory
	opts       Options
}

// NewPipeline wires a pipeline. thumbnails and indexer may be nil.
func NewPipeline(gen MetadataGenerator, thumbs ThumbnailGenerator, indexer Indexer, records Records, creds Credentials, publishers PublisherFactory, opts Options) *Pipeline {
	if opts.MaxVideoBytes <= 0 {
		opts.MaxVideoBytes = 100 << 20
	}
	if opts.DefaultPrivacy == "" {
		opts.DefaultPrivacy = "private"
	}
	if opts.DefaultCategoryID == "" {
		opts.DefaultCategoryID = "22"
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Minute
	}
	return &Pipeline{
		metadata:   gen,
		thumbnails: thumbs,
		indexer:    indexer,
		records:    records,
		creds:      creds,
		publishers: publishers,
		opts:       opts,
	}
}

type run struct {
	id        string
	state     State
	ws        *storage.Workspace
	videoPath string
	thumbPath string
	thumb     thumbnail.Ref
	meta      models.GeneratedMetadata
	recordID  string
}

// Run validates, stages, drafts metadata for and publishes req. Scratch files are
// removed on every return path. Failures are always *Error.
func (p *Pipeline) Run(ctx context.Context, req Request) (res Result, err error) {
	r := &run{id: uuid.NewString(), state: StateReceived}
	ctx = logging.WithRun(ctx, r.id, req.UserID)
	ctx, span := logging.StartSpan(ctx, "publish.run")
	defer span.End()
	logger := logging.FromContext(ctx)

	defer func() {
		if r.ws != nil {
			if cerr := r.ws.Cleanup(); cerr != nil {
				logger.Error("scratch cleanup failed", slog.Any("error", cerr))
			}
		}
		if !r.state.Terminal() {
			logger.Error("publish run aborted", slog.String("state", string(r.state)))
		}
		metrics.RecordRun(string(r.state))
		span.Fail(err)
		if err != nil {
			logger.Warn("publish run failed", slog.String("state", string(r.state)), slog.Any("error", err))
		}
	}()

	privacy, verr := req.validate(p.opts.MaxVideoBytes)
	if verr != nil {
		r.state = StateRejected
		return Result{State: r.state}, verr
	}
	if privacy == "" {
		privacy = p.opts.DefaultPrivacy
	}
	r.state = StateValidated

	if err := p.stage(ctx, r, req); err != nil {
		return Result{State: r.state}, err
	}
	r.state = StateStaged

	if err := p.prepare(ctx, r, req); err != nil {
		r.state = StateGenerationFailed
		return Result{State: r.state}, err
	}
	r.state = StateMetadataReady

	if err := p.createRecord(ctx, r, req, privacy); err != nil {
		r.state = StatePublishFailed
		return Result{State: r.state}, err
	}
	r.state = StateRecordPending
	p.remember(ctx, r)

	token, perr := p.credentials(ctx, req.UserID)
	if perr != nil {
		r.state = StatePublishFailed
		p.markFailed(ctx, r, perr)
		return Result{RecordID: r.recordID, State: r.state}, perr
	}
	r.state = StateCredentialReady

	videoID, perr := p.publish(ctx, r, token, privacy)
	if perr != nil {
		r.state = StatePublishFailed
		if videoID != "" {
			p.markFailed(ctx, r, fmt.Errorf("%w (youtube video %s already inserted)", perr, videoID))
		} else {
			p.markFailed(ctx, r, perr)
		}
		return Result{RecordID: r.recordID, VideoID: videoID, State: r.state}, perr
	}
	r.state = StatePublished

	if err := p.records.MarkUploaded(ctx, r.recordID, videoID); err != nil {
		logger.Error("record update failed after publish", slog.String("youtube_video_id", videoID), slog.Any("error", err))
		r.state = StatePublishFailed
		return Result{RecordID: r.recordID, VideoID: videoID, State: r.state}, fail(KindInternal, "mark uploaded", err)
	}
	r.state = StateRecordUpdated

	r.state = StateDone
	logger.Info("video published", slog.String("youtube_video_id", videoID), slog.String("record_id", r.recordID))
	return Result{
		RecordID:     r.recordID,
		VideoID:      videoID,
		Metadata:     r.meta,
		ThumbnailURL: r.thumb.URL,
		State:        r.state,
	}, nil
}

// stage sniffs the video and copies it, plus any supplied thumbnail, into a fresh workspace.
func (p *Pipeline) stage(ctx context.Context, r *run, req Request) error {
	ctx, span := logging.StartSpan(ctx, "publish.stage")
	defer span.End()
	start := time.Now()

	src, err := req.Video.Open()
	if err != nil {
		r.state = StateStageFailed
		return fail(KindStorage, "open video", err)
	}
	defer src.Close()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		r.state = StateStageFailed
		return fail(KindStorage, "read video", err)
	}
	head = head[:n]
	if n == 0 {
		r.state = StateRejected
		return invalid("video file is empty")
	}
	if mime := mimetype.Detect(head); !strings.HasPrefix(mime.String(), "video/") {
		r.state = StateRejected
		return invalid("unsupported media type %s", mime.String())
	}

	ws, err := storage.NewWorkspace(p.opts.ScratchDir, r.id)
	if err != nil {
		r.state = StateStageFailed
		return fail(KindStorage, "create workspace", err)
	}
	r.ws = ws

	name := "video" + strings.ToLower(filepath.Ext(req.Video.Name))
	r.videoPath, err = ws.Stage(name, io.MultiReader(bytes.NewReader(head), src), p.opts.MaxVideoBytes)
	if err != nil {
		metrics.RecordStage("stage", "error", time.Since(start).Seconds())
		if errors.Is(err, storage.ErrTooLarge) {
			r.state = StateRejected
			return invalid("video exceeds %d bytes", p.opts.MaxVideoBytes)
		}
		r.state = StateStageFailed
		return fail(KindStorage, "stage video", err)
	}

	if req.Thumbnail != nil {
		thumb, err := req.Thumbnail.Open()
		if err == nil {
			ext := strings.ToLower(filepath.Ext(req.Thumbnail.Name))
			if ext == "" {
				ext = ".jpg"
			}
			r.thumbPath, err = ws.Stage("supplied-thumbnail"+ext, thumb, 0)
			thumb.Close()
		}
		if err != nil {
			metrics.RecordStage("stage", "error", time.Since(start).Seconds())
			r.state = StateStageFailed
			return fail(KindStorage, "stage thumbnail", err)
		}
	}

	metrics.RecordStage("stage", "ok", time.Since(start).Seconds())
	logging.FromContext(ctx).Debug("upload staged", slog.String("path", r.videoPath))
	return nil
}

// prepare drafts metadata and the thumbnail concurrently. Only metadata failure is fatal.
func (p *Pipeline) prepare(ctx context.Context, r *run, req Request) error {
	ctx, span := logging.StartSpan(ctx, "publish.prepare")
	defer span.End()
	logger := logging.FromContext(ctx)

	supplied, complete := req.supplied()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				err = fail(KindInternal, "generate metadata", fmt.Errorf("panic: %v", rec))
			}
			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.RecordStage("metadata", status, time.Since(start).Seconds())
		}()

		if complete {
			r.meta = supplied
			return nil
		}
		generated, err := p.metadata.Generate(gctx, req.generationContext())
		if err != nil {
			return fail(KindGeneration, "generate metadata", err)
		}
		r.meta = merge(generated, supplied)
		return nil
	})

	g.Go(func() error {
		r.thumb = p.thumbnail(gctx, r)
		return nil
	})

	if err := g.Wait(); err != nil {
		span.Fail(err)
		return err
	}
	if r.thumb.Path == "" {
		logger.Info("publishing without thumbnail")
	}
	return nil
}

// thumbnail returns the published supplied image or a freshly extracted frame. Any
// failure yields an empty Ref.
func (p *Pipeline) thumbnail(ctx context.Context, r *run) (ref thumbnail.Ref) {
	start := time.Now()
	logger := logging.FromContext(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("thumbnail generation panicked", slog.Any("panic", rec))
			ref = thumbnail.Ref{}
		}
		status := "ok"
		if ref.Path == "" {
			status = "error"
		}
		metrics.RecordStage("thumbnail", status, time.Since(start).Seconds())
	}()

	if r.thumbPath != "" {
		if p.thumbnails == nil {
			return thumbnail.Ref{Path: r.thumbPath}
		}
		published, err := p.thumbnails.Publish(ctx, r.thumbPath)
		if err != nil {
			logger.Warn("supplied thumbnail not published", slog.Any("error", err))
			return thumbnail.Ref{Path: r.thumbPath}
		}
		return published
	}
	if p.thumbnails == nil {
		return thumbnail.Ref{}
	}
	generated, err := p.thumbnails.Generate(ctx, r.videoPath)
	if err != nil {
		logger.Warn("thumbnail generation failed", slog.Any("error", err))
		return thumbnail.Ref{}
	}
	return generated
}

func (p *Pipeline) createRecord(ctx context.Context, r *run, req Request, privacy string) error {
	r.recordID = uuid.NewString()
	thumbRef := r.thumb.URL
	if thumbRef == "" {
		thumbRef = r.thumb.Path
	}
	if r.meta.Category == "" {
		r.meta.Category = models.DefaultCategory
	}
	video := models.Video{
		ID:            r.recordID,
		UserID:        req.UserID,
		FilePath:      r.videoPath,
		Title:         r.meta.Title,
		Description:   r.meta.Description,
		Category:      r.meta.Category,
		Hashtags:      r.meta.Hashtags,
		Thumbnail:     thumbRef,
		PrivacyStatus: privacy,
		Status:        models.VideoStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.records.Create(ctx, video); err != nil {
		return fail(KindInternal, "create record", err)
	}
	return nil
}

func (p *Pipeline) remember(ctx context.Context, r *run) {
	if p.indexer == nil {
		return
	}
	if err := p.indexer.Remember(ctx, r.recordID, r.meta); err != nil {
		logging.FromContext(ctx).Warn("grounding index update skipped", slog.Any("error", err))
	}
}

func (p *Pipeline) credentials(ctx context.Context, userID string) (*oauth2.Token, *Error) {
	ctx, span := logging.StartSpan(ctx, "publish.credentials")
	defer span.End()

	token, err := p.creds.Ensure(ctx, userID)
	if err == nil {
		return token, nil
	}
	span.Fail(err)
	if errors.Is(err, credentials.ErrReauthRequired) {
		return nil, &Error{Kind: KindAuthentication, Op: "ensure credentials", Err: err, AuthURL: p.opts.AuthURL}
	}
	return nil, fail(KindInternal, "ensure credentials", err)
}

func (p *Pipeline) publish(ctx context.Context, r *run, token *oauth2.Token, privacy string) (string, *Error) {
	ctx, span := logging.StartSpan(ctx, "publish.upload")
	defer span.End()
	start := time.Now()

	videoID, err := p.upload(ctx, r, token, privacy)
	if err != nil {
		span.Fail(err)
		metrics.RecordStage("publish", "error", time.Since(start).Seconds())
		var perr *Error
		if errors.As(err, &perr) {
			return videoID, perr
		}
		switch {
		case errors.Is(err, youtube.ErrUnauthorized):
			return videoID, &Error{Kind: KindAuthentication, Op: "publish", Err: err, AuthURL: p.opts.AuthURL, Status: youtube.StatusCode(err)}
		default:
			e := fail(KindPublish, "publish", err)
			e.Status = youtube.StatusCode(err)
			if e.Status == 0 && errors.Is(err, youtube.ErrForbidden) {
				e.Status = http.StatusForbidden
			}
			return videoID, e
		}
	}
	metrics.RecordStage("publish", "ok", time.Since(start).Seconds())
	return videoID, nil
}

func (p *Pipeline) upload(ctx context.Context, r *run, token *oauth2.Token, privacy string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.UploadTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	client, err := p.publishers(ctx, token)
	if err != nil {
		return "", err
	}

	media, err := os.Open(r.videoPath)
	if err != nil {
		return "", fail(KindStorage, "open staged video", err)
	}
	defer media.Close()

	videoID, err := client.InsertVideo(ctx, youtube.Upload{
		Title:         r.meta.Title,
		Description:   r.meta.Description,
		Tags:          r.meta.Hashtags,
		CategoryID:    client.ResolveCategory(ctx, r.meta.Category, p.opts.DefaultCategoryID),
		PrivacyStatus: privacy,
		Language:      p.opts.Language,
	}, media)
	if err != nil {
		return "", err
	}

	if r.thumb.Path == "" {
		return videoID, nil
	}
	image, err := os.Open(r.thumb.Path)
	if err != nil {
		return videoID, fail(KindStorage, "open staged thumbnail", err)
	}
	defer image.Close()
	if err := client.SetThumbnail(ctx, videoID, image); err != nil {
		return videoID, err
	}
	logger.Debug("thumbnail set", slog.String("youtube_video_id", videoID))
	return videoID, nil
}

// markFailed records the failure on a detached context so a cancelled request still
// leaves an auditable record.
func (p *Pipeline) markFailed(ctx context.Context, r *run, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.records.MarkFailed(ctx, r.recordID, cause.Error()); err != nil {
		logging.FromContext(ctx).Error("mark record failed", slog.String("record_id", r.recordID), slog.Any("error", err))
	}
}

// merge overlays the fields the client supplied on generated metadata.
func merge(generated, supplied models.GeneratedMetadata) models.GeneratedMetadata {
	if supplied.Title != "" {
		generated.Title = supplied.Title
	}
	if supplied.Description != "" {
		generated.Description = supplied.Description
	}
	if len(supplied.Hashtags) >= metadata.MinHashtags {
		generated.Hashtags = supplied.Hashtags
	}
	if supplied.Category != "" {
		generated.Category = supplied.Category
	}
	return generated
}
