// Package pipeline runs render jobs: admission against the credit ledger,
// submission to the renderer, bounded polling, result materialization and
// settlement. One Orchestrator serves one media kind.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/ids"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
)

const maxErrorDetail = 2000

// errSuperseded means another delivery of the same task moved the job first.
var errSuperseded = errors.New(errors.CodeConflict, "job was advanced by another worker")

type Deps struct {
	Jobs      ports.JobStore
	Assets    ports.AssetCatalog
	Storage   ports.StorageProvider
	Renderer  ports.RenderClient
	Fetcher   ports.ArtifactFetcher
	Credits   ports.CreditLedger
	Notifier  ports.Notifier
	Scheduler ports.Scheduler
	Clock     Clock
	Log       *logger.Logger
}

type Orchestrator struct {
	cfg       Config
	jobs      ports.JobStore
	assets    ports.AssetCatalog
	storage   ports.StorageProvider
	renderer  ports.RenderClient
	fetcher   ports.ArtifactFetcher
	credits   ports.CreditLedger
	notifier  ports.Notifier
	scheduler ports.Scheduler
	clock     Clock
	log       *logger.Logger
}

func New(cfg Config, d Deps) *Orchestrator {
	cfg = cfg.withDefaults()
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	clock := d.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Orchestrator{
		cfg:       cfg,
		jobs:      d.Jobs,
		assets:    d.Assets,
		storage:   d.Storage,
		renderer:  d.Renderer,
		fetcher:   d.Fetcher,
		credits:   d.Credits,
		notifier:  d.Notifier,
		scheduler: d.Scheduler,
		clock:     clock,
		log:       &logger.Logger{Logger: log.WithComponent("pipeline").With("kind", cfg.Kind)},
	}
}

// Kind is the media kind this orchestrator serves.
func (o *Orchestrator) Kind() string { return o.cfg.Kind }

// Submit admits a job and schedules it. It never waits on the renderer.
//
// Admission errors (Validation, SourceNotFound, InsufficientCredit) are
// returned before any job row exists.
func (o *Orchestrator) Submit(ctx context.Context, ownerID, sourceAssetRef string, params models.JobParameters) (models.JobHandle, error) {
	const op = "pipeline.submit"
	log := o.log.FromContext(ctx).WithOwnerID(ownerID)

	if strings.TrimSpace(ownerID) == "" {
		return models.JobHandle{}, errors.ValidationField("owner_id", "owner id is required")
	}
	if !models.ValidOwnerID(ownerID) {
		return models.JobHandle{}, errors.ValidationField("owner_id", "owner id is malformed")
	}
	sourceAssetRef = strings.TrimSpace(sourceAssetRef)
	if sourceAssetRef == "" {
		return models.JobHandle{}, errors.ValidationField("source_asset_ref", "source_asset_ref is required")
	}
	params, err := normalizeParams(params)
	if err != nil {
		return models.JobHandle{}, err
	}

	if err := o.resolveSource(ctx, ownerID, sourceAssetRef); err != nil {
		return models.JobHandle{}, err
	}

	mode := o.cfg.ChargeMode
	if err := o.admit(ctx, ownerID, mode); err != nil {
		return models.JobHandle{}, err
	}

	now := o.clock.Now().UTC()
	job := &models.Job{
		ID:             ids.NewID("job"),
		OwnerID:        ownerID,
		Kind:           o.cfg.Kind,
		SourceAssetRef: sourceAssetRef,
		Parameters:     params,
		Status:         models.JobQueued,
		ChargeMode:     mode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		if mode == models.ChargeReserve {
			o.refund(context.WithoutCancel(ctx), job)
		}
		return models.JobHandle{}, errors.Wrap(err, op, "failed to create job")
	}

	log = log.WithJobID(job.ID)
	if err := o.scheduler.Push(ctx, ports.Task{JobID: job.ID, Kind: job.Kind}); err != nil {
		log.Error("failed to schedule job", "error", err.Error())
		o.fail(ctx, job, errors.WrapWithCode(err, errors.CodeUnavailable, op, "job could not be scheduled"))
		return models.JobHandle{}, errors.WrapWithCode(err, errors.CodeUnavailable, op, "job could not be scheduled")
	}

	log.Info("job accepted",
		"source_asset_ref", sourceAssetRef,
		"charge_mode", string(mode),
	)
	return models.JobHandle{JobID: job.ID, Status: job.Status}, nil
}

func (o *Orchestrator) resolveSource(ctx context.Context, ownerID, ref string) error {
	asset, err := o.assets.Get(ctx, ownerID, ref)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.SourceNotFound(ref)
		}
		return errors.Wrap(err, "pipeline.resolve", "failed to look up source asset")
	}
	ok, err := o.storage.Exists(ctx, asset.ObjectKey)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, "pipeline.resolve", "failed to check source object")
	}
	if !ok {
		return errors.SourceNotFound(ref)
	}
	return nil
}

func (o *Orchestrator) admit(ctx context.Context, ownerID string, mode models.ChargeMode) error {
	const op = "pipeline.admit"
	if mode == models.ChargeReserve {
		ok, err := o.credits.Reserve(ctx, ownerID, 1)
		if err != nil {
			return errors.Wrap(err, op, "failed to reserve credit")
		}
		if !ok {
			bal, _ := o.credits.Balance(ctx, ownerID)
			return errors.InsufficientCredit(ownerID, bal)
		}
		return nil
	}

	bal, err := o.credits.Balance(ctx, ownerID)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.InsufficientCredit(ownerID, 0)
		}
		return errors.Wrap(err, op, "failed to read credit balance")
	}
	if bal < 1 {
		return errors.InsufficientCredit(ownerID, bal)
	}
	return nil
}

// GetStatus returns the owner's view of a job. Completed jobs carry a freshly
// signed result URL.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID, ownerID string) (models.JobView, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.IsNotFound(err) {
			return models.JobView{}, errors.NotFound("job", jobID)
		}
		return models.JobView{}, errors.Wrap(err, "pipeline.status", "failed to load job")
	}
	if job.OwnerID != ownerID {
		return models.JobView{}, errors.NotFound("job", jobID)
	}
	return o.view(ctx, job)
}

// ListJobs returns the owner's jobs, newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, ownerID string, filter models.JobFilter) ([]models.JobView, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.ValidationField("status", "unknown job status: "+string(filter.Status))
	}
	jobs, err := o.jobs.ListByOwner(ctx, ownerID, filter.Normalize())
	if err != nil {
		return nil, errors.Wrap(err, "pipeline.list", "failed to list jobs")
	}
	out := make([]models.JobView, 0, len(jobs))
	for i := range jobs {
		v, err := o.view(ctx, &jobs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (o *Orchestrator) view(ctx context.Context, job *models.Job) (models.JobView, error) {
	v := models.JobView{
		JobID:     job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Error:     job.ErrorDetail,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == models.JobCompleted {
		signed, err := o.storage.GetSignedURL(ctx, job.ResultAssetRef, o.cfg.ResultURLTTL)
		if err != nil {
			return models.JobView{}, errors.WrapWithCode(err, errors.CodePersistence, "pipeline.status", "failed to sign result url")
		}
		v.ResultURL = signed.URL
		v.ExpiresAt = signed.ExpiresAt
	}
	return v, nil
}

// Process runs one delivery of a task to a terminal state.
//
// It returns a non-nil error only when the task should be delivered again:
// the context was canceled (shutdown) or the job could not be loaded.
// Render and persistence failures are recorded on the job and yield nil.
func (o *Orchestrator) Process(ctx context.Context, task ports.Task) error {
	ctx = logger.ContextWithJobID(ctx, task.JobID)
	log := o.log.FromContext(ctx)

	job, err := o.jobs.Get(ctx, task.JobID)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warn("dropping task for unknown job")
			return nil
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "pipeline.process", "failed to load job")
	}
	if job.Kind != o.cfg.Kind {
		log.Error("task routed to wrong pipeline", "job_kind", job.Kind)
		return nil
	}
	if job.Status.Terminal() {
		log.Debug("job already terminal", "status", string(job.Status))
		return nil
	}

	ctx = logger.ContextWithOwnerID(ctx, job.OwnerID)
	err = o.safeRun(ctx, job)
	switch {
	case err == nil:
		return nil
	case err == errSuperseded:
		log.Info("job advanced elsewhere, stopping")
		return nil
	case ctx.Err() != nil:
		log.Warn("job interrupted, leaving for redelivery", "status", string(job.Status))
		return ctx.Err()
	default:
		o.fail(ctx, job, err)
		return nil
	}
}

func (o *Orchestrator) safeRun(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.FromContext(ctx).Error("panic while processing job",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = errors.New(errors.CodeInternal, "internal error while processing job")
		}
	}()
	return o.run(ctx, job)
}

func (o *Orchestrator) run(ctx context.Context, job *models.Job) error {
	log := o.log.FromContext(ctx)
	start := o.clock.Now()

	if job.Status == models.JobQueued {
		if err := o.submit(ctx, job); err != nil {
			return err
		}
	} else {
		log.Info("resuming job", "status", string(job.Status), "attempts", job.Attempts)
	}

	st, err := o.poll(ctx, job)
	if err != nil {
		return err
	}
	if err := o.Finalize(ctx, job.ID, st.ResultURL); err != nil {
		return err
	}
	log.Info("job completed", "duration_ms", o.clock.Now().Sub(start).Milliseconds())
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, job *models.Job) error {
	const op = "pipeline.submit_render"
	log := o.log.FromContext(ctx)

	asset, err := o.assets.Get(ctx, job.OwnerID, job.SourceAssetRef)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.SourceNotFound(job.SourceAssetRef)
		}
		return errors.WrapWithCode(err, errors.CodePersistence, op, "failed to load source asset")
	}
	signed, err := o.storage.GetSignedURL(ctx, asset.ObjectKey, o.cfg.SourceURLTTL)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, op, "failed to sign source url")
	}

	spec := o.buildSpec(job, asset, signed.URL)
	log.Debug("submitting render",
		"clip_seconds", spec.ClipSeconds,
		"resolution", spec.Resolution,
		"transition", spec.Transition,
	)
	extID, err := o.renderer.Submit(ctx, spec)
	if err != nil {
		return errors.Wrap(err, op, "render submission failed")
	}

	applied, err := o.jobs.Transition(ctx, job.ID, models.JobSubmitted, models.JobUpdate{ExternalRenderID: extID})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, op, "failed to record submission")
	}
	if !applied {
		return errSuperseded
	}
	job.Status = models.JobSubmitted
	job.ExternalRenderID = extID
	log.Info("render submitted", "external_render_id", extID)
	return nil
}

func (o *Orchestrator) poll(ctx context.Context, job *models.Job) (ports.RenderStatus, error) {
	log := o.log.FromContext(ctx)
	cfg := PollConfig{
		Interval:    o.cfg.PollInterval,
		MaxAttempts: o.cfg.MaxPollAttempts,
		Used:        job.Attempts,
	}

	return PollUntil(ctx, o.clock, cfg, func(ctx context.Context, attempt int) (ports.RenderStatus, error) {
		if job.Status == models.JobSubmitted {
			applied, err := o.jobs.Transition(ctx, job.ID, models.JobPolling, models.JobUpdate{})
			if err != nil {
				return ports.RenderStatus{}, errors.WrapWithCode(err, errors.CodePersistence, "pipeline.poll", "failed to mark job polling")
			}
			if !applied {
				return ports.RenderStatus{}, errSuperseded
			}
			job.Status = models.JobPolling
		}
		if err := o.jobs.RecordPoll(ctx, job.ID); err != nil {
			log.Warn("failed to record poll attempt", "attempt", attempt, "error", err.Error())
		}

		st, err := o.renderer.GetStatus(ctx, job.ExternalRenderID)
		if err != nil {
			log.Warn("poll failed", "attempt", attempt, "error", err.Error())
			return st, err
		}
		log.Debug("poll", "attempt", attempt, "state", string(st.State))
		return st, nil
	})
}

// Finalize materializes a finished render and completes the job. It is a
// no-op for terminal jobs, so recovery may call it again safely.
func (o *Orchestrator) Finalize(ctx context.Context, jobID, resultURL string) error {
	const op = "pipeline.finalize"
	log := o.log.FromContext(ctx).WithJobID(jobID)

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, op, "failed to load job")
	}
	if job.Status.Terminal() {
		log.Debug("finalize skipped, job already terminal", "status", string(job.Status))
		return nil
	}
	if job.Status == models.JobQueued {
		return errors.Conflict("job has not been submitted").WithField("job_id", jobID)
	}
	if job.Status == models.JobSubmitted {
		if _, err := o.jobs.Transition(ctx, jobID, models.JobPolling, models.JobUpdate{}); err != nil {
			return errors.WrapWithCode(err, errors.CodePersistence, op, "failed to mark job polling")
		}
	}
	if strings.TrimSpace(resultURL) == "" {
		return errors.New(errors.CodeRenderFailed, "renderer reported success without a result")
	}

	body, contentType, size, err := o.fetcher.Fetch(ctx, resultURL)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, op, "failed to download render result")
	}
	defer body.Close()

	key := resultKey(job, resultExt(contentType, resultURL))
	if contentType == "" {
		contentType = "video/mp4"
	}
	out, err := o.storage.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: contentType,
		Reader:      body,
		Size:        size,
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodePersistence, op, "failed to store render result")
	}

	applied, err := o.jobs.Transition(ctx, jobID, models.JobCompleted, models.JobUpdate{ResultAssetRef: out.ObjectKey})
	if err != nil {
		o.discard(ctx, out.ObjectKey)
		return errors.WrapWithCode(err, errors.CodePersistence, op, "failed to complete job")
	}
	if !applied {
		current, gerr := o.jobs.Get(ctx, jobID)
		if gerr == nil && current.ResultAssetRef != out.ObjectKey {
			o.discard(ctx, out.ObjectKey)
		}
		log.Info("finalize lost the race, job already settled")
		return nil
	}

	// The job is completed now; settlement must outlive a canceled task.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()

	if job.ChargeMode != models.ChargeReserve {
		if err := o.credits.Decrement(sctx, job.OwnerID, 1); err != nil {
			log.Error("failed to settle credit", "error", err.Error())
		}
	}

	o.notifier.Notify(sctx, job.OwnerID, models.AlertSuccess,
		fmt.Sprintf("Your %s render is ready.", job.Kind),
		map[string]any{
			"job_id":           job.ID,
			"kind":             job.Kind,
			"result_asset_ref": out.ObjectKey,
		})
	log.Info("result stored", "result_asset_ref", out.ObjectKey, "size", out.Size)
	return nil
}

// fail records cause on the job, refunds a reserved credit and alerts the
// owner. It runs detached from ctx so shutdown cannot strand the job.
func (o *Orchestrator) fail(ctx context.Context, job *models.Job, cause error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	log := o.log.FromContext(ctx).WithJobID(job.ID)

	msg := errors.GetMessage(cause)
	if msg == "" {
		msg = "job failed"
	}
	if len(msg) > maxErrorDetail {
		msg = strings.ToValidUTF8(msg[:maxErrorDetail], "")
	}

	var ce *errors.Error
	if errors.As(cause, &ce) {
		log.Error("job failed",
			"code", string(ce.Code),
			"op", ce.Op,
			"message", msg,
			"error", cause.Error(),
		)
	} else {
		log.Error("job failed", "error", msg)
	}

	applied, err := o.jobs.Transition(pctx, job.ID, models.JobFailed, models.JobUpdate{ErrorDetail: msg})
	if err != nil {
		log.Error("failed to record job failure", "error", err.Error())
		return
	}
	if !applied {
		log.Warn("job already terminal, failure not recorded")
		return
	}

	if job.ChargeMode == models.ChargeReserve {
		o.refund(pctx, job)
	}

	o.notifier.Notify(pctx, job.OwnerID, models.AlertFailure,
		fmt.Sprintf("Your %s render failed: %s", job.Kind, msg),
		map[string]any{
			"job_id": job.ID,
			"kind":   job.Kind,
			"code":   string(errors.GetCode(cause)),
		})
}

func (o *Orchestrator) refund(ctx context.Context, job *models.Job) {
	if err := o.credits.Refund(ctx, job.OwnerID, 1); err != nil {
		o.log.WithJobID(job.ID).Error("failed to refund reserved credit", "error", err.Error())
	}
}

func (o *Orchestrator) discard(ctx context.Context, ref string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	if err := o.storage.DeleteObject(dctx, ref); err != nil {
		o.log.Warn("failed to delete orphaned result", "object_key", ref, "error", err.Error())
	}
}

// Recover re-enqueues non-terminal jobs of this kind that have not been
// touched since olderThan. It returns the number of tasks pushed.
func (o *Orchestrator) Recover(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := o.jobs.ListStale(ctx, o.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, errors.Wrap(err, "pipeline.recover", "failed to list stale jobs")
	}
	n := 0
	for _, j := range stale {
		if j.Kind != o.cfg.Kind {
			continue
		}
		if err := o.scheduler.Push(ctx, ports.Task{JobID: j.ID, Kind: j.Kind}); err != nil {
			return n, errors.WrapWithCode(err, errors.CodeUnavailable, "pipeline.recover", "failed to enqueue job")
		}
		n++
	}
	o.log.Info("recovered stale jobs", "count", n)
	return n, nil
}
