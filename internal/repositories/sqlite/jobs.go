package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ ports.JobStore = (*JobRepository)(nil)

const jobColumns = `id, owner_id, kind, source_asset_ref, params_json, status,
	COALESCE(external_render_id, ''), COALESCE(result_asset_ref, ''), COALESCE(error_detail, ''),
	charge_mode, attempts, created_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	params, err := json.Marshal(j.Parameters)
	if err != nil {
		return errors.Wrap(err, "jobs.create", "encode parameters")
	}
	if j.ChargeMode == "" {
		j.ChargeMode = models.ChargeCheck
	}
	now := nowMillis()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, kind, source_asset_ref, params_json, status, charge_mode, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, j.ID, j.OwnerID, j.Kind, j.SourceAssetRef, string(params), string(j.Status), string(j.ChargeMode), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("job already exists").WithField("job_id", j.ID)
		}
		return persistence(err, "jobs.create", "insert job")
	}
	j.CreatedAt = fromMillis(now)
	j.UpdatedAt = j.CreatedAt
	return nil
}

func (r *JobRepository) Get(ctx context.Context, jobID string) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, jobID))
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("job", jobID)
		}
		return nil, persistence(err, "jobs.get", "select job")
	}
	return j, nil
}

func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string, f models.JobFilter) ([]models.Job, error) {
	f = f.Normalize()

	var (
		rows *sql.Rows
		err  error
	)
	if f.Status != "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE owner_id=? AND status=?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?`, ownerID, string(f.Status), f.Limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE owner_id=?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?`, ownerID, f.Limit)
	}
	if err != nil {
		return nil, persistence(err, "jobs.list", "query jobs")
	}
	return collectJobs(rows)
}

func (r *JobRepository) Transition(ctx context.Context, jobID string, to models.JobStatus, upd models.JobUpdate) (bool, error) {
	from := models.Predecessors(to)
	if len(from) == 0 {
		return false, errors.Validation("no transition leads to " + string(to))
	}
	inc := 0
	if upd.IncrementAttempts {
		inc = 1
	}

	args := []any{string(to), upd.ExternalRenderID, upd.ResultAssetRef, upd.ErrorDetail, inc, nowMillis(), jobID}
	for _, s := range from {
		args = append(args, string(s))
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = ?,
			external_render_id = COALESCE(external_render_id, NULLIF(?, '')),
			result_asset_ref = COALESCE(NULLIF(?, ''), result_asset_ref),
			error_detail = COALESCE(NULLIF(?, ''), error_detail),
			attempts = attempts + ?,
			updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return false, persistence(err, "jobs.transition", "update job status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistence(err, "jobs.transition", "rows affected")
	}
	return n == 1, nil
}

func (r *JobRepository) RecordPoll(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'polling'
	`, nowMillis(), jobID)
	if err != nil {
		return persistence(err, "jobs.record_poll", "update attempts")
	}
	return nil
}

func (r *JobRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	args := []any{}
	for _, s := range models.NonTerminalStatuses {
		args = append(args, string(s))
	}
	args = append(args, olderThan.UTC().UnixMilli(), limit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (`+placeholders(len(models.NonTerminalStatuses))+`) AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, persistence(err, "jobs.list_stale", "query stale jobs")
	}
	return collectJobs(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j                models.Job
		params           string
		status, mode     string
		created, updated int64
	)
	if err := row.Scan(
		&j.ID, &j.OwnerID, &j.Kind, &j.SourceAssetRef, &params, &status,
		&j.ExternalRenderID, &j.ResultAssetRef, &j.ErrorDetail,
		&mode, &j.Attempts, &created, &updated,
	); err != nil {
		return nil, err
	}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &j.Parameters); err != nil {
			return nil, err
		}
	}
	j.Status = models.JobStatus(status)
	j.ChargeMode = models.ChargeMode(mode)
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(updated)
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]models.Job, error) {
	defer rows.Close()
	out := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, persistence(err, "jobs.scan", "scan job")
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err, "jobs.scan", "iterate jobs")
	}
	return out, nil
}
