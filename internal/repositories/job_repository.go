package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

type JobRepository struct {
	db *pgxpool.Pool
}

func NewJobRepository(db *pgxpool.Pool) *JobRepository {
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

	err = r.db.QueryRow(ctx, `
		INSERT INTO jobs (id, owner_id, kind, source_asset_ref, params_json, status, charge_mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at
	`, j.ID, j.OwnerID, j.Kind, j.SourceAssetRef, params, string(j.Status), string(j.ChargeMode)).
		Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return errors.Conflict("job already exists").WithField("job_id", j.ID)
		}
		return persistence(err, "jobs.create", "insert job")
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, jobID string) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, jobID))
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
		rows pgx.Rows
		err  error
	)
	if f.Status != "" {
		rows, err = r.db.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE owner_id=$1 AND status=$2
			ORDER BY created_at DESC
			LIMIT $3`, ownerID, string(f.Status), f.Limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE owner_id=$1
			ORDER BY created_at DESC
			LIMIT $2`, ownerID, f.Limit)
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

	// external_render_id is write-once: COALESCE keeps an existing value.
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			external_render_id = COALESCE(external_render_id, NULLIF($3, '')),
			result_asset_ref = COALESCE(NULLIF($4, ''), result_asset_ref),
			error_detail = COALESCE(NULLIF($5, ''), error_detail),
			attempts = attempts + $6,
			updated_at = now()
		WHERE id = $1 AND status = ANY($7)
	`, jobID, string(to), upd.ExternalRenderID, upd.ResultAssetRef, upd.ErrorDetail, inc, statusStrings(from))
	if err != nil {
		return false, persistence(err, "jobs.transition", "update job status")
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *JobRepository) RecordPoll(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs SET attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status = 'polling'
	`, jobID)
	if err != nil {
		return persistence(err, "jobs.record_poll", "update attempts")
	}
	return nil
}

func (r *JobRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, statusStrings(models.NonTerminalStatuses), olderThan, limit)
	if err != nil {
		return nil, persistence(err, "jobs.list_stale", "query stale jobs")
	}
	return collectJobs(rows)
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j      models.Job
		params []byte
	)
	if err := row.Scan(
		&j.ID, &j.OwnerID, &j.Kind, &j.SourceAssetRef, &params, &j.Status,
		&j.ExternalRenderID, &j.ResultAssetRef, &j.ErrorDetail,
		&j.ChargeMode, &j.Attempts, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Parameters); err != nil {
			return nil, err
		}
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]models.Job, error) {
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

func statusStrings(in []models.JobStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
