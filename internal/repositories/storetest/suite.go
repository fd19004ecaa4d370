// Package storetest is a behavioural suite shared by every store backend.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/ids"
	"clipforge/internal/ports"
)

// Stores is one backend under test.
type Stores struct {
	Jobs    ports.JobStore
	Credits ports.CreditLedger
	Alerts  ports.AlertStore
	Assets  ports.AssetCatalog
}

// Suite runs against the Stores returned by Setup before each test.
type Suite struct {
	suite.Suite
	// Setup returns fresh, empty stores.
	Setup func() Stores

	s   Stores
	ctx context.Context
}

func (t *Suite) SetupTest() {
	t.ctx = context.Background()
	t.s = t.Setup()
}

func (t *Suite) newJob(owner string) *models.Job {
	j := &models.Job{
		ID:             ids.NewID("job"),
		OwnerID:        owner,
		Kind:           "video",
		SourceAssetRef: "ast_1",
		Parameters:     models.JobParameters{DesiredLength: 60, Resolution: "720p", Transition: "fade"},
		Status:         models.JobQueued,
		ChargeMode:     models.ChargeCheck,
	}
	t.Require().NoError(t.s.Jobs.Create(t.ctx, j))
	return j
}

func (t *Suite) TestJobCreateGet() {
	j := t.newJob("own_1")
	t.False(j.CreatedAt.IsZero())

	got, err := t.s.Jobs.Get(t.ctx, j.ID)
	t.Require().NoError(err)
	t.Equal(j.ID, got.ID)
	t.Equal(models.JobQueued, got.Status)
	t.Equal(60, got.Parameters.DesiredLength)
	t.Equal("720p", got.Parameters.Resolution)
	t.Equal(models.ChargeCheck, got.ChargeMode)
	t.NoError(got.CheckInvariants())

	_, err = t.s.Jobs.Get(t.ctx, "job_missing")
	t.True(errors.IsNotFound(err))

	err = t.s.Jobs.Create(t.ctx, j)
	t.True(errors.IsConflict(err), "duplicate id must conflict, got %v", err)
}

func (t *Suite) TestTransitionLifecycle() {
	j := t.newJob("own_1")

	applied, err := t.s.Jobs.Transition(t.ctx, j.ID, models.JobCompleted, models.JobUpdate{ResultAssetRef: "x"})
	t.Require().NoError(err)
	t.False(applied, "queued -> completed must not apply")

	applied, err = t.s.Jobs.Transition(t.ctx, j.ID, models.JobSubmitted, models.JobUpdate{ExternalRenderID: "rnd_1"})
	t.Require().NoError(err)
	t.True(applied)

	applied, err = t.s.Jobs.Transition(t.ctx, j.ID, models.JobSubmitted, models.JobUpdate{ExternalRenderID: "rnd_2"})
	t.Require().NoError(err)
	t.False(applied, "repeat transition must not apply")

	applied, err = t.s.Jobs.Transition(t.ctx, j.ID, models.JobPolling, models.JobUpdate{ExternalRenderID: "rnd_other"})
	t.Require().NoError(err)
	t.True(applied)

	t.Require().NoError(t.s.Jobs.RecordPoll(t.ctx, j.ID))
	t.Require().NoError(t.s.Jobs.RecordPoll(t.ctx, j.ID))

	applied, err = t.s.Jobs.Transition(t.ctx, j.ID, models.JobCompleted, models.JobUpdate{ResultAssetRef: "renders/video/own_1/x.mp4"})
	t.Require().NoError(err)
	t.True(applied)

	got, err := t.s.Jobs.Get(t.ctx, j.ID)
	t.Require().NoError(err)
	t.Equal(models.JobCompleted, got.Status)
	t.Equal("rnd_1", got.ExternalRenderID, "external render id is write-once")
	t.Equal("renders/video/own_1/x.mp4", got.ResultAssetRef)
	t.Equal(2, got.Attempts)
	t.NoError(got.CheckInvariants())

	for _, to := range []models.JobStatus{models.JobFailed, models.JobCompleted, models.JobPolling} {
		applied, err = t.s.Jobs.Transition(t.ctx, j.ID, to, models.JobUpdate{ErrorDetail: "late", ResultAssetRef: "y"})
		t.Require().NoError(err)
		t.False(applied, "terminal job must not move to %s", to)
	}
}

func (t *Suite) TestTransitionToFailed() {
	for _, from := range []models.JobStatus{models.JobQueued, models.JobSubmitted, models.JobPolling} {
		j := t.newJob("own_f")
		if from != models.JobQueued {
			_, err := t.s.Jobs.Transition(t.ctx, j.ID, models.JobSubmitted, models.JobUpdate{ExternalRenderID: "r"})
			t.Require().NoError(err)
		}
		if from == models.JobPolling {
			_, err := t.s.Jobs.Transition(t.ctx, j.ID, models.JobPolling, models.JobUpdate{})
			t.Require().NoError(err)
		}

		applied, err := t.s.Jobs.Transition(t.ctx, j.ID, models.JobFailed, models.JobUpdate{ErrorDetail: "bad input"})
		t.Require().NoError(err)
		t.True(applied, "from %s", from)

		got, err := t.s.Jobs.Get(t.ctx, j.ID)
		t.Require().NoError(err)
		t.Equal("bad input", got.ErrorDetail)
		t.NoError(got.CheckInvariants())
	}
}

func (t *Suite) TestConcurrentTransitionAppliesOnce() {
	j := t.newJob("own_c")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := t.s.Jobs.Transition(t.ctx, j.ID, models.JobFailed, models.JobUpdate{ErrorDetail: "x"})
			if err == nil && ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	t.Equal(1, applied)
}

func (t *Suite) TestListByOwnerAndStale() {
	a1 := t.newJob("own_a")
	time.Sleep(10 * time.Millisecond)
	a2 := t.newJob("own_a")
	t.newJob("own_b")

	_, err := t.s.Jobs.Transition(t.ctx, a1.ID, models.JobFailed, models.JobUpdate{ErrorDetail: "x"})
	t.Require().NoError(err)

	all, err := t.s.Jobs.ListByOwner(t.ctx, "own_a", models.JobFilter{})
	t.Require().NoError(err)
	t.Require().Len(all, 2)
	t.Equal(a2.ID, all[0].ID, "newest first")

	failed, err := t.s.Jobs.ListByOwner(t.ctx, "own_a", models.JobFilter{Status: models.JobFailed, Limit: 10})
	t.Require().NoError(err)
	t.Require().Len(failed, 1)
	t.Equal(a1.ID, failed[0].ID)

	none, err := t.s.Jobs.ListByOwner(t.ctx, "own_nobody", models.JobFilter{})
	t.Require().NoError(err)
	t.Empty(none)

	stale, err := t.s.Jobs.ListStale(t.ctx, time.Now().Add(time.Minute), 10)
	t.Require().NoError(err)
	t.Len(stale, 2, "only non-terminal jobs are stale")
	for _, j := range stale {
		t.False(j.Status.Terminal())
	}

	stale, err = t.s.Jobs.ListStale(t.ctx, time.Now().Add(-time.Hour), 10)
	t.Require().NoError(err)
	t.Empty(stale)
}

func (t *Suite) TestCredits() {
	_, err := t.s.Credits.Balance(t.ctx, "own_x")
	t.True(errors.IsNotFound(err))
	t.True(errors.IsNotFound(t.s.Credits.Decrement(t.ctx, "own_x", 1)))

	bal, err := t.s.Credits.Grant(t.ctx, "own_x", 2)
	t.Require().NoError(err)
	t.EqualValues(2, bal)
	bal, err = t.s.Credits.Grant(t.ctx, "own_x", 1)
	t.Require().NoError(err)
	t.EqualValues(3, bal)

	t.Require().NoError(t.s.Credits.Decrement(t.ctx, "own_x", 1))
	bal, _ = t.s.Credits.Balance(t.ctx, "own_x")
	t.EqualValues(2, bal)

	ok, err := t.s.Credits.Reserve(t.ctx, "own_x", 2)
	t.Require().NoError(err)
	t.True(ok)
	ok, err = t.s.Credits.Reserve(t.ctx, "own_x", 1)
	t.Require().NoError(err)
	t.False(ok, "reserve must not overdraw")

	t.Require().NoError(t.s.Credits.Decrement(t.ctx, "own_x", 5))
	bal, _ = t.s.Credits.Balance(t.ctx, "own_x")
	t.EqualValues(0, bal, "decrement floors at zero")

	t.Require().NoError(t.s.Credits.Refund(t.ctx, "own_x", 1))
	bal, _ = t.s.Credits.Balance(t.ctx, "own_x")
	t.EqualValues(1, bal)

	_, err = t.s.Credits.Grant(t.ctx, "own_x", 0)
	t.True(errors.IsValidation(err))
}

func (t *Suite) TestAlerts() {
	a := &models.Alert{ID: ids.NewID("alr"), OwnerID: "own_1", Kind: models.AlertFailure,
		Message: "render failed: bad input", Metadata: map[string]any{"job_id": "job_1"}}
	t.Require().NoError(t.s.Alerts.Insert(t.ctx, a))
	t.Require().NoError(t.s.Alerts.Insert(t.ctx, &models.Alert{ID: ids.NewID("alr"), OwnerID: "own_2", Kind: models.AlertSuccess, Message: "ok"}))

	got, err := t.s.Alerts.ListByOwner(t.ctx, "own_1", 10)
	t.Require().NoError(err)
	t.Require().Len(got, 1)
	t.Equal(models.AlertFailure, got[0].Kind)
	t.Equal("job_1", got[0].Metadata["job_id"])
}

func (t *Suite) TestAssets() {
	a := &models.Asset{ID: ids.NewID("ast"), OwnerID: "own_1", Provider: "localfs",
		ObjectKey: "assets/x/original.mp4", Mime: "video/mp4", SizeBytes: 10, DurationSeconds: 42}
	t.Require().NoError(t.s.Assets.Create(t.ctx, a))

	got, err := t.s.Assets.Get(t.ctx, "own_1", a.ID)
	t.Require().NoError(err)
	t.Equal(42, got.DurationSeconds)
	t.Equal("", got.Label)

	_, err = t.s.Assets.Get(t.ctx, "own_2", a.ID)
	t.True(errors.IsNotFound(err), "assets are owner scoped")

	t.True(errors.IsNotFound(t.s.Assets.Delete(t.ctx, "own_2", a.ID)))
	t.Require().NoError(t.s.Assets.Delete(t.ctx, "own_1", a.ID))
	_, err = t.s.Assets.Get(t.ctx, "own_1", a.ID)
	t.True(errors.IsNotFound(err))
}
