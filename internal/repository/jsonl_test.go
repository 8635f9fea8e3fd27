package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipetrack/pipetrack-api/internal/models"
)

func newTestStore(t *testing.T) *JSONLRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline_data.jsonl")
	return NewJSONLRepository(path, zerolog.Nop())
}

func testRun(dateCode string, rowcount int64, start time.Time) models.PipelineRun {
	name := "p"
	script := "process.py"
	return models.PipelineRun{
		StartLocal:     models.Timestamp{Time: start.Add(-7 * time.Hour)},
		EndLocal:       models.Timestamp{Time: start.Add(-7*time.Hour + 10*time.Minute)},
		StartUTC:       models.Timestamp{Time: start},
		EndUTC:         models.Timestamp{Time: start.Add(10 * time.Minute)},
		ElapsedSeconds: 600,
		ElapsedHuman:   "10m 0s",
		OutputFile:     "/data/out-" + dateCode + ".data",
		Rowcount:       rowcount,
		LogFile:        "/data/logs/" + dateCode + ".log",
		PID:            4242,
		DateCode:       dateCode,
		PipelineName:   &name,
		ScriptName:     &script,
	}
}

func seedScenario(t *testing.T, repo *JSONLRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	for i, rowcount := range []int64{10, 20, 30} {
		run := testRun(
			base.Add(time.Duration(i)*time.Hour).Format("20060102_150405"),
			rowcount,
			base.Add(time.Duration(i)*time.Hour),
		)
		require.NoError(t, repo.Insert(ctx, &run))
	}
}

func int64p(v int64) *int64 { return &v }

func strp(s string) *string { return &s }

func timep(t time.Time) *time.Time { return &t }

func TestInsertRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	run := testRun("20250810_120000", 4342, time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Insert(ctx, &run))

	got, err := repo.List(ctx, Filter{
		StartUTC:     timep(run.StartUTC.Time),
		EndUTC:       timep(run.EndUTC.Time),
		MinRowcount:  int64p(run.Rowcount),
		MaxRowcount:  int64p(run.Rowcount),
		PipelineName: run.PipelineName,
		ScriptName:   run.ScriptName,
	}, Page{All: true})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, run.DateCode, got[0].DateCode)
	assert.Equal(t, run.Rowcount, got[0].Rowcount)
	assert.True(t, got[0].StartUTC.Equal(run.StartUTC.Time))
	assert.Equal(t, run.ElapsedHuman, got[0].ElapsedHuman)
}

func TestInsertRejectsInvalidRecord(t *testing.T) {
	repo := newTestStore(t)
	run := testRun("20250810_120000", -5, time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC))

	err := repo.Insert(context.Background(), &run)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	// Nothing may reach storage.
	_, statErr := os.Stat(repo.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRowcountFilterScenario(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)
	ctx := context.Background()

	got, err := repo.List(ctx, Filter{MinRowcount: int64p(15)}, Page{Limit: DefaultLimit})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	count, err := repo.Count(ctx, Filter{MinRowcount: int64p(15)})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSummariesScenario(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)

	summaries, err := repo.Summaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	require.NotNil(t, s.PipelineName)
	assert.Equal(t, "p", *s.PipelineName)
	assert.Equal(t, int64(3), s.TotalRuns)
	assert.Equal(t, int64(60), s.TotalRowcount)
	require.NotNil(t, s.AvgRowcount)
	assert.InDelta(t, 20.0, *s.AvgRowcount, 1e-9)
	require.NotNil(t, s.LastRun)
	assert.True(t, s.LastRun.Equal(time.Date(2025, 8, 10, 14, 0, 0, 0, time.UTC)))
}

func TestSummariesAbsentAverageWhenNoPositiveRowcount(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	run := testRun("20250810_120000", 0, time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Insert(ctx, &run))

	summaries, err := repo.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Nil(t, summaries[0].AvgRowcount)
	assert.Equal(t, int64(0), summaries[0].TotalRowcount)
}

func TestCountMatchesUnwindowedList(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)
	ctx := context.Background()

	filters := []Filter{
		{},
		{MinRowcount: int64p(15)},
		{MaxRowcount: int64p(15)},
		{PipelineName: strp("p")},
		{PipelineName: strp("missing")},
		{StartUTC: timep(time.Date(2025, 8, 10, 13, 0, 0, 0, time.UTC))},
	}
	for _, f := range filters {
		all, err := repo.List(ctx, f, Page{All: true})
		require.NoError(t, err)
		count, err := repo.Count(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, len(all), count)
	}
}

func TestFilterMonotonicity(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)
	ctx := context.Background()

	// Each step strictly loosens the previous filter.
	steps := []Filter{
		{MinRowcount: int64p(25), PipelineName: strp("p")},
		{MinRowcount: int64p(15), PipelineName: strp("p")},
		{MinRowcount: int64p(15)},
		{},
	}
	prev := -1
	for _, f := range steps {
		count, err := repo.Count(ctx, f)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, prev)
		prev = count
	}
}

func TestRangeBoundsInclusive(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)
	ctx := context.Background()

	// Bounds equal to the middle record's own timestamps must keep it.
	mid := time.Date(2025, 8, 10, 13, 0, 0, 0, time.UTC)
	count, err := repo.Count(ctx, Filter{
		StartUTC: timep(mid),
		EndUTC:   timep(mid.Add(10 * time.Minute)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.Count(ctx, Filter{
		MinRowcount: int64p(20),
		MaxRowcount: int64p(20),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPaginationPartitionsPopulation(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		run := testRun(
			base.Add(time.Duration(i)*time.Hour).Format("20060102_150405"),
			int64(i+1),
			base.Add(time.Duration(i)*time.Hour),
		)
		require.NoError(t, repo.Insert(ctx, &run))
	}

	all, err := repo.List(ctx, Filter{}, Page{All: true})
	require.NoError(t, err)
	require.Len(t, all, 7)

	var paged []models.PipelineRun
	for offset := 0; offset < len(all); offset += 3 {
		window, err := repo.List(ctx, Filter{}, Page{Limit: 3, Offset: offset})
		require.NoError(t, err)
		paged = append(paged, window...)
	}
	require.Len(t, paged, len(all))
	for i := range all {
		assert.Equal(t, all[i].DateCode, paged[i].DateCode)
	}

	// Past-the-end offset yields an empty window, not an error.
	window, err := repo.List(ctx, Filter{}, Page{Limit: 3, Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestOrderingIsStartUTCDescending(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)

	all, err := repo.List(context.Background(), Filter{}, Page{All: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i-1].StartUTC.Before(all[i].StartUTC.Time))
	}
}

func TestCorruptLineIsSkippedAndCounted(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)
	ctx := context.Background()

	f, err := os.OpenFile(repo.path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	all, err := repo.List(ctx, Filter{}, Page{All: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, uint64(1), repo.SkippedLines())
}

func TestPageValidation(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	_, err := repo.List(ctx, Filter{}, Page{Limit: 0})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = repo.List(ctx, Filter{}, Page{Limit: MaxLimit + 1})
	require.ErrorAs(t, err, &verr)

	_, err = repo.List(ctx, Filter{}, Page{Limit: 10, Offset: -1})
	require.ErrorAs(t, err, &verr)

	// All bypasses the window constraints entirely.
	_, err = repo.List(ctx, Filter{}, Page{All: true})
	require.NoError(t, err)
}

func TestFindByDateCode(t *testing.T) {
	repo := newTestStore(t)
	seedScenario(t, repo)
	ctx := context.Background()

	run, err := repo.FindByDateCode(ctx, "20250810_130000")
	require.NoError(t, err)
	assert.Equal(t, int64(20), run.Rowcount)

	_, err = repo.FindByDateCode(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMissingStoreReadsEmpty(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	all, err := repo.List(ctx, Filter{}, Page{All: true})
	require.NoError(t, err)
	assert.Empty(t, all)

	count, err := repo.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}
