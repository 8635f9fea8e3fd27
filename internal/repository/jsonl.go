package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pipetrack/pipetrack-api/internal/models"
)

// maxLineBytes bounds a single JSONL record. Lines beyond this are treated
// as corrupt.
const maxLineBytes = 1 << 20

// JSONLRepository treats an append-only newline-delimited JSON file as the
// system of record. Every read is a full scan; filtering, windowing and
// aggregation happen in memory after materialization. That bounds practical
// store size and is an intentional simplicity tradeoff.
//
// Concurrent reads are safe. Appends are serialized within this process only;
// multiple writer processes need external locking or the relational backend.
type JSONLRepository struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	skipped atomic.Uint64
}

func NewJSONLRepository(path string, logger zerolog.Logger) *JSONLRepository {
	return &JSONLRepository{
		path:   path,
		logger: logger.With().Str("backend", "jsonl").Logger(),
	}
}

// SkippedLines reports how many stored lines failed to decode since startup.
func (r *JSONLRepository) SkippedLines() uint64 {
	return r.skipped.Load()
}

// readAll materializes the whole store. A line that fails to decode or
// validate is skipped and counted, not fatal: one corrupt historical line
// must not take down the read path.
func (r *JSONLRepository) readAll(ctx context.Context) ([]models.PipelineRun, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, classify("open jsonl store", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var runs []models.PipelineRun
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := ctx.Err(); err != nil {
			return nil, classify("scan jsonl store", err)
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var run models.PipelineRun
		if err := json.Unmarshal(line, &run); err != nil {
			r.skipLine(lineNum, err)
			continue
		}
		if err := run.Validate(); err != nil {
			r.skipLine(lineNum, err)
			continue
		}
		runs = append(runs, run)
	}
	if err := scanner.Err(); err != nil {
		return nil, classify("scan jsonl store", err)
	}
	return runs, nil
}

func (r *JSONLRepository) skipLine(lineNum int, err error) {
	r.skipped.Add(1)
	r.logger.Warn().Int("line", lineNum).Err(err).Msg("skipping undecodable line")
}

func (r *JSONLRepository) filtered(ctx context.Context, f Filter) ([]models.PipelineRun, error) {
	runs, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	matched := runs[:0]
	for i := range runs {
		if f.matches(&runs[i]) {
			matched = append(matched, runs[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartUTC.After(matched[j].StartUTC.Time)
	})
	return matched, nil
}

func (r *JSONLRepository) List(ctx context.Context, f Filter, p Page) ([]models.PipelineRun, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	matched, err := r.filtered(ctx, f)
	if err != nil {
		return nil, err
	}
	if p.All {
		return matched, nil
	}
	if p.Offset >= len(matched) {
		return []models.PipelineRun{}, nil
	}
	end := p.Offset + p.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[p.Offset:end], nil
}

func (r *JSONLRepository) Count(ctx context.Context, f Filter) (int, error) {
	matched, err := r.filtered(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// Insert appends one line. The write lock serializes appends within this
// process; O_APPEND keeps single writes atomic for typical line sizes.
func (r *JSONLRepository) Insert(ctx context.Context, run *models.PipelineRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return classify("append jsonl store", err)
	}

	line, err := json.Marshal(run)
	if err != nil {
		return classify("encode run", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return classify("create store directory", err)
		}
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return classify("open jsonl store", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return classify("append jsonl store", err)
	}
	return nil
}

// signature is the grouping key for summaries. Runs that omit a
// classification field group together, as their NULL columns do under the
// relational GROUP BY.
type signature struct {
	pipelineName string
	scriptName   string
	pipelineType string
	environment  string
}

func signatureOf(r *models.PipelineRun) signature {
	return signature{
		pipelineName: deref(r.PipelineName),
		scriptName:   deref(r.ScriptName),
		pipelineType: deref(r.PipelineType),
		environment:  deref(r.Environment),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *JSONLRepository) Summaries(ctx context.Context) ([]models.PipelineSummary, error) {
	runs, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[signature][]*models.PipelineRun)
	var order []signature
	for i := range runs {
		key := signatureOf(&runs[i])
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], &runs[i])
	}

	summaries := make([]models.PipelineSummary, 0, len(order))
	for _, key := range order {
		members := groups[key]
		first := members[0]

		summary := models.PipelineSummary{
			PipelineName: first.PipelineName,
			ScriptName:   first.ScriptName,
			PipelineType: first.PipelineType,
			Environment:  first.Environment,
			TotalRuns:    int64(len(members)),
		}

		var (
			durationSum   float64
			durationCount int64
			rowcountSum   int64
			positiveSum   int64
			positiveCount int64
			lastRun       models.Timestamp
		)
		for _, m := range members {
			if m.ElapsedSeconds > 0 {
				durationSum += m.ElapsedSeconds
				durationCount++
			}
			rowcountSum += m.Rowcount
			if m.Rowcount > 0 {
				positiveSum += m.Rowcount
				positiveCount++
			}
			if m.StartUTC.After(lastRun.Time) {
				lastRun = m.StartUTC
			}
		}
		summary.TotalRowcount = rowcountSum
		if !lastRun.IsZero() {
			last := lastRun
			summary.LastRun = &last
		}
		if durationCount > 0 {
			avg := durationSum / float64(durationCount)
			summary.AvgDuration = &avg
		}
		if positiveCount > 0 {
			avg := float64(positiveSum) / float64(positiveCount)
			summary.AvgRowcount = &avg
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		ti, tj := summaryTime(summaries[i].LastRun), summaryTime(summaries[j].LastRun)
		return ti.After(tj.Time)
	})
	return summaries, nil
}

func summaryTime(t *models.Timestamp) models.Timestamp {
	if t == nil {
		return models.Timestamp{}
	}
	return *t
}

func (r *JSONLRepository) FindByDateCode(ctx context.Context, dateCode string) (*models.PipelineRun, error) {
	runs, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].DateCode == dateCode {
			return &runs[i], nil
		}
	}
	return nil, ErrNotFound
}
