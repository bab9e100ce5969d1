package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maxim/sportrank/internal/pipeline"
)

// Verdict thresholds: a run with more than warnDiffs total mismatches fails,
// more than passDiffs is a warning.
const (
	passDiffs = 2
	warnDiffs = 5
)

// GoldenSample is one expected record inside a reference document.
type GoldenSample struct {
	Fio          string `json:"fio"`
	BirthDate    string `json:"birth_date,omitempty"`
	RankCategory string `json:"rank_category,omitempty"`
	Sport        string `json:"sport,omitempty"`
}

// GoldenCase is one reference document with its expected extraction.
type GoldenCase struct {
	Name            string         `json:"name"`
	SourceCode      string         `json:"source_code"`
	File            string         `json:"file,omitempty"`
	URL             string         `json:"url,omitempty"`
	ExpectedRecords int            `json:"expected_records"`
	ExpectedSamples []GoldenSample `json:"expected_samples,omitempty"`
}

// GoldenCaseResult is the evaluation of a single case.
type GoldenCaseResult struct {
	Name         string   `json:"name"`
	SourceCode   string   `json:"source_code"`
	Records      int      `json:"records"`
	Expected     int      `json:"expected_records"`
	Diffs        int      `json:"diffs"`
	DiffMessages []string `json:"diff_messages,omitempty"`
	Err          string   `json:"error,omitempty"`
}

// GoldenReport is the full run summary.
type GoldenReport struct {
	Verdict    string             `json:"verdict"` // pass | warn | fail
	Cases      int                `json:"cases"`
	TotalDiffs int                `json:"total_diffs"`
	Results    []GoldenCaseResult `json:"results"`
	RanAt      time.Time          `json:"ran_at"`
}

// handleGoldenSet replays reference documents through the pipeline in
// dry-run mode and compares extraction output against expectations. Cases
// come from the request body, or from the file GOLDEN_SET_PATH points to
// when the body is empty.
func (s *Server) handleGoldenSet(c echo.Context) error {
	if s.Pipeline == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
	}

	var req struct {
		Cases []GoldenCase `json:"cases"`
	}
	_ = c.Bind(&req)
	cases := req.Cases
	if len(cases) == 0 {
		loaded, err := loadGoldenFile(os.Getenv("GOLDEN_SET_PATH"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		cases = loaded
	}
	if len(cases) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no golden cases provided"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), jobTimeout)
	defer cancel()

	report := s.runGoldenSet(ctx, cases)
	return c.JSON(http.StatusOK, report)
}

// handleListGoldenSet shows the reference cases configured on disk.
func (s *Server) handleListGoldenSet(c echo.Context) error {
	cases, err := loadGoldenFile(os.Getenv("GOLDEN_SET_PATH"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(cases),
		"cases": cases,
	})
}

func loadGoldenFile(path string) ([]GoldenCase, error) {
	if path == "" {
		return nil, fmt.Errorf("no cases in request and GOLDEN_SET_PATH is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden set: %w", err)
	}
	var doc struct {
		Cases []GoldenCase `json:"cases"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse golden set: %w", err)
	}
	return doc.Cases, nil
}

func (s *Server) runGoldenSet(ctx context.Context, cases []GoldenCase) *GoldenReport {
	report := &GoldenReport{RanAt: time.Now(), Cases: len(cases)}
	dry := s.dryRunPipeline()

	for _, gc := range cases {
		cr := evaluateGoldenCase(ctx, dry, gc)
		report.TotalDiffs += cr.Diffs
		report.Results = append(report.Results, cr)
	}

	switch {
	case report.TotalDiffs <= passDiffs:
		report.Verdict = "pass"
	case report.TotalDiffs <= warnDiffs:
		report.Verdict = "warn"
	default:
		report.Verdict = "fail"
	}
	return report
}

func evaluateGoldenCase(ctx context.Context, pl *pipeline.Pipeline, gc GoldenCase) GoldenCaseResult {
	cr := GoldenCaseResult{
		Name:       gc.Name,
		SourceCode: gc.SourceCode,
		Expected:   gc.ExpectedRecords,
	}

	var (
		result *pipeline.Result
		err    error
	)
	switch {
	case gc.File != "":
		result, err = pl.ProcessFile(ctx, gc.SourceCode, gc.File)
	case gc.URL != "":
		result, err = pl.ProcessURL(ctx, gc.SourceCode, gc.URL)
	default:
		cr.Err = "case has neither file nor url"
		cr.Diffs = warnDiffs + 1
		return cr
	}
	if err != nil {
		cr.Err = err.Error()
		cr.Diffs = warnDiffs + 1
		return cr
	}

	cr.Records = result.Records
	cr.Diffs, cr.DiffMessages = diffGoldenCase(gc, result)
	return cr
}

// diffGoldenCase counts mismatches between the expected and actual
// extraction. A wrong record count is one diff; each expected sample that
// is missing, or present with the wrong rank or sport, is another.
func diffGoldenCase(gc GoldenCase, result *pipeline.Result) (int, []string) {
	var diffs int
	var msgs []string

	if gc.ExpectedRecords > 0 && result.Records != gc.ExpectedRecords {
		diffs++
		msgs = append(msgs, fmt.Sprintf("record count: want %d, got %d", gc.ExpectedRecords, result.Records))
	}

	for _, want := range gc.ExpectedSamples {
		found := false
		for _, a := range result.Assignments {
			if !strings.EqualFold(strings.TrimSpace(a.Fio), strings.TrimSpace(want.Fio)) {
				continue
			}
			found = true
			if want.RankCategory != "" && !strings.EqualFold(a.RankCategory, want.RankCategory) {
				diffs++
				msgs = append(msgs, fmt.Sprintf("%s: rank want %q, got %q", want.Fio, want.RankCategory, a.RankCategory))
			}
			if want.Sport != "" && !strings.EqualFold(a.Sport, want.Sport) {
				diffs++
				msgs = append(msgs, fmt.Sprintf("%s: sport want %q, got %q", want.Fio, want.Sport, a.Sport))
			}
			if want.BirthDate != "" {
				got := ""
				if a.BirthDate != nil {
					got = a.BirthDate.Format("02.01.2006")
				}
				if got != want.BirthDate {
					diffs++
					msgs = append(msgs, fmt.Sprintf("%s: birth date want %s, got %s", want.Fio, want.BirthDate, got))
				}
			}
			break
		}
		if !found {
			diffs++
			msgs = append(msgs, fmt.Sprintf("%s: record missing", want.Fio))
		}
	}
	return diffs, msgs
}
