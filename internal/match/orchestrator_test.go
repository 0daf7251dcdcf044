package match

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/internal/catalog"
	"github.com/strath-ai/Sentinel1-Sentinel2-ARD/pkg/geo"
)

// fakeSearcher serves canned footprints keyed by platform and records
// the queries it saw.
type fakeSearcher struct {
	primary    []catalog.Footprint
	secondary  []catalog.Footprint
	historical []catalog.Footprint

	secondaryErr  error
	historicalErr error

	queries           []catalog.SearchParams
	historicalQueries []catalog.HistoricalParams
}

func (f *fakeSearcher) Query(_ context.Context, params catalog.SearchParams) ([]catalog.Footprint, error) {
	f.queries = append(f.queries, params)
	if params.Platform == catalog.Sentinel2 {
		return inRange(f.primary, params.Range), nil
	}
	if f.secondaryErr != nil {
		return nil, f.secondaryErr
	}
	return inRange(f.secondary, params.Range), nil
}

func (f *fakeSearcher) QueryHistorical(_ context.Context, params catalog.HistoricalParams) ([]catalog.Footprint, error) {
	f.historicalQueries = append(f.historicalQueries, params)
	if f.historicalErr != nil {
		return nil, f.historicalErr
	}
	return inRange(f.historical, params.Range), nil
}

func inRange(fps []catalog.Footprint, r catalog.DateRange) []catalog.Footprint {
	var out []catalog.Footprint
	for _, fp := range fps {
		if !fp.Acquired.Before(r.Start) && !fp.Acquired.After(r.End) {
			out = append(out, fp)
		}
	}
	return out
}

func testROI(t *testing.T) geo.ROI {
	t.Helper()
	return geo.ROI{Name: "test", Geometry: rect(t, 0, 0, 1, 1)}
}

func weekRange() catalog.DateRange {
	return catalog.DateRange{
		Start: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 7, 0, 0, 0, 0, time.UTC),
	}
}

func s2Footprint(t *testing.T, title string, acquired time.Time) catalog.Footprint {
	fp := footprint(title, rect(t, 0, 0, 1, 1), acquired)
	fp.Platform = catalog.Sentinel2
	return fp
}

func s1Footprint(t *testing.T, title string, acquired time.Time) catalog.Footprint {
	fp := footprint(title, rect(t, 0, 0, 1, 1), acquired)
	fp.Platform = catalog.Sentinel1
	fp.ProductType = "GRD"
	fp.SensorMode = "IW"
	fp.RelativeOrbit = 139
	fp.SliceNumber = 5
	return fp
}

func TestRunPairsPrimaryWithSecondary(t *testing.T) {
	primaryTime := time.Date(2020, 6, 3, 10, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{
		primary:   []catalog.Footprint{s2Footprint(t, "S2A", primaryTime)},
		secondary: []catalog.Footprint{s1Footprint(t, "S1A", primaryTime.Add(18*time.Hour))},
	}

	o := New(searcher, Static{Action: ActionSkip}, Options{})
	jobs, err := o.Run(context.Background(), testROI(t), weekRange())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	job := jobs[0]
	if job.Primary.Title != "S2A" {
		t.Errorf("Primary = %s, want S2A", job.Primary.Title)
	}
	if job.Secondary == nil || job.Secondary.Title != "S1A" {
		t.Errorf("Secondary = %v, want S1A", job.Secondary)
	}
	if job.Historical != nil {
		t.Errorf("Historical = %v, want nil", job.Historical)
	}
	if job.ROINumber != 1 {
		t.Errorf("ROINumber = %d, want 1", job.ROINumber)
	}
	if job.PercentCovered < 99 {
		t.Errorf("PercentCovered = %v, want >= 99", job.PercentCovered)
	}

	// The secondary query must target the primary's subset polygon
	// within the delta window, on the other platform.
	var secondaryQuery *catalog.SearchParams
	for i := range searcher.queries {
		if searcher.queries[i].Platform == catalog.Sentinel1 {
			secondaryQuery = &searcher.queries[i]
		}
	}
	if secondaryQuery == nil {
		t.Fatal("no secondary query issued")
	}
	if secondaryQuery.AOI.IsEmpty() {
		t.Error("secondary query has no AOI")
	}
	wantStart := primaryTime.AddDate(0, 0, -3)
	if !secondaryQuery.Range.Start.Equal(wantStart) {
		t.Errorf("secondary window start = %v, want %v", secondaryQuery.Range.Start, wantStart)
	}
}

func TestRunEmptyPeriodAbort(t *testing.T) {
	searcher := &fakeSearcher{}
	o := New(searcher, Static{Action: ActionAbort}, Options{})

	_, err := o.Run(context.Background(), testROI(t), weekRange())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("error = %v, want ErrAborted", err)
	}
	// The abort must fire on the first period with nothing queried after.
	if len(searcher.queries) != 1 {
		t.Errorf("query count = %d, want 1", len(searcher.queries))
	}
}

func TestRunEmptyPeriodSkip(t *testing.T) {
	searcher := &fakeSearcher{}
	o := New(searcher, Static{Action: ActionSkip}, Options{})

	jobs, err := o.Run(context.Background(), testROI(t), weekRange())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("len(jobs) = %d, want 0", len(jobs))
	}
}

func TestRunPartialCoveragePolicies(t *testing.T) {
	half := s2Footprint(t, "S2HALF", time.Date(2020, 6, 3, 10, 0, 0, 0, time.UTC))
	half.Geometry = rect(t, 0, 0, 1, 0.5)

	tests := []struct {
		name     string
		action   Action
		wantJobs int
		wantErr  error
	}{
		{name: "skip drops the period", action: ActionSkip, wantJobs: 0},
		{name: "abort halts the run", action: ActionAbort, wantErr: ErrAborted},
		{name: "accept partial keeps the selection", action: ActionAcceptPartial, wantJobs: 1},
		{name: "skip all drops the period", action: ActionSkipAll, wantJobs: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{primary: []catalog.Footprint{half}}
			o := New(searcher, Static{Action: tt.action}, Options{SkipSecondary: true})

			jobs, err := o.Run(context.Background(), testROI(t), weekRange())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(jobs) != tt.wantJobs {
				t.Errorf("len(jobs) = %d, want %d", len(jobs), tt.wantJobs)
			}
		})
	}
}

func TestRunSkipAllIsSticky(t *testing.T) {
	// Three empty weeks; a counting resolver shows it is consulted only
	// once when it answers skip-all.
	searcher := &fakeSearcher{}
	resolver := &countingResolver{action: ActionSkipAll}
	o := New(searcher, resolver, Options{})

	jobs, err := o.Run(context.Background(), testROI(t), catalog.DateRange{
		Start: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 21, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("len(jobs) = %d, want 0", len(jobs))
	}
	if resolver.calls != 1 {
		t.Errorf("resolver consulted %d times, want 1", resolver.calls)
	}
}

type countingResolver struct {
	action Action
	calls  int
}

func (c *countingResolver) Resolve(_ context.Context, _ Shortfall) (Action, error) {
	c.calls++
	return c.action, nil
}

func TestRunSecondaryQueryErrorSkipsPairing(t *testing.T) {
	primaryTime := time.Date(2020, 6, 3, 10, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{
		primary:      []catalog.Footprint{s2Footprint(t, "S2A", primaryTime)},
		secondaryErr: &catalog.QueryError{Backend: "odata", Status: 503, Err: errors.New("unavailable")},
	}
	o := New(searcher, Static{Action: ActionSkip}, Options{})

	jobs, err := o.Run(context.Background(), testROI(t), weekRange())
	if err != nil {
		t.Fatalf("Run() error = %v (external query errors must not abort)", err)
	}
	if len(jobs) != 0 {
		t.Errorf("len(jobs) = %d, want 0", len(jobs))
	}
}

func TestRunUsedSecondaryNotReselected(t *testing.T) {
	// Two weeks with one primary each; a single radar product in the
	// overlap of both windows must pair only once.
	week1 := time.Date(2020, 6, 4, 10, 0, 0, 0, time.UTC)
	week2 := time.Date(2020, 6, 8, 10, 0, 0, 0, time.UTC)
	shared := s1Footprint(t, "S1SHARED", time.Date(2020, 6, 6, 10, 0, 0, 0, time.UTC))

	searcher := &fakeSearcher{
		primary: []catalog.Footprint{
			s2Footprint(t, "S2W1", week1),
			s2Footprint(t, "S2W2", week2),
		},
		secondary: []catalog.Footprint{shared},
	}
	o := New(searcher, Static{Action: ActionAcceptPartial}, Options{})

	jobs, err := o.Run(context.Background(), testROI(t), catalog.DateRange{
		Start: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 14, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	paired := 0
	for _, job := range jobs {
		if job.Secondary != nil {
			if job.Secondary.Title != "S1SHARED" {
				t.Errorf("Secondary = %s, want S1SHARED", job.Secondary.Title)
			}
			paired++
		}
	}
	if paired != 1 {
		t.Errorf("shared secondary paired %d times, want 1", paired)
	}
}

func TestRunMultitemporalHistorical(t *testing.T) {
	primaryTime := time.Date(2020, 6, 17, 10, 0, 0, 0, time.UTC)
	secondaryTime := time.Date(2020, 6, 18, 10, 0, 0, 0, time.UTC)
	histTime := secondaryTime.AddDate(0, 0, -12)

	older := s1Footprint(t, "S1OLD", histTime)
	older.Ingested = histTime.Add(2 * time.Hour)
	reprocessed := s1Footprint(t, "S1OLD_REPROC", histTime)
	reprocessed.Ingested = histTime.Add(48 * time.Hour)

	searcher := &fakeSearcher{
		primary:    []catalog.Footprint{s2Footprint(t, "S2A", primaryTime)},
		secondary:  []catalog.Footprint{s1Footprint(t, "S1NEW", secondaryTime)},
		historical: []catalog.Footprint{older, reprocessed},
	}
	o := New(searcher, Static{Action: ActionSkip}, Options{Multitemporal: true})

	jobs, err := o.Run(context.Background(), testROI(t), catalog.DateRange{
		Start: time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 21, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	if jobs[0].Historical == nil {
		t.Fatal("Historical = nil, want same-orbit acquisition")
	}
	// Equal acquisition times: the later ingestion wins.
	if jobs[0].Historical.Title != "S1OLD_REPROC" {
		t.Errorf("Historical = %s, want S1OLD_REPROC", jobs[0].Historical.Title)
	}

	if len(searcher.historicalQueries) != 1 {
		t.Fatalf("historical query count = %d, want 1", len(searcher.historicalQueries))
	}
	hq := searcher.historicalQueries[0]
	if hq.RelativeOrbit != 139 || hq.SliceNumber != 5 || hq.SensorMode != "IW" {
		t.Errorf("historical constraints = orbit %d slice %d mode %s", hq.RelativeOrbit, hq.SliceNumber, hq.SensorMode)
	}
}

func TestRunAmbiguousHistoricalAborts(t *testing.T) {
	primaryTime := time.Date(2020, 6, 17, 10, 0, 0, 0, time.UTC)
	secondaryTime := time.Date(2020, 6, 18, 10, 0, 0, 0, time.UTC)

	a := s1Footprint(t, "S1H_A", secondaryTime.AddDate(0, 0, -12))
	b := s1Footprint(t, "S1H_B", secondaryTime.AddDate(0, 0, -12).Add(3*time.Hour))

	searcher := &fakeSearcher{
		primary:    []catalog.Footprint{s2Footprint(t, "S2A", primaryTime)},
		secondary:  []catalog.Footprint{s1Footprint(t, "S1NEW", secondaryTime)},
		historical: []catalog.Footprint{a, b},
	}
	o := New(searcher, Static{Action: ActionSkip}, Options{Multitemporal: true})

	_, err := o.Run(context.Background(), testROI(t), catalog.DateRange{
		Start: time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 21, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrAmbiguousHistorical) {
		t.Fatalf("error = %v, want ErrAmbiguousHistorical", err)
	}
}

func TestRunHistoricalQueryErrorContinues(t *testing.T) {
	primaryTime := time.Date(2020, 6, 17, 10, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{
		primary:       []catalog.Footprint{s2Footprint(t, "S2A", primaryTime)},
		secondary:     []catalog.Footprint{s1Footprint(t, "S1NEW", primaryTime.Add(12*time.Hour))},
		historicalErr: &catalog.QueryError{Backend: "odata", Status: 500, Err: errors.New("boom")},
	}
	o := New(searcher, Static{Action: ActionSkip}, Options{Multitemporal: true})

	jobs, err := o.Run(context.Background(), testROI(t), catalog.DateRange{
		Start: time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 6, 21, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	if jobs[0].Historical != nil {
		t.Errorf("Historical = %v, want nil after recovered query error", jobs[0].Historical)
	}
}

func TestRunROINumbersFollowAreaOrder(t *testing.T) {
	day := time.Date(2020, 6, 3, 10, 0, 0, 0, time.UTC)
	small := s2Footprint(t, "S2SMALL", day)
	small.Geometry = rect(t, 0, 0.7, 1, 1)
	large := s2Footprint(t, "S2LARGE", day.Add(time.Hour))
	large.Geometry = rect(t, 0, 0, 1, 0.7)

	searcher := &fakeSearcher{primary: []catalog.Footprint{small, large}}
	o := New(searcher, Static{Action: ActionSkip}, Options{SkipSecondary: true})

	jobs, err := o.Run(context.Background(), testROI(t), weekRange())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].Primary.Title != "S2LARGE" || jobs[0].ROINumber != 1 {
		t.Errorf("jobs[0] = %s #%d, want S2LARGE #1", jobs[0].Primary.Title, jobs[0].ROINumber)
	}
	if jobs[1].Primary.Title != "S2SMALL" || jobs[1].ROINumber != 2 {
		t.Errorf("jobs[1] = %s #%d, want S2SMALL #2", jobs[1].Primary.Title, jobs[1].ROINumber)
	}
}

func TestPromptResolverRejectsInvalidInput(t *testing.T) {
	in := strings.NewReader("maybe\ny_all\n")
	var out strings.Builder
	p := &Prompt{In: in, Out: &out}

	action, err := p.Resolve(context.Background(), Shortfall{Empty: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if action != ActionSkipAll {
		t.Errorf("action = %v, want ActionSkipAll", action)
	}
	if !strings.Contains(out.String(), "Unrecognised response") {
		t.Error("expected a re-prompt after invalid input")
	}
}

func TestPromptResolverAcceptPartialOnlyForPartial(t *testing.T) {
	// "a" is not a valid answer to an empty period; the resolver must
	// re-prompt rather than accept it.
	in := strings.NewReader("a\ny\n")
	var out strings.Builder
	p := &Prompt{In: in, Out: &out}

	action, err := p.Resolve(context.Background(), Shortfall{Empty: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if action != ActionSkip {
		t.Errorf("action = %v, want ActionSkip", action)
	}
}
