package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zerotwo/ine-collector/internal/db"
	"github.com/zerotwo/ine-collector/internal/ine"
	"github.com/zerotwo/ine-collector/internal/models"
)

type stubFetcher struct {
	responses map[string]func(ctx context.Context) (models.SeriesList, error)
	pingErr   error
	calls     []string
}

func (f *stubFetcher) Fetch(ctx context.Context, externalID string) (models.SeriesList, error) {
	f.calls = append(f.calls, externalID)
	fn, ok := f.responses[externalID]
	if !ok {
		return nil, &ine.FetchError{Kind: ine.KindNetwork, ExternalID: externalID, StatusCode: 404}
	}
	return fn(ctx)
}

func (f *stubFetcher) Ping(context.Context) error { return f.pingErr }

// memStore keeps saved series per dataset in memory.
type memStore struct {
	mu       sync.Mutex
	datasets []models.Dataset
	listErr  error
	saveErr  func(ctx context.Context, ds models.Dataset) error
	saved    map[string][]models.NormalizedSeries
	marked   map[int64]int64
}

func newMemStore(datasets ...models.Dataset) *memStore {
	return &memStore{
		datasets: datasets,
		saved:    make(map[string][]models.NormalizedSeries),
		marked:   make(map[int64]int64),
	}
}

func (s *memStore) ListActiveDatasets(context.Context) ([]models.Dataset, error) {
	return s.datasets, s.listErr
}

func (s *memStore) SaveDataset(ctx context.Context, ds models.Dataset, series []models.NormalizedSeries, collectedAtMs int64) (models.SaveResult, error) {
	if s.saveErr != nil {
		if err := s.saveErr(ctx, ds); err != nil {
			return models.SaveResult{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[ds.ExternalID] = series
	s.marked[ds.ID] = collectedAtMs
	return models.SaveResult{SeriesUpserted: len(series), ObservationsInserted: models.ObservationCount(series)}, nil
}

func payload(t *testing.T, code string, points int) func(context.Context) (models.SeriesList, error) {
	t.Helper()
	data := make([]map[string]any, 0, points)
	for i := 0; i < points; i++ {
		data = append(data, map[string]any{"Valor": float64(i) + 0.5, "Anyo": 2000 + i, "FK_Periodo": 1})
	}
	raw, err := json.Marshal(map[string]any{"COD": code, "Nombre": code + " name", "FK_Unidad": "1", "Data": data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return func(context.Context) (models.SeriesList, error) {
		return models.SeriesList{raw}, nil
	}
}

func timeoutFetch(ctx context.Context) (models.SeriesList, error) {
	return nil, &ine.FetchError{Kind: ine.KindNetwork, ExternalID: "B", Err: context.DeadlineExceeded}
}

func dataset(id int64, code string) models.Dataset {
	return models.Dataset{ID: id, Code: code, ExternalID: "ext-" + code, Name: "dataset " + code, Active: true}
}

func TestRun_ContinuesPastTimedOutDataset(t *testing.T) {
	store := newMemStore(dataset(1, "A"), dataset(2, "B"), dataset(3, "C"))
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": payload(t, "SA", 3),
		"ext-B": timeoutFetch,
		"ext-C": payload(t, "SC", 2),
	}}
	runner := NewRunner(fetcher, store, Options{}, nil)

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.RunID == "" {
		t.Fatalf("missing run id")
	}
	if summary.TotalDatasets != 3 || len(summary.Results) != 3 {
		t.Fatalf("summary=%+v", summary)
	}
	want := []models.DatasetStatus{models.StatusSuccess, models.StatusTimeout, models.StatusSuccess}
	for i, res := range summary.Results {
		if res.Status != want[i] {
			t.Fatalf("result[%d].status=%s want %s", i, res.Status, want[i])
		}
	}
	if summary.StatusCounts[models.StatusSuccess] != 2 || summary.StatusCounts[models.StatusTimeout] != 1 {
		t.Fatalf("counts=%v", summary.StatusCounts)
	}
	if summary.TotalRecords != 5 {
		t.Fatalf("total records=%d want 5", summary.TotalRecords)
	}
	if summary.Results[1].Error == "" {
		t.Fatalf("timeout result should carry the error")
	}
	if _, ok := store.saved["ext-B"]; ok {
		t.Fatalf("timed out dataset must not be persisted")
	}
	if _, ok := store.marked[2]; ok {
		t.Fatalf("timed out dataset must not be marked collected")
	}
	if len(fetcher.calls) != 3 {
		t.Fatalf("fetch calls=%v", fetcher.calls)
	}
}

func TestRun_FetchFailureLeavesStoreUntouched(t *testing.T) {
	store := newMemStore(dataset(1, "A"))
	existing := []models.NormalizedSeries{{Metadata: models.SeriesMetadataDraft{Code: "OLD"}}}
	store.saved["ext-A"] = existing

	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": func(context.Context) (models.SeriesList, error) {
			return nil, &ine.FetchError{Kind: ine.KindDecode, ExternalID: "ext-A", Err: errors.New("bad json")}
		},
	}}
	summary, err := NewRunner(fetcher, store, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := summary.Results[0].Status; got != models.StatusError {
		t.Fatalf("status=%s want error", got)
	}
	if got := store.saved["ext-A"]; len(got) != 1 || got[0].Metadata.Code != "OLD" {
		t.Fatalf("stored data changed: %+v", got)
	}
}

func TestRun_EmptyPayloadIsNoData(t *testing.T) {
	store := newMemStore(dataset(1, "A"))
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": func(context.Context) (models.SeriesList, error) {
			return models.SeriesList{json.RawMessage(`{"COD":"X"}`)}, nil
		},
	}}
	summary, err := NewRunner(fetcher, store, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := summary.Results[0].Status; got != models.StatusNoData {
		t.Fatalf("status=%s want no_data", got)
	}
	if len(store.saved) != 0 {
		t.Fatalf("no_data dataset must not be persisted")
	}
}

func TestRun_PersistenceDeadlineIsTimeoutError(t *testing.T) {
	store := newMemStore(dataset(1, "A"), dataset(2, "B"))
	store.saveErr = func(ctx context.Context, ds models.Dataset) error {
		if ds.ID != 1 {
			return nil
		}
		<-ctx.Done()
		return fmt.Errorf("%w: commit: %w", db.ErrPersistence, ctx.Err())
	}
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": payload(t, "SA", 1),
		"ext-B": payload(t, "SB", 1),
	}}
	runner := NewRunner(fetcher, store, Options{PersistTimeout: 20 * time.Millisecond}, nil)

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := summary.Results[0].Status; got != models.StatusTimeoutError {
		t.Fatalf("status=%s want timeout_error", got)
	}
	if summary.Results[0].RecordCount != 0 {
		t.Fatalf("failed dataset should report no records")
	}
	if got := summary.Results[1].Status; got != models.StatusSuccess {
		t.Fatalf("second dataset status=%s", got)
	}
}

func TestRun_PersistenceErrorIsError(t *testing.T) {
	store := newMemStore(dataset(1, "A"))
	store.saveErr = func(context.Context, models.Dataset) error {
		return fmt.Errorf("%w: copy observations: %w", db.ErrPersistence, errors.New("constraint violation"))
	}
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": payload(t, "SA", 1),
	}}
	summary, err := NewRunner(fetcher, store, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := summary.Results[0].Status; got != models.StatusError {
		t.Fatalf("status=%s want error", got)
	}
}

func TestRun_ListFailureAbortsRun(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("db down")
	_, err := NewRunner(&stubFetcher{}, store, Options{}, nil).Run(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_DryRunSkipsPersistence(t *testing.T) {
	store := newMemStore(dataset(1, "A"))
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": payload(t, "SA", 4),
	}}
	summary, err := NewRunner(fetcher, store, Options{DryRun: true}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Results[0].Status != models.StatusSuccess || summary.Results[0].RecordCount != 4 {
		t.Fatalf("result=%+v", summary.Results[0])
	}
	if len(store.saved) != 0 {
		t.Fatalf("dry run must not persist")
	}
}

func TestRun_CancelStopsBetweenDatasets(t *testing.T) {
	store := newMemStore(dataset(1, "A"), dataset(2, "B"), dataset(3, "C"))
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": func(c context.Context) (models.SeriesList, error) {
			cancel()
			return payload(t, "SA", 1)(c)
		},
		"ext-B": payload(t, "SB", 1),
		"ext-C": payload(t, "SC", 1),
	}}
	summary, err := NewRunner(fetcher, store, Options{Pause: time.Second}, nil).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("fetch calls=%v", fetcher.calls)
	}
	if summary.TotalDatasets != 3 || len(summary.Results) != 3 {
		t.Fatalf("total=%d results=%d want 3/3", summary.TotalDatasets, len(summary.Results))
	}
	want := []models.DatasetStatus{models.StatusSuccess, models.StatusCancelled, models.StatusCancelled}
	for i, res := range summary.Results {
		if res.Status != want[i] {
			t.Fatalf("result[%d].status=%s want %s", i, res.Status, want[i])
		}
	}
	if summary.StatusCounts[models.StatusCancelled] != 2 || summary.Results[2].Code != "C" {
		t.Fatalf("summary=%+v", summary)
	}
	if _, ok := store.saved["ext-B"]; ok {
		t.Fatalf("cancelled dataset must not be persisted")
	}
}

func TestRun_AlreadyCancelledContextProcessesNothing(t *testing.T) {
	store := newMemStore(dataset(1, "A"))
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": payload(t, "SA", 1),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewRunner(fetcher, store, Options{}, nil).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fetcher.calls) != 0 || summary.Results[0].Status != models.StatusCancelled {
		t.Fatalf("calls=%v results=%+v", fetcher.calls, summary.Results)
	}
}

func TestRun_CancelDuringPersistenceCompletesDataset(t *testing.T) {
	store := newMemStore(dataset(1, "A"), dataset(2, "B"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.saveErr = func(persistCtx context.Context, ds models.Dataset) error {
		if ds.ID != 1 {
			return nil
		}
		cancel()
		select {
		case <-persistCtx.Done():
			return fmt.Errorf("%w: commit: %w", db.ErrPersistence, persistCtx.Err())
		case <-time.After(50 * time.Millisecond):
			return nil
		}
	}
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": payload(t, "SA", 2),
		"ext-B": payload(t, "SB", 1),
	}}
	runner := NewRunner(fetcher, store, Options{PersistTimeout: time.Minute}, nil)

	summary, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := summary.Results[0]; got.Status != models.StatusSuccess || got.RecordCount != 2 {
		t.Fatalf("in-flight dataset=%+v want success with 2 records", got)
	}
	if _, ok := store.saved["ext-A"]; !ok {
		t.Fatalf("in-flight dataset should be persisted")
	}
	if got := summary.Results[1].Status; got != models.StatusCancelled {
		t.Fatalf("second dataset status=%s want cancelled", got)
	}
}

func TestRun_CancelDuringFetchCompletesDataset(t *testing.T) {
	store := newMemStore(dataset(1, "A"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": func(c context.Context) (models.SeriesList, error) {
			cancel()
			if c.Err() != nil {
				return nil, &ine.FetchError{Kind: ine.KindNetwork, ExternalID: "ext-A", Err: c.Err()}
			}
			return payload(t, "SA", 1)(c)
		},
	}}

	summary, err := NewRunner(fetcher, store, Options{}, nil).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := summary.Results[0].Status; got != models.StatusSuccess {
		t.Fatalf("status=%s want success", got)
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	store := newMemStore(dataset(1, "A"))
	fetcher := &stubFetcher{responses: map[string]func(context.Context) (models.SeriesList, error){
		"ext-A": func(context.Context) (models.SeriesList, error) {
			close(started)
			<-release
			return nil, nil
		},
	}}
	runner := NewRunner(fetcher, store, Options{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background())
		done <- err
	}()
	<-started

	if !runner.Running() {
		t.Fatalf("runner should report running")
	}
	if _, err := runner.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err=%v want ErrRunInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if runner.Running() {
		t.Fatalf("runner should be idle")
	}
}

func TestTestConnection(t *testing.T) {
	runner := NewRunner(&stubFetcher{}, newMemStore(), Options{}, nil)
	if !runner.TestConnection(context.Background()) {
		t.Fatalf("expected reachable")
	}
	runner = NewRunner(&stubFetcher{pingErr: errors.New("down")}, newMemStore(), Options{}, nil)
	if runner.TestConnection(context.Background()) {
		t.Fatalf("expected unreachable")
	}
}
