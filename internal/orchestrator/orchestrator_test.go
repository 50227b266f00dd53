package orchestrator

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genbot/internal/domain"
	"genbot/internal/genapi"
	"genbot/internal/infra"
	"genbot/internal/ledger"
	"genbot/internal/storage"
)

type memUserRepo struct {
	users  map[int64]*domain.User
	nextID int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int64]*domain.User{}}
}

func (m *memUserRepo) GetOrCreateByExternalID(_ context.Context, externalID int64, username string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	m.nextID++
	u := &domain.User{ID: m.nextID, ExternalID: externalID, Username: username, SelectedRoute: domain.RouteNanoBanana}
	m.users[u.ID] = u
	return u, nil
}

func (m *memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (m *memUserRepo) GetByExternalID(_ context.Context, externalID int64) (*domain.User, error) {
	for _, u := range m.users {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) AdjustCredits(_ context.Context, userID int64, delta float64) (float64, error) {
	u, ok := m.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	u.Credits += delta
	if u.Credits < 0 {
		u.Credits = 0
	}
	return u.Credits, nil
}

func (m *memUserRepo) SetSelectedRoute(_ context.Context, userID int64, route domain.Route) error {
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.SelectedRoute = route
	return nil
}

func (m *memUserRepo) List(_ context.Context, _, _ int) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

type memActionRepo struct {
	records []domain.ActionRecord
}

func (m *memActionRepo) Append(_ context.Context, rec *domain.ActionRecord) error {
	rec.ID = int64(len(m.records) + 1)
	rec.CreatedAt = time.Now()
	m.records = append(m.records, *rec)
	return nil
}

func (m *memActionRepo) ListByUser(_ context.Context, userID int64, _, _ int) ([]domain.ActionRecord, error) {
	var out []domain.ActionRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memActionRepo) List(_ context.Context, _, _ int) ([]domain.ActionRecord, error) {
	return m.records, nil
}

func (m *memActionRepo) RouteStats(_ context.Context, _ time.Time) (map[domain.Route]domain.RouteUsage, error) {
	return map[domain.Route]domain.RouteUsage{}, nil
}

type memSetRepo struct {
	sets   map[int64]*domain.ImageSet
	images map[int64][]domain.SetImage
	nextID int64
}

func newMemSetRepo() *memSetRepo {
	return &memSetRepo{sets: map[int64]*domain.ImageSet{}, images: map[int64][]domain.SetImage{}}
}

func (m *memSetRepo) Create(_ context.Context, ownerID int64, name string) (*domain.ImageSet, error) {
	m.nextID++
	set := &domain.ImageSet{ID: m.nextID, OwnerID: ownerID, Name: name, CreatedAt: time.Now()}
	m.sets[set.ID] = set
	return set, nil
}

func (m *memSetRepo) GetByID(_ context.Context, id, ownerID int64) (*domain.ImageSet, error) {
	set, ok := m.sets[id]
	if !ok || set.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return set, nil
}

func (m *memSetRepo) ListByOwner(_ context.Context, ownerID int64) ([]domain.ImageSet, error) {
	var out []domain.ImageSet
	for _, s := range m.sets {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSetRepo) Delete(_ context.Context, id, ownerID int64) error {
	set, ok := m.sets[id]
	if !ok || set.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	delete(m.sets, id)
	delete(m.images, id)
	return nil
}

func (m *memSetRepo) AddImage(_ context.Context, setID int64, filePath, contentHash string) (*domain.SetImage, error) {
	img := domain.SetImage{ID: int64(len(m.images[setID]) + 1), SetID: setID, FilePath: filePath, ContentHash: contentHash}
	m.images[setID] = append(m.images[setID], img)
	return &img, nil
}

func (m *memSetRepo) ListImages(_ context.Context, setID int64) ([]domain.SetImage, error) {
	return m.images[setID], nil
}

func (m *memSetRepo) UpdateImagePath(_ context.Context, imageID int64, filePath string) error {
	for setID, imgs := range m.images {
		for i := range imgs {
			if imgs[i].ID == imageID {
				m.images[setID][i].FilePath = filePath
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

type fakeTransport struct {
	mu        sync.Mutex
	texts     []string
	documents []string
}

func (f *fakeTransport) SendText(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) SendPhoto(_ context.Context, _ int64, _, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, "[photo] "+caption)
	return nil
}

func (f *fakeTransport) SendDocument(_ context.Context, _ int64, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, path)
	return nil
}

func (f *fakeTransport) SendButtons(_ context.Context, _ int64, text string, _ []Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeTransport) saw(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, text := range f.texts {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

type fakeGenerator struct {
	outcome    genapi.Outcome
	submitErr  error
	submits    int
	data       []byte
	beforeWait func()

	// When set, AwaitCompletion signals polling and blocks until released.
	polling chan struct{}
	release chan struct{}
}

func (f *fakeGenerator) Submit(_ context.Context, _ int64, _ domain.Route, _, _ string, _ []string) (*genapi.Job, error) {
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &genapi.Job{ID: "job-1"}, nil
}

func (f *fakeGenerator) AwaitCompletion(_ context.Context, _ *genapi.Job) genapi.Outcome {
	if f.beforeWait != nil {
		f.beforeWait()
	}
	if f.polling != nil {
		close(f.polling)
		<-f.release
	}
	return f.outcome
}

func (f *fakeGenerator) Download(_ context.Context, _ string) ([]byte, error) {
	return f.data, nil
}

type fixture struct {
	orch      *Orchestrator
	users     *memUserRepo
	actions   *memActionRepo
	sets      *memSetRepo
	transport *fakeTransport
	gen       *fakeGenerator
	store     *storage.ZoneStore
}

func newFixture(t *testing.T, credits float64) *fixture {
	t.Helper()
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)

	users := newMemUserRepo()
	actions := &memActionRepo{}
	sets := newMemSetRepo()
	store, err := storage.NewZoneStore(t.TempDir(), 0, discard)
	if err != nil {
		t.Fatal(err)
	}
	gen := &fakeGenerator{
		outcome: genapi.Outcome{
			Kind:    genapi.OutcomeCompleted,
			Payload: map[string]any{"images": []any{map[string]any{"url": "https://cdn.example/out.png"}}},
		},
		data: []byte("image-bytes"),
	}
	transport := &fakeTransport{}
	led := ledger.New(users, actions, nil, 50, 1000, &logger)
	orch := New(Options{
		Users:     users,
		Actions:   actions,
		Sets:      sets,
		Ledger:    led,
		Store:     store,
		Generator: gen,
		Transport: transport,
		Logger:    &logger,
	})

	user, err := users.GetOrCreateByExternalID(context.Background(), 100, "tester")
	if err != nil {
		t.Fatal(err)
	}
	user.Credits = credits

	return &fixture{orch: orch, users: users, actions: actions, sets: sets, transport: transport, gen: gen, store: store}
}

func (f *fixture) handle(t *testing.T, ev Event) {
	t.Helper()
	ev.ExternalID = 100
	f.orch.Handle(context.Background(), ev)
}

func TestInsufficientCreditsLeavesIdleAndWritesNothing(t *testing.T) {
	f := newFixture(t, 40)

	f.handle(t, Event{Kind: EventText, Text: "a castle"})

	session := f.orch.Session(1)
	if session.State != domain.StateIdle {
		t.Fatalf("expected idle, got %s", session.State)
	}
	if len(f.actions.records) != 0 {
		t.Fatalf("no action record may be written, got %d", len(f.actions.records))
	}
	if !strings.Contains(f.transport.last(), "Insufficient credits") {
		t.Fatalf("expected insufficient-credits message, got %q", f.transport.last())
	}
	if f.users.users[1].Credits != 40 {
		t.Fatalf("balance changed: %v", f.users.users[1].Credits)
	}
}

func TestFourthPhotoInBurstRejectedAtRouteLimit(t *testing.T) {
	f := newFixture(t, 1000)

	f.handle(t, Event{Kind: EventText, Text: "portrait"})
	session := f.orch.Session(1)
	if session.State != domain.StateCollectingPhotos {
		t.Fatalf("expected photo collection, got %s", session.State)
	}

	for i := 0; i < 3; i++ {
		f.handle(t, Event{Kind: EventPhoto, Photo: []byte{byte(i)}, PhotoName: "p.jpg", BatchID: "burst-1"})
	}
	if got := session.BufferedCount(); got != 3 {
		t.Fatalf("expected 3 buffered, got %d", got)
	}

	f.handle(t, Event{Kind: EventPhoto, Photo: []byte{9}, PhotoName: "p4.jpg", BatchID: "burst-1"})
	if got := session.BufferedCount(); got != 3 {
		t.Fatalf("4th photo must not be buffered, got %d", got)
	}
	if !strings.Contains(f.transport.last(), "3/3") {
		t.Fatalf("expected 3/3 count report, got %q", f.transport.last())
	}
	if session.State != domain.StateCollectingPhotos {
		t.Fatalf("state changed: %s", session.State)
	}
}

func TestInvalidAspectRatioRefusedWithoutTransition(t *testing.T) {
	f := newFixture(t, 1000)

	f.handle(t, Event{Kind: EventText, Text: "landscape"})
	f.handle(t, Event{Kind: EventCommand, Command: "done"})
	session := f.orch.Session(1)
	if session.State != domain.StateAwaitingAspect {
		t.Fatalf("expected aspect state, got %s", session.State)
	}

	f.handle(t, Event{Kind: EventButton, Token: "ar:5:5"})
	if session.State != domain.StateAwaitingAspect {
		t.Fatalf("invalid ratio must not transition, got %s", session.State)
	}
	if f.gen.submits != 0 {
		t.Fatal("generation must not start on invalid ratio")
	}
	if !strings.Contains(f.transport.last(), "5:5") {
		t.Fatalf("expected refusal naming the ratio, got %q", f.transport.last())
	}
}

func runFullFlow(t *testing.T, f *fixture, photos int) *domain.Session {
	t.Helper()
	f.handle(t, Event{Kind: EventText, Text: "a fox in snow"})
	for i := 0; i < photos; i++ {
		f.handle(t, Event{Kind: EventPhoto, Photo: []byte{byte(i)}, PhotoName: "p.jpg", BatchID: "b1"})
	}
	f.handle(t, Event{Kind: EventCommand, Command: "done"})
	f.handle(t, Event{Kind: EventButton, Token: "ar:1:1"})
	return f.orch.Session(1)
}

func TestSuccessfulGenerationSettlesAndReturnsToIdle(t *testing.T) {
	f := newFixture(t, 100)

	session := runFullFlow(t, f, 2)

	if session.State != domain.StateIdle {
		t.Fatalf("expected idle after terminal outcome, got %s", session.State)
	}
	if session.BufferedCount() != 0 || len(session.SelectedImages) != 0 {
		t.Fatal("buffers must be cleared")
	}
	if f.users.users[1].Credits != 50 {
		t.Fatalf("expected 50 credits left, got %v", f.users.users[1].Credits)
	}
	if len(f.actions.records) != 1 {
		t.Fatalf("expected one action record, got %d", len(f.actions.records))
	}
	if f.actions.records[0].CreditsSpent != 50 {
		t.Fatalf("expected 50 credits recorded, got %v", f.actions.records[0].CreditsSpent)
	}
	// Fresh photos rotate into the recent zone for reuse.
	recent, err := f.store.ListRecent(1)
	if err != nil || len(recent) != 2 {
		t.Fatalf("expected 2 recent photos, got %v %v", recent, err)
	}
	// The result goes out twice: photo preview plus the original file.
	if len(f.transport.documents) != 1 {
		t.Fatalf("expected the result sent as a document, got %v", f.transport.documents)
	}
	if !strings.Contains(f.transport.last(), "spent") {
		t.Fatalf("expected settle message, got %q", f.transport.last())
	}
}

func TestEveryTerminalOutcomeReturnsToIdle(t *testing.T) {
	outcomes := []genapi.Outcome{
		{Kind: genapi.OutcomeBlocked, Err: domain.ErrContentBlocked},
		{Kind: genapi.OutcomeFailed, Err: domain.ErrGenerationFailed},
		{Kind: genapi.OutcomeCanceled, Err: domain.ErrJobCanceled},
		{Kind: genapi.OutcomeTimedOut, Err: domain.ErrPollTimeout},
		{Kind: genapi.OutcomeCompleted, Payload: map[string]any{"nonsense": true}},
	}
	for _, outcome := range outcomes {
		t.Run(string(outcome.Kind), func(t *testing.T) {
			f := newFixture(t, 100)
			f.gen.outcome = outcome

			session := runFullFlow(t, f, 1)

			if session.State != domain.StateIdle {
				t.Fatalf("expected idle, got %s", session.State)
			}
			if session.BufferedCount() != 0 {
				t.Fatal("buffers must be cleared")
			}
			if f.users.users[1].Credits != 100 {
				t.Fatalf("failed outcome must not settle, balance %v", f.users.users[1].Credits)
			}
			if len(f.actions.records) != 1 {
				t.Fatalf("terminal outcome must record exactly one action, got %d", len(f.actions.records))
			}
			if f.actions.records[0].CreditsSpent != 0 {
				t.Fatalf("failed attempt must record zero cost, got %v", f.actions.records[0].CreditsSpent)
			}
		})
	}
}

func TestRestartDuringPollDiscardsResult(t *testing.T) {
	f := newFixture(t, 100)
	session := f.orch.Session(1)
	// Simulate a restart command arriving while the poll is in flight.
	f.gen.beforeWait = func() { session.Reset() }

	runFullFlow(t, f, 0)

	if session.State != domain.StateIdle {
		t.Fatalf("expected idle, got %s", session.State)
	}
	if len(f.actions.records) != 0 {
		t.Fatalf("stale result must not be recorded, got %d records", len(f.actions.records))
	}
	if f.users.users[1].Credits != 100 {
		t.Fatalf("stale result must not settle, balance %v", f.users.users[1].Credits)
	}
}

func TestDispatcherRestartAppliesDuringPoll(t *testing.T) {
	f := newFixture(t, 100)
	f.gen.polling = make(chan struct{})
	f.gen.release = make(chan struct{})

	// Walk to the aspect choice synchronously, then fire the generation
	// through the dispatcher so the poll runs on its own goroutine.
	f.handle(t, Event{Kind: EventText, Text: "a fox in snow"})
	f.handle(t, Event{Kind: EventCommand, Command: "done"})

	ctx := context.Background()
	d := NewDispatcher(f.orch)
	d.Dispatch(ctx, Event{ExternalID: 100, Kind: EventButton, Token: "ar:1:1"})
	<-f.gen.polling

	// The restart must land while the poll is still blocked, not queue
	// behind it.
	d.Dispatch(ctx, Event{ExternalID: 100, Kind: EventCommand, Command: "restart"})
	deadline := time.After(2 * time.Second)
	for !f.transport.saw("Session cleared") {
		select {
		case <-deadline:
			t.Fatal("restart did not apply while the poll was in flight")
		case <-time.After(5 * time.Millisecond):
		}
	}
	session := f.orch.Session(1)
	if session.State != domain.StateIdle {
		t.Fatalf("expected idle right after restart, got %s", session.State)
	}

	close(f.gen.release)
	d.Wait()

	if len(f.actions.records) != 0 {
		t.Fatalf("stale poll result must not be recorded, got %d records", len(f.actions.records))
	}
	if f.users.users[1].Credits != 100 {
		t.Fatalf("stale poll result must not settle, balance %v", f.users.users[1].Credits)
	}
	if session.State != domain.StateIdle {
		t.Fatalf("expected idle, got %s", session.State)
	}
}

func TestSavedSetSourceSkipsPhotoCollection(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	set, err := f.sets.Create(ctx, 1, "brand")
	if err != nil {
		t.Fatal(err)
	}
	path, err := f.store.SaveIncoming(1, []byte("set-img"), "s.jpg")
	if err != nil {
		t.Fatal(err)
	}
	dest, err := f.store.AdoptIntoSet(1, set.ID, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sets.AddImage(ctx, set.ID, dest, "hash"); err != nil {
		t.Fatal(err)
	}

	f.handle(t, Event{Kind: EventText, Text: "use my set"})
	session := f.orch.Session(1)
	if session.State != domain.StateCollectingSource {
		t.Fatalf("expected source choice, got %s", session.State)
	}

	f.handle(t, Event{Kind: EventButton, Token: "src:set:1"})
	if session.State != domain.StateAwaitingAspect {
		t.Fatalf("saved set must skip photo collection, got %s", session.State)
	}
	if len(session.SelectedImages) != 1 || session.SelectedImages[0] != dest {
		t.Fatalf("set images not adopted: %v", session.SelectedImages)
	}
	if session.PhotoSource != domain.PhotoSourceSavedSet {
		t.Fatalf("unexpected source %s", session.PhotoSource)
	}
}

func TestSetPathRepairedWhenFileMoved(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)

	set, _ := f.sets.Create(ctx, 1, "movable")
	path, err := f.store.SaveIncoming(1, []byte("x"), "m.jpg")
	if err != nil {
		t.Fatal(err)
	}
	// Record the incoming path, then move the file so the record dangles.
	if _, err := f.sets.AddImage(ctx, set.ID, path, "h"); err != nil {
		t.Fatal(err)
	}
	moved, err := f.store.Archive(1, []string{path})
	if err != nil || len(moved) != 1 {
		t.Fatalf("archive failed: %v %v", moved, err)
	}

	resolver := NewResolver(f.store, f.sets, &logger)
	paths, err := resolver.AdoptSet(ctx, 1, set.ID)
	if err != nil {
		t.Fatalf("AdoptSet error: %v", err)
	}
	if len(paths) != 1 || paths[0] != moved[0] {
		t.Fatalf("path not repaired: %v", paths)
	}
	images, _ := f.sets.ListImages(ctx, set.ID)
	if images[0].FilePath != moved[0] {
		t.Fatalf("repair not persisted: %s", images[0].FilePath)
	}
}
