package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/storyloom/storyloom/pkg/broker"
	"github.com/storyloom/storyloom/pkg/models"
	"github.com/storyloom/storyloom/pkg/providers"
	"github.com/storyloom/storyloom/pkg/store"
)

// memStore is an in-memory StoryStore enforcing the same lifecycle rules as
// the SQL repository.
type memStore struct {
	mu      sync.Mutex
	stories map[string]*models.Story
	scenes  map[string]map[int]*models.Scene

	planWrites  int
	statusCalls []statusCall

	// onInsert, when set, intercepts InsertScene.
	onInsert func(*models.Scene) error
}

type statusCall struct {
	storyID string
	status  models.Status
	errMsg  string
}

func newMemStore() *memStore {
	return &memStore{
		stories: make(map[string]*models.Story),
		scenes:  make(map[string]map[int]*models.Scene),
	}
}

func (m *memStore) seed(story *models.Story) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *story
	if cp.Status == "" {
		cp.Status = models.StatusPending
	}
	m.stories[story.StoryID] = &cp
}

func (m *memStore) seedScene(scene *models.Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scenes[scene.StoryID] == nil {
		m.scenes[scene.StoryID] = make(map[int]*models.Scene)
	}
	cp := *scene
	m.scenes[scene.StoryID][scene.Sequence] = &cp
}

func (m *memStore) Get(ctx context.Context, storyID string) (*models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	story, ok := m.stories[storyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *story
	return &cp, nil
}

func (m *memStore) Claim(ctx context.Context, storyID, workerID string, staleAfter time.Duration) (*models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	story, ok := m.stories[storyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if story.Status.IsTerminal() {
		return nil, fmt.Errorf("story %s is %s: %w", storyID, story.Status, store.ErrInvalidTransition)
	}
	if story.ClaimedBy != "" && story.ClaimedBy != workerID &&
		story.LastHeartbeat != nil && time.Since(*story.LastHeartbeat) < staleAfter {
		return nil, fmt.Errorf("story %s held by %s: %w", storyID, story.ClaimedBy, store.ErrAlreadyClaimed)
	}
	now := time.Now()
	story.Status = models.StatusProcessing
	story.ClaimedBy = workerID
	story.LastHeartbeat = &now
	story.Attempts++
	story.UpdatedAt = now
	cp := *story
	return &cp, nil
}

func (m *memStore) Heartbeat(ctx context.Context, storyID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	story, ok := m.stories[storyID]
	if !ok || story.ClaimedBy != workerID || story.Status != models.StatusProcessing {
		return fmt.Errorf("story %s: %w", storyID, store.ErrAlreadyClaimed)
	}
	now := time.Now()
	story.LastHeartbeat = &now
	return nil
}

func (m *memStore) SetStatus(ctx context.Context, storyID string, next models.Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	story, ok := m.stories[storyID]
	if !ok {
		return store.ErrNotFound
	}
	m.statusCalls = append(m.statusCalls, statusCall{storyID: storyID, status: next, errMsg: errMsg})
	if !story.Status.CanTransition(next) {
		return fmt.Errorf("story %s: %s -> %s: %w", storyID, story.Status, next, store.ErrInvalidTransition)
	}
	story.Status = next
	story.Error = errMsg
	story.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) SetPlan(ctx context.Context, storyID string, plan *models.StoryPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	story, ok := m.stories[storyID]
	if !ok {
		return store.ErrNotFound
	}
	if story.Status != models.StatusProcessing {
		return fmt.Errorf("story %s is %s, plan writes need processing: %w",
			storyID, story.Status, store.ErrInvalidTransition)
	}
	story.StoryMetadata = plan
	m.planWrites++
	return nil
}

func (m *memStore) InsertScene(ctx context.Context, scene *models.Scene) (*models.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onInsert != nil {
		if err := m.onInsert(scene); err != nil {
			return nil, err
		}
	}
	if m.scenes[scene.StoryID] == nil {
		m.scenes[scene.StoryID] = make(map[int]*models.Scene)
	}
	if _, exists := m.scenes[scene.StoryID][scene.Sequence]; exists {
		return nil, fmt.Errorf("story %s sequence %d: %w", scene.StoryID, scene.Sequence, store.ErrDuplicateScene)
	}
	cp := *scene
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.scenes[scene.StoryID][scene.Sequence] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) ListScenes(ctx context.Context, storyID string) ([]*models.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.scenes[storyID]
	out := make([]*models.Scene, 0, len(rows))
	for _, scene := range rows {
		cp := *scene
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *memStore) story(storyID string) *models.Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.stories[storyID]
	return &cp
}

func (m *memStore) sceneCount(storyID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scenes[storyID])
}

// promptStage mirrors the offline text mock's keyword routing, so scripted
// fakes can key behaviour by pipeline stage.
func promptStage(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "visual profile"):
		return "profile"
	case strings.Contains(lower, "base style"):
		return "style"
	case strings.Contains(lower, "moment"):
		return "moment"
	default:
		return "plan"
	}
}

// scriptedText serves queued per-stage errors first, then queued responses,
// then falls through to the offline mock. It counts calls per stage.
type scriptedText struct {
	mu        sync.Mutex
	fallback  providers.TextGenerator
	calls     map[string]int
	errs      map[string][]error
	responses map[string][]string
}

func newScriptedText() *scriptedText {
	return &scriptedText{
		fallback:  providers.NewMockText("", 0),
		calls:     make(map[string]int),
		errs:      make(map[string][]error),
		responses: make(map[string][]string),
	}
}

func (s *scriptedText) failNext(stage string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[stage] = append(s.errs[stage], errs...)
}

func (s *scriptedText) respondNext(stage string, responses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[stage] = append(s.responses[stage], responses...)
}

func (s *scriptedText) stageCalls(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

func (s *scriptedText) Name() string { return "scripted-text" }

func (s *scriptedText) GenerateText(ctx context.Context, prompt string) (string, error) {
	stage := promptStage(prompt)
	s.mu.Lock()
	s.calls[stage]++
	if queued := s.errs[stage]; len(queued) > 0 {
		err := queued[0]
		s.errs[stage] = queued[1:]
		s.mu.Unlock()
		return "", err
	}
	if queued := s.responses[stage]; len(queued) > 0 {
		resp := queued[0]
		s.responses[stage] = queued[1:]
		s.mu.Unlock()
		return resp, nil
	}
	s.mu.Unlock()
	return s.fallback.GenerateText(ctx, prompt)
}

// flakyImage fails its first n calls with a 503, then delegates to the
// offline mock.
type flakyImage struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    providers.ImageGenerator
}

func newFlakyImage(failures int) *flakyImage {
	return &flakyImage{failures: failures, inner: providers.NewMockImage("", 0)}
}

func (f *flakyImage) Name() string { return "flaky-image" }

func (f *flakyImage) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, providers.NewStatusError("image", 503, "upstream unavailable")
	}
	f.mu.Unlock()
	return f.inner.GenerateImage(ctx, prompt)
}

func (f *flakyImage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyAudio fails its first n calls with a 500, then delegates to the
// offline mock. With alwaysFail set every call fails.
type flakyAudio struct {
	mu         sync.Mutex
	failures   int
	alwaysFail bool
	calls      int
	inner      providers.SpeechSynthesizer
}

func newFlakyAudio(failures int) *flakyAudio {
	return &flakyAudio{failures: failures, inner: providers.NewMockAudio("", 0)}
}

func (f *flakyAudio) Name() string { return "flaky-audio" }

func (f *flakyAudio) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	if f.alwaysFail || f.failures > 0 {
		if !f.alwaysFail {
			f.failures--
		}
		f.mu.Unlock()
		return nil, providers.NewStatusError("audio", 500, "synthesis backend down")
	}
	f.mu.Unlock()
	return f.inner.SynthesizeSpeech(ctx, text)
}

func (f *flakyAudio) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// mockProviderSet builds a Set from the offline mocks with optional
// overrides.
func mockProviderSet() *providers.Set {
	return &providers.Set{
		Text:  providers.NewMockText("", 0),
		Image: providers.NewMockImage("", 0),
		Audio: providers.NewMockAudio("", 0),
	}
}

// fastRetry keeps retry backoff out of test wall time.
func fastRetry() providers.RetryPolicy {
	return providers.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}
}

// stubBroker is an in-memory JobBroker recording settlement calls.
type stubBroker struct {
	mu       sync.Mutex
	ready    []*models.Envelope
	acks     []string
	nacks    []nackCall
	renews   int
	renewErr error
	reapN    int
	depthErr error
}

type nackCall struct {
	storyID string
	delay   time.Duration
}

func (b *stubBroker) push(env *models.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if env.Attempt < 1 {
		env.Attempt = 1
	}
	b.ready = append(b.ready, env)
}

func (b *stubBroker) Dequeue(ctx context.Context) (*models.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ready) == 0 {
		return nil, broker.ErrNoJobs
	}
	env := b.ready[0]
	b.ready = b.ready[1:]
	return env, nil
}

func (b *stubBroker) Ack(ctx context.Context, storyID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks = append(b.acks, storyID)
	return nil
}

func (b *stubBroker) Nack(ctx context.Context, storyID string, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nacks = append(b.nacks, nackCall{storyID: storyID, delay: delay})
	return nil
}

func (b *stubBroker) Renew(ctx context.Context, storyID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.renews++
	return b.renewErr
}

func (b *stubBroker) Reap(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.reapN
	b.reapN = 0
	return n, nil
}

func (b *stubBroker) Depth(ctx context.Context) (*broker.Depth, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.depthErr != nil {
		return nil, b.depthErr
	}
	return &broker.Depth{Ready: int64(len(b.ready))}, nil
}

func (b *stubBroker) ackCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.acks)
}

func (b *stubBroker) nackCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nacks)
}

func (b *stubBroker) renewCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renews
}

// stubExecutor delegates to fn.
type stubExecutor struct {
	fn func(ctx context.Context, story *models.Story, env *models.Envelope) *ExecutionResult
}

func (s *stubExecutor) Execute(ctx context.Context, story *models.Story, env *models.Envelope) *ExecutionResult {
	return s.fn(ctx, story, env)
}

// noopRegistry satisfies StoryRegistry for bare-worker tests.
type noopRegistry struct{}

func (noopRegistry) RegisterStory(string, context.CancelFunc) {}
func (noopRegistry) UnregisterStory(string)                   {}

func testStory(storyID string) *models.Story {
	return &models.Story{
		StoryID:   storyID,
		Title:     "Pip and the Lantern Moon",
		Prompt:    "A fox kit follows a runaway lantern through the night woods.",
		UserID:    "user-42",
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func testEnvelope(storyID string, sceneCount int) *models.Envelope {
	return &models.Envelope{
		StoryID:    storyID,
		UserID:     "user-42",
		Title:      "Pip and the Lantern Moon",
		Prompt:     "A fox kit follows a runaway lantern through the night woods.",
		Style:      "soft watercolor storybook",
		SceneCount: sceneCount,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}
