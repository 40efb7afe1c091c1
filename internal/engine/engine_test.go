package engine

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/relcut/relcut/internal/version"
	"github.com/relcut/relcut/pkg/api"
)

// fakeHost is an in-memory SourceHost that records every mutation.
type fakeHost struct {
	mu sync.Mutex

	created  []string
	commits  []string
	pushes   []string
	merged   []string
	deleted  []string
	mergeErr error
	pushErrs int

	commitSeq int
}

func (h *fakeHost) HeadSHA(ctx context.Context, ref string) (string, error) {
	return "sha-" + ref, nil
}

func (h *fakeHost) CreateBranch(ctx context.Context, name, fromRef string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, name)
	return nil
}

func (h *fakeHost) Commit(ctx context.Context, branch, message string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits = append(h.commits, message)
	h.commitSeq++
	return fmt.Sprintf("commit-%d", h.commitSeq), nil
}

func (h *fakeHost) Push(ctx context.Context, branch string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pushErrs > 0 {
		h.pushErrs--
		return fmt.Errorf("remote hung up")
	}
	h.pushes = append(h.pushes, branch)
	return nil
}

func (h *fakeHost) Merge(ctx context.Context, from, into string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mergeErr != nil {
		return "", h.mergeErr
	}
	h.merged = append(h.merged, from+" -> "+into)
	return "merged-" + into, nil
}

func (h *fakeHost) DeleteBranch(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, name)
	return nil
}

// fakeMeta holds the declared version in memory.
type fakeMeta struct {
	current string
	sets    []string
}

func (m *fakeMeta) CurrentVersion(ctx context.Context) (string, error) { return m.current, nil }

func (m *fakeMeta) SetVersion(ctx context.Context, v string) error {
	m.sets = append(m.sets, v)
	m.current = v
	return nil
}

// fakeChangelog keeps changelog files as a set of version strings.
type fakeChangelog struct {
	files       map[string]bool
	prereleases []string
	modes       []api.GenerationMode

	// brokenGenerator simulates a generation step that leaves no file.
	brokenGenerator bool
}

func newFakeChangelog(existing ...string) *fakeChangelog {
	files := make(map[string]bool)
	for _, v := range existing {
		files[v] = true
	}
	return &fakeChangelog{files: files}
}

func (c *fakeChangelog) Path(v api.Version) string {
	return ".changes/" + v.String() + ".md"
}

func (c *fakeChangelog) Exists(v api.Version) (bool, error) {
	return c.files[v.String()], nil
}

func (c *fakeChangelog) ExistingPrereleases(v api.Version) ([]string, error) {
	return c.prereleases, nil
}

func (c *fakeChangelog) Generate(ctx context.Context, v api.Version, mode api.GenerationMode) (string, error) {
	c.modes = append(c.modes, mode)
	if !c.brokenGenerator {
		c.files[v.String()] = true
	}
	return c.Path(v), nil
}

// passingRunner reports every cell as passed; flaky-only passes can be
// scripted to fail.
type passingRunner struct {
	flakyFails bool
	unitFails  bool
}

func (r *passingRunner) RunCell(ctx context.Context, req api.CellRequest) ([]api.CaseResult, error) {
	switch {
	case r.unitFails && req.Suite == api.SuiteUnit:
		return []api.CaseResult{{Name: "test_core", Cell: req.Cell, Passed: false}}, nil
	case r.flakyFails && req.FlakyOnly:
		return []api.CaseResult{{Name: "test_timing", Cell: req.Cell, Passed: false, Flaky: true}}, nil
	default:
		return []api.CaseResult{{Name: string(req.Suite), Cell: req.Cell, Passed: true, Flaky: req.FlakyOnly}}, nil
	}
}

type fixture struct {
	host      *fakeHost
	meta      *fakeMeta
	changelog *fakeChangelog
	runner    *passingRunner
	engine    api.Engine
}

func newFixture(t *testing.T, meta *fakeMeta, clog *fakeChangelog, mutate func(*api.ReleasePlan)) *fixture {
	t.Helper()

	f := &fixture{
		host:      &fakeHost{},
		meta:      meta,
		changelog: clog,
		runner:    &passingRunner{},
	}
	plan := api.ReleasePlan{
		Host:      f.host,
		Versions:  version.Parser{},
		Metadata:  f.meta,
		Changelog: f.changelog,
		Tests:     f.runner,
	}
	if mutate != nil {
		mutate(&plan)
	}

	seq := 0
	f.engine = NewEngineWithConfig(Config{
		Plan: plan,
		IDFunc: func() string {
			seq++
			return fmt.Sprintf("run-%d", seq)
		},
	})
	return f
}

func request(v string) api.ReleaseRequest {
	return api.ReleaseRequest{Version: v, SourceBranch: "main", TargetBranch: "main"}
}

// A request whose version is current and whose changelog exists needs no
// branch: it resolves with the commit it was requested against.
func TestPrepare_BothAuditsPassSkips(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.1.0"}, newFakeChangelog("2.1.0"), nil)

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if run.State != api.StateResolved {
		t.Fatalf("expected RESOLVED, got %s", run.State)
	}
	if run.Scratch.Created {
		t.Fatal("no scratch branch should be created when both audits pass")
	}
	if run.Outcome.FinalCommitSHA != "sha-main" {
		t.Fatalf("expected the requested commit as final, got %q", run.Outcome.FinalCommitSHA)
	}
	if run.Mutated() {
		t.Fatal("a skipped run must not mutate anything")
	}
	if len(f.host.created) != 0 || len(f.host.commits) != 0 {
		t.Fatalf("host should be untouched, got creates=%v commits=%v", f.host.created, f.host.commits)
	}
}

// Version already current, changelog missing: only the changelog mutation
// happens, then the scratch branch merges back.
func TestPrepare_ChangelogOnlyRelease(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.1.0"}, newFakeChangelog(), nil)

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if run.State != api.StateResolved {
		t.Fatalf("expected RESOLVED, got %s", run.State)
	}
	wantBranch := "prep-release/main/2.1.0_run-1"
	if run.Scratch.Name != wantBranch {
		t.Fatalf("expected branch %q, got %q", wantBranch, run.Scratch.Name)
	}
	if !run.ChangelogGenerated || run.VersionBumped {
		t.Fatalf("expected changelog-only mutation, got changelog=%v bump=%v",
			run.ChangelogGenerated, run.VersionBumped)
	}
	if len(f.meta.sets) != 0 {
		t.Fatalf("version must not be rewritten, got sets=%v", f.meta.sets)
	}
	if len(f.host.commits) != 1 || !strings.Contains(f.host.commits[0], "changelog") {
		t.Fatalf("expected a single changelog commit, got %v", f.host.commits)
	}
	if run.Outcome.FinalCommitSHA != "merged-main" {
		t.Fatalf("expected the post-merge target HEAD, got %q", run.Outcome.FinalCommitSHA)
	}
	if len(f.host.deleted) != 1 || f.host.deleted[0] != wantBranch {
		t.Fatalf("scratch branch should be deleted after promotion, got %v", f.host.deleted)
	}
}

// Both audits fail: two independent commits land on the scratch branch.
func TestPrepare_ChangelogAndVersionBump(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), nil)

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if !run.ChangelogGenerated || !run.VersionBumped {
		t.Fatalf("expected both mutations, got changelog=%v bump=%v",
			run.ChangelogGenerated, run.VersionBumped)
	}
	if len(f.host.commits) != 2 {
		t.Fatalf("expected two independent commits, got %v", f.host.commits)
	}
	if !strings.Contains(f.host.commits[1], "Bumping version to 2.1.0") {
		t.Fatalf("expected a version bump commit, got %q", f.host.commits[1])
	}
	if f.meta.current != "2.1.0" {
		t.Fatalf("metadata should hold the new version, got %q", f.meta.current)
	}
}

// Prerelease request: the changelog resolves to the dashed filename and
// generation runs in prerelease mode.
func TestPrepare_PrereleaseChangelog(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "1.9.0rc1"}, newFakeChangelog(), nil)

	run, err := f.engine.Prepare(context.Background(), request("1.9.0rc1"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if run.ChangelogAudit.Path != ".changes/1.9.0-rc1.md" {
		t.Fatalf("expected dashed changelog path, got %q", run.ChangelogAudit.Path)
	}
	if !run.ChangelogAudit.IsPrerelease || run.ChangelogAudit.BaseVersion != "1.9.0" {
		t.Fatalf("unexpected changelog audit: %+v", run.ChangelogAudit)
	}
	if len(f.changelog.modes) != 1 || f.changelog.modes[0] != api.ModePrerelease {
		t.Fatalf("expected prerelease generation mode, got %v", f.changelog.modes)
	}
}

// A final release with existing prereleases folds them in.
func TestPrepare_FinalFoldsPrereleases(t *testing.T) {
	clog := newFakeChangelog()
	clog.prereleases = []string{".changes/1.9.0-rc1.md"}
	f := newFixture(t, &fakeMeta{current: "1.9.0"}, clog, nil)

	_, err := f.engine.Prepare(context.Background(), request("1.9.0"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(clog.modes) != 1 || clog.modes[0] != api.ModeFinalWithPrereleases {
		t.Fatalf("expected final-with-prereleases mode, got %v", clog.modes)
	}
}

// Trial runs retain the scratch branch; nothing merges and the scratch
// HEAD is the release source.
func TestPrepare_TrialRunRetainsScratchBranch(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), nil)

	req := request("2.1.0")
	req.TrialRun = true

	run, err := f.engine.Prepare(context.Background(), req)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if run.State != api.StateResolved {
		t.Fatalf("expected RESOLVED, got %s", run.State)
	}
	wantBranch := "prep-release/test-run/2.1.0_run-1"
	if run.Scratch.Name != wantBranch {
		t.Fatalf("expected branch %q, got %q", wantBranch, run.Scratch.Name)
	}
	if len(f.host.merged) != 0 {
		t.Fatalf("trial runs must not merge, got %v", f.host.merged)
	}
	if len(f.host.deleted) != 0 {
		t.Fatalf("trial runs must keep the scratch branch, got deletes %v", f.host.deleted)
	}
	if run.Outcome.FinalCommitSHA != "sha-"+wantBranch {
		t.Fatalf("expected the scratch HEAD as final, got %q", run.Outcome.FinalCommitSHA)
	}
}

func TestPrepare_NightlyBranchQualifier(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), nil)

	req := request("2.1.0")
	req.Nightly = true
	req.TrialRun = true // nightly wins over trial in the qualifier

	run, err := f.engine.Prepare(context.Background(), req)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !strings.HasPrefix(run.Scratch.Name, "prep-release/nightly-release/") {
		t.Fatalf("expected nightly qualifier, got %q", run.Scratch.Name)
	}
}

// Version comparison is exact: a semantically equal spelling still counts
// as a version bump.
func TestPrepare_VersionMatchIsExact(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.1.0-0"}, newFakeChangelog("2.1.0"), nil)

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if run.VersionAudit.IsCurrent {
		t.Fatal("differently spelled versions must not audit as current")
	}
	if !run.VersionBumped {
		t.Fatal("a stale version must be bumped")
	}
}

func TestPrepare_MalformedVersionAborts(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.1.0"}, newFakeChangelog(), nil)

	run, err := f.engine.Prepare(context.Background(), request("banana"))
	if !api.IsParseError(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if run.State != api.StateAborted {
		t.Fatalf("expected ABORTED, got %s", run.State)
	}
	if len(f.host.created) != 0 {
		t.Fatal("nothing may be mutated before the audit passes")
	}
}

func TestPrepare_BrokenGeneratorAborts(t *testing.T) {
	clog := newFakeChangelog()
	clog.brokenGenerator = true
	f := newFixture(t, &fakeMeta{current: "2.1.0"}, clog, nil)

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if !api.IsGeneratorError(err) {
		t.Fatalf("expected GeneratorError, got %v", err)
	}
	if run.State != api.StateAborted {
		t.Fatalf("expected ABORTED, got %s", run.State)
	}
	if len(f.host.commits) != 0 {
		t.Fatalf("nothing may be committed when generation produced no file, got %v", f.host.commits)
	}
}

func TestPrepare_UnitTestFailureAborts(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), nil)
	f.runner.unitFails = true

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if !api.IsTestFailure(err) {
		t.Fatalf("expected TestFailureError, got %v", err)
	}
	if run.State != api.StateAborted {
		t.Fatalf("expected ABORTED, got %s", run.State)
	}
	if len(f.host.merged) != 0 {
		t.Fatal("a failed gate must block promotion")
	}
	// The scratch branch stays for inspection; aborts never roll back.
	if len(f.host.deleted) != 0 {
		t.Fatalf("aborted runs must not delete the scratch branch, got %v", f.host.deleted)
	}
}

func TestPrepare_FlakyFailuresRecordedButResolve(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), func(p *api.ReleasePlan) {
		p.EnvSetupPath = "scripts/setup.sh"
		p.IntegrationMatrix = []api.MatrixCell{{OS: "linux", Runtime: "3.12"}}
	})
	f.runner.flakyFails = true

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if err != nil {
		t.Fatalf("flaky failures must not abort the run: %v", err)
	}
	if run.State != api.StateResolved {
		t.Fatalf("expected RESOLVED, got %s", run.State)
	}
	if len(run.FlakyFailures) != 1 || run.FlakyFailures[0].Name != "test_timing" {
		t.Fatalf("expected the flaky failure on the run record, got %+v", run.FlakyFailures)
	}
}

func TestPrepare_MergeConflictAborts(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), nil)
	f.host.mergeErr = &api.MergeConflictError{From: "scratch", Into: "main"}

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if !api.IsMergeConflict(err) {
		t.Fatalf("expected MergeConflictError, got %v", err)
	}
	if run.State != api.StateAborted {
		t.Fatalf("expected ABORTED, got %s", run.State)
	}
	if len(f.host.merged) != 0 {
		t.Fatal("the conflicted merge must not be retried")
	}
}

func TestPrepare_PushRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.1.0"}, newFakeChangelog(), func(p *api.ReleasePlan) {
		p.PushRetry = &api.RetryPolicy{MaxAttempts: 3}
	})
	f.host.pushErrs = 2 // first two pushes fail, the third succeeds

	run, err := f.engine.Prepare(context.Background(), request("2.1.0"))
	if err != nil {
		t.Fatalf("Prepare should survive transient push failures: %v", err)
	}
	if run.State != api.StateResolved {
		t.Fatalf("expected RESOLVED, got %s", run.State)
	}
}

func TestPlan_ReportsWithoutSideEffects(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), nil)

	decision, err := f.engine.Plan(context.Background(), request("2.1.0"))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if !decision.NeedsBranch {
		t.Fatal("a stale version needs a branch")
	}
	if decision.BranchQualifier != "main" {
		t.Fatalf("expected target-branch qualifier, got %q", decision.BranchQualifier)
	}
	if decision.ChangelogAudit.Path != ".changes/2.1.0.md" {
		t.Fatalf("unexpected changelog path %q", decision.ChangelogAudit.Path)
	}
	if len(f.host.created) != 0 || len(f.host.commits) != 0 || len(f.meta.sets) != 0 {
		t.Fatal("Plan must not touch any collaborator state")
	}
}

// Planning the same request against unchanged collaborator state must
// yield the same decision every time, and a run prepared from that state
// follows the decided path.
func TestPlan_DecisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeMeta{current: "2.0.0"}, newFakeChangelog(), nil)
	req := request("2.1.0")

	first, err := f.engine.Plan(ctx, req)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	second, err := f.engine.Plan(ctx, req)
	if err != nil {
		t.Fatalf("second Plan failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated Plan diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	run, err := f.engine.Prepare(ctx, req)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if run.Scratch.Created != first.NeedsBranch {
		t.Fatalf("run branched=%v but decision said NeedsBranch=%v",
			run.Scratch.Created, first.NeedsBranch)
	}
	if !strings.HasPrefix(run.Scratch.Name, "prep-release/"+first.BranchQualifier+"/") {
		t.Fatalf("branch %q does not follow decided qualifier %q",
			run.Scratch.Name, first.BranchQualifier)
	}
	if run.VersionAudit != first.VersionAudit {
		t.Fatalf("run version audit %+v differs from decision %+v",
			run.VersionAudit, first.VersionAudit)
	}
}

// A zero Persistence is a valid configuration: the engine falls back to an
// in-memory journal instead of crashing on its first save.
func TestEngineWithConfig_DefaultsToInMemoryJournal(t *testing.T) {
	ctx := context.Background()
	eng := NewEngineWithConfig(Config{
		Plan: api.ReleasePlan{
			Host:      &fakeHost{},
			Versions:  version.Parser{},
			Metadata:  &fakeMeta{current: "2.1.0"},
			Changelog: newFakeChangelog("2.1.0"),
			Tests:     &passingRunner{},
		},
	})

	run, err := eng.Prepare(ctx, request("2.1.0"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if run.State != api.StateResolved {
		t.Fatalf("expected RESOLVED, got %s", run.State)
	}

	got, err := eng.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun after fallback journalling failed: %v", err)
	}
	if got.ID != run.ID {
		t.Fatalf("journal returned run %q, want %q", got.ID, run.ID)
	}
}

func TestGetRunListRunsAndEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeMeta{current: "2.1.0"}, newFakeChangelog("2.1.0"), nil)

	run, err := f.engine.Prepare(ctx, request("2.1.0"))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	got, err := f.engine.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.State != api.StateResolved {
		t.Fatalf("expected RESOLVED, got %s", got.State)
	}

	if _, err := f.engine.GetRun(ctx, "nope"); err == nil {
		t.Fatal("GetRun for an unknown ID should fail")
	}

	resolved, err := f.engine.ListRuns(ctx, api.RunListOptions{State: api.StateResolved})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected one resolved run, got %d", len(resolved))
	}

	events, err := f.engine.Events(ctx, run.ID)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected recorded events")
	}
	if events[0].Type != api.EventRunStarted {
		t.Fatalf("history should open with run.started, got %s", events[0].Type)
	}
	if events[len(events)-1].Type != api.EventRunResolved {
		t.Fatalf("history should close with run.resolved, got %s", events[len(events)-1].Type)
	}
}

func TestPrepare_InvalidPlanRejected(t *testing.T) {
	eng := NewInMemoryEngine(api.ReleasePlan{})

	_, err := eng.Prepare(context.Background(), request("1.0.0"))
	if err == nil {
		t.Fatal("an incomplete plan must be rejected before any run starts")
	}
}

// Every non-terminal state must have an applicable transition for any run
// shape, and guard pairs leaving the same state must be exclusive.
func TestTransitionTable_Covers(t *testing.T) {
	f := newFixture(t, &fakeMeta{current: "1.0.0"}, newFakeChangelog(), nil)
	e := f.engine.(*engineImpl)

	shapes := []*api.ReleaseRun{
		{}, // zero audits: needs work
		{ChangelogAudit: api.ChangelogAudit{Exists: true}, VersionAudit: api.VersionAudit{IsCurrent: true}},
		{Request: api.ReleaseRequest{TrialRun: true}},
	}

	states := []api.State{
		api.StateStart, api.StateAudited, api.StateBranched, api.StateMutated,
		api.StateVerified, api.StatePromoted, api.StateRetained, api.StateSkipped,
	}

	for _, state := range states {
		for i, shape := range shapes {
			run := *shape
			run.State = state

			matched := 0
			for _, tr := range e.transitions() {
				if tr.from != state {
					continue
				}
				if tr.guard == nil || tr.guard(&run) {
					matched++
				}
			}
			if matched != 1 {
				t.Fatalf("state %s shape %d: expected exactly one applicable transition, got %d",
					state, i, matched)
			}
		}
	}
}
