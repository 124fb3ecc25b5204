package verifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dev/bravebird/page-verifier/pkg/models"
)

type fakePage struct {
	menu       bool
	navErr     error
	shotErr    error
	png        []byte
	navigated  []string
	queried    []string
	clicked    []string
	screenshot int
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if p.navErr != nil {
		return p.navErr
	}
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	p.screenshot++
	return p.png, nil
}

func (p *fakePage) Has(ctx context.Context, selector string) (bool, error) {
	p.queried = append(p.queried, selector)
	return p.menu, nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.clicked = append(p.clicked, selector)
	return nil
}

type fakeSession struct {
	page    *fakePage
	pageErr error
	closed  int
}

func (s *fakeSession) NewPage(ctx context.Context) (Page, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.page, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func opener(s *fakeSession) Opener {
	return func(ctx context.Context) (Session, error) {
		return s, nil
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestVerifier(s *fakeSession, out *bytes.Buffer, opts ...Option) *Verifier {
	v := New(opener(s), out, opts...)
	v.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return v
}

func outputLines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func equalLines(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d lines %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := png.DecodeConfig(f); err != nil {
		t.Errorf("%s is not a valid PNG: %v", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s should not exist (stat err = %v)", path, err)
	}
}

func TestRunMenuPresent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "verification")
	session := &fakeSession{page: &fakePage{menu: true, png: testPNG(t)}}
	var out bytes.Buffer

	res := newTestVerifier(session, &out).Run(context.Background(), "run-1", DefaultPlan("", dir))

	equalLines(t, outputLines(&out), []string{
		"Home page screenshot taken.",
		"Floating menu button found.",
		"Home page menu open screenshot taken.",
		"Queues page screenshot taken.",
	})

	if res.Status != models.StatusSuccess {
		t.Errorf("status = %s, want success (error %q)", res.Status, res.ErrorMessage)
	}
	if len(res.Screenshots) != 3 {
		t.Errorf("screenshots = %v, want 3", res.Screenshots)
	}
	for _, name := range []string{HomeScreenshot, MenuOpenScreenshot, QueuesScreenshot} {
		assertPNG(t, filepath.Join(dir, name))
	}

	page := session.page
	wantURLs := []string{"http://localhost:3000/new/home", "http://localhost:3000/new/queues"}
	if strings.Join(page.navigated, ",") != strings.Join(wantURLs, ",") {
		t.Errorf("navigated = %v, want %v", page.navigated, wantURLs)
	}
	if len(page.clicked) != 1 || page.clicked[0] != "button[aria-label='Menu']" {
		t.Errorf("clicked = %v", page.clicked)
	}
	if session.closed != 1 {
		t.Errorf("session closed %d times, want 1", session.closed)
	}
}

func TestRunMenuAbsent(t *testing.T) {
	dir := t.TempDir()
	session := &fakeSession{page: &fakePage{png: testPNG(t)}}
	var out bytes.Buffer
	var reported []models.StepResult

	res := newTestVerifier(session, &out, WithReporter(func(sr models.StepResult) {
		reported = append(reported, sr)
	})).Run(context.Background(), "run-2", DefaultPlan("", dir))

	equalLines(t, outputLines(&out), []string{
		"Home page screenshot taken.",
		"Floating menu button NOT found.",
		"Queues page screenshot taken.",
	})

	if res.Status != models.StatusSuccess {
		t.Errorf("status = %s, want success", res.Status)
	}
	assertPNG(t, filepath.Join(dir, HomeScreenshot))
	assertPNG(t, filepath.Join(dir, QueuesScreenshot))
	assertMissing(t, filepath.Join(dir, MenuOpenScreenshot))

	if len(session.page.clicked) != 0 {
		t.Errorf("clicked = %v, want none", session.page.clicked)
	}

	skipped := 0
	for _, sr := range reported {
		if sr.Status == models.StatusSkipped {
			skipped++
		}
	}
	if skipped != 3 {
		t.Errorf("skipped steps = %d, want 3", skipped)
	}
	if len(reported) != len(res.StepResults) {
		t.Errorf("reported %d results, run has %d", len(reported), len(res.StepResults))
	}
}

func TestRunServerDown(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "verification")
	session := &fakeSession{page: &fakePage{
		navErr: errors.New("navigation failed: net::ERR_CONNECTION_REFUSED"),
		png:    testPNG(t),
	}}
	var out bytes.Buffer

	res := newTestVerifier(session, &out).Run(context.Background(), "run-3", DefaultPlan("", dir))

	lines := outputLines(&out)
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "Error: ") {
		t.Fatalf("output = %q, want a single Error line", lines)
	}
	if !strings.Contains(lines[0], "ERR_CONNECTION_REFUSED") {
		t.Errorf("error line %q lost the cause", lines[0])
	}
	if res.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if session.closed != 1 {
		t.Errorf("session closed %d times, want 1", session.closed)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("output dir should not be created, stat err = %v", err)
	}
}

func TestRunOverwritesScreenshots(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, HomeScreenshot)
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	session := &fakeSession{page: &fakePage{png: testPNG(t)}}
	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		res := newTestVerifier(session, &out).Run(context.Background(), "run", DefaultPlan("", dir))
		if res.Status != models.StatusSuccess {
			t.Fatalf("run %d: status = %s (%s)", i, res.Status, res.ErrorMessage)
		}
	}
	assertPNG(t, stale)
}

func TestRunScreenshotFailureStopsRun(t *testing.T) {
	dir := t.TempDir()
	session := &fakeSession{page: &fakePage{shotErr: errors.New("capture failed")}}
	var out bytes.Buffer

	res := newTestVerifier(session, &out).Run(context.Background(), "run", DefaultPlan("", dir))

	if res.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if len(session.page.navigated) != 1 {
		t.Errorf("navigated = %v, want only the first page", session.page.navigated)
	}
	last := res.StepResults[len(res.StepResults)-1]
	if last.StepType != models.StepScreenshot || last.Status != models.StatusFailed {
		t.Errorf("last step = %+v", last)
	}
}

func TestRunOpenFailure(t *testing.T) {
	var out bytes.Buffer
	v := New(func(ctx context.Context) (Session, error) {
		return nil, errors.New("failed to launch browser: no chrome")
	}, &out)

	res := v.Run(context.Background(), "run", DefaultPlan("", t.TempDir()))

	if res.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if got := out.String(); got != "Error: failed to launch browser: no chrome\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunPageFailureClosesSession(t *testing.T) {
	session := &fakeSession{pageErr: errors.New("failed to create page")}
	var out bytes.Buffer

	res := newTestVerifier(session, &out).Run(context.Background(), "run", DefaultPlan("", t.TempDir()))

	if res.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if session.closed != 1 {
		t.Errorf("session closed %d times, want 1", session.closed)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{page: &fakePage{png: testPNG(t)}}
	var out bytes.Buffer

	res := newTestVerifier(session, &out).Run(ctx, "run", DefaultPlan("", t.TempDir()))

	if res.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if len(session.page.navigated) != 0 {
		t.Errorf("navigated = %v, want none", session.page.navigated)
	}
	if session.closed != 1 {
		t.Errorf("session closed %d times, want 1", session.closed)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() = %v", err)
	}
}
