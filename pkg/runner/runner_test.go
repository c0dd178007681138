package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/notepost/pkg/auth"
	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/browser/browsertest"
	"github.com/entrhq/notepost/pkg/content"
	"github.com/entrhq/notepost/pkg/popup"
	"github.com/entrhq/notepost/pkg/publish"
)

const (
	dashboardURL = "https://creator.xiaohongshu.com/new/home"
	loginURL     = "https://creator.xiaohongshu.com/login"
	successURL   = "https://creator.xiaohongshu.com/publish/success"
)

type fakeHandle struct {
	page        browser.Page
	disconnects int
	terminates  int
}

func (h *fakeHandle) Page() browser.Page { return h.page }

func (h *fakeHandle) Disconnect() error {
	h.disconnects++
	return nil
}

func (h *fakeHandle) Terminate() error {
	h.terminates++
	return nil
}

type fakeLauncher struct {
	handle    *fakeHandle
	launchErr error
	launches  int
	attaches  int
}

func (l *fakeLauncher) Launch(ctx context.Context, opts browser.Options) (browser.Handle, error) {
	l.launches++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.handle, nil
}

func (l *fakeLauncher) Attach(ctx context.Context, opts browser.Options) (browser.Handle, error) {
	l.attaches++
	return l.handle, nil
}

type fakeFinder struct {
	found bool
}

func (f fakeFinder) FindDebugListener(ctx context.Context, port int) (int32, bool, error) {
	if f.found {
		return 4242, true, nil
	}
	return 0, false, nil
}

type fakePosts struct {
	posts    []content.PostContent
	readErr  error
	panicky  bool
	filled   int
	fillGens []content.BodyGenerator
}

func (p *fakePosts) ReadAll() ([]content.PostContent, error) {
	if p.panicky {
		panic("workbook exploded")
	}
	return p.posts, p.readErr
}

func (p *fakePosts) FillMissingBodies(ctx context.Context, gen content.BodyGenerator) (int, error) {
	p.fillGens = append(p.fillGens, gen)
	return p.filled, nil
}

type fixedGenerator struct{}

func (fixedGenerator) Generate(ctx context.Context, title string) string {
	return content.FallbackBody(title)
}

// fastOptions removes every settle pause.
func fastOptions() Options {
	ao := auth.DefaultOptions()
	ao.TypeDelay = 0
	ao.SubmitSettle = 0
	ao.VerifySettle = 0
	ao.RefreshSettle = 0

	po := publish.DefaultOptions()
	po.LoadSettle = 0
	po.UploadAreaSettle = 0
	po.UploadSettle = 0
	po.RandomUploadSettle = 0
	po.TagSettle = 0
	po.SubmitSettle = 0
	po.VerifyDelay = 0

	return Options{
		Identifier: "18800000000",
		Auth:       ao,
		Publish:    po,
		Popups:     []popup.Option{popup.WithSettle(0, 0)},
	}
}

// publishPage returns a page whose home redirects to target and whose
// authoring controls are all present.
func publishPage(homeTarget string) *browsertest.Page {
	page := browsertest.NewPage("about:blank")
	page.Redirects[auth.DefaultHomeURL] = homeTarget

	c := publish.DefaultCatalog()
	page.Add(c.Title.Strategies[0], "title")
	page.Add(c.Body.Strategies[0], "body")
	submit := page.Add(c.Submit.Strategies[0], "submit")
	submit.OnClick = func() { page.SetURL(successURL) }
	return page
}

// addLoginControls makes the login form present; confirming lands on the dashboard.
func addLoginControls(page *browsertest.Page) {
	c := auth.DefaultCatalog()
	page.Add(c.Identifier.Strategies[0], "phone")
	page.Add(c.SendCode.Strategies[0], "send-code")
	page.Add(c.Code.Strategies[0], "code")
	confirm := page.Add(c.Confirm.Strategies[0], "confirm")
	confirm.OnClick = func() { page.SetURL(dashboardURL) }
}

func newRunner(t *testing.T, launcher *fakeLauncher, finder fakeFinder, posts PostSource, codes auth.CodeSource, opts Options) *Runner {
	t.Helper()
	manager := browser.NewManager(browser.DefaultOptions(), launcher, finder, nil)
	r, err := New(Deps{
		Sessions: manager,
		Posts:    posts,
		Codes:    codes,
	}, opts, nil)
	require.NoError(t, err)
	return r
}

func stepNames(report Report) []string {
	names := make([]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		names = append(names, s.Name)
	}
	return names
}

func TestRun_ReusedSessionAlreadyLoggedIn(t *testing.T) {
	page := publishPage(dashboardURL)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}
	posts := &fakePosts{posts: []content.PostContent{
		{Title: "夏日防晒", Body: "出门记得涂防晒。"},
		{Title: "健康饮食小常识"},
	}}

	opts := fastOptions()
	opts.Reuse = true
	opts.MaxPosts = 1

	report := newRunner(t, launcher, fakeFinder{found: true}, posts, nil, opts).Run(context.Background())

	require.NoError(t, report.Err())
	assert.True(t, report.Reused)
	assert.True(t, report.LoggedIn)
	assert.Nil(t, report.Login)
	assert.Equal(t, 1, launcher.attaches)
	assert.Zero(t, launcher.launches)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "夏日防晒", report.Outcomes[0].Title)
	assert.Equal(t, publish.VerificationVerified, report.Outcomes[0].Verification)
	assert.True(t, report.Succeeded())

	assert.Equal(t, 1, handle.disconnects)
	assert.Zero(t, handle.terminates)
	assert.Equal(t, []string{"acquire", "open", "login", "read-posts", "prepare-publish", "publish-1", "release"}, stepNames(report))
}

func TestRun_FreshSessionLogsIn(t *testing.T) {
	page := publishPage(loginURL)
	addLoginControls(page)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}
	posts := &fakePosts{posts: []content.PostContent{{Title: "夏日防晒", Body: "正文"}}}

	report := newRunner(t, launcher, fakeFinder{}, posts, auth.StaticCode("123456"), fastOptions()).Run(context.Background())

	require.NoError(t, report.Err())
	assert.False(t, report.Reused)
	require.NotNil(t, report.Login)
	assert.True(t, report.Login.Verified())
	assert.Equal(t, "123456", report.Login.Challenge.Code)
	assert.Equal(t, 1, report.Published())
	assert.Equal(t, 1, handle.terminates)
}

func TestRun_ReusedSessionLoggedOutFallsBackToLogin(t *testing.T) {
	page := publishPage(loginURL)
	addLoginControls(page)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}
	posts := &fakePosts{posts: []content.PostContent{{Title: "夏日防晒"}}}

	opts := fastOptions()
	opts.Reuse = true

	report := newRunner(t, launcher, fakeFinder{found: true}, posts, auth.StaticCode("123456"), opts).Run(context.Background())

	require.NoError(t, report.Err())
	assert.True(t, report.Reused)
	require.NotNil(t, report.Login)
	assert.True(t, report.LoggedIn)
	assert.GreaterOrEqual(t, page.Reloads, 1)
	assert.Equal(t, 1, handle.disconnects)
}

func TestRun_LoginFailureSkipsPublishing(t *testing.T) {
	page := publishPage(loginURL)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}
	posts := &fakePosts{posts: []content.PostContent{{Title: "夏日防晒"}}}

	report := newRunner(t, launcher, fakeFinder{}, posts, auth.StaticCode("123456"), fastOptions()).Run(context.Background())

	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	require.NotNil(t, report.Login)
	assert.Equal(t, auth.StateFailed, report.Login.State)
	assert.Empty(t, report.Outcomes)
	assert.False(t, report.Succeeded())

	// the browser is still closed
	assert.Equal(t, 1, handle.terminates)
	assert.Equal(t, []string{"acquire", "open", "login", "release"}, stepNames(report))
}

func TestRun_NoCodeSource(t *testing.T) {
	page := publishPage(loginURL)
	launcher := &fakeLauncher{handle: &fakeHandle{page: page}}

	report := newRunner(t, launcher, fakeFinder{}, &fakePosts{}, nil, fastOptions()).Run(context.Background())

	assert.ErrorIs(t, report.Err(), ErrNotLoggedIn)
	assert.Nil(t, report.Login)
}

func TestRun_AcquireFailure(t *testing.T) {
	launcher := &fakeLauncher{launchErr: errors.New("chrome not found")}

	report := newRunner(t, launcher, fakeFinder{}, &fakePosts{}, nil, fastOptions()).Run(context.Background())

	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "chrome not found")
	assert.Equal(t, []string{"acquire"}, stepNames(report))
}

func TestRun_FillsBodiesFirst(t *testing.T) {
	page := publishPage(dashboardURL)
	launcher := &fakeLauncher{handle: &fakeHandle{page: page}}
	posts := &fakePosts{filled: 2, posts: []content.PostContent{{Title: "夏日防晒"}}}

	opts := fastOptions()
	opts.Reuse = true
	opts.FillBodies = true

	manager := browser.NewManager(browser.DefaultOptions(), launcher, fakeFinder{found: true}, nil)
	r, err := New(Deps{Sessions: manager, Posts: posts, Generator: fixedGenerator{}}, opts, nil)
	require.NoError(t, err)

	report := r.Run(context.Background())
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.BodiesFilled)
	assert.Len(t, posts.fillGens, 1)
	assert.Equal(t, "fill-bodies", report.Steps[0].Name)
}

func TestRun_KeepOpenDetaches(t *testing.T) {
	page := publishPage(dashboardURL)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}
	posts := &fakePosts{posts: []content.PostContent{{Title: "夏日防晒"}}}

	opts := fastOptions()
	opts.KeepOpen = true

	// a fresh session on a logged-in profile still walks the login form
	addLoginControls(page)
	report := newRunner(t, launcher, fakeFinder{}, posts, auth.StaticCode("123456"), opts).Run(context.Background())

	require.NoError(t, report.Err())
	assert.Equal(t, 1, handle.disconnects)
	assert.Zero(t, handle.terminates)
	assert.Equal(t, "detach", report.Steps[len(report.Steps)-1].Name)
	assert.False(t, report.FinishedAt.IsZero())
}

func TestRun_PanicIsRecovered(t *testing.T) {
	page := publishPage(dashboardURL)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}

	opts := fastOptions()
	opts.Reuse = true

	report := newRunner(t, launcher, fakeFinder{found: true}, &fakePosts{panicky: true}, nil, opts).Run(context.Background())

	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "workbook exploded")
	assert.Equal(t, 1, handle.disconnects)
}

func TestRun_NoPosts(t *testing.T) {
	page := publishPage(dashboardURL)
	launcher := &fakeLauncher{handle: &fakeHandle{page: page}}

	opts := fastOptions()
	opts.Reuse = true

	report := newRunner(t, launcher, fakeFinder{found: true}, &fakePosts{}, nil, opts).Run(context.Background())

	assert.NoError(t, report.Err())
	assert.True(t, report.LoggedIn)
	assert.Empty(t, report.Outcomes)
	assert.False(t, report.Succeeded())
}

func TestRun_FailedPostDoesNotStopTheNext(t *testing.T) {
	page := publishPage(dashboardURL)
	launcher := &fakeLauncher{handle: &fakeHandle{page: page}}
	posts := &fakePosts{posts: []content.PostContent{{Title: " "}, {Title: "健康饮食小常识"}}}

	opts := fastOptions()
	opts.Reuse = true

	report := newRunner(t, launcher, fakeFinder{found: true}, posts, nil, opts).Run(context.Background())

	require.Len(t, report.Outcomes, 2)
	assert.ErrorIs(t, report.Outcomes[0].Err, content.ErrEmptyTitle)
	assert.True(t, report.Outcomes[1].Published())
	assert.Equal(t, 1, report.Published())
	assert.ErrorIs(t, report.Err(), content.ErrEmptyTitle)
	assert.False(t, report.Succeeded())
}

func TestCheckSession(t *testing.T) {
	page := publishPage(dashboardURL)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}

	status, err := newRunner(t, launcher, fakeFinder{found: true}, &fakePosts{}, nil, fastOptions()).CheckSession(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Reused)
	assert.True(t, status.LoggedIn)
	assert.Equal(t, "127.0.0.1:9222", status.Endpoint)
	assert.Equal(t, 1, handle.disconnects)
	assert.Zero(t, handle.terminates)
}

func TestCheckSession_LaunchesWhenNothingListens(t *testing.T) {
	page := publishPage(loginURL)
	handle := &fakeHandle{page: page}
	launcher := &fakeLauncher{handle: handle}

	status, err := newRunner(t, launcher, fakeFinder{}, &fakePosts{}, nil, fastOptions()).CheckSession(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Reused)
	assert.False(t, status.LoggedIn)
	assert.Equal(t, 1, launcher.launches)
	assert.Equal(t, 1, handle.disconnects)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{}, Options{}, nil)
	assert.Error(t, err)

	manager := browser.NewManager(browser.DefaultOptions(), &fakeLauncher{}, fakeFinder{}, nil)
	_, err = New(Deps{Sessions: manager}, Options{}, nil)
	assert.Error(t, err)
}
