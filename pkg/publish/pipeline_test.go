package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/browser/browsertest"
	"github.com/entrhq/notepost/pkg/content"
	"github.com/entrhq/notepost/pkg/locator"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.PublishURL = "https://creator.example.com/publish/publish?target=image"
	opts.LoadSettle = 0
	opts.UploadAreaSettle = 0
	opts.UploadSettle = 0
	opts.RandomUploadSettle = 0
	opts.TagSettle = 0
	opts.SubmitSettle = 0
	opts.VerifyDelay = 0
	return opts
}

type fakeImages struct {
	calls   []int
	fail    map[int]error
	paths   []string
	release int
}

func (f *fakeImages) WithImage(ctx context.Context, index int, fn func(path string) error) error {
	f.calls = append(f.calls, index)
	if err := f.fail[index]; err != nil {
		return err
	}
	path := fmt.Sprintf("/tmp/notepost-%d.jpg", index)
	f.paths = append(f.paths, path)
	defer func() { f.release++ }()
	return fn(path)
}

type authoringPage struct {
	*browsertest.Page
	fileInput *browsertest.Element
	title     *browsertest.Element
	body      *browsertest.Element
	submit    *browsertest.Element
}

func newAuthoringPage(withFileInput bool) *authoringPage {
	c := DefaultCatalog()
	page := browsertest.NewPage("about:blank")

	ap := &authoringPage{
		Page:   page,
		title:  page.Add(c.Title.Strategies[0], "title"),
		body:   page.Add(c.Body.Strategies[0], "body"),
		submit: page.Add(c.Submit.Strategies[0], "submit"),
	}
	if withFileInput {
		ap.fileInput = page.Add(c.FileInput.Strategies[0], "upload")
		ap.fileInput.Hidden = true
	}
	return ap
}

func newTestPipeline(t *testing.T, page browser.Page, images ImageSource, opts Options) *Pipeline {
	t.Helper()
	session := &browser.Session{Page: page}
	p, err := NewPipeline(session, locator.NewResolver(time.Millisecond, nil), nil, images, opts, nil)
	require.NoError(t, err)
	return p
}

func stageNames(out Outcome) []string {
	names := make([]string, 0, len(out.Stages))
	for _, s := range out.Stages {
		names = append(names, s.Name)
	}
	return names
}

func TestPublishWithoutFileInput(t *testing.T) {
	page := newAuthoringPage(false)
	images := &fakeImages{}
	opts := testOptions()
	opts.Verify = false
	p := newTestPipeline(t, page, images, opts)

	post := content.PostContent{Title: "夏日防晒", Body: "防晒小技巧..."}

	var out Outcome
	require.NotPanics(t, func() { out = p.Publish(context.Background(), post) })

	assert.NoError(t, out.Err)
	assert.True(t, out.Completed)
	assert.True(t, out.Submitted)
	assert.True(t, out.Upload.NoFileInput)
	assert.Empty(t, out.Upload.Results)
	assert.NoError(t, out.StageErr("media"))
	assert.Empty(t, images.calls, "no download without a file input")

	assert.Equal(t, []string{"navigate", "media", "title", "body", "submit"}, stageNames(out))
	assert.Equal(t, []string{"夏日防晒"}, page.title.Filled)
	assert.Equal(t, 1, page.title.Clears)
	assert.Equal(t, "防晒小技巧...", page.body.Text)
	assert.Equal(t, 1, page.submit.Clicks)
	assert.Equal(t, []string{opts.PublishURL}, page.Gotos)
}

func TestPublishExplicitImages(t *testing.T) {
	page := newAuthoringPage(true)
	images := &fakeImages{}
	p := newTestPipeline(t, page, images, testOptions())

	post := content.PostContent{
		Title:      "夏日防晒",
		ImagePaths: []string{"/data/a.jpg", "/data/b.jpg"},
	}
	out := p.Publish(context.Background(), post)

	assert.True(t, out.Upload.AnySucceeded)
	assert.Len(t, out.Upload.Results, 2)
	assert.Equal(t, []string{"/data/a.jpg", "/data/b.jpg"}, page.fileInput.Files)
	assert.Empty(t, images.calls)
	assert.NotContains(t, stageNames(out), "body", "empty body is left alone")
}

func TestPublishPartialUploadFailure(t *testing.T) {
	page := newAuthoringPage(true)
	page.fileInput.SetFileErr = errors.New("no such file")
	p := newTestPipeline(t, page, nil, testOptions())

	out := p.Publish(context.Background(), content.PostContent{
		Title:      "夏日防晒",
		ImagePaths: []string{"/missing/a.jpg", "/missing/b.jpg"},
	})

	assert.False(t, out.Upload.AnySucceeded)
	assert.Len(t, out.Upload.Results, 2)
	assert.Error(t, out.StageErr("media"))
	assert.True(t, out.Completed, "media failure does not stop the pipeline")
	assert.True(t, out.Submitted)
}

func TestPublishRandomImages(t *testing.T) {
	page := newAuthoringPage(true)
	images := &fakeImages{fail: map[int]error{0: errors.New("image 1 failed after 3 attempts")}}
	p := newTestPipeline(t, page, images, testOptions())

	out := p.Publish(context.Background(), content.PostContent{Title: "夏日防晒", Body: "正文"})

	assert.Equal(t, []int{0, 1}, images.calls)
	require.Len(t, out.Upload.Results, 2)
	assert.False(t, out.Upload.Results[0].Succeeded)
	assert.True(t, out.Upload.Results[1].Succeeded)
	assert.True(t, out.Upload.AnySucceeded)
	assert.NoError(t, out.StageErr("media"))
	assert.Equal(t, []string{"/tmp/notepost-1.jpg"}, page.fileInput.Files)
	assert.Equal(t, 1, images.release)
}

func TestPublishFileInputFallbacks(t *testing.T) {
	c := DefaultCatalog()

	t.Run("upload area reveals input", func(t *testing.T) {
		page := newAuthoringPage(false)
		generic := page.Add(c.GenericFileInput.Strategies[0], "generic")
		generic.Hidden = true
		area := page.Add(c.UploadArea.Strategies[0], "area")

		p := newTestPipeline(t, page, nil, testOptions())
		out := p.Publish(context.Background(), content.PostContent{Title: "t", ImagePaths: []string{"/a.jpg"}})

		assert.Equal(t, 1, area.Clicks)
		assert.Equal(t, []string{"/a.jpg"}, generic.Files)
		assert.True(t, out.Upload.AnySucceeded)
	})

	t.Run("generic input without upload area", func(t *testing.T) {
		page := newAuthoringPage(false)
		generic := page.Add(c.GenericFileInput.Strategies[0], "generic")

		p := newTestPipeline(t, page, nil, testOptions())
		out := p.Publish(context.Background(), content.PostContent{Title: "t", ImagePaths: []string{"/a.jpg"}})

		assert.Equal(t, []string{"/a.jpg"}, generic.Files)
		assert.True(t, out.Upload.AnySucceeded)
	})
}

// eventSuppressor records the last page interaction seen at each call.
type eventSuppressor struct {
	page  *browsertest.Page
	after []string
}

func (s *eventSuppressor) Suppress(context.Context, browser.Page) {
	events := s.page.EventLog()
	last := ""
	if len(events) > 0 {
		last = events[len(events)-1]
	}
	s.after = append(s.after, last)
}

func TestPublishSuppressesPopupsAfterNavigationAndSubmit(t *testing.T) {
	page := newAuthoringPage(false)
	popups := &eventSuppressor{page: page.Page}
	opts := testOptions()
	opts.Verify = false

	p, err := NewPipeline(&browser.Session{Page: page}, locator.NewResolver(time.Millisecond, nil), popups, nil, opts, nil)
	require.NoError(t, err)

	out := p.Publish(context.Background(), content.PostContent{Title: "夏日防晒"})
	require.True(t, out.Submitted)

	assert.Equal(t, []string{"", "click:submit"}, popups.after)
}

func TestPublishFiltersNonBMP(t *testing.T) {
	page := newAuthoringPage(false)
	p := newTestPipeline(t, page, nil, testOptions())

	p.Publish(context.Background(), content.PostContent{Title: "夏日🌞防晒", Body: "防晒🧴攻略"})

	assert.Equal(t, []string{"夏日防晒"}, page.title.Filled)
	assert.Equal(t, "防晒攻略", page.body.Text)
}

func TestPublishNavigationFailureAborts(t *testing.T) {
	page := newAuthoringPage(true)
	page.GotoErr = errors.New("net::ERR_CONNECTION_RESET")
	p := newTestPipeline(t, page, &fakeImages{}, testOptions())

	out := p.Publish(context.Background(), content.PostContent{Title: "夏日防晒"})

	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "navigate")
	assert.False(t, out.Completed)
	assert.False(t, out.Submitted)
	assert.Equal(t, []string{"navigate"}, stageNames(out))
	assert.Equal(t, 0, page.submit.Clicks)
}

func TestPublishRejectsEmptyTitle(t *testing.T) {
	page := newAuthoringPage(true)
	p := newTestPipeline(t, page, nil, testOptions())

	out := p.Publish(context.Background(), content.PostContent{Title: "  ", Body: "body"})

	assert.ErrorIs(t, out.Err, content.ErrEmptyTitle)
	assert.Empty(t, out.Stages)
	assert.Empty(t, page.Gotos)
}

func TestPublishTagsAndCategory(t *testing.T) {
	c := DefaultCatalog()
	page := newAuthoringPage(false)
	tags := page.Add(c.TagInput.Strategies[0], "tags")
	selector := page.Add(c.CategorySelector.Strategies[0], "selector")
	option := page.Add(CategoryOption("美妆").Strategies[0], "option")

	opts := testOptions()
	opts.Tags = true
	opts.Category = true
	p := newTestPipeline(t, page, nil, opts)

	out := p.Publish(context.Background(), content.PostContent{
		Title:    "夏日防晒",
		Tags:     []string{"防晒", "夏日"},
		Category: "美妆",
	})

	assert.Equal(t, []string{"防晒 ", "夏日 "}, tags.Typed)
	assert.Equal(t, 1, selector.Clicks)
	assert.Equal(t, 1, option.Clicks)
	assert.NoError(t, out.StageErr("tags"))
	assert.NoError(t, out.StageErr("category"))
}

func TestPublishSkipsTagsByDefault(t *testing.T) {
	page := newAuthoringPage(false)
	p := newTestPipeline(t, page, nil, testOptions())

	out := p.Publish(context.Background(), content.PostContent{Title: "t", Tags: []string{"a"}, Category: "b"})

	assert.NotContains(t, stageNames(out), "tags")
	assert.NotContains(t, stageNames(out), "category")
}

func TestVerification(t *testing.T) {
	tests := []struct {
		name      string
		afterURL  string
		html      string
		noSubmit  bool
		want      Verification
		published bool
	}{
		{
			name:      "success url",
			afterURL:  "https://creator.example.com/publish/success?id=1",
			want:      VerificationVerified,
			published: true,
		},
		{
			name:      "success text",
			afterURL:  "https://creator.example.com/publish/publish",
			html:      "<div class='toast'>发布成功</div>",
			want:      VerificationVerified,
			published: true,
		},
		{
			name:     "failure text",
			afterURL: "https://creator.example.com/publish/publish",
			html:     "<div class='toast'>发布失败，请重试</div>",
			want:     VerificationFailed,
		},
		{
			name:      "no signal",
			afterURL:  "https://creator.example.com/publish/publish",
			html:      "<div>编辑图文</div>",
			want:      VerificationInconclusive,
			published: true,
		},
		{
			name:     "not submitted",
			noSubmit: true,
			want:     VerificationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newAuthoringPage(false)
			page.Content = tt.html
			page.submit.OnClick = func() { page.SetURL(tt.afterURL) }
			if tt.noSubmit {
				page.Remove(DefaultCatalog().Submit.Strategies[0])
			}

			p := newTestPipeline(t, page, nil, testOptions())
			out := p.Publish(context.Background(), content.PostContent{Title: "夏日防晒"})

			assert.Equal(t, tt.want, out.Verification)
			assert.Equal(t, tt.published, out.Published())
			assert.True(t, out.Completed)
			if tt.want == VerificationInconclusive {
				assert.ErrorIs(t, out.StageErr("verify"), ErrVerificationInconclusive)
			}
		})
	}
}

func TestPublishCanceled(t *testing.T) {
	page := newAuthoringPage(true)
	p := newTestPipeline(t, page, nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := p.Publish(ctx, content.PostContent{Title: "夏日防晒"})
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.False(t, out.Completed)
}

func TestNewPipelineValidation(t *testing.T) {
	_, err := NewPipeline(nil, locator.NewResolver(time.Millisecond, nil), nil, nil, testOptions(), nil)
	assert.Error(t, err)

	opts := testOptions()
	opts.SuccessURLMarkers = []string{"[broken"}
	_, err = NewPipeline(&browser.Session{Page: browsertest.NewPage("")}, locator.NewResolver(time.Millisecond, nil), nil, nil, opts, nil)
	assert.Error(t, err)
}

func TestCategoryOptionQuotes(t *testing.T) {
	spec := CategoryOption("Kid's")
	require.Len(t, spec.Strategies, 1)
	assert.Equal(t, browser.KindText, spec.Strategies[0].Kind)

	spec = CategoryOption("美妆")
	assert.Len(t, spec.Strategies, 2)
}
