// Package publish fills in and submits the creator platform's image-post form.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/content"
	"github.com/entrhq/notepost/pkg/locator"
	"github.com/entrhq/notepost/pkg/logging"
)

// Default publish settings
const (
	DefaultPublishURL         = "https://creator.xiaohongshu.com/publish/publish?from=menu&target=image"
	DefaultRandomImages       = 2
	DefaultLoadSettle         = 3 * time.Second
	DefaultUploadAreaSettle   = time.Second
	DefaultUploadSettle       = 3 * time.Second
	DefaultRandomUploadSettle = 4 * time.Second
	DefaultTagSettle          = time.Second
	DefaultSubmitSettle       = 2 * time.Second
	DefaultVerifyDelay        = 10 * time.Second
)

// Suppressor dismisses overlays.
type Suppressor interface {
	Suppress(ctx context.Context, page browser.Page)
}

// ImageSource lends a temporary image file to fn and removes it afterwards.
type ImageSource interface {
	WithImage(ctx context.Context, index int, fn func(path string) error) error
}

// Options configures a Pipeline.
type Options struct {
	PublishURL string

	// RandomImages is how many images to download for posts without images
	RandomImages int

	LoadSettle         time.Duration
	UploadAreaSettle   time.Duration
	UploadSettle       time.Duration
	RandomUploadSettle time.Duration
	TagSettle          time.Duration
	SubmitSettle       time.Duration
	VerifyDelay        time.Duration

	// Tags and Category enable the optional topic and category stages
	Tags     bool
	Category bool

	// Verify enables the post-submit verification stage
	Verify bool

	// SuccessURLMarkers are globs matched against the lower-cased URL after submission
	SuccessURLMarkers []string

	// SuccessText and FailureText are searched for in the page text after submission
	SuccessText []string
	FailureText []string

	Catalog Catalog
}

// DefaultOptions returns the creator platform settings.
func DefaultOptions() Options {
	return Options{
		PublishURL:         DefaultPublishURL,
		RandomImages:       DefaultRandomImages,
		LoadSettle:         DefaultLoadSettle,
		UploadAreaSettle:   DefaultUploadAreaSettle,
		UploadSettle:       DefaultUploadSettle,
		RandomUploadSettle: DefaultRandomUploadSettle,
		TagSettle:          DefaultTagSettle,
		SubmitSettle:       DefaultSubmitSettle,
		VerifyDelay:        DefaultVerifyDelay,
		Verify:             true,
		SuccessURLMarkers:  []string{"*published*", "*success*", "*dashboard*"},
		SuccessText:        []string{"发布成功", "Published successfully"},
		FailureText:        []string{"发布失败"},
		Catalog:            DefaultCatalog(),
	}
}

type stageFunc func(ctx context.Context, post content.PostContent, out *Outcome) error

type stage struct {
	name   string
	policy Policy
	run    stageFunc
}

// Pipeline publishes one post at a time on the session's page.
type Pipeline struct {
	page       browser.Page
	resolver   *locator.Resolver
	popups     Suppressor
	images     ImageSource
	opts       Options
	urlMarkers []glob.Glob
	logger     *logging.Logger
}

// NewPipeline creates a pipeline. popups and images may be nil.
func NewPipeline(session *browser.Session, resolver *locator.Resolver, popups Suppressor, images ImageSource, opts Options, logger *logging.Logger) (*Pipeline, error) {
	if session == nil || session.Page == nil {
		return nil, errors.New("publish pipeline requires an active session")
	}
	if opts.PublishURL == "" {
		opts.PublishURL = DefaultPublishURL
	}

	markers := make([]glob.Glob, 0, len(opts.SuccessURLMarkers))
	for _, pattern := range opts.SuccessURLMarkers {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid success marker %q: %w", pattern, err)
		}
		markers = append(markers, g)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Pipeline{
		page:       session.Page,
		resolver:   resolver,
		popups:     popups,
		images:     images,
		opts:       opts,
		urlMarkers: markers,
		logger:     logger,
	}, nil
}

func (p *Pipeline) stages(post content.PostContent) []stage {
	stages := []stage{
		{name: "navigate", policy: Required, run: p.navigate},
		{name: "media", policy: Optional, run: p.attachMedia},
		{name: "title", policy: Optional, run: p.enterTitle},
	}
	if post.HasBody() {
		stages = append(stages, stage{name: "body", policy: Optional, run: p.enterBody})
	}
	if p.opts.Tags && len(post.Tags) > 0 {
		stages = append(stages, stage{name: "tags", policy: Optional, run: p.enterTags})
	}
	if p.opts.Category && post.Category != "" {
		stages = append(stages, stage{name: "category", policy: Optional, run: p.selectCategory})
	}
	stages = append(stages, stage{name: "submit", policy: Optional, run: p.submit})
	if p.opts.Verify {
		stages = append(stages, stage{name: "verify", policy: Optional, run: p.verify})
	}
	return stages
}

// Publish runs every stage for post. Optional stages log their failure and
// the pipeline moves on; a required failure or cancellation ends the attempt
// with Outcome.Err set. Publish never returns an error of its own.
func (p *Pipeline) Publish(ctx context.Context, post content.PostContent) Outcome {
	out := Outcome{Title: post.Title}

	if err := post.Validate(); err != nil {
		out.Err = err
		p.logger.Errorf("Skipping post: %v", err)
		return out
	}

	p.logger.Infof("Publishing %q", post.Title)
	for _, s := range p.stages(post) {
		start := time.Now()
		err := s.run(ctx, post, &out)
		out.Stages = append(out.Stages, StageResult{
			Name:     s.name,
			Policy:   s.policy,
			Err:      err,
			Duration: time.Since(start),
		})

		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Err = ctxErr
			return out
		}
		if err == nil {
			continue
		}
		if s.policy == Required {
			out.Err = fmt.Errorf("%s: %w", s.name, err)
			p.logger.Errorf("Publish of %q aborted at %s: %v", post.Title, s.name, err)
			return out
		}
		if !errors.Is(err, ErrVerificationInconclusive) {
			p.logger.Warnf("Stage %s failed, continuing: %v", s.name, err)
		}
	}

	out.Completed = true
	p.logger.Infof("Publish of %q finished (submitted=%t, verification=%s)", post.Title, out.Submitted, out.Verification)
	return out
}

func (p *Pipeline) navigate(ctx context.Context, _ content.PostContent, _ *Outcome) error {
	if err := p.page.Goto(ctx, p.opts.PublishURL); err != nil {
		return err
	}
	if err := browser.Pause(ctx, p.opts.LoadSettle); err != nil {
		return err
	}
	if p.popups != nil {
		p.popups.Suppress(ctx, p.page)
	}
	return nil
}

// fileInput finds the upload input: the usual input, then the generic input
// after opening the upload area, then the generic input alone.
func (p *Pipeline) fileInput(ctx context.Context) (browser.Element, error) {
	c := p.opts.Catalog

	el, err := p.resolver.Resolve(ctx, p.page, c.FileInput)
	if err == nil {
		return el, nil
	}
	p.logger.Debugf("Upload input not found, trying the upload area")

	if clickErr := p.resolver.Click(ctx, p.page, c.UploadArea); clickErr == nil {
		if err := browser.Pause(ctx, p.opts.UploadAreaSettle); err != nil {
			return nil, err
		}
		if el, err := p.resolver.Resolve(ctx, p.page, c.GenericFileInput); err == nil {
			return el, nil
		}
	}

	return p.resolver.Resolve(ctx, p.page, c.GenericFileInput)
}

func (p *Pipeline) attachMedia(ctx context.Context, post content.PostContent, out *Outcome) error {
	input, err := p.fileInput(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		out.Upload.NoFileInput = true
		p.logger.Warnf("No file input found, continuing without images")
		return nil
	}

	if len(post.ImagePaths) > 0 {
		for _, path := range post.ImagePaths {
			err := input.SetFile(ctx, path)
			if err == nil {
				p.logger.Infof("Uploaded %s", path)
				err = browser.Pause(ctx, p.opts.UploadSettle)
			} else {
				p.logger.Warnf("Failed to upload %s: %v", path, err)
			}
			out.Upload.record(path, err)
		}
	} else if p.images != nil {
		for i := 0; i < p.opts.RandomImages; i++ {
			err := p.images.WithImage(ctx, i, func(path string) error {
				if err := input.SetFile(ctx, path); err != nil {
					return err
				}
				p.logger.Infof("Uploaded random image %d", i+1)
				return browser.Pause(ctx, p.opts.RandomUploadSettle)
			})
			if err != nil {
				p.logger.Warnf("Skipping random image %d: %v", i+1, err)
			}
			out.Upload.record(fmt.Sprintf("random #%d", i+1), err)
		}
	}

	if len(out.Upload.Results) > 0 && !out.Upload.AnySucceeded {
		return errors.New("no image was uploaded")
	}
	return nil
}

func (p *Pipeline) enterTitle(ctx context.Context, post content.PostContent, _ *Outcome) error {
	el, err := p.resolver.Resolve(ctx, p.page, p.opts.Catalog.Title)
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return err
	}
	title := FilterBMP(post.Title)
	if err := el.Fill(ctx, title); err != nil {
		return err
	}
	p.logger.Infof("Entered title %q", title)
	return nil
}

func (p *Pipeline) enterBody(ctx context.Context, post content.PostContent, _ *Outcome) error {
	el, err := p.resolver.Resolve(ctx, p.page, p.opts.Catalog.Body)
	if err != nil {
		return err
	}
	if err := el.ReplaceText(ctx, FilterBMP(post.Body)); err != nil {
		return err
	}
	p.logger.Infof("Entered body (%d characters)", len([]rune(post.Body)))
	return nil
}

func (p *Pipeline) enterTags(ctx context.Context, post content.PostContent, _ *Outcome) error {
	el, err := p.resolver.Resolve(ctx, p.page, p.opts.Catalog.TagInput)
	if err != nil {
		return err
	}
	for _, tag := range post.Tags {
		// The trailing space turns the typed text into a topic chip.
		if err := el.TypeSlowly(ctx, FilterBMP(tag)+" ", 0); err != nil {
			return fmt.Errorf("failed to add tag %q: %w", tag, err)
		}
		if err := browser.Pause(ctx, p.opts.TagSettle); err != nil {
			return err
		}
	}
	p.logger.Infof("Added %d tags", len(post.Tags))
	return nil
}

func (p *Pipeline) selectCategory(ctx context.Context, post content.PostContent, _ *Outcome) error {
	if err := p.resolver.Click(ctx, p.page, p.opts.Catalog.CategorySelector); err != nil {
		return err
	}
	if err := p.resolver.Click(ctx, p.page, CategoryOption(post.Category)); err != nil {
		return err
	}
	p.logger.Infof("Selected category %s", post.Category)
	return nil
}

func (p *Pipeline) submit(ctx context.Context, _ content.PostContent, out *Outcome) error {
	if err := p.resolver.Click(ctx, p.page, p.opts.Catalog.Submit); err != nil {
		return err
	}
	out.Submitted = true
	p.logger.Infof("Clicked publish")
	if err := browser.Pause(ctx, p.opts.SubmitSettle); err != nil {
		return err
	}
	if p.popups != nil {
		p.popups.Suppress(ctx, p.page)
	}
	return nil
}

// verify looks for a success or failure signal after submission. No signal
// is an unverified outcome, not a failure.
func (p *Pipeline) verify(ctx context.Context, _ content.PostContent, out *Outcome) error {
	if !out.Submitted {
		out.Verification = VerificationFailed
		return errors.New("post was not submitted")
	}
	if err := browser.Pause(ctx, p.opts.VerifyDelay); err != nil {
		return err
	}

	current := strings.ToLower(p.page.URL())
	for _, marker := range p.urlMarkers {
		if marker.Match(current) {
			out.Verification = VerificationVerified
			return nil
		}
	}

	out.Verification = VerificationInconclusive
	doc, err := p.page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationInconclusive, err)
	}
	text, err := pageText(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationInconclusive, err)
	}

	for _, marker := range p.opts.FailureText {
		if strings.Contains(text, marker) {
			out.Verification = VerificationFailed
			return fmt.Errorf("page reports failure: %s", marker)
		}
	}
	for _, marker := range p.opts.SuccessText {
		if strings.Contains(text, marker) {
			out.Verification = VerificationVerified
			return nil
		}
	}

	p.logger.Infof("No publish confirmation found at %s", p.page.URL())
	return ErrVerificationInconclusive
}
