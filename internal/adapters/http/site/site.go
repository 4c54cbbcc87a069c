// Package site renders the local dashboard page.
package site

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/geometry"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/internal/domain/view"
)

// Error constants
var (
	ErrParse  = errors.New("site template parse failed")
	ErrRender = errors.New("site render failed")
)

//go:embed templates/*.html
var templateFS embed.FS

// Page is everything the dashboard template shows.
type Page struct {
	Title          string
	Text           string
	Alert          string
	SignInRequired bool
	Dashboard      *view.Dashboard
	Account        *view.Account
	Task           model.UploadTask
	TaskSize       string
}

// Input is the client state a page is composed from.
type Input struct {
	State          fetcher.State
	Profile        *model.Profile
	Task           model.UploadTask
	Alert          string
	SignInRequired bool
}

// Renderer composes and renders pages.
type Renderer struct {
	tpl         *template.Template
	gaugeRadius float64
	trendWindow int
}

// Option applies a configuration option to the Renderer.
type Option func(*Renderer)

// WithGaugeRadius sets the gauge circle radius.
func WithGaugeRadius(r float64) Option {
	return func(rd *Renderer) {
		if r > 0 {
			rd.gaugeRadius = r
		}
	}
}

// WithTrendWindow sets how many recent snapshots the trend shows.
func WithTrendWindow(n int) Option {
	return func(rd *Renderer) {
		if n >= 2 {
			rd.trendWindow = n
		}
	}
}

// New parses the embedded templates.
func New(opts ...Option) (*Renderer, error) {
	tpl, err := template.New("site").Funcs(template.FuncMap{
		"percent": percent,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	r := &Renderer{
		tpl:         tpl,
		gaugeRadius: geometry.DefaultGaugeRadius,
		trendWindow: geometry.DefaultTrendWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Compose builds the page for in.
func (r *Renderer) Compose(in Input) Page {
	p := Page{
		Alert:          in.Alert,
		SignInRequired: in.SignInRequired,
		Task:           in.Task,
		TaskSize:       view.Size(in.Task.Size),
		Dashboard:      view.Build(in.State.ViewModel, in.State.History, r.gaugeRadius, r.trendWindow),
	}
	// A failed refresh keeps the last good dashboard on screen; the message
	// is raised as an alert instead.
	if in.State.Status == fetcher.Failed && p.Dashboard != nil && p.Alert == "" {
		p.Alert = in.State.Message
	}
	if in.State.Status == fetcher.Empty {
		p.Dashboard = nil
	}
	p.Title, p.Text = view.Headline(in.State)
	if in.Profile != nil {
		acct := view.AccountOf(*in.Profile)
		p.Account = &acct
	}
	return p
}

// Render writes p as HTML.
func (r *Renderer) Render(w io.Writer, p Page) error {
	if err := r.tpl.ExecuteTemplate(w, "dashboard", p); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}

// percent maps a [0,1] fraction onto a 0..100 SVG track.
func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64)
}
