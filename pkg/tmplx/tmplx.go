// Package tmplx renders command output through user supplied text/template
// formats, in the style of `docker ps --format`.
package tmplx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

var (
	ErrRenderTemplate = errors.New("tmplx: render error")
	ErrParseTemplate  = errors.New("tmplx: parse error")
)

type Template struct {
	tmpl *template.Template
}

type Options struct {
	sample any
	check  bool
	funcs  template.FuncMap
}

type Option func(*Options) error

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"json":    jsonFunc,
		"quote":   quoteFunc,
		"default": defaultFunc,
		"upper":   func(v any) string { return strings.ToUpper(cast.ToString(v)) },
		"lower":   func(v any) string { return strings.ToLower(cast.ToString(v)) },
		"trunc":   truncFunc,
		"pad":     padFunc,
		"jsonGet": jsonGet,
	}
}

func WithTemplateFunc(name string, fn any) Option {
	return func(o *Options) error {
		if fn == nil {
			return fmt.Errorf("template func %s is nil", name)
		}
		o.funcs[name] = fn
		return nil
	}
}

// WithSample executes the template once against sample while parsing, so a
// format naming an unknown field fails before any data is fetched.
func WithSample(sample any) Option {
	return func(o *Options) error {
		o.sample = sample
		o.check = true
		return nil
	}
}

func MustParse(name, text string, opts ...Option) *Template {
	t, err := Parse(name, text, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse compiles text. A format without a trailing newline gets one, since
// formats are applied per line of output.
func Parse(name, text string, args ...Option) (*Template, error) {
	opts := &Options{funcs: defaultFuncs()}
	for _, arg := range args {
		if err := arg(opts); err != nil {
			return nil, err
		}
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(opts.funcs).
		Parse(unescape(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseTemplate, err)
	}

	t := &Template{tmpl: tmpl}
	if opts.check {
		if err := t.tmpl.Execute(io.Discard, opts.sample); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseTemplate, err)
		}
	}
	return t, nil
}

func (t *Template) Render(data any) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := t.Execute(buf, data); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *Template) Execute(w io.Writer, data any) error {
	if err := t.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("%w: %w", ErrRenderTemplate, err)
	}
	return nil
}

// unescape lets shells pass tabs and newlines as \t and \n.
func unescape(s string) string {
	return strings.NewReplacer(`\t`, "\t", `\n`, "\n").Replace(s)
}

func quoteFunc(v any) (string, error) {
	return jsonFunc(cast.ToString(v))
}

func defaultFunc(def any, value any) any {
	if value != nil && cast.ToString(value) != "" {
		return value
	}
	return def
}

func jsonFunc(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func truncFunc(n any, v any) string {
	s := []rune(cast.ToString(v))
	limit := cast.ToInt(n)
	if limit < 0 || len(s) <= limit {
		return string(s)
	}
	if limit <= 1 {
		return string(s[:limit])
	}
	return string(s[:limit-1]) + "…"
}

func padFunc(n any, v any) string {
	s := cast.ToString(v)
	width := cast.ToInt(n)
	if missing := width - len([]rune(s)); missing > 0 {
		return s + strings.Repeat(" ", missing)
	}
	return s
}

// jsonGet reads path from value, which is either a JSON string or anything
// json.Marshal accepts.
func jsonGet(path string, value any) (string, error) {
	raw, ok := value.(string)
	if !ok {
		data, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		raw = string(data)
	}
	return gjson.Get(raw, path).String(), nil
}
