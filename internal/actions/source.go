package actions

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/graphspace/internal/graphfile"
	"github.com/rendis/graphspace/pkg/schema"
)

const (
	defaultMaxSourceSize = 10 * 1024 * 1024 // 10MB
	defaultFetchTimeout  = 30 * time.Second
)

// SourceConfig bounds where graph.open and graph.save may read and write.
type SourceConfig struct {
	Roots        []string      // directories files may be read from or written to; empty disables file access
	AllowHTTP    bool          // permit http(s) URLs as sources
	MaxSize      int64         // maximum bytes read from any source
	FetchTimeout time.Duration // per-request timeout for URL sources
	Client       *http.Client
}

func (c SourceConfig) withDefaults() SourceConfig {
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSourceSize
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	return c
}

// GraphLoader replaces the loaded graph. Satisfied by *graph.Store.
type GraphLoader interface {
	Load(ctx context.Context, name, text string, format graphfile.Format) error
	Export(format string) ([]byte, error)
}

// resolvePath makes p absolute and checks it lies under one of the roots.
func (c SourceConfig) resolvePath(p string) (string, error) {
	if len(c.Roots) == 0 {
		return "", schema.NewError(schema.ErrCodeValidation, "file access is disabled")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid path %q", p).WithCause(err)
	}
	for _, root := range c.Roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "path %q is outside the allowed directories", p)
}

// read returns the content of a file path or URL and the name it is known by.
func (c SourceConfig) read(ctx context.Context, source string) (name string, data []byte, err error) {
	if u, perr := url.Parse(source); perr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		data, err = c.fetch(ctx, u)
		return path.Base(u.Path), data, err
	}

	p, err := c.resolvePath(source)
	if err != nil {
		return "", nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, schema.NewErrorf(schema.ErrCodeNotFound, "file %q not found", source)
		}
		return "", nil, schema.NewErrorf(schema.ErrCodeExecution, "open %q", source).WithCause(err)
	}
	defer f.Close()

	data, err = readLimited(f, c.MaxSize)
	return filepath.Base(p), data, err
}

func (c SourceConfig) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if !c.AllowHTTP {
		return nil, schema.NewError(schema.ErrCodeValidation, "loading graphs from URLs is disabled")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid url %q", u.String()).WithCause(err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "fetch %s", u.Redacted()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "fetch %s: status %d", u.Redacted(), resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	}
	return readLimited(resp.Body, c.MaxSize)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "read graph source").WithCause(err)
	}
	if int64(len(data)) > limit {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "graph source exceeds %d bytes", limit)
	}
	return data, nil
}

// openGraph loads a graph file or URL into the store.
func openGraph(cfg SourceConfig, loader GraphLoader) RunFunc {
	return func(ctx context.Context, params map[string]any) (schema.Outcome, error) {
		source := strings.TrimSpace(stringParam(params, "source"))
		if source == "" {
			return schema.Outcome{}, schema.NewError(schema.ErrCodeValidation, "source is required")
		}
		name, data, err := cfg.read(ctx, source)
		if err != nil {
			return schema.Outcome{}, err
		}

		var format graphfile.Format
		if f := stringParam(params, "format"); f != "" {
			format, err = graphfile.ParseFormat(f)
		} else {
			format, err = graphfile.FormatOf(name)
		}
		if err != nil {
			return schema.Outcome{}, err
		}

		graphName := strings.TrimSuffix(name, filepath.Ext(name))
		if err := loader.Load(ctx, graphName, string(data), format); err != nil {
			return schema.Outcome{}, err
		}
		return schema.DataOutcome(map[string]any{
			"source": source,
			"name":   graphName,
			"format": string(format),
			"bytes":  len(data),
		}), nil
	}
}

// saveGraph writes the full graph to a file under one of the roots.
func saveGraph(cfg SourceConfig, loader GraphLoader) RunFunc {
	return func(_ context.Context, params map[string]any) (schema.Outcome, error) {
		target := strings.TrimSpace(stringParam(params, "path"))
		if target == "" {
			return schema.Outcome{}, schema.NewError(schema.ErrCodeValidation, "path is required")
		}
		p, err := cfg.resolvePath(target)
		if err != nil {
			return schema.Outcome{}, err
		}
		format, err := graphfile.FormatOf(p)
		if err != nil {
			return schema.Outcome{}, err
		}
		data, err := loader.Export(string(format))
		if err != nil {
			return schema.Outcome{}, err
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return schema.Outcome{}, schema.NewErrorf(schema.ErrCodeExecution, "write %q", target).WithCause(err)
		}
		return schema.DataOutcome(map[string]any{
			"path":   p,
			"format": string(format),
			"bytes":  len(data),
		}), nil
	}
}
