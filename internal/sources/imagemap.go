package sources

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

// ExtractImageMap returns the circular <area> hotspots of a contour map page.
// The node name is the title text before the first colon. When a page lists a
// name twice the later hotspot wins. Output follows first appearance. A read
// error other than EOF is returned.
func ExtractImageMap(r io.Reader, source string) ([]model.GeometricPoint, error) {
	z := html.NewTokenizer(r)

	var points []model.GeometricPoint
	pos := make(map[string]int)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, eris.Wrap(err, "sources: read image map")
			}
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "area" || !hasAttr {
			continue
		}

		p, ok := areaPoint(z, source)
		if !ok {
			continue
		}
		if i, seen := pos[p.Name]; seen {
			points[i] = p
			continue
		}
		pos[p.Name] = len(points)
		points = append(points, p)
	}
	return points, nil
}

func areaPoint(z *html.Tokenizer, source string) (model.GeometricPoint, bool) {
	var shape, coords, title string
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "shape":
			shape = strings.ToLower(strings.TrimSpace(string(val)))
		case "coords":
			coords = string(val)
		case "title":
			title = string(val)
		}
		if !more {
			break
		}
	}
	if shape != "circle" {
		return model.GeometricPoint{}, false
	}

	name, _, found := strings.Cut(title, ":")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return model.GeometricPoint{}, false
	}

	parts := strings.Split(coords, ",")
	if len(parts) != 3 {
		return model.GeometricPoint{}, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return model.GeometricPoint{}, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.GeometricPoint{}, false
	}

	return model.GeometricPoint{
		Name:   name,
		Kind:   model.PointPixel,
		X:      float64(x),
		Y:      float64(y),
		Source: source,
	}, true
}

// ParseImageMaps reads the contour map pages in order. The first page to list a
// name wins. Missing pages are skipped; any other read error is returned.
func ParseImageMaps(ctx context.Context, paths []string) ([]model.GeometricPoint, error) {
	log := zap.L().With(zap.String("component", "sources"))

	var points []model.GeometricPoint
	seen := make(map[string]bool)
	for _, path := range paths {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "sources: parse image maps")
		}

		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("contour page not found, skipping", zap.String("path", path))
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sources: open contour page %s", path)
		}
		page, err := ExtractImageMap(f, filepath.Base(path))
		_ = f.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "sources: read contour page %s", path)
		}

		added := 0
		for _, p := range page {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			points = append(points, p)
			added++
		}
		log.Debug("parsed contour page",
			zap.String("path", path),
			zap.Int("hotspots", len(page)),
			zap.Int("new", added),
		)
	}
	return points, nil
}
