package plot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var ErrNotDrawable = errors.New("at least two points are required to draw a trajectory")

type Options struct {
	// Interactive enables inline zoom and pan. Off by default.
	Interactive bool
	WidthPx     int
	HeightPx    int
	Title       string
}

// Renderer draws a trajectory as an inline SVG chart wrapped in a standalone
// HTML document with no external references.
type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	if opts.WidthPx <= 0 {
		opts.WidthPx = 960
	}
	if opts.HeightPx <= 0 {
		opts.HeightPx = 560
	}
	if opts.Title == "" {
		opts.Title = "Trajectory"
	}
	return &Renderer{opts: opts}
}

var _ port.PlotRenderer = (*Renderer)(nil)

func (r *Renderer) Render(points []entity.TrajectoryPoint) (*entity.PlotDocument, error) {
	if len(points) < 2 {
		return nil, ErrNotDrawable
	}

	svg, err := r.renderSVG(points)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("encode points: %w", err)
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, pageData{
		Title:       r.opts.Title,
		SVG:         template.HTML(svg),
		Points:      template.JS(data),
		Interactive: r.opts.Interactive,
	})
	if err != nil {
		return nil, fmt.Errorf("render plot page: %w", err)
	}

	return &entity.PlotDocument{
		ContentType: entity.PlotContentType,
		Body:        buf.Bytes(),
	}, nil
}

func (r *Renderer) renderSVG(points []entity.TrajectoryPoint) ([]byte, error) {
	p := gplot.New()
	p.Title.Text = r.opts.Title
	p.X.Label.Text = "X (pixels)"
	p.Y.Label.Text = "Y (pixels)"
	// Image coordinates grow downwards; invert so up on screen is up in the video.
	p.Y.Scale = gplot.InvertedScale{Normalizer: gplot.LinearScale{}}
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = pt.X
		xys[i].Y = pt.Y
	}

	line, markers, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, fmt.Errorf("build trajectory line: %w", err)
	}
	markers.Shape = draw.CircleGlyph{}
	markers.Radius = vg.Points(3)
	p.Add(line, markers)

	wt, err := p.WriterTo(vg.Points(float64(r.opts.WidthPx)*0.75), vg.Points(float64(r.opts.HeightPx)*0.75), "svg")
	if err != nil {
		return nil, fmt.Errorf("create svg writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write svg: %w", err)
	}

	// Drop the XML prolog so the element can be inlined in HTML.
	out := buf.Bytes()
	if i := bytes.Index(out, []byte("<svg")); i > 0 {
		out = out[i:]
	}
	return out, nil
}

type pageData struct {
	Title       string
	SVG         template.HTML
	Points      template.JS
	Interactive bool
}

var pageTemplate = template.Must(template.New("plot").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; font-family: system-ui, sans-serif; background: #fff; }
.trajectory { padding: 20px; }
.trajectory svg { max-width: 100%; height: auto; display: block; }
{{- if .Interactive}}
.trajectory svg { cursor: grab; }
{{- end}}
</style>
</head>
<body>
<div class="trajectory" id="trajectory">
{{.SVG}}
</div>
<script type="application/json" id="trajectory-data">{{.Points}}</script>
{{- if .Interactive}}
<script>
(function () {
  var svg = document.querySelector("#trajectory svg");
  if (!svg) { return; }
  var vb = svg.viewBox.baseVal;
  if (!vb || vb.width === 0) {
    var w = svg.width.baseVal.value, h = svg.height.baseVal.value;
    svg.setAttribute("viewBox", "0 0 " + w + " " + h);
    vb = svg.viewBox.baseVal;
  }
  var home = [vb.x, vb.y, vb.width, vb.height];
  svg.addEventListener("wheel", function (e) {
    e.preventDefault();
    var k = e.deltaY < 0 ? 0.9 : 1.1;
    var r = svg.getBoundingClientRect();
    var mx = vb.x + (e.clientX - r.left) / r.width * vb.width;
    var my = vb.y + (e.clientY - r.top) / r.height * vb.height;
    vb.x = mx - (mx - vb.x) * k; vb.y = my - (my - vb.y) * k;
    vb.width *= k; vb.height *= k;
  });
  var drag = null;
  svg.addEventListener("mousedown", function (e) { drag = [e.clientX, e.clientY]; });
  window.addEventListener("mouseup", function () { drag = null; });
  svg.addEventListener("mousemove", function (e) {
    if (!drag) { return; }
    var r = svg.getBoundingClientRect();
    vb.x -= (e.clientX - drag[0]) / r.width * vb.width;
    vb.y -= (e.clientY - drag[1]) / r.height * vb.height;
    drag = [e.clientX, e.clientY];
  });
  svg.addEventListener("dblclick", function () {
    vb.x = home[0]; vb.y = home[1]; vb.width = home[2]; vb.height = home[3];
  });
})();
</script>
{{- end}}
</body>
</html>
`))
