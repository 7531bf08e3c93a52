package gridnav

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// VectorRenderer draws the course, obstacles, trace and pose as vector graphics.
// One canvas unit is one course centimetre.
type VectorRenderer struct {
	Course     *CourseLayout
	Trace      orb.LineString
	Pose       Pose
	Padding    float64 // cm around the course
	Resolution canvas.Resolution
}

// NewVectorRenderer creates a renderer with default padding and resolution
func NewVectorRenderer(course *CourseLayout, trace orb.LineString, pose Pose) *VectorRenderer {
	return &VectorRenderer{
		Course:     course,
		Trace:      trace,
		Pose:       pose,
		Padding:    10,
		Resolution: canvas.DPMM(2),
	}
}

func (r *VectorRenderer) bounds() orb.Bound {
	b := orb.Bound{Min: orb.Point{r.Pose.X, r.Pose.Y}, Max: orb.Point{r.Pose.X, r.Pose.Y}}
	if r.Course != nil {
		b = b.Union(r.Course.Bound)
	}
	if len(r.Trace) > 0 {
		b = b.Union(r.Trace.Bound())
	}
	return b.Pad(r.Padding)
}

// RenderToSVG writes the scene as an SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	b := r.bounds()
	s := svg.New(w, b.Right()-b.Left(), b.Top()-b.Bottom(), nil)
	r.render(s, b)
	return s.Close()
}

// RenderToPNG writes the scene as a PNG
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	b := r.bounds()
	rast := rasterizer.New(b.Right()-b.Left(), b.Top()-b.Bottom(), r.Resolution, canvas.DefaultColorSpace)
	r.render(rast, b)
	return png.Encode(w, rast)
}

func style(fill, stroke color.RGBA, width float64) canvas.Style {
	s := canvas.DefaultStyle
	s.Fill = canvas.Paint{Color: fill}
	s.Stroke = canvas.Paint{Color: stroke}
	s.StrokeWidth = width
	return s
}

func (r *VectorRenderer) render(out canvasRenderer, b orb.Bound) {
	// canvas has its origin bottom-left like the course, so only a shift is needed
	at := func(p orb.Point) (float64, float64) {
		return p[0] - b.Left(), p[1] - b.Bottom()
	}
	rect := func(rb orb.Bound) *canvas.Path {
		x, y := at(rb.Min)
		return canvas.Rectangle(rb.Right()-rb.Left(), rb.Top()-rb.Bottom()).Translate(x, y)
	}

	out.RenderPath(canvas.Rectangle(b.Right()-b.Left(), b.Top()-b.Bottom()),
		style(canvas.White, canvas.Transparent, 0), canvas.Identity)

	if c := r.Course; c != nil {
		out.RenderPath(rect(c.Bound), style(color.RGBA{235, 235, 225, 255}, canvas.Black, 1.5), canvas.Identity)

		gridStyle := style(canvas.Transparent, canvas.Gray, 0.4)
		if c.TileSize > 0 {
			first := math.Floor(c.Bound.Left()/c.TileSize)*c.TileSize + c.TileSize
			for v := first; v < c.Bound.Right(); v += c.TileSize {
				p := &canvas.Path{}
				p.MoveTo(at(orb.Point{v, c.Bound.Bottom()}))
				p.LineTo(at(orb.Point{v, c.Bound.Top()}))
				out.RenderPath(p, gridStyle, canvas.Identity)
			}
			first = math.Floor(c.Bound.Bottom()/c.TileSize)*c.TileSize + c.TileSize
			for v := first; v < c.Bound.Top(); v += c.TileSize {
				p := &canvas.Path{}
				p.MoveTo(at(orb.Point{c.Bound.Left(), v}))
				p.LineTo(at(orb.Point{c.Bound.Right(), v}))
				out.RenderPath(p, gridStyle, canvas.Identity)
			}
		}

		for _, o := range c.Obstacles {
			fill := color.RGBA{150, 90, 40, 255}
			if o.Height < 12 {
				fill = color.RGBA{220, 170, 60, 255}
			}
			out.RenderPath(rect(o.Bound()), style(fill, canvas.Black, 0.5), canvas.Identity)
		}
	}

	if len(r.Trace) > 1 {
		p := &canvas.Path{}
		p.MoveTo(at(r.Trace[0]))
		for _, pt := range r.Trace[1:] {
			p.LineTo(at(pt))
		}
		out.RenderPath(p, style(canvas.Transparent, color.RGBA{30, 100, 220, 255}, 0.8), canvas.Identity)
	}

	cx, cy := at(orb.Point{r.Pose.X, r.Pose.Y})
	robotColor := color.RGBA{200, 30, 30, 255}
	out.RenderPath(canvas.Circle(8).Translate(cx, cy), style(robotColor, canvas.Black, 0.5), canvas.Identity)

	hx, hy := Project(cx, cy, r.Pose.Theta, 14)
	dir := &canvas.Path{}
	dir.MoveTo(cx, cy)
	dir.LineTo(hx, hy)
	out.RenderPath(dir, style(canvas.Transparent, robotColor, 1.5), canvas.Identity)
}
