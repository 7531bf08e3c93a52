package gridnav

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterRenderer draws a course snapshot into an RGBA image at a fixed scale
type RasterRenderer struct {
	Course      *CourseLayout
	Trace       orb.LineString
	Pose        Pose
	PixelsPerCm float64
	Padding     int
	FloorColor  color.RGBA
	LineColor   color.RGBA
	WallColor   color.RGBA
	TraceColor  color.RGBA
	RobotColor  color.RGBA
	Label       string
}

// NewRasterRenderer creates a renderer with the default palette
func NewRasterRenderer(course *CourseLayout, trace orb.LineString, pose Pose) *RasterRenderer {
	return &RasterRenderer{
		Course:      course,
		Trace:       trace,
		Pose:        pose,
		PixelsPerCm: 2,
		Padding:     20,
		FloorColor:  color.RGBA{235, 235, 225, 255},
		LineColor:   color.RGBA{60, 60, 60, 255},
		WallColor:   color.RGBA{0, 0, 0, 255},
		TraceColor:  color.RGBA{30, 100, 220, 255},
		RobotColor:  color.RGBA{200, 30, 30, 255},
	}
}

func (r *RasterRenderer) bounds() orb.Bound {
	b := orb.Bound{Min: orb.Point{r.Pose.X, r.Pose.Y}, Max: orb.Point{r.Pose.X, r.Pose.Y}}
	if r.Course != nil {
		b = b.Union(r.Course.Bound)
	}
	if len(r.Trace) > 0 {
		b = b.Union(r.Trace.Bound())
	}
	return b
}

// Render draws the snapshot. Image Y grows downwards, course Y upwards.
func (r *RasterRenderer) Render() *image.RGBA {
	b := r.bounds()
	scale := r.PixelsPerCm
	if scale <= 0 {
		scale = 1
	}
	width := int(math.Ceil((b.Right()-b.Left())*scale)) + 2*r.Padding
	height := int(math.Ceil((b.Top()-b.Bottom())*scale)) + 2*r.Padding

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	toPixel := func(p orb.Point) (int, int) {
		x := int(math.Round((p[0]-b.Left())*scale)) + r.Padding
		y := height - r.Padding - int(math.Round((p[1]-b.Bottom())*scale))
		return x, y
	}
	fillBound := func(rb orb.Bound, c color.RGBA) {
		x0, y1 := toPixel(rb.Min)
		x1, y0 := toPixel(rb.Max)
		draw.Draw(img, image.Rect(x0, y0, x1, y1), &image.Uniform{c}, image.Point{}, draw.Src)
	}

	if c := r.Course; c != nil {
		fillBound(c.Bound, r.FloorColor)
		if c.TileSize > 0 {
			first := math.Floor(c.Bound.Left()/c.TileSize)*c.TileSize + c.TileSize
			for v := first; v < c.Bound.Right(); v += c.TileSize {
				drawLine(img, toPixelF(toPixel, v, c.Bound.Bottom()), toPixelF(toPixel, v, c.Bound.Top()), r.LineColor)
			}
			first = math.Floor(c.Bound.Bottom()/c.TileSize)*c.TileSize + c.TileSize
			for v := first; v < c.Bound.Top(); v += c.TileSize {
				drawLine(img, toPixelF(toPixel, c.Bound.Left(), v), toPixelF(toPixel, c.Bound.Right(), v), r.LineColor)
			}
		}
		ring := c.Bound.ToRing()
		for i := 1; i < len(ring); i++ {
			a, bb := ring[i-1], ring[i]
			drawLine(img, toPixelF(toPixel, a[0], a[1]), toPixelF(toPixel, bb[0], bb[1]), r.WallColor)
		}
		for _, o := range c.Obstacles {
			fillBound(o.Bound(), color.RGBA{150, 90, 40, 255})
		}
	}

	for i := 1; i < len(r.Trace); i++ {
		a, bb := r.Trace[i-1], r.Trace[i]
		drawLine(img, toPixelF(toPixel, a[0], a[1]), toPixelF(toPixel, bb[0], bb[1]), r.TraceColor)
	}

	cx, cy := toPixel(orb.Point{r.Pose.X, r.Pose.Y})
	radius := int(math.Max(3, 8*scale))
	drawCircle(img, cx, cy, radius, r.RobotColor)
	hx, hy := Project(r.Pose.X, r.Pose.Y, r.Pose.Theta, 14)
	drawLine(img, image.Pt(cx, cy), toPixelF(toPixel, hx, hy), r.WallColor)

	label := r.Label
	if label == "" {
		label = r.Pose.String()
	}
	drawText(img, 6, 14, label, r.WallColor)
	return img
}

// SavePNG renders and writes the snapshot to path
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return png.Encode(f, r.Render())
}

func toPixelF(toPixel func(orb.Point) (int, int), x, y float64) image.Point {
	px, py := toPixel(orb.Point{x, y})
	return image.Pt(px, py)
}

// drawLine draws a one pixel line between two image points
func drawLine(img *image.RGBA, a, b image.Point, c color.RGBA) {
	steps := int(math.Max(math.Abs(float64(b.X-a.X)), math.Abs(float64(b.Y-a.Y))))
	if steps == 0 {
		img.Set(a.X, a.Y, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := a.X + int(math.Round(t*float64(b.X-a.X)))
		y := a.Y + int(math.Round(t*float64(b.Y-a.Y)))
		if image.Pt(x, y).In(img.Bounds()) {
			img.Set(x, y, c)
		}
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
