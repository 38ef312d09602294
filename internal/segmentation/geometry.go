package segmentation

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"
)

type Point struct {
	X, Y float64
}

// FilterPersonBoxes keeps boxes labelled "person" whose score is strictly
// greater than threshold, in their original order.
func FilterPersonBoxes(boxes []Box, threshold float64) []Box {
	var accepted []Box
	for _, box := range boxes {
		label := strings.ToLower(strings.TrimRight(box.Label, "\n"))
		if label == "person" && box.Score > threshold {
			accepted = append(accepted, box)
		}
	}
	return accepted
}

// Vertices returns the polygon as fractional points. The service sends a
// single flat [x0, y0, x1, y1, ...] list, but a list of [x, y] pairs is
// accepted too.
func (b Box) Vertices() []Point {
	if len(b.Polygon) == 1 && len(b.Polygon[0]) > 2 {
		flat := b.Polygon[0]
		points := make([]Point, 0, len(flat)/2)
		for i := 0; i+1 < len(flat); i += 2 {
			points = append(points, Point{X: flat[i], Y: flat[i+1]})
		}
		return points
	}

	points := make([]Point, 0, len(b.Polygon))
	for _, pair := range b.Polygon {
		if len(pair) >= 2 {
			points = append(points, Point{X: pair[0], Y: pair[1]})
		}
	}
	return points
}

func PolygonToPixels(vertices []Point, width, height int) []Point {
	pixels := make([]Point, len(vertices))
	for i, v := range vertices {
		pixels[i] = Point{X: v.X * float64(width), Y: v.Y * float64(height)}
	}
	return pixels
}

// PolygonBounds is the smallest integer rectangle containing the polygon,
// clamped to a width x height image.
func PolygonBounds(points []Point, width, height int) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	rect := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	return rect.Intersect(image.Rect(0, 0, width, height))
}

// ExtractSegment copies the part of src inside the polygon onto a transparent
// canvas the size of the polygon's bounding rectangle.
func ExtractSegment(src image.Image, points []Point) (*image.NRGBA, error) {
	srcBounds := src.Bounds()
	bounds := PolygonBounds(points, srcBounds.Dx(), srcBounds.Dy())
	if bounds.Empty() || len(points) < 3 {
		return nil, fmt.Errorf("polygon with %d points covers no pixels", len(points))
	}

	mask := image.NewAlpha(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	raster := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	raster.DrawOp = draw.Src

	offsetX, offsetY := float32(bounds.Min.X), float32(bounds.Min.Y)
	raster.MoveTo(float32(points[0].X)-offsetX, float32(points[0].Y)-offsetY)
	for _, p := range points[1:] {
		raster.LineTo(float32(p.X)-offsetX, float32(p.Y)-offsetY)
	}
	raster.ClosePath()
	raster.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	cropped := imaging.Crop(src, bounds.Add(srcBounds.Min))

	segment := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.DrawMask(segment, segment.Bounds(), cropped, image.Point{}, mask, image.Point{}, draw.Over)

	return segment, nil
}

// SegmentFileName inserts _n before the extension of name.
func SegmentFileName(name string, n int) string {
	ext := path.Ext(name)
	if ext == "" {
		return fmt.Sprintf("%s_%d", name, n)
	}
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}
