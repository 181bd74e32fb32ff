package cluster

import (
	"math"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/pkg/utils"
)

type cellKey struct {
	x, y int
}

// grid is a uniform spatial hash over projected points with cells of the
// neighbourhood radius, so every neighbour of a point lies in the 3x3
// block around its cell.
type grid struct {
	radius2 float64
	size    float64
	xs, ys  []float64
	cells   map[cellKey][]int
}

func newGrid(points []domain.LatLon, radius float64) *grid {
	g := &grid{
		radius2: radius * radius,
		size:    radius,
		xs:      make([]float64, len(points)),
		ys:      make([]float64, len(points)),
		cells:   make(map[cellKey][]int),
	}
	if len(points) == 0 {
		return g
	}

	proj := utils.NewProjector(center(points))
	for i, p := range points {
		x, y := proj.Project(p.Lat, p.Lon)
		g.xs[i], g.ys[i] = x, y
		k := g.cell(x, y)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *grid) cell(x, y float64) cellKey {
	return cellKey{x: int(math.Floor(x / g.size)), y: int(math.Floor(y / g.size))}
}

// neighbors appends every point within the radius of point i, including i
func (g *grid) neighbors(i int, dst []int) []int {
	x, y := g.xs[i], g.ys[i]
	c := g.cell(x, y)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for _, j := range g.cells[cellKey{x: c.x + dx, y: c.y + dy}] {
				ddx, ddy := g.xs[j]-x, g.ys[j]-y
				if ddx*ddx+ddy*ddy <= g.radius2 {
					dst = append(dst, j)
				}
			}
		}
	}
	return dst
}

// center returns the midpoint of the points' bounding box
func center(points []domain.LatLon) (lat, lon float64) {
	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLon = math.Min(minLon, p.Lon)
		maxLon = math.Max(maxLon, p.Lon)
	}
	return (minLat + maxLat) / 2, (minLon + maxLon) / 2
}
