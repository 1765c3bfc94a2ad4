package kdtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/matryer/is"
)

func TestTree_Nearest(t *testing.T) {
	is := is.New(t)

	points := []Point{
		{Lat: 0, Lon: 0, Index: 0},
		{Lat: 1, Lon: 1, Index: 1},
		{Lat: 2, Lon: 1, Index: 2},
		{Lat: 3, Lon: 3, Index: 3},
	}
	tree := Build(points)
	is.Equal(tree.Size(), 4)

	nearest, ok := tree.Nearest(1.9, 1.1)
	is.True(ok)
	is.Equal(nearest.Index, 2)

	nearest, ok = tree.Nearest(-0.5, -0.5)
	is.True(ok)
	is.Equal(nearest.Index, 0)
}

func TestTree_NearestK(t *testing.T) {
	is := is.New(t)

	points := []Point{
		{Lat: 0, Lon: 0, Index: 0},
		{Lat: 0, Lon: 1, Index: 1},
		{Lat: 0, Lon: 2, Index: 2},
		{Lat: 0, Lon: 3, Index: 3},
	}
	tree := Build(points)

	neighbors := tree.NearestK(0, 1.4, 2)
	is.Equal(len(neighbors), 2)
	is.Equal(neighbors[0].Point.Index, 1)
	is.Equal(neighbors[1].Point.Index, 2)
}

func TestTree_NearestMatchesLinearScan(t *testing.T) {
	is := is.New(t)

	rng := rand.New(rand.NewSource(42))
	points := make([]Point, 500)
	for i := range points {
		points[i] = Point{
			Lat:   rng.Float64()*0.4 - 6.4,
			Lon:   rng.Float64()*0.4 + 106.6,
			Index: i,
		}
	}
	tree := Build(points)

	for q := 0; q < 50; q++ {
		lat := rng.Float64()*0.4 - 6.4
		lon := rng.Float64()*0.4 + 106.6

		byScan := make([]Point, len(points))
		copy(byScan, points)
		sort.Slice(byScan, func(i, j int) bool {
			di := (byScan[i].Lat-lat)*(byScan[i].Lat-lat) + (byScan[i].Lon-lon)*(byScan[i].Lon-lon)
			dj := (byScan[j].Lat-lat)*(byScan[j].Lat-lat) + (byScan[j].Lon-lon)*(byScan[j].Lon-lon)
			return di < dj
		})

		nearest, ok := tree.Nearest(lat, lon)
		is.True(ok)
		is.Equal(nearest.Index, byScan[0].Index)
	}
}

func TestTree_EmptyAndDegenerate(t *testing.T) {
	is := is.New(t)

	empty := Build(nil)
	_, ok := empty.Nearest(0, 0)
	is.True(!ok)

	single := Build([]Point{{Lat: 5, Lon: 5, Index: 9}})
	nearest, ok := single.Nearest(0, 0)
	is.True(ok)
	is.Equal(nearest.Index, 9)
	is.Equal(len(single.NearestK(0, 0, 3)), 1)
}
