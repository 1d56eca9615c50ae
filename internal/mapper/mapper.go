// Package mapper converts geographic points to H3 cell ids.
package mapper

type Interface interface {
	CellForPoint(lat, lng float64) (string, error)
	Res() int
}
