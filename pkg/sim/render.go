package sim

import (
	"math"

	"github.com/gdamore/tcell/v2"
)

// Terminal cells are about twice as tall as they are wide.
const aspect = 2

// Point is a terminal cell.
type Point struct{ X, Y int }

// Dial is one clock face of the grid and the axes drawn on it.
type Dial struct {
	Center Point
	Axes   []int
}

// Layout arranges axisCount hands on a three by three grid of dials. Hands
// are paired onto the outer dials in reading order; the last two axes
// share the centre dial.
func Layout(axisCount, radius int) []Dial {
	cellW := 2*radius*aspect + 4
	cellH := 2*radius + 2
	origin := Point{X: radius*aspect + 2, Y: radius + 2}

	outer := []int{0, 1, 2, 3, 5, 6, 7, 8}
	dials := make([]Dial, 0, 9)
	at := func(cell int) Point {
		return Point{X: origin.X + (cell%3)*cellW, Y: origin.Y + (cell/3)*cellH}
	}

	frame := axisCount - 2
	for k := 0; 2*k < frame; k++ {
		d := Dial{Center: at(outer[k%len(outer)]), Axes: []int{2 * k}}
		if 2*k+1 < frame {
			d.Axes = append(d.Axes, 2*k+1)
		}
		dials = append(dials, d)
	}
	if axisCount >= 2 {
		dials = append(dials, Dial{Center: at(4), Axes: []int{axisCount - 2, axisCount - 1}})
	}
	return dials
}

// HandCells returns the cells covered by a hand of length radius at
// position out of spr steps, clockwise from 12 o'clock.
func HandCells(center Point, radius, position, spr int) []Point {
	theta := 2 * math.Pi * float64(position) / float64(spr)
	cells := make([]Point, 0, radius)
	for r := 1; r <= radius; r++ {
		cells = append(cells, Point{
			X: center.X + int(math.Round(aspect*float64(r)*math.Sin(theta))),
			Y: center.Y - int(math.Round(float64(r)*math.Cos(theta))),
		})
	}
	return cells
}

// handRune picks a line glyph close to the hand's angle.
func handRune(position, spr int) rune {
	eighth := (position*16/spr + 1) / 2 % 8
	return []rune{'|', '/', '-', '\\', '|', '/', '-', '\\'}[eighth]
}

// Renderer draws the grid of dials on a tcell screen.
type Renderer struct {
	screen tcell.Screen
	radius int
	spr    int
	dials  []Dial

	rim    tcell.Style
	frame  tcell.Style
	hour   tcell.Style
	minute tcell.Style
	text   tcell.Style
}

// NewRenderer draws axisCount hands with spr steps per revolution on
// screen.
func NewRenderer(screen tcell.Screen, axisCount, spr, radius int) *Renderer {
	return &Renderer{
		screen: screen,
		radius: radius,
		spr:    spr,
		dials:  Layout(axisCount, radius),
		rim:    tcell.StyleDefault.Foreground(tcell.ColorGray),
		frame:  tcell.StyleDefault.Foreground(tcell.ColorBlue),
		hour:   tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true),
		minute: tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true),
		text:   tcell.StyleDefault.Foreground(tcell.ColorWhite),
	}
}

// Draw renders positions and a status line, then shows the screen.
func (r *Renderer) Draw(positions []int, status string) {
	r.screen.Clear()
	r.drawText(0, 0, status)

	centre := len(positions) - 2
	for _, d := range r.dials {
		r.drawRim(d.Center)
		for _, i := range d.Axes {
			if i >= len(positions) {
				continue
			}
			style, length := r.frame, r.radius
			switch i {
			case centre:
				style, length = r.hour, r.radius*2/3
			case centre + 1:
				style = r.minute
			}
			glyph := handRune(positions[i], r.spr)
			for _, c := range HandCells(d.Center, length, positions[i], r.spr) {
				r.screen.SetContent(c.X, c.Y, glyph, nil, style)
			}
		}
		r.screen.SetContent(d.Center.X, d.Center.Y, 'o', nil, r.rim)
	}
	r.screen.Show()
}

func (r *Renderer) drawRim(center Point) {
	for k := 0; k < 24; k++ {
		c := HandCells(center, r.radius+1, k, 24)
		p := c[len(c)-1]
		r.screen.SetContent(p.X, p.Y, '.', nil, r.rim)
	}
}

func (r *Renderer) drawText(x, y int, s string) {
	for _, ch := range s {
		r.screen.SetContent(x, y, ch, nil, r.text)
		x++
	}
}
