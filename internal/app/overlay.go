package app

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/fingergame/internal/game"
)

// handConnections are the landmark pairs joined when drawing a hand.
var handConnections = [][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 4},
	{0, 5}, {5, 6}, {6, 7}, {7, 8},
	{5, 9}, {9, 10}, {10, 11}, {11, 12},
	{9, 13}, {13, 14}, {14, 15}, {15, 16},
	{13, 17}, {0, 17}, {17, 18}, {18, 19}, {19, 20},
}

var (
	colorBlack = color.RGBA{0, 0, 0, 0}
	colorWhite = color.RGBA{255, 255, 255, 0}
	colorGreen = color.RGBA{0, 200, 0, 0}
	colorRed   = color.RGBA{220, 0, 0, 0}
	colorBlue  = color.RGBA{50, 50, 255, 0}
)

// Annotate draws the detected hands and the game prompt onto frame.
func Annotate(frame *gocv.Mat, v View) {
	if frame == nil || frame.Empty() {
		return
	}
	w, h := frame.Cols(), frame.Rows()

	for _, hand := range v.Hands {
		px := func(i int) image.Point {
			p := hand.Points[i]
			return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
		}
		for _, c := range handConnections {
			gocv.Line(frame, px(c[0]), px(c[1]), colorWhite, 2)
		}
		for i := range hand.Points {
			gocv.Circle(frame, px(i), 4, colorRed, -1)
		}
	}

	switch v.State {
	case game.StateAsking:
		outlinedText(frame, fmt.Sprintf("Show: %d", v.Target), image.Pt(w/2, h/3), 2.4, colorBlack)
		small := fmt.Sprintf("You show: %s", v.Shown)
		size := gocv.GetTextSize(small, gocv.FontHersheySimplex, 0.8, 2)
		gocv.PutText(frame, small, image.Pt(w-size.X-20, 40), gocv.FontHersheySimplex, 0.8, colorBlue, 2)
	case game.StateCorrect:
		outlinedText(frame, "Correct!", image.Pt(w/2, h/2), 2.4, colorGreen)
		outlinedText(frame, "Press space for the next number", image.Pt(w/2, h/2+60), 0.7, colorBlack)
	case game.StateTimeout:
		outlinedText(frame, "Time's up! Try again.", image.Pt(w/2, 80), 1.2, colorRed)
	}
}

// outlinedText centres text on at, drawn over a white outline.
func outlinedText(frame *gocv.Mat, text string, at image.Point, scale float64, c color.RGBA) {
	thickness := int(scale*2) + 1
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, thickness)
	org := image.Pt(at.X-size.X/2, at.Y+size.Y/2)

	gocv.PutText(frame, text, org, gocv.FontHersheySimplex, scale, colorWhite, thickness+4)
	gocv.PutText(frame, text, org, gocv.FontHersheySimplex, scale, c, thickness)
}
