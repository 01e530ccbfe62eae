// Package boardimg draws a Hand and Brain position as a PNG: the board, the
// last move, and the pieces of the type Brain selected for the side to move.
package boardimg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/handbrain-chess/internal/handbrain"
)

const (
	defaultSquareSize = 64
	headerHeight      = 36
)

// Options decorates the rendered position. Zero values draw a plain board.
type Options struct {
	LastMove *handbrain.MoveSpec
	Selected handbrain.PieceType
	Header   string
}

type Renderer struct {
	squareSize int
}

func New(squareSize int) *Renderer {
	if squareSize <= 0 {
		squareSize = defaultSquareSize
	}
	return &Renderer{squareSize: squareSize}
}

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	backgroundFill = color.RGBA{28, 31, 46, 255}
	headerText     = color.RGBA{236, 239, 255, 255}
	coordinateText = color.RGBA{204, 210, 236, 255}
	lastMoveFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	selectedFill   = color.NRGBA{R: 120, G: 200, B: 255, A: 150}
)

var toNChessType = map[handbrain.PieceType]nchess.PieceType{
	handbrain.Pawn:   nchess.Pawn,
	handbrain.Knight: nchess.Knight,
	handbrain.Bishop: nchess.Bishop,
	handbrain.Rook:   nchess.Rook,
	handbrain.Queen:  nchess.Queen,
	handbrain.King:   nchess.King,
}

type layout struct {
	square int
	origin image.Point
	width  int
	height int
}

func (r *Renderer) layout() layout {
	margin := r.squareSize / 2
	return layout{
		square: r.squareSize,
		origin: image.Pt(margin, headerHeight),
		width:  8*r.squareSize + 2*margin,
		height: headerHeight + 8*r.squareSize + margin,
	}
}

// RenderPNG draws position (a FEN) and encodes it as PNG.
func (r *Renderer) RenderPNG(ctx context.Context, position string, opts Options) ([]byte, error) {
	fenOpt, err := nchess.FEN(strings.TrimSpace(position))
	if err != nil {
		return nil, fmt.Errorf("decode fen: %w", err)
	}
	pos := nchess.NewGame(fenOpt).Position()
	board := pos.Board()
	l := r.layout()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, l.width, l.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundFill), image.Point{}, draw.Src)
	drawHeader(img, opts.Header, l)
	drawSquares(img, l)
	if mv := opts.LastMove; mv != nil {
		drawSquareOverlay(img, toSquare(mv.From), l, lastMoveFill)
		drawSquareOverlay(img, toSquare(mv.To), l, lastMoveFill)
	}
	if pt, ok := toNChessType[opts.Selected]; ok {
		for sq, p := range board.SquareMap() {
			if p.Type() == pt && p.Color() == pos.Turn() {
				drawSquareOverlay(img, sq, l, selectedFill)
			}
		}
	}
	if err := drawPieces(img, board, l); err != nil {
		return nil, err
	}
	drawCoordinates(img, l)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func toSquare(sq handbrain.Square) nchess.Square {
	return nchess.NewSquare(nchess.File(sq.File()), nchess.Rank(sq.Rank()))
}

func squareRect(sq nchess.Square, l layout) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	x := l.origin.X + col*l.square
	y := l.origin.Y + row*l.square
	return image.Rect(x, y, x+l.square, y+l.square)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			out = append(out, nchess.NewSquare(file, rank))
		}
	}
	return out
}

func drawSquares(dst draw.Image, l layout) {
	for _, sq := range allSquares() {
		draw.Draw(dst, squareRect(sq, l), image.NewUniform(squareColor(sq)), image.Point{}, draw.Src)
	}
}

func drawSquareOverlay(dst draw.Image, sq nchess.Square, l layout, clr color.Color) {
	draw.Draw(dst, squareRect(sq, l), image.NewUniform(clr), image.Point{}, draw.Over)
}

func drawPieces(dst draw.Image, board *nchess.Board, l layout) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, l.square)
		if err != nil {
			return err
		}
		draw.Draw(dst, squareRect(sq, l), img, image.Point{}, draw.Over)
	}
	return nil
}

func drawHeader(dst draw.Image, text string, l layout) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(headerText), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	baseline := (headerHeight + ascent) / 2
	drawCenteredText(d, text, l.width/2, baseline)
}

func drawCoordinates(dst draw.Image, l layout) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(coordinateText), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	boardBottom := l.origin.Y + 8*l.square
	for i := 0; i < 8; i++ {
		file := nchess.File(i)
		rank := nchess.Rank(i)
		fileCenter := l.origin.X + i*l.square + l.square/2
		drawCenteredText(d, file.String(), fileCenter, boardBottom+ascent+2)
		rankCenter := l.origin.Y + (7-i)*l.square + l.square/2
		drawCenteredText(d, rank.String(), l.origin.X/2, rankCenter+ascent/2)
	}
}

func drawCenteredText(d *font.Drawer, text string, centerX, baseline int) {
	width := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-width/2, baseline)
	d.DrawString(text)
}
