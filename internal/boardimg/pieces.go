package boardimg

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed pieces/*.svg
var pieceFiles embed.FS

type palette struct {
	fill   string
	stroke string
}

var piecePalettes = map[nchess.Color]palette{
	nchess.White: {fill: "#f8f5ee", stroke: "#1d1d1d"},
	nchess.Black: {fill: "#2a2a2a", stroke: "#d9d4c7"},
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	name := pieceAssetName(piece.Type())
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(colorize(data, piecePalettes[piece.Color()])))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}

func pieceAssetName(pt nchess.PieceType) string {
	names := map[nchess.PieceType]string{
		nchess.King:   "king",
		nchess.Queen:  "queen",
		nchess.Rook:   "rook",
		nchess.Bishop: "bishop",
		nchess.Knight: "knight",
		nchess.Pawn:   "pawn",
	}
	return "pieces/" + names[pt] + ".svg"
}

// colorize substitutes the palette placeholders shared by every piece asset.
func colorize(svg []byte, p palette) []byte {
	r := strings.NewReplacer("PIECE_FILL", p.fill, "PIECE_STROKE", p.stroke)
	return []byte(r.Replace(string(svg)))
}
