package display

import (
	"io"
	"time"
)

// Pixel layout of the BCD strip. Digits are 4 pixels each and the string
// snakes, so every other digit runs from the most significant bit.
const (
	DigitPixels = 4
	ColonPixels = 2
	// FramePixels is 6 digits and 2 colons.
	FramePixels = 6*DigitPixels + 2*ColonPixels
)

// Frame is the lit state of each pixel along the strip.
type Frame [FramePixels]bool

type segment struct {
	digit bool
	up    bool
}

var layout = []segment{
	{digit: true, up: true},  // hour tens
	{digit: true, up: false}, // hour units
	{},                       // colon
	{digit: true, up: false}, // minute tens
	{digit: true, up: true},  // minute units
	{},                       // colon
	{digit: true, up: true},  // second tens
	{digit: true, up: false}, // second units
}

// BCDDigits returns the 6 decimal digits of HH:MM:SS.
func BCDDigits(t time.Time) [6]int {
	h, m, s := t.Clock()
	return [6]int{h / 10, h % 10, m / 10, m % 10, s / 10, s % 10}
}

// BCDFrame encodes t into the strip.
func BCDFrame(t time.Time) Frame {
	var f Frame
	digits := BCDDigits(t)
	idx, n := 0, 0
	for _, seg := range layout {
		if !seg.digit {
			f[idx], f[idx+1] = true, true
			idx += ColonPixels
			continue
		}
		d := digits[n]
		n++
		for bit := 0; bit < DigitPixels; bit++ {
			mask := 1 << uint(bit)
			if !seg.up {
				mask = 8 >> uint(bit)
			}
			f[idx] = d&mask != 0
			idx++
		}
	}
	return f
}

// BCD draws the digits as a grid of bits, most significant row first.
type BCD struct {
	Out io.Writer
	On  byte
	Off byte
}

// Grid renders the digits of t, one row per bit.
func (d *BCD) Grid(t time.Time) []string {
	on, off := d.On, d.Off
	if on == 0 {
		on = '#'
	}
	if off == 0 {
		off = '.'
	}
	digits := BCDDigits(t)
	var rows []string
	for mask := 8; mask > 0; mask >>= 1 {
		row := make([]byte, 0, 16)
		for n, digit := range digits {
			if n > 0 && n%2 == 0 {
				row = append(row, ' ', ' ')
			} else if n > 0 {
				row = append(row, ' ')
			}
			if digit&mask != 0 {
				row = append(row, on)
			} else {
				row = append(row, off)
			}
		}
		rows = append(rows, string(row))
	}
	return rows
}

// Update implements Display.
func (d *BCD) Update(t time.Time) error {
	return d.write(d.Grid(t))
}

func (d *BCD) write(rows []string) error {
	_, err := io.WriteString(d.Out, joinLines(rows))
	return err
}

// Blank implements Blanker, all bits are off.
func (d *BCD) Blank() error {
	rows := d.Grid(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC))
	return d.write(rows)
}
