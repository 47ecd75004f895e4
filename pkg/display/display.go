// Package display renders the reported time.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Display shows a time.
type Display interface {
	Update(t time.Time) error
}

// UpdateFunc is func type of Display.
type UpdateFunc func(time.Time) error

// Update implements Display.
func (f UpdateFunc) Update(t time.Time) error {
	return f(t)
}

// Blanker is implemented by displays which can show "no time".
type Blanker interface {
	Blank() error
}

// Blank blanks d if it's a Blanker, otherwise nothing is shown.
func Blank(d Display) error {
	if b, ok := d.(Blanker); ok {
		return b.Blank()
	}
	return nil
}

// Placeholder is shown by Text before the clock has time.
const Placeholder = "--:--:--"

// Text prints HH:MM:SS lines.
type Text struct {
	Out io.Writer
}

// Update implements Display.
func (d *Text) Update(t time.Time) error {
	_, err := fmt.Fprintln(d.Out, t.Format("15:04:05"))
	return err
}

// Blank prints the placeholder.
func (d *Text) Blank() error {
	_, err := fmt.Fprintln(d.Out, Placeholder)
	return err
}

// Zone converts times to Location before updating Display.
type Zone struct {
	Display  Display
	Location *time.Location
}

// Update implements Display.
func (z *Zone) Update(t time.Time) error {
	if z.Location != nil {
		t = t.In(z.Location)
	}
	return z.Display.Update(t)
}

// Blank implements Blanker.
func (z *Zone) Blank() error {
	return Blank(z.Display)
}

// NewZone loads the named location and wraps d.
func NewZone(d Display, name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return &Zone{Display: d, Location: loc}, nil
}

// Last remembers the last time shown so it can be redrawn.
type Last struct {
	Display Display

	last time.Time
	lock sync.Mutex
}

// Update implements Display.
func (l *Last) Update(t time.Time) error {
	l.lock.Lock()
	l.last = t
	l.lock.Unlock()
	return l.Display.Update(t)
}

// Time returns the last time shown.
func (l *Last) Time() time.Time {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.last
}

// Blank implements Blanker. It forgets the last time.
func (l *Last) Blank() error {
	l.lock.Lock()
	l.last = time.Time{}
	l.lock.Unlock()
	return Blank(l.Display)
}

// Redraw shows the last time again.
func (l *Last) Redraw() error {
	return l.Display.Update(l.Time())
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}
