package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"unicode"

	"devtype/internal/config"
	"devtype/internal/logging"
	"devtype/internal/translit"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"
)

const padHelp = "Esc/Ctrl-D commit   Ctrl-C discard   Ctrl-L settle"

var (
	styleTitle  = tcell.StyleDefault.Bold(true)
	styleField  = tcell.StyleDefault
	styleStatus = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

func cmdPad(args []string) {
	fs := flag.NewFlagSet("pad", flag.ExitOnError)
	initial := fs.String("text", "", "initial field content")
	fs.Parse(args)

	a := setup("pad")
	defer a.close()

	engine := a.newEngine()
	if w := a.watchKeymap(engine); w != nil {
		defer w.Close()
	}

	loader := config.NewLoader(a.cfgPath)
	if _, err := loader.Load(); err == nil {
		loader.OnChange(func(c *config.Config) { a.applyConfig(engine, c) })
		if err := loader.Watch(); err != nil {
			a.logger.Warn("config watch failed", "path", a.cfgPath, "error", err)
		}
		defer loader.Close()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		a.fatalf("open terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		a.fatalf("init terminal: %v", err)
	}

	sessionID := logging.SessionIDFromContext(a.ctx)
	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  a.crashDir,
		Version:   Version,
		Component: "pad",
		OnCrash:   func(logging.CrashReport) { screen.Fini() },
	})
	crash.SetSessionID(sessionID)

	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogSessionStart(a.ctx, sessionID, map[string]any{
			"keymap": a.cfg.Engine.KeymapPath,
		})
	})

	p := newPad(screen, engine, *initial, a.cfg.Engine.SettleOnCommit)
	var value string
	var committed bool
	panicked := crash.RecoverWithContext(map[string]any{"command": "pad"}, func() {
		value, committed = p.run(a.ctx)
	})
	screen.Fini()

	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogSessionEnd(a.ctx, map[string]any{
			"committed": committed,
			"keys":      p.keys,
			"panicked":  panicked,
		})
	})

	if panicked {
		a.close()
		os.Exit(2)
	}
	if committed {
		fmt.Println(value)
	}
}

// applyConfig picks up a changed keymap path while the pad is open. Other
// engine settings take effect on the next start.
func (a *app) applyConfig(engine *translit.Engine, c *config.Config) {
	old := a.cfg.Engine.KeymapPath
	a.cfg = c
	if c.Engine.KeymapPath == old {
		return
	}
	engine.SetTables(a.loadTables())
	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogConfigChange(a.ctx, "engine.keymap_path", old, c.Engine.KeymapPath)
	})
}

// pad is a single-line text field on a terminal screen.
type pad struct {
	screen tcell.Screen
	host   *translit.MemoryHost
	field  *translit.Field

	last translit.TraceEntry
	keys int
}

func newPad(screen tcell.Screen, engine *translit.Engine, initial string, settle bool) *pad {
	host := translit.NewMemoryHost(initial, len([]rune(initial)))
	return &pad{
		screen: screen,
		host:   host,
		field:  translit.NewField(engine, host, translit.WithSettleOnCommit(settle)),
	}
}

// run handles events until the field is committed or discarded. It returns
// the committed value and whether it was committed.
func (p *pad) run(ctx context.Context) (string, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.screen.PostEvent(tcell.NewEventInterrupt(nil))
		case <-done:
		}
	}()

	for {
		p.draw()

		switch ev := p.screen.PollEvent().(type) {
		case nil:
			return p.field.Commit(), true
		case *tcell.EventInterrupt:
			return "", false
		case *tcell.EventResize:
			p.screen.Sync()
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlD:
				return p.field.Commit(), true
			case tcell.KeyCtrlC:
				return "", false
			case tcell.KeyCtrlL:
				value, caret := translit.SettleAt(p.host.Value(), p.host.Caret())
				p.host.SetValue(value, caret)
				continue
			}
			kev, ok := keyEvent(ev)
			if !ok {
				continue
			}
			p.keys++
			trace := translit.Replay(p.field, p.host, []translit.KeyEvent{kev})
			p.last = trace[len(trace)-1]
		}
	}
}

// keyEvent converts a terminal key to an engine key event.
func keyEvent(ev *tcell.EventKey) (translit.KeyEvent, bool) {
	var mods translit.Modifiers
	m := ev.Modifiers()
	if m&tcell.ModShift != 0 {
		mods |= translit.ModShift
	}
	if m&tcell.ModCtrl != 0 {
		mods |= translit.ModControl
	}
	if m&tcell.ModAlt != 0 {
		mods |= translit.ModAlt
	}
	if m&tcell.ModMeta != 0 {
		mods |= translit.ModMeta
	}

	var key string
	switch ev.Key() {
	case tcell.KeyRune:
		r := ev.Rune()
		if unicode.IsUpper(r) {
			mods |= translit.ModShift
		}
		key = string(r)
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		key = translit.KeyBackspace
	case tcell.KeyEnter:
		key = translit.KeyEnter
	case tcell.KeyTab:
		key = translit.KeyTab
	case tcell.KeyLeft:
		key = translit.KeyLeft
	case tcell.KeyRight:
		key = translit.KeyRight
	case tcell.KeyHome:
		key = translit.KeyHome
	case tcell.KeyEnd:
		key = translit.KeyEnd
	default:
		return translit.KeyEvent{}, false
	}
	return translit.NewKeyWithModifiers(key, mods), true
}

// cell is one grapheme cluster placed on the screen.
type cell struct {
	x     int
	runes []rune
	width int
}

// layout places the clusters of value on a line and returns the column of
// a caret counted in code points. A caret inside a cluster is shown after it.
func layout(value string, caret int) ([]cell, int) {
	var cells []cell
	cursor := -1
	x, pos := 0, 0

	g := uniseg.NewGraphemes(value)
	for g.Next() {
		rs := g.Runes()
		w := g.Width()
		if w < 1 {
			w = 1
		}
		if cursor < 0 && pos == caret {
			cursor = x
		}
		cells = append(cells, cell{x: x, runes: rs, width: w})
		pos += len(rs)
		x += w
		if cursor < 0 && pos > caret {
			cursor = x
		}
	}
	if cursor < 0 {
		cursor = x
	}
	return cells, cursor
}

func (p *pad) drawString(x, y int, s string, style tcell.Style) int {
	cells, end := layout(s, len([]rune(s)))
	for _, c := range cells {
		p.screen.SetContent(x+c.x, y, c.runes[0], c.runes[1:], style)
	}
	return x + end
}

func (p *pad) draw() {
	p.screen.Clear()

	p.drawString(0, 0, "devtype pad", styleTitle)
	p.drawString(0, 1, padHelp, styleStatus)

	value, caret := p.host.Value(), p.host.Caret()
	cells, cursor := layout(value, caret)
	p.drawString(0, 3, "> ", styleTitle)
	for _, c := range cells {
		p.screen.SetContent(2+c.x, 3, c.runes[0], c.runes[1:], styleField)
	}
	p.screen.ShowCursor(2+cursor, 3)

	if p.keys > 0 {
		status := fmt.Sprintf("%s  %s", p.last.Event, p.last.Outcome.Step)
		if r := p.last.Outcome.Rule; r.Kind != 0 {
			status += fmt.Sprintf("  %s:%s", r.Kind, r.Trigger)
		}
		p.drawString(0, 5, status, styleStatus)
	}
	p.drawString(0, 6, fmt.Sprintf("%q  caret %d", value, caret), styleStatus)

	p.screen.Show()
}
