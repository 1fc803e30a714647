package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
)

// errNoSelector is returned when none of a step's selectors resolves.
var errNoSelector = errors.New("no selector matched")

// replayer executes recording steps on one tab.
type replayer struct {
	tab            *tab
	defaultTimeout time.Duration
	logger         *slog.Logger
}

func stepTimeout(ms int, fallback time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func (r *replayer) run(ctx context.Context, script *recording.Script) error {
	for i, st := range script.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.Type == recording.StepClose {
			return nil
		}
		if err := r.step(ctx, st); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, st.Type, err)
		}
		r.logger.Debug("browser: replay step", "index", i, "type", st.Type)
	}
	return nil
}

func (r *replayer) step(ctx context.Context, st recording.Step) error {
	if st.Type == recording.StepNavigate {
		return r.tab.navigate(ctx, st.URL)
	}

	sctx, cancel := context.WithTimeout(ctx, stepTimeout(st.Timeout, r.defaultTimeout))
	defer cancel()
	page := r.tab.page.Context(sctx)

	switch st.Type {
	case recording.StepSetViewport:
		return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             st.Width,
			Height:            st.Height,
			DeviceScaleFactor: st.DeviceScaleFactor,
			Mobile:            st.IsMobile,
		})

	case recording.StepClick, recording.StepDoubleClick:
		el, err := findElement(page, st.Selectors)
		if err != nil {
			return err
		}
		count := 1
		if st.Type == recording.StepDoubleClick {
			count = 2
		}
		return el.Click(proto.InputMouseButtonLeft, count)

	case recording.StepHover:
		el, err := findElement(page, st.Selectors)
		if err != nil {
			return err
		}
		return el.Hover()

	case recording.StepChange:
		el, err := findElement(page, st.Selectors)
		if err != nil {
			return err
		}
		return change(el, st.Value)

	case recording.StepKeyDown, recording.StepKeyUp:
		key, err := keyFor(st.Key)
		if err != nil {
			return err
		}
		if st.Type == recording.StepKeyDown {
			return page.Keyboard.Press(key)
		}
		return page.Keyboard.Release(key)

	case recording.StepScroll:
		if len(st.Selectors) > 0 {
			el, err := findElement(page, st.Selectors)
			if err != nil {
				return err
			}
			_, err = el.Eval(`(x, y) => this.scrollBy(x, y)`, st.X, st.Y)
			return err
		}
		return page.Mouse.Scroll(st.X, st.Y, 1)

	case recording.StepWaitForElement:
		el, err := findElement(page, st.Selectors)
		if err != nil {
			return err
		}
		if st.Visible != nil && *st.Visible {
			return el.WaitVisible()
		}
		return nil

	case recording.StepWaitForExpression:
		return page.Wait(rod.Eval("() => (" + st.Expression + ")"))
	}
	return &recording.UnknownStepError{Type: string(st.Type)}
}

// change sets the value of an input, textarea or select.
func change(el *rod.Element, value string) error {
	tag, err := el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return err
	}
	if tag.Value.Str() == "select" {
		return el.Select([]string{value}, true, rod.SelectorTypeText)
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

// findElement tries each recorded selector in order and returns the first
// element found. Frame-crossing and ARIA selectors are skipped.
func findElement(page *rod.Page, selectors []recording.Selector) (*rod.Element, error) {
	var lastErr error = errNoSelector
	for _, sel := range selectors {
		if sel.Nested() {
			continue
		}
		kind, expr := sel.Resolve()
		var (
			el  *rod.Element
			err error
		)
		switch kind {
		case recording.SelectorCSS, recording.SelectorPierce:
			el, err = page.Element(expr)
		case recording.SelectorXPath:
			el, err = page.ElementX(expr)
		case recording.SelectorText:
			el, err = page.ElementX(textXPath(expr))
		default:
			continue
		}
		if err == nil {
			return el, nil
		}
		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			break
		}
	}
	return nil, lastErr
}

// textXPath selects the innermost element whose normalised text equals text.
func textXPath(text string) string {
	return "//*[normalize-space(text())=" + xpathLiteral(strings.TrimSpace(text)) + "]"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Backspace":  input.Backspace,
	"Escape":     input.Escape,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Shift":      input.ShiftLeft,
	"Control":    input.ControlLeft,
	"Alt":        input.AltLeft,
	"Meta":       input.MetaLeft,
}

// keyFor maps a Recorder key name to a Rod key.
func keyFor(name string) (input.Key, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if r := []rune(name); len(r) == 1 && r[0] >= 0x20 && r[0] <= 0x7e {
		return input.Key(r[0]), nil
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}
