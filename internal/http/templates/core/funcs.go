// Package core holds the template helpers shared by every dashboard page.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
)

// FriendlyDateTimeLayout is the layout used for human-facing timestamps.
const FriendlyDateTimeLayout = "Jan 2, 2006 3:04 PM"

// Deps holds optional dependencies for constructing the core template func map.
type Deps struct {
	Template           **template.Template
	ContentTemplateFor func(string) string
	Now                func() time.Time
}

// Funcs returns the helpers available to every page template.
func Funcs(deps Deps) template.FuncMap {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	funcs := template.FuncMap{
		"sectionTmpl":  deps.ContentTemplateFor,
		"friendlyTime": friendlyTime,
		"relativeTime": func(ts any) string { return relativeTime(ts, now()) },
		"timeTag":      timeTag,
		"formatNumber": FormatNumber,
		"roleClass":    roleClass,
		"hasRole":      hasRole,
		"sortedKeys":   sortedKeys,
		"truncateText": TruncateText,
	}
	funcs["renderSection"] = func(page string, data any) (template.HTML, error) {
		if deps.Template == nil || *deps.Template == nil {
			return "", errors.New("template not initialized")
		}
		var buf bytes.Buffer
		if err := (*deps.Template).ExecuteTemplate(&buf, deps.ContentTemplateFor(page), data); err != nil {
			return "", err
		}
		// #nosec G203 - output of our own html/template set, already escaped.
		return template.HTML(buf.String()), nil
	}
	funcs["toJSON"] = func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return funcs
}

func asTime(ts any) time.Time {
	switch v := ts.(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func friendlyTime(ts any) string {
	t := asTime(ts)
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(FriendlyDateTimeLayout)
}

// relativeTime describes how long before now ts happened. Future times read
// as "just now".
func relativeTime(ts any, now time.Time) string {
	t := asTime(ts)
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return strconv.Itoa(n) + " " + unit + "s ago"
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return friendlyTime(t)
	}
}

func timeTag(ts any) template.HTML {
	t := asTime(ts)
	if t.IsZero() {
		return ""
	}
	// #nosec G203 - built from escaped values only
	return template.HTML(fmt.Sprintf(
		"<time datetime=\"%s\" title=\"%s\">%s</time>",
		t.UTC().Format(time.RFC3339),
		template.HTMLEscapeString(t.Local().Format(time.RFC1123)),
		template.HTMLEscapeString(t.Local().Format("Jan 2, 2006 3:04:05 PM")),
	))
}

// FormatNumber renders integers with thousands separators. Floats keep two
// decimals; anything else prints as-is.
func FormatNumber(v any) string {
	switch x := v.(type) {
	case int:
		return groupDigits(int64(x))
	case int64:
		return groupDigits(x)
	case int32:
		return groupDigits(int64(x))
	case float64:
		if x == float64(int64(x)) {
			return groupDigits(int64(x))
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return groupDigits(n)
		}
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func groupDigits(n int64) string {
	neg := n < 0
	s := strconv.FormatInt(n, 10)
	if neg {
		s = s[1:]
	}
	if len(s) > 3 {
		var b strings.Builder
		head := len(s) % 3
		if head == 0 {
			head = 3
		}
		b.WriteString(s[:head])
		for i := head; i < len(s); i += 3 {
			b.WriteByte(',')
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

func roleClass(role domainauth.Role) string {
	switch role {
	case domainauth.RoleAdmin:
		return "badge-danger"
	case domainauth.RoleWriter:
		return "badge-warning"
	case domainauth.RoleViewer:
		return "badge-info"
	default:
		return "badge-light"
	}
}

// hasRole reports whether have meets want in the role hierarchy.
func hasRole(have domainauth.Role, want string) bool {
	return have.AtLeast(domainauth.Role(want))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TruncateText truncates s to at most maxLen runes, ending with an ellipsis
// when shortened.
func TruncateText(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return string(runes[:1])
	}
	return string(runes[:maxLen-1]) + "…"
}
