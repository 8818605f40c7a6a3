package styles

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// IdentityPalette is a curated ANSI 256 palette for stable per-user colors.
// Red/green slots are avoided; they carry connection state.
var IdentityPalette = []string{
	"33", "39", "45", "69", "75", "81", "87", "99",
	"111", "117", "123", "147", "153", "159", "183", "189",
}

// IdentityColors resolves deterministic per-user styles and caches them.
type IdentityColors struct {
	palette []string

	mu    sync.RWMutex
	cache map[string]lipgloss.Style
}

// NewIdentityColors returns a mapper over palette, or IdentityPalette when
// palette is empty.
func NewIdentityColors(palette []string) *IdentityColors {
	if len(palette) == 0 {
		palette = IdentityPalette
	}
	return &IdentityColors{
		palette: append([]string(nil), palette...),
		cache:   make(map[string]lipgloss.Style, 64),
	}
}

// Foreground returns a cached bold foreground style for id.
func (m *IdentityColors) Foreground(id string) lipgloss.Style {
	key := normalizeID(id)

	m.mu.RLock()
	if style, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return style
	}
	m.mu.RUnlock()

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(m.ColorCode(key))).Bold(true)

	m.mu.Lock()
	m.cache[key] = style
	m.mu.Unlock()
	return style
}

// ColorCode returns the ANSI-256 color code selected for id.
func (m *IdentityColors) ColorCode(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalizeID(id)))
	return m.palette[int(h.Sum32()%uint32(len(m.palette)))]
}

func normalizeID(id string) string {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
