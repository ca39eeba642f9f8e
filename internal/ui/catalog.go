package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/rowbulk/internal/catalog"
)

// ColumnInfo describes one attribute position for display.
type ColumnInfo struct {
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"`
	TypeOID  uint32 `json:"type_oid"`
	TypeMod  int32  `json:"type_mod"`
	Dropped  bool   `json:"dropped,omitempty"`
}

// CatalogInfo is the displayable form of a catalog snapshot.
type CatalogInfo struct {
	Relation string       `json:"relation"`
	Live     int          `json:"live_columns"`
	Columns  []ColumnInfo `json:"columns"`
}

// NewCatalogInfo converts a catalog into its display form. Positions are one-based.
func NewCatalogInfo(cat *catalog.Catalog) CatalogInfo {
	info := CatalogInfo{
		Relation: cat.Relation(),
		Live:     cat.Live(),
		Columns:  make([]ColumnInfo, 0, cat.Len()),
	}
	for i, a := range cat.Attributes() {
		col := ColumnInfo{
			Position: i + 1,
			Type:     a.Type.String(),
			TypeOID:  a.TypeOID,
			TypeMod:  a.TypeMod,
			Dropped:  a.Dropped,
		}
		if !a.Dropped {
			col.Name = a.Name
		}
		info.Columns = append(info.Columns, col)
	}
	return info
}

// CatalogRenderer displays the attribute list of a row type.
type CatalogRenderer struct {
	out    io.Writer
	styles Styles
}

// NewCatalogRenderer creates a catalog renderer.
func NewCatalogRenderer(out io.Writer, noColor bool) *CatalogRenderer {
	return &CatalogRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays the catalog as an aligned table.
func (r *CatalogRenderer) Render(info CatalogInfo) error {
	title := "Catalog"
	if info.Relation != "" {
		title += ": " + info.Relation
	}
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render(title))

	nameWidth := len("NAME")
	typeWidth := len("TYPE")
	for _, c := range info.Columns {
		nameWidth = max(nameWidth, len(displayName(c)))
		typeWidth = max(typeWidth, len(c.Type))
	}

	header := fmt.Sprintf("  %-4s %-*s %-*s %s", "#", nameWidth, "NAME", typeWidth, "TYPE", "OID")
	_, _ = fmt.Fprintln(r.out, r.styles.Label.Render(header))
	_, _ = fmt.Fprintln(r.out, r.styles.Border.Render("  "+strings.Repeat("─", len(header)-2)))

	for _, c := range info.Columns {
		line := fmt.Sprintf("  %-4d %-*s %-*s %d", c.Position, nameWidth, displayName(c), typeWidth, c.Type, c.TypeOID)
		switch {
		case c.Dropped:
			line = r.styles.Dim.Render(line)
		case c.Type == "custom" || c.Type == "unknown" || c.Type == "invalid":
			line = r.styles.Warning.Render(line)
		}
		_, _ = fmt.Fprintln(r.out, line)
	}

	_, _ = fmt.Fprintf(r.out, "\n  %d live of %d columns\n", info.Live, len(info.Columns))
	return nil
}

// RenderJSON outputs the catalog as JSON.
func (r *CatalogRenderer) RenderJSON(info CatalogInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func displayName(c ColumnInfo) string {
	if c.Dropped {
		return "(dropped)"
	}
	return c.Name
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
