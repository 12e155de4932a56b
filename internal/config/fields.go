package config

import "strings"

// FieldStyle holds the colour scale used when rendering one radar field.
type FieldStyle struct {
	VMin     float64 `toml:"vmin"`
	VMax     float64 `toml:"vmax"`
	Colormap string  `toml:"cmap"`
}

// Unfiltered style keys carry this suffix, e.g. REFL_NOFILTERS.
const unfilteredSuffix = "_NOFILTERS"

// fieldAliases maps raw field types found in filenames onto style keys.
var fieldAliases = map[string]string{
	"DBZH":  "REFL",
	"DBZV":  "REFL",
	"TH":    "REFL",
	"TV":    "REFL",
	"CM":    "REFL",
	"RHOHV": "RHOHV",
	"PHIDP": "PHIDP",
	"KDP":   "KDP",
	"ZDR":   "ZDR",
	"VRAD":  "VRAD",
	"WRAD":  "WRAD",
}

// DefaultFieldStyles returns the built-in style table.
func DefaultFieldStyles() map[string]FieldStyle {
	return map[string]FieldStyle{
		"REFL":             {VMin: -20, VMax: 70, Colormap: "grc_th"},
		"REFL_NOFILTERS":   {VMin: -20, VMax: 70, Colormap: "grc_th"},
		"RHOHV":            {VMin: 0, VMax: 1, Colormap: "grc_rho"},
		"RHOHV_NOFILTERS":  {VMin: 0, VMax: 1, Colormap: "grc_rho"},
		"PHIDP":            {VMin: -5, VMax: 360, Colormap: "grc_th"},
		"PHIDP_NOFILTERS":  {VMin: -5, VMax: 360, Colormap: "grc_th"},
		"KDP":              {VMin: -4, VMax: 8, Colormap: "jet"},
		"KDP_NOFILTERS":    {VMin: -4, VMax: 8, Colormap: "jet"},
		"ZDR":              {VMin: -2, VMax: 7.5, Colormap: "grc_zdr"},
		"ZDR_NOFILTERS":    {VMin: -7.5, VMax: 7.5, Colormap: "grc_zdr"},
		"VRAD":             {VMin: -15, VMax: 15, Colormap: "grc_vrad"},
		"VRAD_NOFILTERS":   {VMin: -30, VMax: 30, Colormap: "grc_vrad"},
		"WRAD":             {VMin: -2, VMax: 6, Colormap: "grc_th"},
		"WRAD_NOFILTERS":   {VMin: -2, VMax: 6, Colormap: "grc_th"},
		"COLMAX":           {VMin: -20, VMax: 70, Colormap: "grc_th"},
		"COLMAX_NOFILTERS": {VMin: -20, VMax: 70, Colormap: "grc_th"},
	}
}

// FieldStyle resolves the style for a field type. Raw field names such as DBZH
// resolve through their alias; unknown fields report false.
func (c *Config) FieldStyle(field string, filtered bool) (FieldStyle, bool) {
	key := StyleKey(field)
	if !filtered {
		key += unfilteredSuffix
	}
	style, ok := c.Fields[key]
	return style, ok
}

// StyleKey returns the style table key for a raw field type.
func StyleKey(field string) string {
	upper := strings.ToUpper(strings.TrimSpace(field))
	if alias, ok := fieldAliases[upper]; ok {
		return alias
	}
	return upper
}

func mergeFieldStyles(overrides map[string]FieldStyle) map[string]FieldStyle {
	merged := DefaultFieldStyles()
	for name, style := range overrides {
		key := strings.ToUpper(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		merged[key] = style
	}
	return merged
}
