package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/cwbudde/boldbrush/internal/effect"
	"github.com/cwbudde/boldbrush/internal/paint"
)

// propertyFlags binds the effect properties to command line flags. Only
// flags the user set are applied, so a config file can supply the rest.
type propertyFlags struct {
	variant          string
	radius           int
	strokeWidth      int
	blendiness       int
	fineDetails      int
	background       string
	style            string
	antialias        bool
	direction        string
	strokeDirection  float64
	emphasis         string
	emphasisColour   string
	secondaryColour  string
	impasto          int
	impastoFine      int
	impastoDirection float64
}

// propertyFlagFields maps flag names to the JSON field they set.
var propertyFlagFields = map[string]string{
	"variant":           "variant",
	"radius":            "radius",
	"stroke-width":      "strokeWidthPercent",
	"blendiness":        "blendiness",
	"fine-details":      "preserveFineDetails",
	"background":        "background",
	"style":             "strokeStyle",
	"antialias":         "antialias",
	"direction":         "directionType",
	"stroke-direction":  "strokeDirection",
	"emphasis":          "emphasis",
	"emphasis-colour":   "emphasisColour",
	"secondary-colour":  "secondaryColour",
	"impasto":           "impastoPercent",
	"impasto-fine":      "impastoFineStrokesPercent",
	"impasto-direction": "impastoDirection",
}

func (pf *propertyFlags) register(fs *pflag.FlagSet) {
	d := effect.DefaultProperties()
	fs.StringVar(&pf.variant, "variant", string(d.Variant), "Effect variant: bold, impasto")
	fs.IntVar(&pf.radius, "radius", d.Radius, "Stroke length in pixels for the finest pass (4-100)")
	fs.IntVar(&pf.strokeWidth, "stroke-width", d.StrokeWidthPercent, "Stroke width as percent of the radius (1-100)")
	fs.IntVar(&pf.blendiness, "blendiness", d.Blendiness, "Stroke transparency in percent (0-100)")
	fs.IntVar(&pf.fineDetails, "fine-details", d.PreserveFineDetails, "Preserve fine details in percent (0-100)")
	fs.StringVar(&pf.background, "background", string(d.Background), "Bold background: original, blur, secondary_colour, transparent")
	fs.StringVar(&pf.style, "style", d.StrokeStyle, "Brush shape name or Random (see 'boldbrush shapes')")
	fs.BoolVar(&pf.antialias, "antialias", d.Antialias, "Antialias impasto strokes")
	fs.StringVar(&pf.direction, "direction", string(d.DirectionType), "Stroke direction: towards_similar_pixels, depends_on_colour, one_direction")
	fs.Float64Var(&pf.strokeDirection, "stroke-direction", d.StrokeDirection, "Stroke angle in degrees (0-360)")
	fs.StringVar(&pf.emphasis, "emphasis", string(d.Emphasis), "Strokes painted last: specified_colour, colourful, grey, light, dark, smooth, rough")
	fs.StringVar(&pf.emphasisColour, "emphasis-colour", d.EmphasisColour.String(), "Colour for specified_colour emphasis (#rrggbb)")
	fs.StringVar(&pf.secondaryColour, "secondary-colour", d.SecondaryColour.String(), "Background colour for secondary_colour (#rrggbb[aa])")
	fs.IntVar(&pf.impasto, "impasto", d.ImpastoPercent, "Impasto relief strength in percent (0-100)")
	fs.IntVar(&pf.impastoFine, "impasto-fine", d.ImpastoFineStrokesPercent, "Impasto fine stroke relief in percent (0-100)")
	fs.Float64Var(&pf.impastoDirection, "impasto-direction", d.ImpastoDirection, "Impasto light direction in degrees (0-360)")
}

// apply copies every flag the user set onto p.
func (pf *propertyFlags) apply(fs *pflag.FlagSet, p *effect.Properties) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "variant":
			p.Variant = effect.Variant(strings.ToLower(pf.variant))
		case "radius":
			p.Radius = pf.radius
		case "stroke-width":
			p.StrokeWidthPercent = pf.strokeWidth
		case "blendiness":
			p.Blendiness = pf.blendiness
		case "fine-details":
			p.PreserveFineDetails = pf.fineDetails
		case "background":
			p.Background = effect.Background(strings.ToLower(pf.background))
		case "style":
			p.StrokeStyle = pf.style
		case "antialias":
			p.Antialias = pf.antialias
		case "direction":
			p.DirectionType, err = paint.ParseDirection(pf.direction)
		case "stroke-direction":
			p.StrokeDirection = pf.strokeDirection
		case "emphasis":
			p.Emphasis, err = paint.ParseEmphasis(pf.emphasis)
		case "emphasis-colour":
			p.EmphasisColour, err = effect.ParseColour(pf.emphasisColour)
		case "secondary-colour":
			p.SecondaryColour, err = effect.ParseColour(pf.secondaryColour)
		case "impasto":
			p.ImpastoPercent = pf.impasto
		case "impasto-fine":
			p.ImpastoFineStrokesPercent = pf.impastoFine
		case "impasto-direction":
			p.ImpastoDirection = pf.impastoDirection
		}
		if err != nil {
			err = fmt.Errorf("--%s: %w", f.Name, err)
		}
	})
	return err
}

// patch returns only the properties the user set, keyed by JSON field, for
// a partial update on the server.
func (pf *propertyFlags) patch(fs *pflag.FlagSet) (map[string]interface{}, error) {
	p := effect.DefaultProperties()
	if err := pf.apply(fs, &p); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var all map[string]interface{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	out := make(map[string]interface{})
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := propertyFlagFields[f.Name]; ok {
			out[key] = all[key]
		}
	})
	return out, nil
}

// loadProperties reads a JSON properties file over the defaults.
func loadProperties(path string) (effect.Properties, error) {
	p := effect.DefaultProperties()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return p, nil
}
