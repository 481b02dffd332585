package http

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/roisanwr/Water-Potability-Clasification/ml"
)

// 页面样式标签
const (
	StyleSafe   = "safe"
	StyleUnsafe = "unsafe"
)

// Message keys double as the English text.
const (
	msgTitle      = "Water Quality Check (Water Potability)"
	msgHeading    = "💧 Drinking Water Quality Check"
	msgSubmit     = "🔍 Check Potability"
	msgReset      = "Reset"
	msgPotable    = "✅ This water is POTABLE (safe to drink)"
	msgNotPotable = "⚠️ This water is NOT POTABLE (unsafe to drink)"
	msgError      = "An error occurred: %v"
	msgGuide      = "📚 Variable Guide:"
)

// Measurement explanations, one per form field.
const (
	explainPH           = "Acidity of the water. (Drinking: 6.5 - 8.5)"
	explainHardness     = "Water hardness (calcium/magnesium content)."
	explainSolids       = "Total dissolved solids (minerals, salts, metals)."
	explainChloramines  = "Chlorine disinfectant used to kill bacteria."
	explainSulfate      = "Sulfate compounds (from minerals or industry)."
	explainConductivity = "Electrical conductivity of the water (tracks the ion count)."
	explainOrganic      = "Organic carbon content (remains of living matter)."
	explainTHM          = "Chemical by-products of chlorination."
	explainTurbidity    = "Cloudiness of the water (clarity)."
)

var indonesian = map[string]string{
	msgTitle:      "Cek Kualitas Air (Water Potability)",
	msgHeading:    "💧 Cek Kualitas Air Minum",
	msgSubmit:     "🔍 Cek Kelayakan Air",
	msgReset:      "Reset",
	msgPotable:    "✅ Air ini LAYAK MINUM (Potable)",
	msgNotPotable: "⚠️ Air ini TIDAK LAYAK MINUM (Not Potable)",
	msgError:      "Terjadi Kesalahan: %v",
	msgGuide:      "📚 Penjelasan Variabel:",

	explainPH:           "Tingkat keasaman air. (Minum: 6.5 - 8.5)",
	explainHardness:     "Kekerasan air (kandungan kalsium/magnesium).",
	explainSolids:       "Total padatan terlarut (mineral, garam, logam).",
	explainChloramines:  "Disinfektan klorin untuk membunuh bakteri.",
	explainSulfate:      "Senyawa sulfat (bisa dari mineral atau industri).",
	explainConductivity: "Daya hantar listrik air (terkait jumlah ion).",
	explainOrganic:      "Kandungan karbon organik (sisa makhluk hidup).",
	explainTHM:          "Zat kimia sampingan dari klorinasi.",
	explainTurbidity:    "Kekeruhan air (kejernihan).",
}

//go:embed templates/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// PredictionResult 渲染到页面上的结论
type PredictionResult struct {
	Potable bool
	Text    string
	Style   string
}

type field struct {
	Name        string
	Label       string
	Placeholder string
	Min         string
	Max         string
	Term        string
	explain     string
}

var fields = []field{
	{Name: "ph", Label: "pH (0 - 14)", Placeholder: "7.0", Min: "0", Max: "14", Term: "pH (0-14)", explain: explainPH},
	{Name: "Hardness", Label: "Hardness (mg/L)", Placeholder: "200", Term: "Hardness", explain: explainHardness},
	{Name: "Solids", Label: "Solids / TDS (ppm)", Placeholder: "20000", Term: "Solids (TDS)", explain: explainSolids},
	{Name: "Chloramines", Label: "Chloramines (ppm)", Placeholder: "7.0", Term: "Chloramines", explain: explainChloramines},
	{Name: "Sulfate", Label: "Sulfate (mg/L)", Placeholder: "330", Term: "Sulfate", explain: explainSulfate},
	{Name: "Conductivity", Label: "Conductivity (μS/cm)", Placeholder: "400", Term: "Conductivity", explain: explainConductivity},
	{Name: "Organic_carbon", Label: "Organic Carbon (ppm)", Placeholder: "15", Term: "Organic Carbon", explain: explainOrganic},
	{Name: "Trihalomethanes", Label: "Trihalomethanes (μg/L)", Placeholder: "66", Term: "Trihalomethanes", explain: explainTHM},
	{Name: "Turbidity", Label: "Turbidity (NTU)", Placeholder: "4.0", Term: "Turbidity", explain: explainTurbidity},
}

// explanation 变量说明的一行
type explanation struct {
	Term string
	Text string
}

type pageData struct {
	Lang    string
	Title   string
	Heading string
	Submit  string
	Reset   string
	Guide   string
	Fields  []field
	Explain []explanation
	Result  *PredictionResult
}

// renderer 选择语言并渲染页面
type renderer struct {
	tags    []language.Tag
	matcher language.Matcher
	catalog catalog.Catalog
}

func newRenderer(defaultLang string) (*renderer, error) {
	if len(fields) != ml.NumFeatures {
		return nil, fmt.Errorf("form has %d fields, model expects %d", len(fields), ml.NumFeatures)
	}

	base, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid ui language %q: %w", defaultLang, err)
	}
	tags := []language.Tag{language.English, language.Indonesian}
	_, idx, confidence := language.NewMatcher(tags).Match(base)
	if confidence == language.No {
		return nil, fmt.Errorf("unsupported ui language %q", defaultLang)
	}
	// the matcher falls back to its first tag
	tags[0], tags[idx] = tags[idx], tags[0]

	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range indonesian {
		if err := builder.SetString(language.Indonesian, key, text); err != nil {
			return nil, err
		}
	}

	return &renderer{
		tags:    tags,
		matcher: language.NewMatcher(tags),
		catalog: builder,
	}, nil
}

func (p *renderer) printer(r *http.Request) (*message.Printer, language.Tag) {
	accepted, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, idx, _ := p.matcher.Match(accepted...)
	tag := p.tags[idx]
	return message.NewPrinter(tag, message.Catalog(p.catalog)), tag
}

func (p *renderer) verdict(printer *message.Printer, prediction ml.Prediction) *PredictionResult {
	if prediction.Potable {
		return &PredictionResult{Potable: true, Text: printer.Sprintf(msgPotable), Style: StyleSafe}
	}
	return &PredictionResult{Potable: false, Text: printer.Sprintf(msgNotPotable), Style: StyleUnsafe}
}

func (p *renderer) failure(printer *message.Printer, err error) *PredictionResult {
	return &PredictionResult{Potable: false, Text: printer.Sprintf(msgError, err), Style: StyleUnsafe}
}

func (p *renderer) render(w http.ResponseWriter, r *http.Request, result func(*message.Printer) *PredictionResult) error {
	printer, tag := p.printer(r)
	data := pageData{
		Lang:    tag.String(),
		Title:   printer.Sprintf(msgTitle),
		Heading: printer.Sprintf(msgHeading),
		Submit:  printer.Sprintf(msgSubmit),
		Reset:   printer.Sprintf(msgReset),
		Guide:   printer.Sprintf(msgGuide),
		Fields:  fields,
		Explain: make([]explanation, 0, len(fields)),
	}
	for _, f := range fields {
		data.Explain = append(data.Explain, explanation{Term: f.Term, Text: printer.Sprintf(f.explain)})
	}
	if result != nil {
		data.Result = result(printer)
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", data.Lang)
	_, err := buf.WriteTo(w)
	return err
}
