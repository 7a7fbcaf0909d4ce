package http

import (
	"embed"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// UnavailableNotice is shown whenever a lookup yields no weather.
const UnavailableNotice = "Informazioni non disponibili"

// Response formats for /meteo/lookup.
const (
	FormatHTML   = "html"
	FormatIPhone = "iphone"
	FormatXML    = "xml"
	FormatJSON   = "json"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"temp":  func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"upper": strings.ToUpper,
}).ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	Location  string
	Notice    string
	MaxLength int
	Result    *models.WeatherResult
	Sun       bool
}

// lookupXML is the XML document for a successful lookup.
type lookupXML struct {
	XMLName   xml.Name           `xml:"lookup"`
	Location  string             `xml:"location"`
	Station   models.StationMeta `xml:"station"`
	Condition models.Condition   `xml:"condition"`
	Units     string             `xml:"units"`
	Link      string             `xml:"link,omitempty"`
	Sun       bool               `xml:"sun"`
}

type lookupErrorXML struct {
	XMLName xml.Name `xml:"lookup"`
	Error   string   `xml:"error"`
}

// lookupJSON is the JSON body for a successful lookup.
type lookupJSON struct {
	Location  string             `json:"location"`
	Station   models.StationMeta `json:"station"`
	Condition models.Condition   `json:"condition"`
	Units     string             `json:"units"`
	Link      string             `json:"link,omitempty"`
	Sun       bool               `json:"sun"`
}

// negotiateFormat picks the response format. Precedence: path extension,
// format query parameter, Accept header, iPhone user agent, then html.
// The Accept header only selects json or xml when that type is ranked above
// html, so browsers listing application/xml at a lower q still get html.
func negotiateFormat(r *http.Request) string {
	if f := mux.Vars(r)["format"]; f != "" {
		return f
	}
	switch f := strings.ToLower(r.URL.Query().Get("format")); f {
	case FormatHTML, FormatIPhone, FormatXML, FormatJSON:
		return f
	}
	if f := formatFromAccept(r.Header.Get("Accept")); f != "" {
		return f
	}
	if ua := r.Header.Get("User-Agent"); strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPod") {
		return FormatIPhone
	}
	return FormatHTML
}

// formatFromAccept returns FormatJSON or FormatXML when the Accept header
// prefers it over html, and "" otherwise.
func formatFromAccept(accept string) string {
	if accept == "" {
		return ""
	}
	var htmlQ, jsonQ, xmlQ float64
	for _, part := range strings.Split(accept, ",") {
		mediaType, q := parseMediaRange(part)
		switch mediaType {
		case "text/html", "application/xhtml+xml":
			htmlQ = max(htmlQ, q)
		case "application/json":
			jsonQ = max(jsonQ, q)
		case "application/xml", "text/xml":
			xmlQ = max(xmlQ, q)
		}
	}
	switch {
	case jsonQ > 0 && jsonQ > htmlQ && jsonQ >= xmlQ:
		return FormatJSON
	case xmlQ > 0 && xmlQ > htmlQ:
		return FormatXML
	}
	return ""
}

// parseMediaRange splits "type/subtype;q=0.9" into the lower-cased type and
// its quality. A missing or malformed q counts as 1.
func parseMediaRange(part string) (string, float64) {
	fields := strings.Split(part, ";")
	mediaType := strings.ToLower(strings.TrimSpace(fields[0]))
	q := 1.0
	for _, param := range fields[1:] {
		name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.ToLower(strings.TrimSpace(name)) != "q" {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && v >= 0 && v <= 1 {
			q = v
		}
	}
	return mediaType, q
}

func renderTemplate(w http.ResponseWriter, status int, name string, data pageData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return templates.ExecuteTemplate(w, name, data)
}

func writeXML(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	return xml.NewEncoder(w).Encode(v)
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
