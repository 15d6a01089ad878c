// Package render produces the dashboard HTML: the full page and the two
// regions (#result and #recentSearches) that can be served on their own.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/kjstillabower/weather-dashboard/internal/query"
)

var templates = template.Must(template.New("render").Funcs(template.FuncMap{
	"celsius": func(t float64) string { return strconv.FormatFloat(t, 'f', -1, 64) },
}).Parse(`
{{define "weather"}}{{if eq .Kind "success"}}<h2>Weather in {{.Result.City}}</h2><p>Temperature: {{celsius .Result.Temperature}}°C</p><p>Condition: {{.Result.Description}}</p>{{else if eq .Kind "not_found"}}<p>City not found. Please try again.</p>{{else}}<p>Error fetching weather data. Please try later.</p>{{end}}{{end}}

{{define "recent"}}{{if .}}<h3>Recent Searches:</h3><ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{else}}<p>No recent searches.</p>{{end}}{{end}}

{{define "page"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Weather Dashboard</title>
</head>
<body>
<h1>Weather Dashboard</h1>
<form id="weatherForm" method="post" action="/search">
<input type="text" id="cityInput" name="city" placeholder="Enter city name" value="{{.City}}" required>
<button type="submit">Get Weather</button>
</form>
<div id="result">{{.Result}}</div>
<form method="get" action="/recent">
<button type="submit" id="showSearchesButton">Show Recent Searches</button>
</form>
<div id="recentSearches">{{.Recent}}</div>
</body>
</html>
{{end}}`))

// PageData fills the dashboard page. Result and Recent are pre-rendered
// regions; an empty region renders as an empty container.
type PageData struct {
	City   string
	Result template.HTML
	Recent template.HTML
}

// Weather renders the #result region for a query outcome.
func Weather(state query.RenderState) (template.HTML, error) {
	if state.Kind == query.KindSuccess && state.Result == nil {
		return "", fmt.Errorf("render weather: success state without result")
	}
	return execute("weather", state)
}

// Recent renders the #recentSearches region.
func Recent(list []string) (template.HTML, error) {
	return execute("recent", list)
}

// Page writes the full dashboard document.
func Page(w io.Writer, data PageData) error {
	if err := templates.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	// Output of html/template is already escaped.
	return template.HTML(buf.String()), nil
}
