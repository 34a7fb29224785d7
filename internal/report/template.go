package report

import (
	"html/template"

	"codeberg.org/mutker/housemon/internal/record"
)

type tableData struct {
	Summary Summary
	Records []record.AveragedRecord
}

var tableTemplate = template.Must(template.New("table").Funcs(template.FuncMap{
	"stamp": func(r record.AveragedRecord) string {
		return r.Timestamp.Format(record.TimeLayout)
	},
	"above": func(r record.AveragedRecord, target float64) bool {
		return r.Temperature > target
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>24-Hour Readings</title>
</head>
<body>
<h1>24-Hour Readings</h1>
<p>{{.Summary.Count}} readings, {{.Summary.AboveTarget}} above {{.Summary.Target}}&deg;C. Generated {{.Summary.GeneratedAt.Format "2006-01-02T15:04:05"}}.</p>
<table>
<thead>
<tr><th>Time</th><th>Temperature (C)</th><th>Humidity (%)</th><th>Avg temperature (C)</th><th>Avg humidity (%)</th></tr>
</thead>
<tbody>
{{- $target := .Summary.Target}}
{{- range .Records}}
<tr{{if above . $target}} class="above"{{end}}><td>{{stamp .}}</td><td>{{.Temperature}}</td><td>{{.Humidity}}</td><td>{{.AvgTemperature}}</td><td>{{.AvgHumidity}}</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))
