package httpserver

import (
	"html/template"
)

var introPage = template.Must(template.New("intro").Parse(`<!DOCTYPE html>
<html>
<head><title>Glidein direct submission</title></head>
<body>
<h1>Glidein direct submission</h1>
<p>Submit an executable as glideins to entry <b>{{.Entry}}</b>.</p>
<form action="submit" method="post" enctype="multipart/form-data">
<p><label>Number of glideins <input type="number" name="payload" min="1" value="1" required></label></p>
<p><label>Executable <input type="file" name="file" required></label></p>
<p><label>Arguments <input type="text" name="args"></label></p>
<p><input type="submit" value="Submit"></p>
</form>
<p><a href="{{.QueueURL}}">Current queue</a></p>
</body>
</html>
`))

var resultPage = template.Must(template.New("result").Parse(
	`To retrieve logs, click <a href="{{.LogURL}}">this link</a>` + "\n"))

// queuePage renders the listing as a bordered table. Empty cells are skipped
// so rows without the optional counter stay left-aligned with the header.
var queuePage = template.Must(template.New("queue").Parse(`<table border=1>
<tr>{{range .Header}}<td>{{.}}</td>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}{{if .}}<td>{{.}}</td>{{end}}{{end}}</tr>
{{end}}</table>
`))

type introData struct {
	Entry    string
	QueueURL string
}

type resultData struct {
	LogURL string
}

type queueData struct {
	Header []string
	Rows   [][]string
}
