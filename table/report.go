package table

import (
	"io"
	"text/template"

	"golang.org/x/text/message"
)

var reportTmpl = template.Must(template.New("report").Funcs(map[string]any{
	"fmt": message.NewPrinter(message.MatchLanguage("en")).Sprint,
	"inc": func(v uint32) uint64 { return uint64(v) + 1 },
}).Parse(`Block classes: {{len .T.Blocks | fmt}} ({{len .T.BlockBins | fmt}} bins)
{{range $i, $b := .T.Blocks -}}
{{printf "%4d" $i}}  {{$b.Describe}}
{{end}}
Page classes: {{len .T.Pages | fmt}} ({{len .T.PageBins | fmt}} bins)
{{range $i, $p := .T.Pages -}}
{{printf "%4d" $i}}  {{$p.Describe}}, {{len ($.T.PagingsOf $i)}} pagings
{{end}}
Segment pagings: {{len .T.Pagings | fmt}}
Classification table: {{len .T.ClassIDs | fmt}} entries
{{range $i, $m := .T.Magnitudes}}{{if gt $m.Len 1 -}}
{{printf "%4d" $i}}  sizes from {{$m.MinSize | fmt}} by {{$m.AlignMask | inc | fmt}}: {{$m.Len | fmt}} entries
{{end}}{{end -}}
Artifact size: {{.Size | fmt}} bytes
`))

// WriteReport prints a human readable summary of the tables.
func (t *Tables) WriteReport(out io.Writer) error {
	data, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return reportTmpl.Execute(out, map[string]any{
		"T":    t,
		"Size": len(data),
	})
}
