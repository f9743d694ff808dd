package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

const timeLayout = "2006-01-02 15:04"

// Dashboard renders the single management page.
func Dashboard(data DashboardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return Layout("PromptFactory", dashboardBody(data)).Render(ctx, w)
	})
}

// Layout wraps body in the page shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`+
			templ.EscapeString(title)+`</title><style>`+pageCSS+`</style></head><body><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main><script>`+pageJS+`</script></body></html>`)
		return err
	})
}

func dashboardBody(data DashboardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b writer
		b.raw(`<header><h1>PromptFactory</h1><p class="queue">Runs: `)
		b.text(strconv.Itoa(data.Queue.Active))
		b.raw(` active, `)
		b.text(strconv.Itoa(data.Queue.Waiting))
		b.raw(` waiting, limit `)
		b.text(strconv.Itoa(data.Queue.MaxConcurrent))
		b.raw(`</p></header>`)

		b.raw(`<section><h2>Projects</h2>`)
		if len(data.Projects) == 0 {
			b.raw(`<p class="empty">No projects yet. Create one with POST /api/projects.</p>`)
		}
		for _, p := range data.Projects {
			b.raw(`<article class="card"><h3>`)
			b.text(p.Name)
			b.raw(`</h3><p>`)
			b.text(p.Description)
			b.raw(`</p><dl><dt>Endpoint</dt><dd>`)
			b.text(p.Endpoint)
			b.raw(`</dd><dt>Model</dt><dd>`)
			b.text(p.Model)
			b.raw(`</dd><dt>Updated</dt><dd>`)
			b.text(p.UpdatedAt.Format(timeLayout))
			b.raw(`</dd></dl>`)
			b.raw(`<form class="run" data-project="`)
			b.text(p.ID)
			b.raw(`"><textarea name="prompt_template" rows="3">`)
			b.text(p.PromptTemplate)
			b.raw(`</textarea><input type="file" name="file" accept=".jsonl,.json,.txt" required>`)
			b.raw(`<input name="result_field_name" value="response"><input name="max_workers" type="number" min="1" value="10">`)
			b.raw(`<button type="submit">Run</button></form><pre class="log"></pre></article>`)
		}
		b.raw(`</section>`)

		b.raw(`<section><h2>Prompt templates</h2>`)
		if len(data.Templates) == 0 {
			b.raw(`<p class="empty">The template library is empty.</p>`)
		}
		for _, t := range data.Templates {
			b.raw(`<article class="card"><h3>`)
			b.text(t.Name)
			b.raw(`</h3><p>`)
			b.text(t.Description)
			b.raw(`</p><pre>`)
			b.text(t.Content)
			b.raw(`</pre></article>`)
		}
		b.raw(`</section>`)

		b.raw(`<section><h2>Recent runs</h2><table><thead><tr>`)
		b.raw(`<th>When</th><th>Project</th><th>File</th><th>Mode</th><th>Status</th><th>Total</th><th>OK</th><th>Errors</th>`)
		b.raw(`</tr></thead><tbody>`)
		for _, r := range data.Runs {
			b.raw(`<tr><td>`)
			b.text(r.CreatedAt.Format(timeLayout))
			b.raw(`</td><td>`)
			b.text(r.ProjectName)
			b.raw(`</td><td>`)
			b.text(r.FileName)
			b.raw(`</td><td>`)
			b.text(r.Mode)
			b.raw(`</td><td class="status-`)
			b.text(r.Status)
			b.raw(`">`)
			b.text(r.Status)
			b.raw(fmt.Sprintf(`</td><td>%d</td><td>%d</td><td>%d</td></tr>`, r.Total, r.Success, r.Errors))
		}
		b.raw(`</tbody></table></section>`)

		return b.flush(w)
	})
}

// ErrorAlert renders a user-facing error with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b writer
		b.raw(`<div class="alert" role="alert"><strong>`)
		b.text(message)
		b.raw(`</strong>`)
		if action != "" {
			b.raw(`<p>`)
			b.text(action)
			b.raw(`</p>`)
		}
		b.raw(`<small>Code: `)
		b.text(code)
		b.raw(`</small></div>`)
		return b.flush(w)
	})
}

// writer accumulates markup and escapes text.
type writer struct {
	buf []byte
}

func (b *writer) raw(s string)  { b.buf = append(b.buf, s...) }
func (b *writer) text(s string) { b.buf = append(b.buf, templ.EscapeString(s)...) }

func (b *writer) flush(w io.Writer) error {
	_, err := w.Write(b.buf)
	return err
}

const pageCSS = `body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1d2330}
main{max-width:1100px;margin:0 auto;padding:1.5rem}
header{display:flex;justify-content:space-between;align-items:baseline}
.card{background:#fff;border:1px solid #dde1e7;border-radius:6px;padding:1rem;margin:.75rem 0}
dl{display:grid;grid-template-columns:max-content 1fr;gap:.25rem 1rem}
dt{color:#5b6475}
textarea{width:100%;font-family:monospace}
form.run{display:flex;flex-wrap:wrap;gap:.5rem;margin-top:.5rem}
pre{white-space:pre-wrap;background:#f0f2f5;padding:.5rem;max-height:20rem;overflow:auto}
table{width:100%;border-collapse:collapse;background:#fff}
th,td{border-bottom:1px solid #dde1e7;padding:.4rem;text-align:left}
.status-failed{color:#b42318}
.alert{border:1px solid #f04438;background:#fef3f2;padding:1rem;border-radius:6px}
.empty{color:#5b6475}`

const pageJS = `document.querySelectorAll('form.run').forEach(function(form){
form.addEventListener('submit',async function(e){
e.preventDefault();
var log=form.nextElementSibling;log.textContent='';
var res=await fetch('/api/projects/'+form.dataset.project+'/process-stream',{method:'POST',body:new FormData(form)});
if(!res.ok){log.textContent=await res.text();return;}
var reader=res.body.getReader(),dec=new TextDecoder(),buf='';
for(;;){var r=await reader.read();if(r.done)break;buf+=dec.decode(r.value,{stream:true});
var parts=buf.split('\n\n');buf=parts.pop();
parts.forEach(function(p){if(p.indexOf('data: ')===0){var ev=JSON.parse(p.slice(6));
log.textContent+=ev.type+' '+JSON.stringify(ev.type==='done'?{success:ev.success,error:ev.error,total:ev.total}:ev)+'\n';}});}
});});`
