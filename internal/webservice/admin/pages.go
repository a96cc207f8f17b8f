package admin

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/periscope/aggregator-api/internal/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

type pages struct {
	login  *template.Template
	list   *template.Template
	detail *template.Template
}

func parsePages() (pages, error) {
	funcs := template.FuncMap{"pretty": pretty}

	parse := func(name string) (*template.Template, error) {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("could not parse %s page: %v", name, err)
		}
		return t, nil
	}

	var p pages
	var err error
	if p.login, err = parse("login"); err != nil {
		return pages{}, err
	}
	if p.list, err = parse("list"); err != nil {
		return pages{}, err
	}
	if p.detail, err = parse("detail"); err != nil {
		return pages{}, err
	}
	return p, nil
}

// render executes t into a buffer first so that template errors never produce half a page.
func render(w http.ResponseWriter, status int, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		slog.Error("Failed to render admin page", "page", t.Name(), "err", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("Failed to write admin page", "err", err)
	}
}

func pretty(v models.Document) string {
	if v == nil {
		return "-"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

type loginPage struct {
	User string
}

type column struct {
	Name    string
	SortURL string
	Marker  string
}

type row struct {
	DetailURL string
	Cells     []string
}

type listPage struct {
	User    string
	Query   models.ListQuery
	Total   int64
	Columns []column
	Rows    []row
	PrevURL string
	NextURL string
}

type detailPage struct {
	User   string
	Record models.AdminView
}

func newListPage(user string, q models.ListQuery, records []models.AggregatorRecord, total int64) listPage {
	p := listPage{
		User:  user,
		Query: q,
		Total: total,
	}

	for _, f := range models.ListFields {
		c := column{Name: f}
		if slices.Contains(models.SortableFields, f) {
			next := q
			next.Skip = 0
			next.Sort, next.Descending = f, false
			if q.Sort == f {
				next.Descending = !q.Descending
				c.Marker = " ▲"
				if q.Descending {
					c.Marker = " ▼"
				}
			}
			c.SortURL = listURL(next)
		}
		p.Columns = append(p.Columns, c)
	}

	for _, r := range records {
		cells := make([]string, 0, len(models.ListFields))
		for _, f := range models.ListFields {
			cells = append(cells, cell(r.Field(f)))
		}
		p.Rows = append(p.Rows, row{
			DetailURL: "/admin/aggregator-data/" + r.ID.Hex(),
			Cells:     cells,
		})
	}

	if q.Skip > 0 {
		prev := q
		prev.Skip = max(q.Skip-q.Limit, 0)
		p.PrevURL = listURL(prev)
	}
	if q.Skip+q.Limit < total {
		next := q
		next.Skip = q.Skip + q.Limit
		p.NextURL = listURL(next)
	}
	return p
}

func listURL(q models.ListQuery) string {
	if v := q.Values(); len(v) > 0 {
		return "/admin/?" + v.Encode()
	}
	return "/admin/"
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case string:
		return v
	}
	return fmt.Sprint(v)
}
