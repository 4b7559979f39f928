package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
)

// DatasetListItem is a dataset without column samples.
type DatasetListItem struct {
	Name      string         `json:"name"`
	Location  string         `json:"location"`
	Format    catalog.Format `json:"format"`
	RowCount  int64          `json:"row_count"`
	Columns   int            `json:"columns"`
	IDColumns []string       `json:"id_columns"`
}

// ListDatasets returns a page of the catalog, sorted by name.
func (a *API) ListDatasets(w http.ResponseWriter, r *http.Request) {
	g := a.cfg.Graph.Graph()
	names := g.Datasets()
	page := ParsePagination(r, DefaultLimit)

	start, end := page.Bounds(len(names))
	items := make([]DatasetListItem, 0, end-start)
	for _, name := range names[start:end] {
		ds, _ := g.Dataset(name)
		items = append(items, DatasetListItem{
			Name:      ds.Name,
			Location:  ds.Location,
			Format:    ds.Format,
			RowCount:  ds.RowCount,
			Columns:   len(ds.Columns),
			IDColumns: ds.IDColumns(),
		})
	}
	writeJSON(w, http.StatusOK, NewPage(items, len(names), page))
}

// GetDataset returns one dataset with its columns and samples.
func (a *API) GetDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ds, ok := a.cfg.Graph.Graph().Dataset(name)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", (&catalog.NotFoundError{Name: name}).Error())
		return
	}
	writeJSON(w, http.StatusOK, ds)
}
