package webservices

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/tourmapdal"
)

// adminListLimit is how many cache ids the admin page shows
const adminListLimit = 200

type AdminService struct {
	logger            *logpkg.Logger
	store             tourmapdal.CacheStore
	routerURLBasePath string
	chi.Router
}

func NewAdminService(logger *logpkg.Logger, store tourmapdal.CacheStore, routerURLBasePath string) *AdminService {
	as := &AdminService{logger, store, routerURLBasePath, chi.NewRouter()}

	as.Router.Get("/", as.handleGet)
	as.Router.Post("/cache/purge", as.handlePurge)
	as.Router.Delete("/cache/{id}", as.handleDelete)

	return as
}

type purgeResponse struct {
	Deleted int64 `json:"deleted"`
}

func (as *AdminService) handlePurge(w http.ResponseWriter, r *http.Request) {
	deleted, err := as.store.Purge(r.Context())
	if err != nil {
		writeJSONError(w, r, as.logger, errorsx.Wrap(err), http.StatusInternalServerError)
		return
	}

	as.logger.Info("purged %d cache entries from %s", deleted, as.store.Name())
	render.JSON(w, r, purgeResponse{deleted})
}

func (as *AdminService) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := as.store.Delete(r.Context(), id)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errorsx.Cause(err) == tourmapdal.ErrNotFound {
			statusCode = http.StatusNotFound
		}
		writeJSONError(w, r, as.logger, errorsx.Wrap(err, "id", id), statusCode)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (as *AdminService) handleGet(w http.ResponseWriter, r *http.Request) {
	count, err := as.store.Count(r.Context())
	if err != nil {
		errorsx.HTTPError(w, as.logger, errorsx.Wrap(err), http.StatusInternalServerError)
		return
	}

	ids, err := as.store.ListIDs(r.Context(), adminListLimit)
	if err != nil {
		errorsx.HTTPError(w, as.logger, errorsx.Wrap(err), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"StoreName":         as.store.Name(),
		"Count":             count,
		"IDs":               ids,
		"ListLimit":         adminListLimit,
		"RouterURLBasePath": as.routerURLBasePath,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templateErr := adminTmpl.Execute(w, data)
	if templateErr != nil {
		errorsx.HTTPError(w, as.logger, errorsx.Wrap(templateErr), http.StatusInternalServerError)
		return
	}
}

var adminTmpl *template.Template

func init() {
	var err error
	adminTmpl, err = template.New("admin/index.html").Parse(adminTemplate)
	if err != nil {
		panic(err)
	}
}

const adminTemplate = `
<html>
	<head>
		<title>admin</title>
		<style type="text/css">
		div {
			margin: 10px;
			border: 1px solid grey;
			padding: 10px;
		}
		</style>
		<script>
		function purgeCache() {
			if (!confirm('Delete every cached result?')) {
				return;
			}

			fetch('/{{.RouterURLBasePath}}/cache/purge', {method: 'POST'})
				.then(resp => resp.json())
				.then(body => {
					alert('deleted ' + body.deleted + ' cached results');
					location.reload();
				})
				.catch(e => {
					console.error(e);
					alert('failed to purge the cache: ' + e);
				});
		}

		function deleteEntry(id) {
			fetch('/{{.RouterURLBasePath}}/cache/' + encodeURIComponent(id), {method: 'DELETE'})
				.then(() => location.reload())
				.catch(e => {
					console.error(e);
					alert('failed to delete ' + id + ': ' + e);
				});
		}
		</script>
	</head>
	<body>
		<h1>Admin settings</h1>
		<div>
			<h2>Cache</h2>
			<p>Store: {{.StoreName}}</p>
			<p>Cached results: {{.Count}}</p>
			<button onclick="purgeCache()">Purge the cache</button>
		</div>

		<div>
			<h2>Cached results</h2>
			<sub>Showing at most {{.ListLimit}}. Refresh page for updates</sub>
			{{range .IDs}}
				<p>
					<code>{{.}}</code>
					<button onclick="deleteEntry('{{.}}')">Delete</button>
				</p>
			{{end}}
		</div>
	</body>
</html>
`
