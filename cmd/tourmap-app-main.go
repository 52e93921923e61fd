package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/explorer"
	"github.com/jamesrr39/tourmap-app/gemini"
	"github.com/jamesrr39/tourmap-app/metrics"
	"github.com/jamesrr39/tourmap-app/nominatim"
	"github.com/jamesrr39/tourmap-app/overpass"
	"github.com/jamesrr39/tourmap-app/summary"
	"github.com/jamesrr39/tourmap-app/tagfilter"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmapdal"
	"github.com/jamesrr39/tourmap-app/webservices"
	"github.com/pkg/profile"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	DEFAULT_PORT = 9000

	adminPath = "admin"

	cacheConnEnvVar    = "TOURMAP_CACHE_DB"
	overpassURLEnvVar  = "OVERPASS_URL"
	geminiAPIKeyEnvVar = "GEMINI_API_KEY"
	geminiModelEnvVar  = "GEMINI_MODEL"
)

var (
	verbose = kingpin.Flag("v", "verbose logging").Bool()
	dataDir = kingpin.Flag("data-dir", "directory the default cache database and traces are kept in").Default(tourmapdal.DefaultDataDir).String()
)

func main() {
	setupServe()
	setupExplore()
	setupPurgeCache()

	kingpin.Parse()
}

func newLogger() *logpkg.Logger {
	logLevel := logpkg.LogLevelInfo
	if *verbose {
		logLevel = logpkg.LogLevelDebug
	}
	return logpkg.NewLogger(os.Stderr, logLevel)
}

// runAction turns an errorsx.Error into the error kingpin reports, with the stack trace attached
func runAction(run func() errorsx.Error) kingpin.Action {
	return func(ctx *kingpin.ParseContext) error {
		err := run()
		if err != nil {
			return fmt.Errorf("error: %q\nStack trace:\n%s", err.Error(), err.Stack())
		}
		return nil
	}
}

var cacheConnHelp = fmt.Sprintf("cache store to use. It should be the type, followed by the separator (%s), followed by the path or URL. For example: %s%smy/tiles.db. Defaults to a SQLite database in the data dir",
	tourmapdal.ConnectionPathSeparator,
	string(tourmapdal.DBFileTypeSQLite),
	tourmapdal.ConnectionPathSeparator,
)

func ensurePathsConfig() (*tourmapdal.PathsConfig, errorsx.Error) {
	pathsConfig, err := tourmapdal.NewPathsConfig(*dataDir)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	err = pathsConfig.EnsurePaths()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return pathsConfig, nil
}

func openCacheStore(ctx context.Context, pathsConfig *tourmapdal.PathsConfig, cacheConn string) (tourmapdal.CacheStore, errorsx.Error) {
	connURL := pathsConfig.DefaultCacheConnectionURL()
	if cacheConn != "" {
		var err errorsx.Error
		connURL, err = tourmapdal.ParseDBConnFilePath(cacheConn)
		if err != nil {
			return nil, errorsx.Wrap(err, "cache", cacheConn)
		}
	}

	store, err := tourmapdal.OpenCacheStore(ctx, connURL)
	if err != nil {
		return nil, errorsx.Wrap(err, "cache type", string(connURL.Type))
	}

	return store, nil
}

var addrHelp = fmt.Sprintf(
	`address to serve on. Ex: ':%d' listen on port %d to traffic from anywhere. 'localhost:%d' listen on port %d to traffic from localhost`,
	DEFAULT_PORT, DEFAULT_PORT, DEFAULT_PORT, DEFAULT_PORT,
)

type serveOptions struct {
	addr                string
	cacheConn           string
	overpassURL         string
	maxResponseBytes    int64
	geminiAPIKey        string
	geminiModel         string
	nominatimURL        string
	nominatimEmail      string
	maxRawElements      int
	maxPayloadBytes     int
	upstreamConcurrency uint
	includeRelations    bool
	maxPromptElements   int
}

func setupServe() {
	opts := new(serveOptions)
	cmd := kingpin.Command("serve", "serve the tile cache, summary and geocoding APIs")
	cmd.Flag("addr", addrHelp).Default(fmt.Sprintf(":%d", DEFAULT_PORT)).StringVar(&opts.addr)
	cmd.Flag("cache-db", cacheConnHelp).Envar(cacheConnEnvVar).StringVar(&opts.cacheConn)
	cmd.Flag("overpass-url", "Overpass interpreter URL").Envar(overpassURLEnvVar).Default(overpass.DefaultInterpreterURL).StringVar(&opts.overpassURL)
	cmd.Flag("max-response-bytes", "largest Overpass response body that is read").Default(fmt.Sprintf("%d", overpass.DefaultMaxResponseBytes)).Int64Var(&opts.maxResponseBytes)
	cmd.Flag("gemini-api-key", "API key for the generative model. Without one, summaries are not available").Envar(geminiAPIKeyEnvVar).StringVar(&opts.geminiAPIKey)
	cmd.Flag("gemini-model", "generative model to summarise with").Envar(geminiModelEnvVar).Default(gemini.DefaultModel).StringVar(&opts.geminiModel)
	cmd.Flag("nominatim-url", "Nominatim base URL").Default(nominatim.DefaultBaseURL).StringVar(&opts.nominatimURL)
	cmd.Flag("nominatim-email", "contact email sent to Nominatim").StringVar(&opts.nominatimEmail)
	cmd.Flag("max-raw-elements", "reject upstream results with more elements than this").Default(fmt.Sprintf("%d", tilecache.DefaultMaxRawElements)).IntVar(&opts.maxRawElements)
	cmd.Flag("max-payload-bytes", "reject processed results larger than this").Default(fmt.Sprintf("%d", tilecache.DefaultMaxPayloadBytes)).IntVar(&opts.maxPayloadBytes)
	cmd.Flag("upstream-concurrency", "maximum concurrent Overpass requests").Default(fmt.Sprintf("%d", tilecache.DefaultUpstreamConcurrency)).UintVar(&opts.upstreamConcurrency)
	cmd.Flag("include-relations", "include relations in bounding box queries").Default("true").BoolVar(&opts.includeRelations)
	cmd.Flag("max-prompt-elements", "maximum number of places described to the generative model").Default(fmt.Sprintf("%d", summary.DefaultMaxPromptElements)).IntVar(&opts.maxPromptElements)
	shouldProfile := cmd.Flag("profile", "write a CPU profile to the data dir while serving").Bool()
	cmd.Action(runAction(func() errorsx.Error {
		logger := newLogger()

		pathsConfig, err := ensurePathsConfig()
		if err != nil {
			return errorsx.Wrap(err)
		}

		if *shouldProfile {
			defer profile.Start(profile.ProfilePath(pathsConfig.DataDir), profile.CPUProfile, profile.NoShutdownHook).Stop()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		store, err := openCacheStore(ctx, pathsConfig, opts.cacheConn)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer store.Close()

		router, err := createServer(logger, pathsConfig, store, opts)
		if err != nil {
			return errorsx.Wrap(err)
		}

		server := httpextra.NewServerWithTimeouts()
		server.Addr = opts.addr
		server.Handler = router

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			shutdownErr := server.Shutdown(shutdownCtx)
			if shutdownErr != nil {
				logger.Error("failed to shut down server. Error: %s", shutdownErr)
			}
		}()

		logger.Info("about to start serving on %q with cache %q", opts.addr, store.Name())

		listenErr := server.ListenAndServe()
		if listenErr != nil && listenErr != http.ErrServerClosed {
			return errorsx.Wrap(listenErr)
		}

		return nil
	}))
}

// isLocalhost takes a remote address, with or without the port
func isLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func createLocalhostMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if !isLocalhost(r.RemoteAddr) {
				http.Error(w, "connections only allowed from the same computer the server is running on", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}

func createServer(logger *logpkg.Logger, pathsConfig *tourmapdal.PathsConfig, store tourmapdal.CacheStore, opts *serveOptions) (chi.Router, errorsx.Error) {
	httpClient := &http.Client{}
	taxonomy := tagfilter.NewDefaultTaxonomy()

	cacheConfig := tilecache.DefaultConfig()
	cacheConfig.MaxRawElements = opts.maxRawElements
	cacheConfig.MaxPayloadBytes = opts.maxPayloadBytes
	cacheConfig.UpstreamConcurrency = opts.upstreamConcurrency
	cacheConfig.QueryOptions.IncludeRelations = opts.includeRelations

	overpassClient := overpass.NewClient(httpClient, opts.overpassURL, opts.maxResponseBytes)
	resolver := tilecache.NewResolver(logger, store, overpassClient, cacheConfig)

	geminiClient, err := gemini.NewClient(context.Background(), httpClient, "", opts.geminiAPIKey, opts.geminiModel)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	if opts.geminiAPIKey == "" {
		logger.Warn("no generative model API key given (--gemini-api-key or $%s), summaries will fail", geminiAPIKeyEnvVar)
	}
	answerer := summary.NewGeminiAnswerer(geminiClient, taxonomy, opts.maxPromptElements)

	geocoder := nominatim.NewClient(httpClient, opts.nominatimURL, opts.nominatimEmail)

	traceFilePath := filepath.Join(pathsConfig.TraceDir, fmt.Sprintf("trace_%s.pbf", time.Now().Format("2006-01-02__03_04_05")))
	logger.Info("tracing at %q", traceFilePath)

	traceFile, osErr := os.Create(traceFilePath)
	if osErr != nil {
		return nil, errorsx.Wrap(osErr)
	}

	tracer := tracing.NewTracer(traceFile)

	metrics.RegisterRuntimeCollectors()

	router := chi.NewRouter()
	router.Use(middleware.DefaultLogger)
	router.Use(middleware.Recoverer)
	router.Use(metrics.HTTPMiddleware)
	router.Use(tracing.Middleware(tracer))
	router.Route("/api/", func(r chi.Router) {
		r.Use(httpextra.CorsAllowAnythingMiddleware())
		r.Mount("/tile", webservices.NewTileService(logger, resolver))
		r.Mount("/gemini", webservices.NewSummaryService(logger, answerer, geminiClient))
		r.Mount("/geocode", webservices.NewGeocodeService(logger, geocoder))
		r.Mount("/info", webservices.NewInfoService(logger, taxonomy, cacheConfig, explorer.DefaultConfig()))
	})
	router.Route(fmt.Sprintf("/%s/", adminPath), func(r chi.Router) {
		r.Use(createLocalhostMiddleware())
		r.Mount("/", webservices.NewAdminService(logger, store, adminPath))
	})
	router.Mount("/metrics", metrics.Handler())

	return router, nil
}

type exploreOptions struct {
	serverURL      string
	lat, lng       float64
	place          string
	nominatimURL   string
	nominatimEmail string
	mode           string
	interests      []string
	minElements    int
	maxGridSize    int
	maxRadius      float64
	minInterval    time.Duration
	summarize      bool
	prompt         string
}

func setupExplore() {
	opts := new(exploreOptions)
	cmd := kingpin.Command("explore", "search for places of interest around a point, through a running tourmap server")
	cmd.Flag("server", "base URL of the tourmap server").Default(fmt.Sprintf("http://localhost:%d", DEFAULT_PORT)).StringVar(&opts.serverURL)
	lat := cmd.Flag("lat", "latitude to search around").Default("NaN").Float64()
	lng := cmd.Flag("lng", "longitude to search around").Default("NaN").Float64()
	cmd.Flag("place", "place name to search around instead of --lat and --lng, looked up with Nominatim").StringVar(&opts.place)
	cmd.Flag("nominatim-url", "Nominatim base URL").Default(nominatim.DefaultBaseURL).StringVar(&opts.nominatimURL)
	cmd.Flag("nominatim-email", "contact email sent to Nominatim").StringVar(&opts.nominatimEmail)
	cmd.Flag("mode", "search strategy").Default(string(explorer.ModeRing)).EnumVar(&opts.mode, string(explorer.ModeGrid), string(explorer.ModeRing))
	cmd.Flag("interest", "category to search for (repeatable). Defaults to the general tourism categories").StringsVar(&opts.interests)
	cmd.Flag("min-elements", "stop once this many places are found").Default(fmt.Sprintf("%d", explorer.DefaultConfig().MinElements)).IntVar(&opts.minElements)
	cmd.Flag("max-grid-size", "largest grid (in tiles per side) to search").Default(fmt.Sprintf("%d", explorer.DefaultConfig().MaxGridSize)).IntVar(&opts.maxGridSize)
	cmd.Flag("max-radius", "largest radius (in metres) to search").Default(fmt.Sprintf("%.0f", explorer.DefaultConfig().MaxRadiusMetres)).Float64Var(&opts.maxRadius)
	cmd.Flag("min-interval", "minimum time between two requests").Default(explorer.DefaultConfig().MinInterval.String()).DurationVar(&opts.minInterval)
	cmd.Flag("summarize", "summarise the places found with the server's generative model").BoolVar(&opts.summarize)
	cmd.Flag("prompt", "what to ask the generative model about the places found").StringVar(&opts.prompt)
	cmd.Action(runAction(func() errorsx.Error {
		opts.lat, opts.lng = *lat, *lng
		if opts.place == "" && (math.IsNaN(opts.lat) || math.IsNaN(opts.lng)) {
			return errorsx.Errorf("either --place, or both --lat and --lng, are required")
		}
		return runExplore(newLogger(), opts)
	}))
}

func runExplore(logger *logpkg.Logger, opts *exploreOptions) errorsx.Error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	httpClient := &http.Client{}

	if opts.place != "" {
		place, err := nominatim.NewClient(httpClient, opts.nominatimURL, opts.nominatimEmail).Search(ctx, opts.place)
		if err != nil {
			return errorsx.Wrap(err, "place", opts.place)
		}
		logger.Info("found %q at %f,%f", place.DisplayName, place.Lat, place.Lon)
		opts.lat, opts.lng = place.Lat, place.Lon
	}

	config := explorer.DefaultConfig()
	config.MinElements = opts.minElements
	config.MaxGridSize = opts.maxGridSize
	config.MaxRadiusMetres = opts.maxRadius
	config.MinInterval = opts.minInterval

	taxonomy := tagfilter.NewDefaultTaxonomy()
	exp, err := explorer.NewExplorer(logger, explorer.NewHTTPFetcher(httpClient, opts.serverURL), taxonomy, config)
	if err != nil {
		return errorsx.Wrap(err)
	}

	exp.OnProgress(func(progress explorer.Progress) {
		switch explorer.Mode(opts.mode) {
		case explorer.ModeGrid:
			logger.Info("%s: grid %dx%d, %d places, %d requests", progress.State, progress.GridSize, progress.GridSize, len(progress.Elements), progress.Requests)
		default:
			logger.Info("%s: radius %.0fm, %d places, %d requests", progress.State, progress.RadiusMetres, len(progress.Elements), progress.Requests)
		}
	})

	progress, err := exp.Search(ctx, explorer.Request{
		Lat:       opts.lat,
		Lng:       opts.lng,
		Mode:      explorer.Mode(opts.mode),
		Interests: opts.interests,
	})
	if err != nil {
		return errorsx.Wrap(err)
	}

	if progress.LastError != "" {
		logger.Warn("search ended in state %q. Last error: %s", progress.State, progress.LastError)
	}

	output := struct {
		Search  explorer.Progress `json:"search"`
		Summary *summary.Report   `json:"summary,omitempty"`
	}{Search: progress}

	if opts.summarize {
		summarizer := summary.NewSummarizer(logger, summary.NewHTTPAnswerer(httpClient, opts.serverURL))
		output.Summary = summarizer.Summarize(ctx, opts.prompt, progress.Elements)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(output)
	if encodeErr != nil {
		return errorsx.Wrap(encodeErr)
	}

	if output.Summary != nil && output.Summary.Table != nil && len(output.Summary.Table.Rows) != 0 {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(output.Summary.Table.Markdown()))
	}

	return nil
}

func setupPurgeCache() {
	cmd := kingpin.Command("purge-cache", "delete every cached result")
	cacheConn := cmd.Flag("cache-db", cacheConnHelp).Envar(cacheConnEnvVar).String()
	cmd.Action(runAction(func() errorsx.Error {
		logger := newLogger()

		pathsConfig, err := ensurePathsConfig()
		if err != nil {
			return errorsx.Wrap(err)
		}

		ctx := context.Background()
		store, err := openCacheStore(ctx, pathsConfig, *cacheConn)
		if err != nil {
			return errorsx.Wrap(err)
		}
		defer store.Close()

		deleted, err := store.Purge(ctx)
		if err != nil {
			return errorsx.Wrap(err)
		}

		logger.Info("deleted %d cached results from %s", deleted, store.Name())
		return nil
	}))
}
