package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"thumbgen/internal/fs"
	"thumbgen/internal/generate"
	"thumbgen/internal/imaging"
	"thumbgen/internal/sign"
	"thumbgen/internal/sqlite"
	"thumbgen/internal/sweep"
	"thumbgen/internal/thumbnails"
)

type Config struct {
	Addr       string `env:"THUMBGEN_ADDR" envDefault:":8080"`
	AdminToken string `env:"THUMBGEN_ADMIN_TOKEN,required"`

	OutputDir string `env:"THUMBGEN_OUTPUT_DIR" envDefault:"storage/output"`
	TempDir   string `env:"THUMBGEN_TEMP_DIR" envDefault:"storage/temp"`
	UploadDir string `env:"THUMBGEN_UPLOAD_DIR" envDefault:"storage/uploads"`
	DBPath    string `env:"THUMBGEN_DB_PATH" envDefault:"storage/thumbgen.db"`

	MaxUploadSize  int64 `env:"THUMBGEN_MAX_UPLOAD_SIZE" envDefault:"10485760"`
	MaxVariations  int   `env:"THUMBGEN_MAX_VARIATIONS" envDefault:"5"`
	PNGCompression int   `env:"THUMBGEN_PNG_COMPRESSION" envDefault:"9"`
	JPEGQuality    int   `env:"THUMBGEN_JPEG_QUALITY" envDefault:"85"`
	WebPQuality    int   `env:"THUMBGEN_WEBP_QUALITY" envDefault:"80"`

	SignURLs      bool          `env:"THUMBGEN_SIGN_URLS" envDefault:"false"`
	SigningSecret string        `env:"THUMBGEN_SIGNING_SECRET" envDefault:"default-secret"`
	URLTTL        time.Duration `env:"THUMBGEN_URL_TTL" envDefault:"1h"`

	GeneratorEndpoint   string        `env:"THUMBGEN_GENERATOR_ENDPOINT"`
	GeneratorAPIKey     string        `env:"THUMBGEN_GENERATOR_API_KEY"`
	GeneratorModel      string        `env:"THUMBGEN_GENERATOR_MODEL" envDefault:"gemini-2.0-flash"`
	GeneratorMaxRetries int           `env:"THUMBGEN_GENERATOR_MAX_RETRIES" envDefault:"3"`
	GeneratorRetryDelay time.Duration `env:"THUMBGEN_GENERATOR_RETRY_DELAY" envDefault:"2s"`

	TempRetention   time.Duration `env:"THUMBGEN_TEMP_RETENTION" envDefault:"24h"`
	OutputRetention time.Duration `env:"THUMBGEN_OUTPUT_RETENTION" envDefault:"168h"`
	SweepSchedule   string        `env:"THUMBGEN_SWEEP_SCHEDULE" envDefault:"@hourly"`
}

func New(cfg *Config) *http.Server {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	storage := fs.NewStorage(cfg.UploadDir, cfg.TempDir)
	if err := storage.EnsureDirs(); err != nil {
		slog.Error("Failed to initialize storage directories", "error", err)
		panic(fmt.Sprintf("Failed to initialize storage directories: %v", err))
	}

	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize repository", "error", err)
		panic(fmt.Sprintf("Failed to initialize repository: %v", err))
	}

	exporter, err := imaging.NewExporter(cfg.OutputDir, cfg.PNGCompression, cfg.JPEGQuality, cfg.WebPQuality, logger)
	if err != nil {
		slog.Error("Failed to initialize exporter", "error", err)
		panic(fmt.Sprintf("Failed to initialize exporter: %v", err))
	}

	signer := sign.New(cfg.SigningSecret, cfg.URLTTL, cfg.OutputDir, cfg.SignURLs)

	var generator thumbnails.Generator
	if cfg.GeneratorAPIKey == "" || cfg.GeneratorEndpoint == "" {
		slog.Warn("No generator API key configured, using offline stub generator")
		generator = generate.NewStub(logger)
	} else {
		generator = generate.NewClient(generate.Config{
			Endpoint:   cfg.GeneratorEndpoint,
			APIKey:     cfg.GeneratorAPIKey,
			Model:      cfg.GeneratorModel,
			MaxRetries: cfg.GeneratorMaxRetries,
			RetryDelay: cfg.GeneratorRetryDelay,
		}, logger)
	}

	service := thumbnails.NewService(generator, exporter, signer, storage, repo, cfg.MaxVariations, logger)

	sweeper := sweep.New(logger)
	if cfg.SweepSchedule != "" {
		if _, err := sweep.Schedule(cfg.SweepSchedule, func() {
			runSweeps(cfg, sweeper, repo, logger)
		}); err != nil {
			slog.Error("Failed to schedule retention sweeps", "error", err)
			panic(fmt.Sprintf("Failed to schedule retention sweeps: %v", err))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("POST /api/thumbnails", createThumbnails(cfg, service, storage))
	mux.HandleFunc("GET /api/exports", auth(cfg.AdminToken, listExports(repo)))
	mux.HandleFunc("POST /api/cleanup", auth(cfg.AdminToken, runCleanup(cfg, sweeper, repo)))
	if cfg.SignURLs {
		mux.HandleFunc("GET /api/download/{file_name}", downloadFile(signer))
	} else {
		mux.Handle("GET /static/output/",
			http.StripPrefix("/static/output/", http.FileServer(http.Dir(cfg.OutputDir))))
	}

	handler := loggingMiddleware(mux)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// RunSweeps runs both retention sweeps once, for the -sweep CLI flag.
func RunSweeps(cfg *Config) (tempRemoved, outputRemoved int) {
	logger := slog.Default()
	return runSweeps(cfg, sweep.New(logger), nil, logger)
}

func runSweeps(cfg *Config, sweeper *sweep.Sweeper, repo thumbnails.ExportRepository, logger *slog.Logger) (int, int) {
	tempRemoved, err := sweeper.Sweep(cfg.TempDir, cfg.TempRetention)
	if err != nil {
		logger.Error("Temp sweep failed", "error", err)
	}
	outputRemoved, err := sweeper.Sweep(cfg.OutputDir, cfg.OutputRetention)
	if err != nil {
		logger.Error("Output sweep failed", "error", err)
	}
	if repo != nil && outputRemoved > 0 {
		if _, err := repo.DeleteOlderThan(time.Now().Add(-cfg.OutputRetention)); err != nil {
			logger.Warn("Failed to prune export metadata", "error", err)
		}
	}
	logger.Info("Retention sweep finished",
		"temp_files_deleted", tempRemoved,
		"output_files_deleted", outputRemoved)
	return tempRemoved, outputRemoved
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

var allowedUploadTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

func createThumbnails(cfg *Config, service *thumbnails.Service, storage thumbnails.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(cfg.MaxUploadSize); err != nil {
			if strings.Contains(err.Error(), "request body too large") {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
			return
		}

		script := r.FormValue("script")
		if strings.TrimSpace(script) == "" {
			http.Error(w, "Script text cannot be empty", http.StatusBadRequest)
			return
		}

		ratio, err := thumbnails.ParseAspectRatio(r.FormValue("aspect_ratio"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		count := 1
		if v := r.FormValue("count"); v != "" {
			count, err = strconv.Atoi(v)
			if err != nil || count < 1 {
				http.Error(w, "Invalid count", http.StatusBadRequest)
				return
			}
		}

		image, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, "No image provided", http.StatusBadRequest)
			return
		}
		defer image.Close()

		if !allowedUploadTypes[header.Header.Get("Content-Type")] {
			http.Error(w, "Invalid image format. Supported formats: JPEG, PNG, WEBP", http.StatusBadRequest)
			return
		}

		basePath, err := storage.SaveUpload(header.Filename, image)
		if err != nil {
			slog.Error("Failed to save upload", "error", err, "filename", header.Filename)
			http.Error(w, "Failed to save upload", http.StatusInternalServerError)
			return
		}

		result, err := service.CreateThumbnails(r.Context(), thumbnails.Request{
			Script:        script,
			AspectRatio:   ratio,
			Count:         count,
			BaseImagePath: basePath,
		})
		if err != nil {
			slog.Error("Thumbnail generation failed", "error", err)
			http.Error(w, "Thumbnail generation failed", http.StatusInternalServerError)
			return
		}

		if allFailed(result.Variations) {
			http.Error(w, "Failed to generate any thumbnails", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

func allFailed(variations []thumbnails.VariationResult) bool {
	for _, v := range variations {
		if !v.Failed() {
			return false
		}
	}
	return len(variations) > 0
}

func downloadFile(signer *sign.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileName := r.PathValue("file_name")

		expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		filePath, err := signer.Verify(fileName, expires, r.URL.Query().Get("signature"))
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, thumbnails.ErrPathTraversal):
				status = http.StatusBadRequest
			case errors.Is(err, thumbnails.ErrExpired), errors.Is(err, thumbnails.ErrInvalidSignature):
				status = http.StatusForbidden
			case errors.Is(err, thumbnails.ErrNotFound):
				status = http.StatusNotFound
			}
			slog.Warn("Download rejected", "file", fileName, "error", err)
			http.Error(w, err.Error(), status)
			return
		}

		file, err := os.Open(filePath)
		if err != nil {
			http.Error(w, thumbnails.ErrNotFound.Error(), http.StatusNotFound)
			return
		}
		defer file.Close()

		contentType := mime.TypeByExtension(filepath.Ext(fileName))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		if info, err := file.Stat(); err == nil {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		}
		w.WriteHeader(http.StatusOK)
		io.Copy(w, file)
	}
}

func listExports(repo thumbnails.ExportRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exports, err := repo.ListRecent(100)
		if err != nil {
			slog.Error("List exports failed", "error", err)
			http.Error(w, "Failed to list exports", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(exports); err != nil {
			slog.Error("Failed to encode exports list", "error", err)
		}
	}
}

func runCleanup(cfg *Config, sweeper *sweep.Sweeper, repo thumbnails.ExportRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tempRemoved, outputRemoved := runSweeps(cfg, sweeper, repo, slog.Default())

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]int{
			"temp_files_deleted":   tempRemoved,
			"output_files_deleted": outputRemoved,
		}); err != nil {
			slog.Error("Failed to encode cleanup response", "error", err)
		}
	}
}

func auth(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
