package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"showplan/utils"
)

// ImageHandler proxies poster art from TMDB with on-disk caching and
// downscaling, so the UI never hotlinks and repeat loads cost nothing.
type ImageHandler struct {
	cacheDir   string
	httpc      *http.Client
	mu         sync.Mutex
	inProgress map[string]chan struct{} // coalesce concurrent fetches of one image
}

// NewImageHandler creates an image proxy caching under dataDir/images.
func NewImageHandler(dataDir string) *ImageHandler {
	cacheDir := filepath.Join(dataDir, "images")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		log.Printf("[images] could not create cache dir %s: %v", cacheDir, err)
	}

	return &ImageHandler{
		cacheDir: cacheDir,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
		inProgress: make(map[string]chan struct{}),
	}
}

// Proxy fetches, optionally resizes, and caches one image.
// Query params:
//   - url: source image URL (required, TMDB only)
//   - w: target width (optional, default: original)
//   - q: JPEG quality 1-100 (optional, default: 80)
func (h *ImageHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		http.Error(w, "url parameter required", http.StatusBadRequest)
		return
	}

	if !strings.Contains(sourceURL, "image.tmdb.org") {
		http.Error(w, "URL not allowed", http.StatusForbidden)
		return
	}

	targetWidth := 0
	if wStr := r.URL.Query().Get("w"); wStr != "" {
		if parsed, err := strconv.Atoi(wStr); err == nil && parsed > 0 && parsed <= 2000 {
			targetWidth = parsed
		}
	}

	quality := 80
	if qStr := r.URL.Query().Get("q"); qStr != "" {
		if parsed, err := strconv.Atoi(qStr); err == nil && parsed >= 1 && parsed <= 100 {
			quality = parsed
		}
	}

	cacheKey := h.cacheKey(sourceURL, targetWidth, quality)
	cachePath := filepath.Join(h.cacheDir, cacheKey+".jpg")

	if h.serveCached(w, cachePath) {
		return
	}

	// Coalesce: if another request is already fetching this image, wait for
	// it and serve its result.
	h.mu.Lock()
	if ch, exists := h.inProgress[cacheKey]; exists {
		h.mu.Unlock()
		<-ch
		if h.serveCached(w, cachePath) {
			return
		}
		http.Error(w, "Failed to load image", http.StatusInternalServerError)
		return
	}
	ch := make(chan struct{})
	h.inProgress[cacheKey] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.inProgress, cacheKey)
		close(ch)
		h.mu.Unlock()
	}()

	// TMDB file paths occasionally carry raw spaces
	fetchURL, err := utils.EncodeURLWithSpaces(sourceURL)
	if err != nil {
		http.Error(w, "invalid url parameter", http.StatusBadRequest)
		return
	}

	resp, err := h.httpc.Get(fetchURL)
	if err != nil {
		log.Printf("[images] fetch %s: %v", sourceURL, err)
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[images] fetch %s returned %d", sourceURL, resp.StatusCode)
		http.Error(w, "Image source error", resp.StatusCode)
		return
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		log.Printf("[images] decode %s: %v", sourceURL, err)
		http.Error(w, "Failed to decode image", http.StatusInternalServerError)
		return
	}

	if targetWidth > 0 {
		bounds := img.Bounds()
		origWidth := bounds.Dx()
		origHeight := bounds.Dy()

		// Never upscale
		if targetWidth < origWidth {
			ratio := float64(targetWidth) / float64(origWidth)
			targetHeight := int(float64(origHeight) * ratio)

			dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
			// CatmullRom for quality downscaling of poster art
			draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
			img = dst
		}
	}

	tmpPath := cachePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		log.Printf("[images] cache create: %v", err)
		// Serve without caching
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Cache", "MISS-NOCACHE")
		jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		return
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		log.Printf("[images] encode: %v", err)
		http.Error(w, "Failed to encode image", http.StatusInternalServerError)
		return
	}
	f.Close()

	if err := os.Rename(tmpPath, cachePath); err != nil {
		os.Remove(tmpPath)
		log.Printf("[images] cache rename: %v", err)
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		http.Error(w, "Failed to read cached image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=2592000") // 30 days
	w.Header().Set("X-Cache", "MISS")
	w.Write(data)
}

// serveCached writes the cached file if present and reports whether it did.
func (h *ImageHandler) serveCached(w http.ResponseWriter, cachePath string) bool {
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return false
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=2592000") // 30 days
	w.Header().Set("X-Cache", "HIT")
	w.Write(data)
	return true
}

// cacheKey derives the cache filename from URL, width, and quality.
func (h *ImageHandler) cacheKey(url string, width, quality int) string {
	data := fmt.Sprintf("%s|%d|%d", url, width, quality)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// Options handles CORS preflight
func (h *ImageHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ClearCache removes all cached images.
func (h *ImageHandler) ClearCache() error {
	entries, err := os.ReadDir(h.cacheDir)
	if err != nil {
		return err
	}

	var failed int
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jpg") {
			if err := os.Remove(filepath.Join(h.cacheDir, entry.Name())); err != nil {
				failed++
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to remove %d cached image(s)", failed)
	}
	return nil
}
