package nft

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the bundle upload and lookup endpoints.
type Handler struct {
	store BundleStore
}

// NewHandler creates a bundle handler.
func NewHandler(store BundleStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up bundle routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/contracts/:id/bundle", h.Upload)
	r.GET("/contracts/:id/bundle", h.Get)
}

// Upload handles POST /contracts/:id/bundle. The multipart form carries one
// file per variant, keyed "active", "completed", "canceled". All three must
// be present; the upload replaces any prior bundle for the contract.
func (h *Handler) Upload(c *gin.Context) {
	contractID := c.Param("id")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Expected multipart form with active, completed, and canceled images",
		})
		return
	}

	images := make(map[Variant][]byte, len(Variants))
	for _, v := range Variants {
		files := form.File[string(v)]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "missing_variant",
				"message": "Missing " + string(v) + " image",
			})
			return
		}
		data, err := readUpload(files[0])
		if err != nil {
			status := http.StatusBadRequest
			msg := "Could not read " + string(v) + " image"
			if errors.Is(err, ErrVariantTooBig) {
				status = http.StatusRequestEntityTooLarge
				msg = string(v) + " image exceeds the size limit"
			}
			c.JSON(status, gin.H{"error": "invalid_image", "message": msg})
			return
		}
		images[v] = data
	}

	bundle, err := h.store.Save(c.Request.Context(), contractID, images)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingVariant), errors.Is(err, ErrVariantTooBig):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bundle", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "upload_failed",
				"message": "Failed to store bundle",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bundle": bundle})
}

// Get handles GET /contracts/:id/bundle.
func (h *Handler) Get(c *gin.Context) {
	bundle, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No bundle uploaded for this contract",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bundle": bundle})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > MaxVariantSize {
		return nil, ErrVariantTooBig
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// LimitReader guards against a lying Content-Length.
	data, err := io.ReadAll(io.LimitReader(f, MaxVariantSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxVariantSize {
		return nil, ErrVariantTooBig
	}
	return data, nil
}
